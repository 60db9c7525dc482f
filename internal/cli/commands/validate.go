package commands

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/ormeta/internal/cli/ui"
	"github.com/conduit-lang/ormeta/internal/meta"
)

// NewValidateCommand creates the validate command
func NewValidateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [class...]",
		Short: "Resolve metadata and report every failure",
		Long: `Load and resolve the metadata of the given classes, or of every persistent
type of the unit when none are given.

Resolution runs exactly as it does at runtime: superclasses first, mappings
after metadata, and mapping verification against the database when
database.url is set and metadata.validate includes "mapping".`,
		Example: `  # Validate every persistent type
  ormeta validate

  # Validate two classes with a specific configuration
  ormeta validate -c config/ormeta.yml com.acme.Person com.acme.Employee`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, opts, args)
		},
	}
}

func runValidate(cmd *cobra.Command, opts *rootOptions, args []string) error {
	u, err := openUnit(cmd.Context(), opts)
	if err != nil {
		fmt.Fprint(cmd.ErrOrStderr(), ui.ConfigError(err.Error(), opts.noColor))
		return err
	}
	defer u.Close()

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	if _, err := u.loadTypes(); err != nil {
		fmt.Fprint(errOut, ui.ResolutionError(err, opts.noColor))
		return err
	}

	names := args
	if len(names) == 0 {
		names = u.repo.PersistentTypeNames(false, u.loader)
	}
	if len(names) == 0 {
		fmt.Fprint(errOut, ui.Warning("The unit has no persistent types; check metadata.resources and metadata.types.", opts.noColor))
		return nil
	}

	table := ui.NewTable(out, opts.noColor, "CLASS", "ALIAS", "TABLE", "FIELDS", "RESOLVED")
	failed := 0
	for _, name := range names {
		cls, err := u.loader.LoadClass(name, true)
		if err != nil {
			failed++
			if errors.Is(err, meta.ErrClassNotFound) {
				fmt.Fprint(errOut, ui.ClassNotFoundError(name, ui.FindSimilar(name, u.knownNames(), nil), opts.noColor))
			} else {
				fmt.Fprint(errOut, ui.ResolutionError(err, opts.noColor))
			}
			continue
		}

		m, err := u.repo.GetMetaData(cls, u.loader, true)
		if err != nil {
			failed++
			fmt.Fprint(errOut, ui.ResolutionError(err, opts.noColor))
			continue
		}
		table.AddRow(name, m.TypeAlias(), m.Table(), strconv.Itoa(len(m.Fields())), m.ResolveState().String())
	}

	if table.Len() > 0 {
		table.Render()
		fmt.Fprintln(out)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d types failed to resolve", failed, len(names))
	}
	ui.WriteSuccess(out, fmt.Sprintf("%d types resolved", len(names)), opts.noColor)
	return nil
}
