package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/ormeta/internal/cli/ui"
	"github.com/conduit-lang/ormeta/internal/meta"
)

// NewAliasesCommand creates the aliases command
func NewAliasesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "aliases [alias]",
		Short: "List registered aliases or resolve one",
		Long: `Load every persistent type so that enhanced classes register, then list the
aliases they registered under. Given an alias, resolve it and show the
metadata it names.`,
		Example: `  # List every alias
  ormeta aliases

  # Resolve one alias
  ormeta aliases Employee`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAliases(cmd, opts, args)
		},
	}
}

func runAliases(cmd *cobra.Command, opts *rootOptions, args []string) error {
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
	if _, err := u.repo.ProcessRegisteredClasses(u.loader); err != nil {
		fmt.Fprint(errOut, ui.ResolutionError(err, opts.noColor))
		return err
	}

	if len(args) == 1 {
		return showAlias(cmd, u, opts, args[0])
	}

	aliases := u.repo.AliasNames()
	if len(aliases) == 0 {
		fmt.Fprint(errOut, ui.Warning("No registered class declares an alias.", opts.noColor))
		return nil
	}

	table := ui.NewTable(out, opts.noColor, "ALIAS", "CLASS")
	for _, alias := range aliases {
		m, err := u.repo.GetMetaDataByAlias(alias, u.loader, false)
		if err != nil {
			u.logger.Warn("alias did not resolve", zap.String("alias", alias), zap.Error(err))
			table.AddRow(alias, "(unresolved)")
			continue
		}
		if m == nil {
			table.AddRow(alias, "")
			continue
		}
		table.AddRow(alias, m.DescribedType().Name)
	}
	table.Render()
	return nil
}

func showAlias(cmd *cobra.Command, u *unit, opts *rootOptions, alias string) error {
	m, err := u.repo.GetMetaDataByAlias(alias, u.loader, true)
	if err != nil {
		if meta.IsNotFound(err) {
			suggestions := ui.FindSimilar(alias, u.repo.AliasNames(), nil)
			fmt.Fprint(cmd.ErrOrStderr(), ui.AliasNotFoundError(alias, suggestions, opts.noColor))
		} else {
			fmt.Fprint(cmd.ErrOrStderr(), ui.ResolutionError(err, opts.noColor))
		}
		return err
	}

	out := cmd.OutOrStdout()
	ui.Header(out, alias, opts.noColor)
	kv := ui.NewKeyValueTable(out, opts.noColor)
	kv.AddRow("Class", m.DescribedType().Name)
	if sup := m.Superclass(); sup != nil {
		kv.AddRow("Superclass", sup.DescribedType().Name)
	}
	kv.AddRow("Table", m.Table())
	kv.AddRow("Access", m.Access().String())
	if id := m.IdentityClass(); id != nil {
		kv.AddRow("Identity", id.Name)
	}
	kv.AddRow("Resolved", m.ResolveState().String())
	kv.Render()
	return nil
}
