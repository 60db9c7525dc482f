package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/ormeta/internal/cli/ui"
	"github.com/conduit-lang/ormeta/internal/meta"
)

// NewOrderCommand creates the order command
func NewOrderCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "order",
		Short: "Show persistent types ordered by primary key dependencies",
		Long: `Resolve every persistent type and print them in the order inserts must run:
a type whose primary key references another type comes after that type.
Types that fail to resolve are reported and left out.

A dependency cycle is reported as a warning and the name order is kept.`,
		Example: `  ormeta order
  ormeta order -c config/ormeta.yml --no-color`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrder(cmd, opts)
		},
	}
}

func runOrder(cmd *cobra.Command, opts *rootOptions) error {
	u, err := openUnit(cmd.Context(), opts)
	if err != nil {
		fmt.Fprint(cmd.ErrOrStderr(), ui.ConfigError(err.Error(), opts.noColor))
		return err
	}
	defer u.Close()

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	classes, err := u.loadTypes()
	if err != nil {
		fmt.Fprint(errOut, ui.ResolutionError(err, opts.noColor))
		return err
	}
	failed := 0
	for _, cls := range classes {
		if _, err := u.repo.GetMetaData(cls, u.loader, false); err != nil {
			failed++
			fmt.Fprint(errOut, ui.ResolutionError(err, opts.noColor))
		}
	}

	metas, err := u.repo.MetaDatas()
	if err != nil {
		fmt.Fprint(errOut, ui.ResolutionError(err, opts.noColor))
		return err
	}
	ordered, cycle := meta.OrderByIdentityDependencies(metas)
	if cycle != nil {
		names := make([]string, len(cycle))
		for i, m := range cycle {
			names[i] = m.DescribedType().Name
		}
		fmt.Fprint(errOut, ui.Warning("Primary key dependency cycle: "+strings.Join(names, " -> "), opts.noColor))
	}

	table := ui.NewTable(out, opts.noColor, "#", "CLASS", "TABLE", "DEPENDS ON")
	for i, m := range ordered {
		table.AddRow(strconv.Itoa(i+1), m.DescribedType().Name, m.Table(), strings.Join(identityDependencies(m), ", "))
	}
	table.Render()

	if failed > 0 {
		return fmt.Errorf("%d types failed to resolve", failed)
	}
	return nil
}

// identityDependencies names the other types m's primary key references.
func identityDependencies(m *meta.ClassMetaData) []string {
	var deps []string
	for _, f := range m.PrimaryKeyFields() {
		target := f.TypeMetaData()
		if target == nil || target == m {
			continue
		}
		name := target.DescribedType().Name
		if !containsName(deps, name) {
			deps = append(deps, name)
		}
	}
	return deps
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
