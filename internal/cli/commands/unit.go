package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/conduit-lang/ormeta/internal/cli/config"
	"github.com/conduit-lang/ormeta/internal/enhance"
	"github.com/conduit-lang/ormeta/internal/factory"
	"github.com/conduit-lang/ormeta/internal/meta"
	"github.com/conduit-lang/ormeta/internal/schema"
)

// unit is one persistence unit opened from configuration: its class path,
// the registry enhanced classes register with, and the repository.
type unit struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *enhance.Registry
	loader   *enhance.ClassPath
	factory  *factory.Factory
	repo     *meta.Repository
	verifier *schema.Verifier
}

// openUnit loads the configuration named by opts. Relative manifest and
// resource paths are taken relative to the configuration file.
func openUnit(ctx context.Context, opts *rootOptions) (*unit, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	logger, err := cfg.Logger()
	if err != nil {
		return nil, err
	}

	base := "."
	if opts.configPath != "" {
		base = filepath.Dir(opts.configPath)
	}
	resolvePath := func(p string) string {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}

	fs := afero.NewOsFs()
	manifest, err := enhance.ReadManifest(fs, resolvePath(cfg.Metadata.Classes))
	if err != nil {
		return nil, err
	}

	registry := enhance.NewRegistry()
	loader, err := enhance.NewClassPath(cfg.Unit, registry, manifest.Classes, logger.Named("classpath"))
	if err != nil {
		return nil, err
	}

	factoryOpts, err := cfg.FactoryOptions()
	if err != nil {
		return nil, err
	}
	resources := make([]string, len(factoryOpts.Resources))
	for i, res := range factoryOpts.Resources {
		resources[i] = resolvePath(res)
	}
	factoryOpts.Resources = resources
	f := factory.New(fs, factoryOpts, logger.Named("factory"))

	repoCfg, err := cfg.RepositoryConfig()
	if err != nil {
		return nil, err
	}
	repoCfg.Registry = registry

	u := &unit{cfg: cfg, logger: logger, registry: registry, loader: loader, factory: f}
	if cfg.Database.URL != "" {
		verifier, err := schema.Open(ctx, cfg.Database.Driver, cfg.Database.URL, logger.Named("schema"))
		if err != nil {
			return nil, err
		}
		u.verifier = verifier
		repoCfg.Verifier = verifier
	}

	repo, err := meta.NewRepository(f, repoCfg, logger.Named("repository"))
	if err != nil {
		u.Close()
		return nil, err
	}
	u.repo = repo
	return u, nil
}

// loadTypes loads every persistent type, initializing it so that enhanced
// classes register, then runs Preload when the unit asks for it.
func (u *unit) loadTypes() ([]*meta.Class, error) {
	classes, err := u.repo.LoadPersistentTypes(false, u.loader)
	if err != nil {
		return classes, err
	}
	if err := u.repo.Preload(u.loader); err != nil {
		return classes, err
	}
	return classes, nil
}

// knownNames returns every class name the unit can load, for suggestions.
func (u *unit) knownNames() []string {
	names := u.repo.PersistentTypeNames(false, u.loader)
	if len(names) == 0 {
		names = u.loader.Names()
	}
	return names
}

func (u *unit) Close() error {
	var err error
	if u.repo != nil {
		err = multierr.Append(err, u.repo.Close())
	}
	if u.verifier != nil {
		err = multierr.Append(err, u.verifier.Close())
	}
	// Sync fails on terminals; only the close errors matter.
	_ = u.logger.Sync()
	if err != nil {
		return fmt.Errorf("failed to close unit %s: %w", u.cfg.Unit, err)
	}
	return nil
}
