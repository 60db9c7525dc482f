package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/ormeta/internal/cli/ui"
	"github.com/conduit-lang/ormeta/internal/eviction"
	"github.com/conduit-lang/ormeta/internal/web/introspect"
	"github.com/conduit-lang/ormeta/internal/web/server"
)

// NewServeCommand creates the serve command
func NewServeCommand(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve repository contents over HTTP",
		Long: `Start a read-only JSON introspection server over the unit's repository.

When redis.addr is set the repository joins the unit's eviction channel:
metadata evicted on one node is evicted on every other node serving the same
unit, and evictions received from other nodes are applied locally.

The server stops gracefully on SIGINT or SIGTERM.`,
		Example: `  # Serve on the configured address
  ormeta serve

  # Serve on another port
  ormeta serve --addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, opts, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, opts *rootOptions, addr string) error {
	u, err := openUnit(ctx, opts)
	if err != nil {
		fmt.Fprint(cmd.ErrOrStderr(), ui.ConfigError(err.Error(), opts.noColor))
		return err
	}
	defer u.Close()

	if _, err := u.loadTypes(); err != nil {
		fmt.Fprint(cmd.ErrOrStderr(), ui.ResolutionError(err, opts.noColor))
		return err
	}

	if addr == "" {
		addr = u.cfg.Server.Addr
	}
	srv, err := server.New(server.DefaultConfig(addr),
		introspect.NewHandler(u.repo, u.loader, u.logger.Named("http")), u.logger.Named("server"))
	if err != nil {
		return err
	}

	if u.cfg.Redis.Addr != "" {
		if err := joinEvictions(ctx, u, srv); err != nil {
			fmt.Fprint(cmd.ErrOrStderr(), ui.ConfigError(err.Error(), opts.noColor))
			return err
		}
	}

	if err := srv.Listen(); err != nil {
		return err
	}
	ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("serving unit %s on http://%s", u.cfg.Unit, srv.Addr()), opts.noColor)
	return srv.Run(ctx)
}

// joinEvictions connects the repository to the unit's eviction channel and
// registers the teardown with srv.
func joinEvictions(ctx context.Context, u *unit, srv *server.Server) error {
	if !u.repo.Locking() {
		u.logger.Warn("repository is preloaded; remote evictions are not applied",
			zap.String("redis", u.cfg.Redis.Addr))
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     u.cfg.Redis.Addr,
		Password: u.cfg.Redis.Password,
		DB:       u.cfg.Redis.DB,
	})
	b := eviction.NewBroadcaster(client, u.repo, eviction.Options{
		Channel: u.cfg.Redis.Channel,
		Unit:    u.cfg.Unit,
	}, u.logger.Named("eviction"))
	if err := b.Start(ctx); err != nil {
		client.Close()
		return fmt.Errorf("failed to join eviction channel: %w", err)
	}
	u.repo.AddSystemListener(b)

	srv.OnShutdown(func(context.Context) error {
		u.repo.RemoveSystemListener(b)
		if err := b.Close(); err != nil {
			client.Close()
			return err
		}
		return client.Close()
	})
	return nil
}
