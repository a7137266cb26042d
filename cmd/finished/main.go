package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"finished/api/internal/config"
	"finished/api/internal/finished"
	"finished/api/internal/local"
	"finished/api/internal/logging"
	"finished/api/internal/remote"
	"finished/api/internal/search"
)

var configPath string

// env is everything a command needs, built once in PersistentPreRunE.
type env struct {
	cfg     *config.Client
	logger  *zap.Logger
	slot    local.Slot
	index   *search.LocalIndex
	client  *remote.Client
	auth    *remote.Authenticator
	service *finished.Service
}

var current *env

var rootCmd = &cobra.Command{
	Use:           "finished",
	Short:         "Track the movies, games and books you have finished",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		e, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		current = e
		return nil
	},
}

func init() {
	cobra.OnFinalize(func() {
		if current != nil {
			current.close()
			current = nil
		}
	})
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $FINISHED_CONFIG or ~/.config/finished/config.yaml)")
}

func setup(ctx context.Context) (*env, error) {
	path := configPath
	if path == "" {
		path = config.ClientPath()
	}
	cfg, err := config.LoadClient(path)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, "stderr")
	if err != nil {
		return nil, err
	}

	slot, err := local.Open(ctx, cfg.Local)
	if err != nil {
		return nil, fmt.Errorf("open local list: %w", err)
	}
	index, err := search.NewLocalIndex()
	if err != nil {
		_ = slot.Close()
		return nil, err
	}

	e := &env{cfg: cfg, logger: logger, slot: slot, index: index}
	var table finished.RemoteTable
	if cfg.ServerURL != "" {
		e.client = remote.NewClient(cfg.ServerURL, nil)
		e.auth = remote.NewAuthenticator(e.client, remote.NewSessionFile(cfg.SessionPath), logger)
		table = e.client.Table(e.auth)
	}
	e.service = finished.NewService(finished.NewAdapter(slot, table, logger), index, logger)

	if err := e.service.SetIdentity(ctx, e.identity()); err != nil {
		// A failed migration keeps the local list for the next sign-in.
		fail(err.Error())
	}
	if _, remoteMode := e.service.Backend().(finished.RemoteBackend); !remoteMode {
		if err := e.service.Load(ctx); err != nil {
			e.close()
			return nil, err
		}
	}
	return e, nil
}

// identity is anonymous unless a server is configured and a session stored.
func (e *env) identity() finished.Identity {
	if e.auth == nil {
		return finished.Anonymous{}
	}
	return e.auth.Current()
}

func (e *env) requireServer() error {
	if e.auth == nil {
		return fmt.Errorf("no server configured: set server_url in %s or FINISHED_SERVER_URL", config.ClientPath())
	}
	return nil
}

func (e *env) close() {
	_ = e.index.Close()
	_ = e.slot.Close()
	_ = e.logger.Sync()
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fail(err.Error())
		os.Exit(1)
	}
}
