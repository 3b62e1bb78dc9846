package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"galaxy/config"
	"galaxy/internal/database"
	"galaxy/internal/server"
)

var (
	configPath string
	verbose    bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "galaxy",
		Short:        "Community site where every profession has its own galaxy",
		SilenceUsage: true,
		RunE:         runServe,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (overrides GALAXY_CONFIG_FILE)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the web server",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or upgrade the database schema and exit",
			RunE:  runMigrate,
		},
	)
	return root
}

// setup loads the configuration and builds the logger.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	zcfg := zap.NewProductionConfig()
	if verbose || cfg.Debug {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	log, err := zcfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return cfg, log, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Session.GeneratedSecret {
		log.Warn("GALAXY_SESSION_SECRET is not set; sessions will not survive a restart")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := database.Open(ctx, cfg.Database.Path, log)
	if err != nil {
		log.Error("failed to initialize database", zap.Error(err))
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("failed to close database connection", zap.Error(err))
		} else {
			log.Info("database connection closed")
		}
	}()

	srv, err := server.New(cfg, store, log)
	if err != nil {
		return err
	}
	log.Info("listening", zap.String("url", "http://localhost:"+cfg.Server.Port))
	return srv.Run(ctx)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	// Open creates missing tables and applies every column migration.
	store, err := database.Open(cmd.Context(), cfg.Database.Path, log)
	if err != nil {
		return err
	}
	log.Info("database is up to date", zap.String("path", cfg.Database.Path))
	return store.Close()
}
