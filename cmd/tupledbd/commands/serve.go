package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tupledb/tupledb/internal/logger"
	"github.com/tupledb/tupledb/pkg/bufpool"
	"github.com/tupledb/tupledb/pkg/config"
	"github.com/tupledb/tupledb/pkg/identity"
	"github.com/tupledb/tupledb/pkg/registry"
	"github.com/tupledb/tupledb/pkg/store"
)

var (
	bootstrapUsername   string
	bootstrapCredential string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tupledb session engine",
	Long: `Start the tupledb session engine with the specified configuration.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/tupledb/config.yaml.

Examples:
  # Start with default config
  tupledbd serve

  # Start with a custom config file
  tupledbd serve --config /etc/tupledb/config.yaml

  # Start with environment variable overrides
  TUPLEDB_LOGGING_LEVEL=DEBUG tupledbd serve`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&bootstrapUsername, "bootstrap-user", "", "create this user on startup if the user cache is empty")
	serveCmd.Flags().StringVar(&bootstrapCredential, "bootstrap-credential", "", "credential for --bootstrap-user")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	fmt.Println("tupledbd - tuple-store session engine")
	logger.Info("log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("configuration loaded", "source", getConfigSource(GetConfigFile()))

	if err := config.WatchAndReload(GetConfigFile(), func(newCfg *config.Config) {
		logger.Info("config file changed, reloading logger settings",
			"level", newCfg.Logging.Level, "format", newCfg.Logging.Format)
		if err := InitLogger(newCfg); err != nil {
			logger.Error("failed to apply reloaded logger config", "error", err)
		}
	}); err != nil {
		logger.Warn("config file watch not established", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	writer, err := store.NewFileWriter(cfg.Storage.TablePath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	pool := bufpool.NewPool(cfg.BufferPool.Capacity, writer)
	pool.Start(ctx)
	defer pool.Stop()

	r := registry.New(
		registry.Config{
			TablePath:         cfg.Storage.TablePath,
			SessionTTLSeconds: int64(cfg.Session.TTL.Seconds()),
			QueueDepth:        cfg.Session.QueueDepth,
		},
		pool,
		identity.NewBcryptHasher(),
		store.JSONEncoder{},
	)

	if bootstrapUsername != "" {
		if _, err := r.SignUp(bootstrapUsername, bootstrapCredential, "", true); err != nil {
			logger.Warn("bootstrap user creation failed", "username", bootstrapUsername, "error", err)
		} else {
			logger.Info("bootstrap user created", "username", bootstrapUsername)
		}
	}

	logger.Info("buffer pool started", "capacity", cfg.BufferPool.Capacity)
	logger.Info("session engine is running. Press Ctrl+C to stop.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	signal.Stop(sigChan)
	logger.Info("shutdown signal received, stopping sessions")

	r.WaitForAllProcessesToFinish()
	cancel()

	logger.Info("session engine stopped")
	return nil
}
