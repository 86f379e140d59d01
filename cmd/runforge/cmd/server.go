package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bargom/runforge/internal/api"
	"github.com/bargom/runforge/internal/api/handlers"
	"github.com/bargom/runforge/internal/auth"
	"github.com/bargom/runforge/internal/cache"
	"github.com/bargom/runforge/internal/database"
	"github.com/bargom/runforge/internal/database/repository"
	"github.com/bargom/runforge/internal/queue"
	"github.com/bargom/runforge/internal/run"
	"github.com/bargom/runforge/pkg/logging"
	"github.com/bargom/runforge/pkg/metrics"
)

var (
	serverPort int
	serverHost string
	cacheType  string
	modelList  string
)

// newServerCmd creates the server command with subcommands.
func newServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Server management commands",
		Long:  `Commands for managing the runforge HTTP API server and database.`,
	}

	cmd.AddCommand(newServerStartCmd())
	cmd.AddCommand(newServerMigrateCmd())

	return cmd
}

// newServerStartCmd creates the server start subcommand. Database, queue
// and auth settings come from the environment (DB_*, QUEUE_*, AUTH_JWT_*).
func newServerStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the HTTP API server",
		Example: `  runforge server start
  runforge server start --port 3000
  runforge server start --host 0.0.0.0 --port 8080 --cache redis`,
		RunE: runServerStart,
	}

	cmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "port to listen on")
	cmd.Flags().StringVar(&serverHost, "host", "localhost", "host to bind to")
	cmd.Flags().StringVar(&cacheType, "cache", "memory", "read cache backend (memory|redis)")
	cmd.Flags().StringVar(&modelList, "models", "", "comma-separated model allow-list (empty allows all)")

	return cmd
}

func runServerStart(cmd *cobra.Command, args []string) error {
	logger := logging.Default()
	logger.SetDefault()

	addr := fmt.Sprintf("%s:%d", serverHost, serverPort)

	dbCfg := database.ConfigFromEnv()
	db, err := database.Connect(dbCfg)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer database.Close(db)

	if err := database.Ping(db); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if verbose {
		fmt.Fprintf(cmd.OutOrStdout(), "Connected to %s database %s\n", dbCfg.Dialect, dbCfg.Database)
	}

	queueCfg := queue.ConfigFromEnv()
	queueMgr := queue.NewManager(queueCfg)
	defer queueMgr.Close()

	cacheCfg := cache.DefaultConfig()
	cacheCfg.Type = cacheType
	cacheCfg.Addr = queueCfg.RedisAddr
	cacheCfg.Password = queueCfg.RedisPassword
	cacheCfg.Prefix = "runforge"
	runCache, err := cache.New(cacheCfg)
	if err != nil {
		return err
	}
	defer runCache.Close()

	registry := metrics.NewRegistry(metrics.DefaultConfig())
	metrics.SetGlobal(registry)

	var modelIDs []string
	if modelList != "" {
		modelIDs = strings.Split(modelList, ",")
	}

	repos := repository.New(db, dbCfg.Dialect)
	service := run.NewService(run.ServiceConfig{
		DB:      db,
		Repos:   repos,
		Queue:   queueMgr,
		Models:  run.NewStaticModelChecker(modelIDs),
		Cache:   runCache,
		Logger:  logger,
		Metrics: registry.Run(),
	})

	validator, err := auth.NewValidator(auth.ConfigFromEnv())
	if err != nil {
		return fmt.Errorf("configuring auth: %w", err)
	}

	handler := handlers.NewHandler(service, logger).
		WithHealthChecks(
			func(ctx context.Context) error { return database.Ping(db) },
			queueMgr.Ping,
		)

	router := api.NewRouter(handler, api.RouterConfig{
		Auth:     auth.NewMiddleware(validator),
		Logger:   logger,
		Registry: registry,
	})

	server := api.NewServer(router, api.DefaultServerConfig(addr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
		if err := server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return <-errCh
	}
}

// newServerMigrateCmd creates the server migrate subcommand.
func newServerMigrateCmd() *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dbCfg := database.ConfigFromEnv()
			db, err := database.Connect(dbCfg)
			if err != nil {
				return fmt.Errorf("database connection failed: %w", err)
			}
			defer database.Close(db)

			migrator := database.NewMigrator(db, dbCfg.Dialect)
			if down {
				if err := migrator.MigrateDown(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Rolled back last migration")
				return nil
			}
			if err := migrator.MigrateUp(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
			return nil
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "roll back the most recent migration")
	return cmd
}
