package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"clinical-review-backend/internal/bootstrap"
	"clinical-review-backend/internal/shared/config"
	"clinical-review-backend/internal/shared/server"
	"clinical-review-backend/internal/shared/storage/db"
	"clinical-review-backend/internal/shared/telemetry"
)

const shutdownTimeout = 15 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:           "clinical-review",
		Short:         "Clinical document analysis API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		telemetry.Error("cli.failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func runServer(migrate bool) error {
	cfg := config.Load()
	app, err := bootstrap.Build(cfg)
	if err != nil {
		return err
	}
	if migrate && app.DB != nil {
		if err := db.RunMigrations(context.Background(), app.DB); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:              server.Addr(cfg.Port),
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		telemetry.Info("server.start", map[string]any{"addr": srv.Addr, "env": cfg.Env})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			telemetry.Error("server.listen_failed", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Info("server.shutdown", nil)
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	if app.DB != nil {
		_ = app.DB.Close()
	}
	telemetry.Info("server.stopped", nil)
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}
	for _, dir := range []db.MigrationDirection{db.MigrateUp, db.MigrateDown, db.MigrateStatus} {
		cmd.AddCommand(&cobra.Command{
			Use:   string(dir),
			Short: "goose " + string(dir) + " against the embedded migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrations(cmd.Context(), dir)
			},
		})
	}
	return cmd
}

func runMigrations(ctx context.Context, dir db.MigrationDirection) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := config.Load()
	telemetry.Configure(cfg.LogLevel, cfg.Env)
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, bootstrap.DBOptions(cfg, db.ProfileMigrate))
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := db.RunMigrationsDirection(ctx, sqlDB, dir); err != nil {
		return err
	}
	telemetry.Info("migrate.done", map[string]any{"direction": string(dir)})
	return nil
}
