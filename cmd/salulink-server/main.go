package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/salulink/salulink/internal/config"
	"github.com/salulink/salulink/internal/domain/analysis"
	"github.com/salulink/salulink/internal/domain/cases"
	"github.com/salulink/salulink/internal/domain/conditions"
	"github.com/salulink/salulink/internal/platform/auth"
	"github.com/salulink/salulink/internal/platform/db"
	"github.com/salulink/salulink/internal/platform/inference"
	"github.com/salulink/salulink/internal/platform/middleware"
	"github.com/salulink/salulink/internal/platform/telemetry"
	"github.com/salulink/salulink/migrations"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "salulink-server",
		Short:        "SaluLink clinical note analysis server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(migrateCmd())
	return rootCmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the analysis API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a clinical note and print the JSON result",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// Logs go to stderr so stdout carries only the result.
			logger := newLogger(cfg.Env, cmd.ErrOrStderr())

			note, err := readNote(file, cmd.InOrStdin())
			if err != nil {
				return err
			}

			catalog, err := loadCatalog(cfg)
			if err != nil {
				return err
			}
			model := loadModel(cfg, logger)
			defer model.Close()

			svc := analysis.NewService(catalog.Extractor(), model, logger)
			result := svc.Analyze(cmd.Context(), note)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().String("file", "", "Path to the clinical note (reads stdin when omitted)")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			migrator, closeFn, err := openMigrator(cmd.Context(), dir)
			if err != nil {
				return err
			}
			defer closeFn()

			count, err := migrator.Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			migrator, closeFn, err := openMigrator(cmd.Context(), dir)
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := migrator.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			printMigrationStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func openMigrator(ctx context.Context, dir string) (*db.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if !cfg.HasDatabase() {
		return nil, nil, fmt.Errorf("DATABASE_URL is required for migrations")
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, poolOptions(cfg))
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, migrationSource(dir)), pool.Close, nil
}

func migrationSource(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func poolOptions(cfg *config.Config) db.PoolOptions {
	return db.PoolOptions{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns}
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func newLogger(env string, out io.Writer) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// logConfigError reports a config failure before the configured logger exists.
func logConfigError(out io.Writer, err error) {
	fallback := zerolog.New(out).With().Timestamp().Logger()
	fallback.Error().Err(err).Msg("failed to load config")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadCatalog(cfg *config.Config) (*conditions.Catalog, error) {
	if cfg.ConditionCatalogPath == "" {
		return conditions.DefaultCatalog(), nil
	}
	catalog, err := conditions.LoadCatalog(cfg.ConditionCatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load condition catalog: %w", err)
	}
	return catalog, nil
}

// loadModel never fails: a model that cannot be loaded is replaced by a
// disabled one and analysis continues on keywords alone.
func loadModel(cfg *config.Config, logger zerolog.Logger) inference.Model {
	model, err := inference.New(inference.Config{
		Name:           cfg.ModelName,
		TokenizerPath:  cfg.ModelTokenizerPath,
		ONNXPath:       cfg.ModelONNXPath,
		ORTLibraryPath: cfg.ORTLibraryPath,
		MaxLength:      cfg.ModelMaxLength,
	}, logger)
	if err != nil {
		logger.Error().Err(err).Str("model", cfg.ModelName).Msg("model load failed, falling back to keyword extraction")
		return inference.Disabled{ModelName: cfg.ModelName}
	}
	return model
}

func readNote(path string, stdin io.Reader) (string, error) {
	if path == "" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read note: %w", err)
	}
	return string(b), nil
}

// serverDeps are the collaborators newServer wires into routes.
type serverDeps struct {
	cfg      *config.Config
	logger   zerolog.Logger
	catalog  *conditions.Catalog
	model    inference.Model
	caseRepo cases.Repository
	dbHealth echo.HandlerFunc
	metrics  *telemetry.Provider
}

func newServer(d serverDeps) *echo.Echo {
	cfg, logger := d.cfg, d.logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	if d.metrics != nil {
		e.Use(d.metrics.MetricsMiddleware())
	}
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(middleware.Sanitize(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	// API group
	api := e.Group("/api")
	api.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))
	api.Use(middleware.Audit(logger))

	analysisSvc := analysis.NewService(d.catalog.Extractor(), d.model, logger)
	if d.metrics != nil {
		analysisSvc.WithRecorder(d.metrics)
	}
	analysis.NewHandler(analysisSvc, logger).RegisterRoutes(api)
	conditions.NewHandler(d.catalog).RegisterRoutes(api)

	var authMW echo.MiddlewareFunc
	if cfg.ResolvedAuthMode() == config.AuthModeJWT {
		authMW = auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
		})
	} else {
		authMW = auth.DevAuthMiddleware()
	}
	casesGroup := api.Group("/cases", authMW)
	cases.NewHandler(cases.NewService(d.caseRepo, d.catalog)).RegisterRoutes(casesGroup)

	if d.dbHealth != nil {
		e.GET("/health/db", d.dbHealth)
	}
	if d.metrics != nil {
		e.GET("/metrics", d.metrics.PrometheusHandler())
	}

	return e
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		logConfigError(os.Stderr, err)
		return err
	}

	// Logger
	logger := newLogger(cfg.Env, os.Stdout)
	if cfg.ResolvedAuthMode() == config.AuthModeDevelopment {
		logger.Warn().Msg("development auth mode: case routes accept unauthenticated requests as admin; do not use in production")
	}

	catalog, err := loadCatalog(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load condition catalog")
		return err
	}
	logger.Info().Int("conditions", len(catalog.List())).Msg("condition catalog loaded")

	model := loadModel(cfg, logger)
	defer func() {
		if err := model.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to release model")
		}
	}()

	deps := serverDeps{cfg: cfg, logger: logger, catalog: catalog, model: model}
	if cfg.MetricsEnabled {
		deps.metrics = telemetry.NewProvider(telemetry.Config{
			ServiceName:    "salulink",
			ServiceVersion: analysis.AuthiVersion,
			Environment:    cfg.Env,
			RuntimeMetrics: true,
		})
	}

	// Database
	if cfg.HasDatabase() {
		pool, err := db.NewPool(context.Background(), cfg.DatabaseURL, poolOptions(cfg))
		if err != nil {
			logger.Error().Err(err).Msg("failed to connect to database")
			return err
		}
		defer pool.Close()
		logger.Info().Msg("connected to database")
		deps.caseRepo = cases.NewRepoPG(pool)
		deps.dbHealth = db.NewHealthChecker(pool).Handler()
		if deps.metrics != nil {
			err := errors.Join(
				deps.metrics.RegisterGauge("db_pool_total_connections", "Open database pool connections.",
					func() int64 { return int64(db.GetPoolStats(pool).TotalConns) }),
				deps.metrics.RegisterGauge("db_pool_idle_connections", "Idle database pool connections.",
					func() int64 { return int64(db.GetPoolStats(pool).IdleConns) }),
			)
			if err != nil {
				logger.Warn().Err(err).Msg("failed to register pool metrics")
			}
		}
	} else {
		logger.Warn().Msg("DATABASE_URL not set, cases are kept in memory and lost on restart")
		deps.caseRepo = cases.NewMemoryRepo()
	}

	e := newServer(deps)

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("model", model.Name()).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
