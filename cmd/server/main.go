package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sheetflow/backend/internal/api"
	"github.com/sheetflow/backend/internal/auth"
	"github.com/sheetflow/backend/internal/config"
	"github.com/sheetflow/backend/internal/parser"
	"github.com/sheetflow/backend/internal/session"
	"github.com/sheetflow/backend/internal/storage"
	"github.com/sheetflow/backend/internal/upload"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := pflag.String("config", defaultConfigPath(), "path to the YAML config file (created if missing)")
	port := pflag.Int("port", 0, "override server.port")
	migrateOnly := pflag.Bool("migrate-only", false, "apply database migrations and exit")
	pflag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, *configPath, *migrateOnly, log); err != nil {
		log.Error("server stopped", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, configPath string, migrateOnly bool, log *zap.Logger) error {
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	store, err := openStore(cfg, migrateOnly, log.Named("storage"))
	if err != nil {
		return err
	}
	// Once serving, shutdown owns closing the store.
	serving := false
	defer func() {
		if !serving {
			store.Close()
		}
	}()
	if migrateOnly {
		log.Info("migrations applied", zap.String("driver", cfg.Database.Driver))
		return nil
	}

	uploads, err := storage.NewLocalStore(cfg.Storage.UploadsDirectory)
	if err != nil {
		return err
	}
	reports, err := storage.NewLocalStore(cfg.Storage.ReportsDirectory)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Initialize ingestion workers
	pipeline := upload.NewPipeline(store, parser.NewRegistry(), log.Named("upload"), upload.NewMetrics(reg))
	ingestion := upload.NewManager(pipeline, upload.Config{
		Workers:   cfg.Ingestion.Workers,
		QueueSize: cfg.Ingestion.QueueSize,
	}, log.Named("upload"))
	ingestion.Start(context.Background())

	handlers := api.NewHandlers(&api.Dependencies{
		Store:         store,
		Uploads:       uploads,
		Reports:       reports,
		Queue:         ingestion,
		Authenticator: auth.NewAuthenticator(store, 0),
		Tokens:        auth.NewTokens(cfg.Auth.TokenSecret, cfg.TokenTTL()),
		Sessions: session.NewManager(session.Options{
			Secret: cfg.Auth.SessionSecret,
			MaxAge: cfg.Auth.SessionMaxAge,
			Secure: cfg.Auth.CookieSecure,
		}),
		AllowedOrigins:      allowedOrigins(cfg.Server),
		Log:                 log.Named("api"),
		Version:             Version,
		MaxUploadBytes:      cfg.Storage.MaxUploadBytes,
		StatusPollInterval:  cfg.StatusPollInterval(),
		StatusStreamTimeout: cfg.StatusStreamTimeout(),
	})

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	setupMiddleware(e, cfg, log.Named("http"))
	api.SetupMiddleware(e, log.Named("api"), cfg.Logging.Level == "debug")
	api.RegisterRoutes(e, handlers)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))

	// Configure server with settings from config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	log.Info("server starting",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("config", configPath),
		zap.String("listen", cfg.GetServerAddr()),
		zap.String("driver", cfg.Database.Driver),
		zap.String("data_dir", cfg.Storage.DataDirectory),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serving = true
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- e.StartServer(s)
	}()

	var errs []error
	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, fmt.Errorf("serving http: %w", err))
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	errs = append(errs, shutdown(shutdownCtx, log, e, ingestion, store))
	return errors.Join(errs...)
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// shutdown stops the HTTP server, then the ingestion workers, then closes
// the store. The store stays open when the workers did not stop in time,
// since a running ingestion may still write to it.
func shutdown(ctx context.Context, log *zap.Logger, httpServer, ingestion shutdowner, store io.Closer) error {
	var errs []error
	if err := httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := ingestion.Shutdown(ctx); err != nil {
		log.Warn("ingestion workers still running; leaving the store open", zap.Error(err))
		return errors.Join(append(errs, fmt.Errorf("ingestion shutdown: %w", err))...)
	}
	if err := store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}
	return errors.Join(errs...)
}

// openStore selects the record store. Gorm stores are migrated when
// autoMigrate is set or when only migrating.
func openStore(cfg *config.AppConfig, migrate bool, log *zap.Logger) (storage.Store, error) {
	if cfg.Database.Driver == "memory" {
		if migrate {
			return nil, errors.New("the memory store has no migrations")
		}
		log.Warn("using the in-memory store; records are lost on restart")
		return storage.NewMemoryStore(), nil
	}

	store, err := storage.OpenGorm(cfg.Database.Driver, cfg.DatabaseDSN(), log)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate || migrate {
		if err := store.Migrate(); err != nil {
			store.Close()
			return nil, err
		}
	}
	return store, nil
}

func setupMiddleware(e *echo.Echo, cfg *config.AppConfig, log *zap.Logger) {
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Skip logging if disabled in config
			if !cfg.Logging.RequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/status") ||
				strings.HasSuffix(path, "/events") ||
				path == "/api/health" ||
				path == "/metrics"
		},
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			log.Info("request", fields...)
			return nil
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			log.Error("handler panic", zap.Error(err), zap.ByteString("stack", stack))
			return err
		},
	}))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: time.Duration(cfg.Server.RequestTimeout) * time.Second,
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/events") ||
				strings.HasSuffix(path, "/upload") ||
				path == "/api/ws" ||
				c.Request().Header.Get("Accept") == "text/event-stream"
		},
		ErrorMessage: "Request timeout",
	}))

	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().Header.Get("Accept") == "text/event-stream" ||
				strings.HasSuffix(c.Request().URL.Path, "/events") ||
				c.Request().URL.Path == "/api/ws"
		},
	}))

	// Body limit middleware
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	if cfg.Server.EnableCORS {
		origins := allowedOrigins(cfg.Server)
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     origins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
			AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
			AllowCredentials: !(len(origins) == 1 && origins[0] == "*"),
		}))
	}
}

// allowedOrigins returns the cross-site origins browsers may call from.
// With CORS disabled only same-origin requests are accepted.
func allowedOrigins(cfg config.ServerConfig) []string {
	if !cfg.EnableCORS {
		return nil
	}
	if len(cfg.AllowOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.AllowOrigins
}

// newLogger builds a JSON (production) or console (development) logger.
func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}

	var zc zap.Config
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = level
	return zc.Build()
}

// defaultConfigPath places the config next to the executable.
func defaultConfigPath() string {
	exePath, err := os.Executable()
	if err != nil {
		return "sheetflow.yaml"
	}
	return filepath.Join(filepath.Dir(exePath), "sheetflow.yaml")
}
