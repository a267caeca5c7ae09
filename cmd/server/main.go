/*
main.go - Application entry point

PURPOSE:
  Starts the approval desk: a JSON API between the dashboard and the
  approvals REST backend. Handles configuration, dependency injection, and
  graceful shutdown.

STARTUP SEQUENCE:
  1. Load config (.env, config.yaml, environment) and parse flags
  2. Build the root logger
  3. Open the local store (memory, sqlite or redis)
  4. Connect the backend client, or start the in-process sandbox
  5. Wire the handler, admin gate and expiry sweeper
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port     HTTP server port (overrides server.port)
  -db       SQLite database path (overrides store.sqlite_path)
            Use ":memory:" for in-memory database
  -sandbox  Serve a seeded in-process backend at /sandbox/api and use it
            instead of backend.base_url

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (server.shutdown_timeout)
  3. Stop the sweeper, close the store
  4. Exit

EXAMPLES:
  # Demo mode, nothing else running
  ./server -sandbox -db=":memory:"

  # Against a real backend
  API_BASE_URL=https://approvals.example.com/api ./server

SEE ALSO:
  - config/config.go: All settings and their environment names
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/approval-desk/api"
	"github.com/warp/approval-desk/approval"
	"github.com/warp/approval-desk/approval/store"
	"github.com/warp/approval-desk/backend"
	"github.com/warp/approval-desk/config"
	"github.com/warp/approval-desk/lockout"
	"github.com/warp/approval-desk/sandbox"
	"github.com/warp/approval-desk/store/redis"
	"github.com/warp/approval-desk/store/sqlite"
)

// localStore is what the desk keeps on its own side.
type localStore struct {
	kv      approval.KV
	journal approval.Journal
	purger  approval.Purger // nil when the store expires keys itself
	close   func() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Flags
	port := flag.Int("port", cfg.Server.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.Store.SQLitePath, "SQLite database path")
	useSandbox := flag.Bool("sandbox", false, "Serve and use a seeded in-process backend")
	flag.Parse()
	cfg.Server.Port = *port
	cfg.Store.SQLitePath = *dbPath

	log := config.NewLogger(cfg.Log, os.Stdout)
	log.Info().
		Int("port", cfg.Server.Port).
		Str("store", cfg.Store.Driver).
		Bool("sandbox", *useSandbox).
		Msg("Starting approval desk")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize store
	local, err := openStore(ctx, cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize store")
	}
	defer local.close()

	// Validated by config.Load
	loc, _ := cfg.Location()
	proxies, _ := cfg.Proxies()

	router := chi.NewRouter()

	// Backend
	baseURL := cfg.Backend.BaseURL
	if *useSandbox {
		router.Mount("/sandbox/api", sandbox.NewSeeded().Router())
		baseURL = fmt.Sprintf("http://localhost:%d/sandbox/api", cfg.Server.Port)
		log.Warn().Str("base_url", baseURL).Msg("Using in-process sandbox backend")
	}
	client := backend.NewClient(baseURL, cfg.Backend.Token, cfg.Backend.Timeout)

	// Initialize handler
	handler := api.NewHandler(client, local.journal, log)
	handler.Evaluator = approval.Evaluator{StrictStatus: cfg.Eligibility.StrictStatus}
	handler.Dates = approval.DateFormatter{Location: loc}
	handler.EnrichConcurrency = cfg.Enrich.Concurrency
	handler.Dispatcher.PersistComments = cfg.Dispatch.PersistComments

	if cfg.AdminEnabled() {
		guard := lockout.NewGuard(local.kv, cfg.Lockout.MaxAttempts, cfg.Lockout.Duration)
		gate, err := lockout.NewGate(guard, cfg.Admin.PasscodeHash)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid admin passcode hash")
		}
		handler.Gate = gate
		handler.Sessions = lockout.NewSessions(local.kv, cfg.Admin.TokenSecret, cfg.Admin.SessionTTL)
	} else {
		log.Info().Msg("Admin passcode not configured, admin routes disabled")
	}

	if cfg.Auth.JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET not set, viewer tokens are read without verification")
	}

	router.Mount("/", api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Auth:           api.ViewerAuth{Secret: []byte(cfg.Auth.JWTSecret)},
		TrustedProxies: proxies,
	}))

	// Expiry sweeper
	var sweeper *api.ExpirySweeper
	if local.purger != nil {
		sweeper = api.NewExpirySweeper(local.purger, log)
		sweeper.Interval = cfg.Store.SweepInterval
		sweeper.Start()
	}

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * cfg.Backend.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Msgf("Server starting on http://localhost:%d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if sweeper != nil {
		sweeper.Stop()
	}

	log.Info().Msg("Server stopped")
}

func openStore(ctx context.Context, cfg config.StoreConfig) (*localStore, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		mem := store.NewMemory()
		return &localStore{kv: mem, journal: mem, purger: mem, close: func() error { return nil }}, nil

	case config.DriverRedis:
		rs, err := redis.New(ctx, redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		// Redis holds lockout state shared across instances; the journal
		// stays in memory per instance.
		mem := store.NewMemory()
		return &localStore{kv: rs, journal: mem, close: rs.Close}, nil

	default:
		db, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &localStore{kv: db, journal: db, purger: db, close: db.Close}, nil
	}
}
