// ABOUTME: Stub backend binary for local development of the console.
// ABOUTME: Serves the chat, approval, SSE, and tool endpoints over SQLite.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/kunjal/agent-console/internal/auth"
	"github.com/kunjal/agent-console/internal/config"
	"github.com/kunjal/agent-console/internal/stubserver"
)

// devTokenTTL is how long the printed development token stays valid.
const devTokenTTL = 24 * time.Hour

func main() {
	configPath := flag.String("config", "", "Config file path (default: "+config.DefaultPath()+")")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	secret := flag.String("secret", "", "JWT signing secret (overrides config)")
	noSeed := flag.Bool("no-seed", false, "Skip loading sample orders")
	flag.Parse()

	if err := run(*configPath, *addr, *dbPath, *secret, !*noSeed); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, addr, dbPath, secret string, seed bool) error {
	if configPath == "" {
		configPath = config.DefaultPath()
	}
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if addr == "" {
		addr = cfg.Stub.HTTPAddr
	}
	if dbPath == "" {
		dbPath = cfg.Stub.DatabasePath
	}
	if secret == "" {
		secret = cfg.Stub.JWTSecret
	}
	if secret == "" {
		return errors.New("jwt secret required (set stub.jwt_secret or -secret)")
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	store, err := stubserver.NewOrderStore(dbPath)
	if err != nil {
		return fmt.Errorf("opening order store: %w", err)
	}
	defer store.Close()

	if seed {
		if err := store.Seed(); err != nil {
			return fmt.Errorf("seeding orders: %w", err)
		}
	}

	verifier := auth.NewJWTVerifier([]byte(secret))
	srv := stubserver.NewServer(store, verifier, logger)

	token, err := verifier.Generate("user-001", devTokenTTL)
	if err != nil {
		return fmt.Errorf("minting dev token: %w", err)
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	green.Print("  ▶ ")
	fmt.Printf("Listening: %s\n", addr)
	green.Print("  ▶ ")
	fmt.Printf("Database:  %s\n", dbPath)
	green.Print("  ▶ ")
	fmt.Printf("Dev token (user-001, valid %s):\n", devTokenTTL)
	cyan.Printf("    %s\n\n", token)
	fmt.Printf("Run the console with:\n  kunjal-console -server http://%s -token <dev token>\n\n", addr)

	logger.Info("starting stub backend", "addr", addr, "db", dbPath, "seeded", seed)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	httpSrv := &http.Server{Addr: addr, Handler: srv.Handler()}
	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
