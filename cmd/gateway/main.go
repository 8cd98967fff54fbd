// Package main is the entrypoint for the tasked gateway server.
// The gateway authenticates requests, runs every task operation through the
// access policy and persists the result.
//
// Startup fails when the database is unreachable or the token signing key is
// missing, unless -dev is given, in which case an in-memory repository and a
// throwaway key are used.
package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tasked-labs/tasked/internal/auth"
	"github.com/tasked-labs/tasked/internal/config"
	"github.com/tasked-labs/tasked/internal/gateway"
	"github.com/tasked-labs/tasked/internal/observability"
	"github.com/tasked-labs/tasked/internal/service"
	"github.com/tasked-labs/tasked/internal/status"
	"github.com/tasked-labs/tasked/internal/storage"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "config file (default: ./tasked.yaml or ~/.tasked/config.yaml)")
		addr       = flag.String("addr", "", "HTTP listen address (overrides server.listen)")
		showHelp   = flag.Bool("help", false, "Show help message")
		showVer    = flag.Bool("version", false, "Show version")
		devMode    = flag.Bool("dev", false, "Development mode (in-memory repository, throwaway signing key)")
	)
	flag.Parse()

	if *showHelp {
		flag.Usage()
		return nil
	}

	if *showVer {
		fmt.Printf("tasked-gateway %s (commit: %s, built: %s)\n", version, commit, date)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	secrets, err := config.LoadSecrets()
	if err != nil {
		return err
	}
	cfg.ApplySecrets(secrets)
	if *addr != "" {
		cfg.Server.Listen = *addr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	mode, err := service.ParseBootstrapMode(cfg.Bootstrap.Mode)
	if err != nil {
		return err
	}

	signingKey := []byte(cfg.SigningKey)
	if len(signingKey) == 0 {
		if !*devMode {
			return fmt.Errorf("token signing key required: set TASKED_JWT_SIGNING_KEY (use -dev for development mode)")
		}
		signingKey = make([]byte, 32)
		if _, err := rand.Read(signingKey); err != nil {
			return fmt.Errorf("failed to generate signing key: %w", err)
		}
		log.Println("WARNING: Development mode - using a throwaway signing key, tokens will not survive a restart")
	}

	tokens, err := auth.NewJWTAuthenticator(auth.TokenConfig{
		SigningKey: signingKey,
		Issuer:     cfg.Auth.Issuer,
		TTL:        cfg.Auth.TokenTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to create authenticator: %w", err)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(startCtx, observability.TracingConfig{
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("Tracing shutdown error: %v", err)
		}
	}()
	if cfg.Tracing.Endpoint != "" {
		log.Printf("Exporting traces to %s", cfg.Tracing.Endpoint)
	}

	// Decision lines go to stdout unless disabled.
	var decisionOut io.Writer = os.Stdout
	if cfg.Logging.Format == "none" {
		decisionOut = io.Discard
	}

	var (
		repo   storage.Repository
		logger observability.DecisionLogger
	)
	if *devMode {
		log.Println("WARNING: Development mode - using in-memory repository (not for production)")
		repo = storage.NewMockRepository()
		logger = observability.NewJSONLogger(decisionOut)
	} else {
		log.Printf("Opening %s database and running migrations...", cfg.Database.Driver)
		sqlRepo, err := storage.Open(startCtx, cfg.Database.Driver, cfg.PostgresConfig(), cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("database unavailable: %w", err)
		}
		defer sqlRepo.Close()
		log.Println("Database migrations completed")
		repo = sqlRepo

		if cfg.Logging.Persist {
			logger, err = observability.NewPersistentLoggerWithWriter(sqlRepo.DB(), sqlRepo.Dialect(), decisionOut)
			if err != nil {
				return err
			}
			log.Println("Persisting access decisions to decision_log")
		} else {
			logger = observability.NewJSONLogger(decisionOut)
		}
	}

	accounts := service.NewAccountService(repo, tokens, mode)
	tasks := service.NewTaskService(repo, logger)
	checker := status.NewChecker(repo, string(mode), version)

	gw, err := gateway.NewGateway(accounts, tasks, checker, gateway.Config{
		Version:   version,
		AccessLog: cfg.Logging.Level == "debug",
	})
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}

	server := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      gw,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Handle graceful shutdown
	done := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Println("Shutting down gateway...")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
		close(done)
	}()

	log.Printf("Tasked Gateway starting on %s", cfg.Server.Listen)
	log.Printf("Version: %s, Commit: %s", version, commit)
	log.Printf("Bootstrap mode: %s", mode)
	log.Printf("Health check: http://localhost%s/health", cfg.Server.Listen)
	log.Printf("Readiness: http://localhost%s/readyz", cfg.Server.Listen)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	log.Println("Gateway stopped")
	return nil
}
