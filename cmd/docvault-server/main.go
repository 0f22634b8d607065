package main

import (
	"context"
	"crypto/x509"
	"errors"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docvault/config"
	"docvault/logging"
	"docvault/observability"
	"docvault/pkg/cache"
	"docvault/pkg/delegation"
	"docvault/pkg/envelope"
	"docvault/pkg/identity"
	"docvault/pkg/repository"
	"docvault/pkg/repository/memory"
	"docvault/pkg/repository/postgres"
	"docvault/pkg/server"
	"docvault/pkg/session"
	"docvault/pkg/store"
	"docvault/services/admin"
)

var (
	// Command-line flags
	configFile = flag.String("config", "", "Path to configuration file")
	version    = flag.Bool("version", false, "Print version information")
	pprofAddr  = flag.String("pprof-addr", "", "Address to expose pprof (e.g., :6060)")
)

const (
	ServiceName    = "docvault-server"
	ServiceVersion = "1.0.0"
)

func main() {
	flag.Parse()

	// Initialize logger
	logger := logging.GetLogger()
	startPprofServer(*pprofAddr, logger)

	// Print version and exit if requested
	if *version {
		fmt.Printf("%s version %s\n", ServiceName, ServiceVersion)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	// Override service name and version
	cfg.Service.Name = ServiceName
	cfg.Service.Version = ServiceVersion

	// Print build and feature flag information
	logger.PrintBuildInfo(ServiceName, ServiceVersion)
	logConfiguration(cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metadata repository: in-memory or PostgreSQL
	repo, err := buildRepository(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to create repository: %v", err)
		os.Exit(1)
	}
	defer repo.Close()

	// Authorization decision cache
	decisions := buildDecisionCache(cfg, logger)
	defer decisions.Close()

	// Credential store and server key material
	creds := identity.NewCredentialStore(cfg.Credentials.StorePath)
	serverKeys, serverCert, err := loadServerCredentials(ctx, cfg, creds, logger)
	if err != nil {
		logger.Error("Failed to load server credentials: %v", err)
		os.Exit(1)
	}
	logger.Startup("Server identity: %s", serverCert.Subject.CommonName)

	// Delegation engine and document store
	del := delegation.NewEngine(repo.Document, repo.Grant, decisions, cfg.Cache.TTL)

	artifacts, err := store.NewFilesystemArtifacts(cfg.Store.ArtifactRoot)
	if err != nil {
		logger.Error("Failed to open artifact store: %v", err)
		os.Exit(1)
	}
	documents := store.NewDocumentStore(repo.Document, artifacts, envelope.NewEngine(serverKeys), del)

	// Seed demo documents when configured
	if cfg.Store.SeedSampleData && cfg.Store.SeedDataPath != "" {
		seed, err := store.LoadSeedFile(cfg.Store.SeedDataPath)
		if err != nil {
			logger.Error("Failed to load seed data: %v", err)
			os.Exit(1)
		}
		if err := documents.ApplySeed(ctx, seed); err != nil {
			logger.Error("Failed to apply seed data: %v", err)
			os.Exit(1)
		}
		logger.Startup("Seeded %d sample documents from %s", len(seed.Documents), cfg.Store.SeedDataPath)
	}

	// Observability exporters
	telemetry, err := observability.Init(ctx, cfg, logger, ServiceName, ServiceVersion)
	if err != nil {
		logger.Warn("Observability initialization incomplete: %v", err)
	}

	// Admin API
	if cfg.Admin.Enabled {
		adminServer := admin.NewServer(repo, del, cfg.Admin)
		go func() {
			logger.Startup("Admin API listening on %s", cfg.Admin.Address)
			if err := adminServer.Start(cfg.Admin.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Admin API exited: %v", err)
			}
		}()
	}

	// Document store server
	srv := server.New(cfg, session.Deps{
		Store:             documents,
		Delegation:        del,
		Credentials:       creds,
		Audit:             repo.Audit,
		ServerCertificate: serverCert,
	})
	if err := srv.Listen(); err != nil {
		logger.Error("Failed to listen: %v", err)
		os.Exit(1)
	}

	go func() {
		logger.Startup("Starting %s version %s", ServiceName, ServiceVersion)
		logger.Startup("Environment: %s", cfg.Service.Environment)
		if err := srv.Serve(ctx); err != nil {
			logger.Error("Failed to serve: %v", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Startup("Shutting down %s gracefully...", ServiceName)
	cancel()
	srv.Stop()
	if telemetry != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Observability shutdown incomplete: %v", err)
		}
	}
}

// buildRepository selects the metadata backend from configuration.
func buildRepository(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*repository.Repository, error) {
	switch cfg.Store.MetadataBackend {
	case "postgres":
		logger.Startup("Connecting to database %s@%s:%d/%s",
			cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
		repo, err := postgres.NewRepository(cfg.Database.ConnString())
		if err != nil {
			return nil, err
		}
		if err := repo.Ping(ctx); err != nil {
			repo.Close()
			return nil, fmt.Errorf("database ping failed: %w", err)
		}
		logger.Startup("Database connection successful")
		return repo, nil
	default:
		logger.Startup("Using in-memory metadata backend")
		return memory.NewRepository(), nil
	}
}

// buildDecisionCache selects the authorization decision cache, falling back
// to the no-op cache when Redis is unreachable.
func buildDecisionCache(cfg *config.Config, logger *logging.Logger) cache.DecisionCache {
	if cfg.Cache.Type != "redis" {
		logger.Startup("Using in-process authorization decisions (no cache)")
		return cache.NewNoOpDecisionCache()
	}

	logger.Startup("Initializing Redis decision cache at %s", cfg.Cache.Redis.Address)
	decisions, err := cache.NewRedisDecisionCache(cache.RedisCacheConfig{
		Addr:     cfg.Cache.Redis.Address,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		Prefix:   cfg.Cache.Redis.Prefix,
	})
	if err != nil {
		logger.Warn("Failed to initialize Redis cache: %v", err)
		logger.Warn("Falling back to uncached authorization decisions")
		return cache.NewNoOpDecisionCache()
	}
	logger.Startup("Redis decision cache initialized successfully")
	return decisions
}

// loadServerCredentials loads the server key pair and certificate, either
// from an external secret source or from the local credential store.
func loadServerCredentials(ctx context.Context, cfg *config.Config, creds *identity.CredentialStore, logger *logging.Logger) (*identity.KeyPair, *x509.Certificate, error) {
	if cfg.Credentials.External.Enabled {
		logger.Startup("Loading server credentials from external source (%s)", cfg.Credentials.External.Type)
		loader := identity.NewExternalCredentialLoader()
		return loader.Load(ctx, cfg.Credentials.External)
	}

	principal := cfg.Credentials.ServerPrincipal
	keys, err := creds.LoadKeyPair(principal)
	if err != nil {
		return nil, nil, err
	}
	cert, err := creds.LoadCertificate(principal)
	if err != nil {
		return nil, nil, err
	}
	return keys, cert, nil
}

// logConfiguration logs the configuration with sensitive data masked
func logConfiguration(cfg *config.Config, logger *logging.Logger) {
	logger.Startup("Configuration loaded successfully")
	logger.Info("Service: %s v%s (%s)", cfg.Service.Name, cfg.Service.Version, cfg.Service.Environment)
	logger.Info("Server: %s:%d (timeouts: read=%v write=%v graceful=%v)",
		cfg.Server.Host, cfg.Server.Port,
		cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.GracefulStop)
	logger.Info("Metadata backend: %s", cfg.Store.MetadataBackend)
	logger.Info("Artifact root: %s", cfg.Store.ArtifactRoot)
	logger.Info("Cache: %s", cfg.Cache.Type)
	if cfg.Cache.Type == "redis" {
		logger.Info("Redis: %s (DB: %d)", cfg.Cache.Redis.Address, cfg.Cache.Redis.DB)
	}
	logger.Info("Rate limiting: %v", cfg.Security.RateLimiting.Enabled)
	logger.Info("Admin API: %v", cfg.Admin.Enabled)
	logger.Info("Logging mode: %s", logging.LoggingMode())
}

func startPprofServer(addr string, logger *logging.Logger) {
	if addr == "" {
		return
	}
	go func() {
		logger.Startup("pprof server listening on %s", addr)
		if err := http.ListenAndServe(addr, nil); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("pprof server exited: %v", err)
		}
	}()
}
