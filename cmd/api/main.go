package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/procsec/internal/application"
	appanalysis "github.com/bryanwahyu/procsec/internal/application/analysis"
	"github.com/bryanwahyu/procsec/internal/config"
	domain "github.com/bryanwahyu/procsec/internal/domain/analysis"
	infraai "github.com/bryanwahyu/procsec/internal/infra/ai"
	"github.com/bryanwahyu/procsec/internal/infra/ai/openai"
	mysqlp "github.com/bryanwahyu/procsec/internal/infra/db/mysql"
	postgresp "github.com/bryanwahyu/procsec/internal/infra/db/postgres"
	"github.com/bryanwahyu/procsec/internal/infra/httpserver"
	procreg "github.com/bryanwahyu/procsec/internal/infra/process"
	"github.com/bryanwahyu/procsec/internal/infra/rules"
	minioStore "github.com/bryanwahyu/procsec/internal/infra/storage"
	"github.com/bryanwahyu/procsec/internal/infra/store/memory"
	"github.com/bryanwahyu/procsec/internal/infra/stream"
	"github.com/bryanwahyu/procsec/internal/middleware"
)

func main() {
	root := &cobra.Command{
		Use:   "procsec",
		Short: "Security analysis service for business process definitions",
	}

	var configPath string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the analysis API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	serve.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "path to config.yaml")
	root.AddCommand(serve)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return "config.yaml"
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config load error: %w", err)
	}

	ctx := context.Background()

	// optional durable archive
	var archive domain.Archive
	var checkers = map[string]middleware.HealthChecker{}
	switch cfg.Database.Driver {
	case "mysql":
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return fmt.Errorf("mysql connect error: %w", err)
		}
		defer db.Close()
		archive = mysqlp.NewRunRepository(db)
		checkers["database"] = &middleware.DatabaseHealthChecker{DB: db}
	case "postgres":
		db, err := postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return fmt.Errorf("postgres connect error: %w", err)
		}
		defer db.Close()
		archive = postgresp.NewRunRepository(db)
		checkers["database"] = &middleware.DatabaseHealthChecker{DB: db}
	case "", "none":
		log.Println("no database configured, runs are not archived")
	default:
		return fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}

	// optional report artifact store
	var reports domain.ReportStore
	if cfg.Minio.Enabled {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			return fmt.Errorf("minio init error: %w", err)
		}
		reports = store
	}

	// provider gateway
	var gwOpts []infraai.Option
	if cfg.Analysis.MaxAttempts > 0 {
		gwOpts = append(gwOpts, infraai.WithMaxAttempts(cfg.Analysis.MaxAttempts))
	}
	if cfg.Analysis.BaseDelay > 0 {
		gwOpts = append(gwOpts, infraai.WithBaseDelay(time.Duration(cfg.Analysis.BaseDelay)))
	}
	if cfg.Analysis.CallTimeout > 0 {
		gwOpts = append(gwOpts, infraai.WithCallTimeout(time.Duration(cfg.Analysis.CallTimeout)))
	}
	gateway := infraai.NewGateway(gwOpts...)
	if cfg.Providers.OpenAI.APIKey != "" {
		if cfg.Providers.OpenAI.BaseURL != "" {
			gateway.Register(openai.NewClientWithBaseURL("openai",
				cfg.Providers.OpenAI.APIKey, cfg.Providers.OpenAI.BaseURL, cfg.Providers.OpenAI.Model))
		} else {
			gateway.Register(openai.NewClient("openai",
				cfg.Providers.OpenAI.APIKey, cfg.Providers.OpenAI.Model))
		}
	}

	// progress broadcaster
	var hubOpts []stream.Option
	if cfg.Analysis.StreamBufferSize > 0 {
		hubOpts = append(hubOpts, stream.WithBufferSize(cfg.Analysis.StreamBufferSize))
	}
	if cfg.Analysis.Heartbeat > 0 {
		hubOpts = append(hubOpts, stream.WithHeartbeat(time.Duration(cfg.Analysis.Heartbeat)))
	}
	hub := stream.NewHub(hubOpts...)
	defer hub.Close()

	registry := procreg.NewRegistry()

	svc := &appanalysis.Service{
		Runs:            memory.NewRunStore(),
		Loader:          registry,
		Catalogue:       rules.NewCatalogue(),
		Mapper:          rules.NewMapper(),
		Gateway:         gateway,
		Broadcast:       hub,
		Archive:         archive,
		Reports:         reports,
		Clock:           application.SystemClock{},
		DefaultProvider: cfg.Providers.Default,
		Model:           cfg.Providers.OpenAI.Model,
	}

	opts := httpserver.Options{
		Archive:        archive,
		Providers:      gateway.Providers(),
		APIKeys:        cfg.Server.APIKeys,
		HealthCheckers: checkers,
	}
	opts.RateLimit.Capacity = cfg.Server.RateLimit.Capacity
	opts.RateLimit.RefillRate = cfg.Server.RateLimit.RefillRate
	handler := httpserver.NewRouter(svc, registry, gateway, hub, opts)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// no WriteTimeout: the stream endpoint holds connections open
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	return nil
}
