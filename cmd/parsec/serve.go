package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/parsec/config"
	"github.com/mohammad-safakhou/parsec/internal/agent"
	"github.com/mohammad-safakhou/parsec/internal/server"
	"github.com/mohammad-safakhou/parsec/internal/telemetry"
	"github.com/mohammad-safakhou/parsec/internal/tools"
)

func serveCMD() *cobra.Command {
	var cfgPath string
	var serveAddr string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if serveAddr != "" {
				cfg.Server.Address = serveAddr
			}
			return runServe(cfg)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	serve.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")
	return serve
}

func runServe(cfg *config.Config) error {
	logger := log.New(log.Writer(), "[SERVE] ", log.LstdFlags)

	db, err := sql.Open("postgres", cfg.Storage.Postgres.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	var rdb *redis.Client
	if addr := cfg.Storage.Redis.Addr(); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			return err
		}
		defer rdb.Close()
	}

	metrics := telemetry.New(prometheus.DefaultRegisterer)

	client, err := agent.NewAnthropicClient(agent.AnthropicOptions{
		BaseURL: cfg.Model.BaseURL,
		APIKey:  cfg.Model.APIKey,
		Timeout: cfg.Model.Timeout,
	})
	if err != nil {
		return err
	}

	signer := server.NewReportSigner([]byte(cfg.Server.JWTSecret), cfg.Server.ReportTokenTTL)
	registry := tools.DefaultRegistry(tools.Deps{
		DB:               db,
		MaxRows:          cfg.Tools.MaxRows,
		StatementTimeout: cfg.Tools.StatementTimeout,

		CostGatewayURL: cfg.Tools.CostGatewayURL,
		PricingURL:     cfg.Tools.PricingURL,
		GCPBillingURL:  cfg.Tools.GCPBillingURL,
		CloudTrailURL:  cfg.Tools.CloudTrailURL,
		BrokerURL:      cfg.Tools.BrokerURL,
		MarketplaceURL: cfg.Tools.MarketplaceURL,
		CapacityURL:    cfg.Tools.CapacityURL,

		CostMonitorURL:       cfg.Tools.CostMonitorURL,
		CostMonitorDashboard: cfg.Tools.CostMonitorDashboard,
		AzureBillingDir:      cfg.Tools.AzureBillingDir,

		ReportsDir: cfg.Server.ReportsDir,
		SignReportURL: func(filename string) string {
			url := "/api/reports/" + filename
			if token, err := signer.Sign(filename); err == nil {
				url += "?token=" + token
			}
			return url
		},

		Credentials: tools.NewCredentialCache(cfg.Tools.CredentialTTL),
	})

	orch := agent.NewOrchestrator(client, registry, agent.Options{
		Model:       cfg.Model.Name,
		MaxTokens:   cfg.Model.MaxTokens,
		MaxRounds:   cfg.Model.MaxRounds,
		TokenBudget: cfg.Model.TokenBudget,
		Heartbeat:   cfg.Model.Heartbeat,
		Metrics:     metrics,
	})
	inv := agent.NewInvestigator(client, registry, agent.Options{
		Model:     cfg.Model.Name,
		MaxTokens: cfg.Model.MaxTokens,
		MaxRounds: cfg.Alert.MaxRounds,
		Heartbeat: cfg.Model.Heartbeat,
		Metrics:   metrics,
	})

	var groupStore server.GroupStore
	if rdb != nil {
		groupStore = server.NewRedisGroupStore(rdb)
	}
	var groupCache *server.GroupCache
	if cfg.Authz.DirectoryURL != "" {
		source := server.NewHTTPGroupSource(cfg.Authz.DirectoryURL, cfg.Authz.DirectoryKey, 0)
		groupCache = server.NewGroupCache(source, groupStore, cfg.Authz.GroupTTL)
	}
	authz := server.NewAuthorizer(cfg.Authz.AllowedUsers, cfg.Authz.AllowedGroups, groupCache)

	srv := server.New(server.Options{
		Orchestrator: orch,
		Investigator: inv,
		Authorizer:   authz,
		Signer:       signer,
		ReportsDir:   cfg.Server.ReportsDir,
		DB:           db,
		Redis:        rdb,
		AlertAPIKey:  cfg.Alert.APIKey,
		AlertTimeout: cfg.Alert.Timeout,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(cfg.Server.Address) }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Printf("received %s, shutting down", sig)
		timeout := cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
