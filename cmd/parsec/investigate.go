package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/parsec/config"
	"github.com/mohammad-safakhou/parsec/internal/agent"
	"github.com/mohammad-safakhou/parsec/internal/tools"
)

// investigateCMD runs one alert investigation from the command line and
// prints the verdict. Useful for replaying an alert without the alerting
// system in the loop.
func investigateCMD() *cobra.Command {
	var cfgPath string
	var alertFile string
	var cmd = &cobra.Command{
		Use:   "investigate",
		Short: "Investigate one alert from a JSON file and print the verdict",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)

			raw, err := os.ReadFile(alertFile)
			if err != nil {
				return err
			}
			var alert agent.Alert
			if err := json.Unmarshal(raw, &alert); err != nil {
				return fmt.Errorf("parsing %s: %w", alertFile, err)
			}
			if alert.Name == "" {
				return fmt.Errorf("alert_name required in %s", alertFile)
			}

			db, err := sql.Open("postgres", cfg.Storage.Postgres.DSN())
			if err != nil {
				return err
			}
			defer db.Close()

			client, err := agent.NewAnthropicClient(agent.AnthropicOptions{
				BaseURL: cfg.Model.BaseURL,
				APIKey:  cfg.Model.APIKey,
				Timeout: cfg.Model.Timeout,
			})
			if err != nil {
				return err
			}

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

				ReportsDir:  cfg.Server.ReportsDir,
				Credentials: tools.NewCredentialCache(cfg.Tools.CredentialTTL),
			})

			inv := agent.NewInvestigator(client, registry, agent.Options{
				Model:     cfg.Model.Name,
				MaxTokens: cfg.Model.MaxTokens,
				MaxRounds: cfg.Alert.MaxRounds,
				Heartbeat: cfg.Model.Heartbeat,
			})

			ctx, cancel := context.WithTimeout(context.Background(), cfg.Alert.Timeout)
			defer cancel()
			result := inv.Investigate(ctx, alert)

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&alertFile, "alert", "", "path to alert JSON file")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")
	_ = cmd.MarkFlagRequired("alert")
	return cmd
}
