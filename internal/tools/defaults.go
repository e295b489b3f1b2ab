package tools

import (
	"database/sql"
	"time"
)

// Deps carries the backing services for the default tool set. The
// composition root builds one of these from config and owns the lifecycle
// of the DB pool and caches.
type Deps struct {
	DB               *sql.DB
	MaxRows          int
	StatementTimeout time.Duration

	CostGatewayURL string
	PricingURL     string
	GCPBillingURL  string
	CloudTrailURL  string
	BrokerURL      string
	MarketplaceURL string
	CapacityURL    string

	CostMonitorURL       string
	CostMonitorDashboard string

	AzureBillingDir string

	ReportsDir    string
	SignReportURL func(filename string) string

	Credentials *CredentialCache
}

// DefaultRegistry assembles the full interactive tool set. The investigation
// variant restricts this registry at run time; nothing here needs to know
// about that.
func DefaultRegistry(d Deps) *Registry {
	return NewRegistry(
		NewProvisionsDB(d.DB, d.MaxRows, d.StatementTimeout).Tool(),
		NewAWSCosts(d.CostGatewayURL).Tool(),
		NewAzureCosts(d.AzureBillingDir).Tool(),
		NewGCPCosts(d.GCPBillingURL).Tool(),
		NewAWSPricing(d.PricingURL).Tool(),
		NewCostMonitor(d.CostMonitorURL, d.CostMonitorDashboard).Tool(),
		NewCapacityManager(d.CapacityURL).Tool(),
		NewCloudTrail(d.CloudTrailURL).Tool(),
		NewAWSAccount(d.BrokerURL, d.Credentials).Tool(),
		NewMarketplace(d.MarketplaceURL).Tool(),
		ChartTool(),
		NewReports(d.ReportsDir, d.SignReportURL).Tool(),
	)
}
