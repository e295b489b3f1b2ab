// Package config loads the service configuration from file and environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the orchestration service.
type Config struct {
	General GeneralConfig `mapstructure:"general"`
	Server  ServerConfig  `mapstructure:"server"`
	Model   ModelConfig   `mapstructure:"model"`
	Authz   AuthzConfig   `mapstructure:"authz"`
	Alert   AlertConfig   `mapstructure:"alert"`
	Tools   ToolsConfig   `mapstructure:"tools"`
	Storage StorageConfig `mapstructure:"storage"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	JWTSecret       string        `mapstructure:"jwt_secret"`
	ReportsDir      string        `mapstructure:"reports_dir"`
	ReportTokenTTL  time.Duration `mapstructure:"report_token_ttl"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func (s ServerConfig) Validate() error {
	if strings.TrimSpace(s.JWTSecret) == "" {
		return fmt.Errorf("server.jwt_secret is required")
	}
	return nil
}

// ModelConfig contains model API settings.
type ModelConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Name        string        `mapstructure:"name"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	MaxRounds   int           `mapstructure:"max_rounds"`
	TokenBudget int           `mapstructure:"token_budget"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Heartbeat   time.Duration `mapstructure:"heartbeat"`
}

func (m ModelConfig) Validate() error {
	if strings.TrimSpace(m.APIKey) == "" {
		return fmt.Errorf("model.api_key is required")
	}
	return nil
}

// AuthzConfig gates the interactive surface.
type AuthzConfig struct {
	AllowedUsers  []string      `mapstructure:"allowed_users"`
	AllowedGroups []string      `mapstructure:"allowed_groups"`
	DirectoryURL  string        `mapstructure:"directory_url"`
	DirectoryKey  string        `mapstructure:"directory_key"`
	GroupTTL      time.Duration `mapstructure:"group_ttl"`
}

// AlertConfig configures the unattended investigation surface.
type AlertConfig struct {
	APIKey    string        `mapstructure:"api_key"`
	MaxRounds int           `mapstructure:"max_rounds"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ToolsConfig points the tool registry at its backing services.
type ToolsConfig struct {
	MaxRows          int           `mapstructure:"max_rows"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`

	CostGatewayURL       string        `mapstructure:"cost_gateway_url"`
	PricingURL           string        `mapstructure:"pricing_url"`
	GCPBillingURL        string        `mapstructure:"gcp_billing_url"`
	CloudTrailURL        string        `mapstructure:"cloudtrail_url"`
	BrokerURL            string        `mapstructure:"broker_url"`
	MarketplaceURL       string        `mapstructure:"marketplace_url"`
	CapacityURL          string        `mapstructure:"capacity_url"`
	CostMonitorURL       string        `mapstructure:"cost_monitor_url"`
	CostMonitorDashboard string        `mapstructure:"cost_monitor_dashboard"`
	AzureBillingDir      string        `mapstructure:"azure_billing_dir"`
	CredentialTTL        time.Duration `mapstructure:"credential_ttl"`
}

// StorageConfig contains storage and persistence settings.
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings.
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN builds the connection string, preferring an explicit url.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// RedisConfig contains Redis connection settings. Optional: without redis
// the group cache runs in process memory.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) Addr() string {
	if strings.TrimSpace(r.Host) == "" {
		return ""
	}
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return r.Host + ":" + port
}

// LoadConfig loads config from file, letting PARSEC_* environment variables
// override any key.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("server.reports_dir", "/tmp/parsec-reports")
	viper.SetDefault("server.report_token_ttl", "15m")
	viper.SetDefault("server.shutdown_timeout", "10s")
	viper.SetDefault("model.name", "claude-sonnet-4-20250514")
	viper.SetDefault("model.max_tokens", 4096)
	viper.SetDefault("model.max_rounds", 10)
	viper.SetDefault("model.timeout", "120s")
	viper.SetDefault("model.heartbeat", "10s")
	viper.SetDefault("authz.group_ttl", "5m")
	viper.SetDefault("alert.max_rounds", 5)
	viper.SetDefault("alert.timeout", "5m")
	viper.SetDefault("tools.max_rows", 500)
	viper.SetDefault("tools.statement_timeout", "30s")
	viper.SetDefault("tools.credential_ttl", "30m")

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("PARSEC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config
	if err = viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if err := config.Server.Validate(); err != nil {
		panic(err)
	}
	if err := config.Model.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Postgres.Validate(); err != nil {
		panic(err)
	}
	return &config
}
