package models

import "time"

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig
	Brokerage  BrokerageConfig
	Quotes     QuoteConfig
	Formance   FormanceConfig
	Reconciler ReconcilerConfig
	Engine     EngineConfig
	Metrics    MetricsConfig
}

// DatabaseConfig holds execution journal connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// BrokerageConfig holds brokerage/custodial HTTP API settings
type BrokerageConfig struct {
	BaseURL           string
	APIKey            string
	RequestsPerSecond float64
	Burst             int
	RequestTimeout    time.Duration
}

// BackoffConfig bounds the quote refresh retry loop
type BackoffConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// QuoteConfig holds quote stream settings
type QuoteConfig struct {
	Backoff       BackoffConfig
	MaxDuration   time.Duration
	PriceInterval time.Duration
}

// FormanceConfig holds custodial ledger settings
type FormanceConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

// ReconcilerConfig holds ambiguous execution reconciliation settings
type ReconcilerConfig struct {
	PollingInterval time.Duration
	LookbackWindow  time.Duration
}

// EngineConfig holds transaction engine defaults
type EngineConfig struct {
	DisplayCurrency  string
	AssetsFile       string
	ValidateAllKinds bool
}

// MetricsConfig holds the Prometheus endpoint settings. An empty Addr
// disables the endpoint.
type MetricsConfig struct {
	Addr string
}
