package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Database       DatabaseConfig       `yaml:"database"`
	Redis          RedisConfig          `yaml:"redis"`
	Source         SourceConfig         `yaml:"source"`
	Snowflake      SnowflakeConfig      `yaml:"snowflake"`
	Storage        StorageConfig        `yaml:"storage"`
	Analytics      AnalyticsConfig      `yaml:"analytics"`
	Delivery       DeliveryThresholds   `yaml:"delivery_thresholds"`
	Recommendation RecommendationConfig `yaml:"recommendations"`
	Advisor        AdvisorConfig        `yaml:"advisor"`
	Digest         DigestConfig         `yaml:"digest"`
	SES            SESConfig            `yaml:"ses"`
	SendGrid       SendGridConfig       `yaml:"sendgrid"`
	Schedule       ScheduleConfig       `yaml:"schedule"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port       int      `yaml:"port"`
	Host       string   `yaml:"host"`
	CronSecret string   `yaml:"cron_secret"`
	Origins    []string `yaml:"allowed_origins"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds the PostgreSQL connection used for events and runs
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_seconds"`
}

// Lifetime returns the connection max lifetime as a duration
func (c DatabaseConfig) Lifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetime) * time.Second
}

// RedisConfig holds the optional Redis connection (dispatch claims, latest-run cache)
type RedisConfig struct {
	URL             string `yaml:"url"`
	LatestTTLSecond int    `yaml:"latest_ttl_seconds"`
}

// LatestTTL returns how long the latest run stays cached
func (c RedisConfig) LatestTTL() time.Duration {
	return time.Duration(c.LatestTTLSecond) * time.Second
}

// SourceConfig selects where raw events are read from: "postgres", "snowflake" or "memory" (empty, for local runs)
type SourceConfig struct {
	Type string `yaml:"type"`
}

// SnowflakeConfig holds Snowflake configuration for warehouse-resident events
type SnowflakeConfig struct {
	Account   string `yaml:"account"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	Database  string `yaml:"database"`
	Schema    string `yaml:"schema"`
	Warehouse string `yaml:"warehouse"`
	Table     string `yaml:"table"`
}

// StorageConfig selects the run store: "postgres", "dynamodb" or "local"
type StorageConfig struct {
	Type          string `yaml:"type"`
	LocalPath     string `yaml:"local_path"`
	S3Bucket      string `yaml:"s3_bucket"`
	DynamoDBTable string `yaml:"dynamodb_table"`
	AWSRegion     string `yaml:"aws_region"`
	AWSProfile    string `yaml:"aws_profile"` // Empty string uses default credential chain (IAM role on ECS)
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c StorageConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	// On ECS/Lambda, don't use a profile - use IAM role
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// AnalyticsConfig holds run-level settings
type AnalyticsConfig struct {
	DefaultDays int      `yaml:"default_days"`
	MaxDays     int      `yaml:"max_days"`
	Metrics     []string `yaml:"metrics"`
}

// DeliveryThresholds holds the email failure-rate tiers for delivery issues
type DeliveryThresholds struct {
	Warning  float64 `yaml:"warning"`
	Critical float64 `yaml:"critical"`
}

// RecommendationConfig holds the rule thresholds of the recommendation generator
type RecommendationConfig struct {
	ShareDropPoints        float64 `yaml:"share_drop_points"`         // percentage points
	DeclineBuckets         int     `yaml:"decline_buckets"`           // consecutive negative buckets
	ConcentrationThreshold float64 `yaml:"concentration_threshold"`   // share of revenue in one channel
	GrowthThreshold        float64 `yaml:"growth_threshold"`          // second-half vs first-half revenue
	MinROAS                float64 `yaml:"min_roas"`                  // revenue per unit of spend
}

// AdvisorConfig holds advisory engine tunables
type AdvisorConfig struct {
	CriticalIssuePenalty   float64     `yaml:"critical_issue_penalty"`
	WarningIssuePenalty    float64     `yaml:"warning_issue_penalty"`
	NegativeTrendPenalty   float64     `yaml:"negative_trend_penalty"`
	CriticalAnomalyPenalty float64     `yaml:"critical_anomaly_penalty"`
	TrendDeclineThreshold  float64     `yaml:"trend_decline_threshold"`
	AnomalySigma           float64     `yaml:"anomaly_sigma"`
	MinSample              int         `yaml:"min_sample"`
	TrailingWindow         int         `yaml:"trailing_window"`
	MaxTopActions          int         `yaml:"max_top_actions"`
	BudgetMargin           float64     `yaml:"budget_margin"`
	RebalanceFactor        float64     `yaml:"rebalance_factor"`
	HorizonDays            int         `yaml:"horizon_days"`
	ConfidenceZ            float64     `yaml:"confidence_z"`
	CoreMetrics            []string    `yaml:"core_metrics"`
	CorrelationPairs       [][2]string `yaml:"correlation_pairs"`
}

// DigestConfig holds digest dispatch settings
type DigestConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Provider       string `yaml:"provider"` // "ses", "sendgrid" or "log"
	Recipient      string `yaml:"recipient"`
	FromEmail      string `yaml:"from_email"`
	FromName       string `yaml:"from_name"`
	SubjectPrefix  string `yaml:"subject_prefix"`
	QueueSize      int    `yaml:"queue_size"`
	Workers        int    `yaml:"workers"`
	SendTimeoutSec int    `yaml:"send_timeout_seconds"`
	ClaimTTLHours  int    `yaml:"claim_ttl_hours"`
}

// SendTimeout returns the per-send timeout
func (c DigestConfig) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSec) * time.Second
}

// ClaimTTL returns how long a dispatch claim is remembered
func (c DigestConfig) ClaimTTL() time.Duration {
	return time.Duration(c.ClaimTTLHours) * time.Hour
}

// SESConfig holds AWS SES credentials for the digest mailer
type SESConfig struct {
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// SendGridConfig holds SendGrid credentials for the digest mailer
type SendGridConfig struct {
	APIKey string `yaml:"api_key"`
}

// ScheduleConfig holds the worker's scheduled run settings
type ScheduleConfig struct {
	IntervalMinutes int  `yaml:"interval_minutes"`
	Days            int  `yaml:"days"`
	SendEmail       bool `yaml:"send_email"`
}

// Interval returns the scheduled run interval as a duration
func (c ScheduleConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads and parses the configuration file over the defaults. Keys
// present in the file win, including explicit zeros.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if len(cfg.Server.Origins) == 0 {
		cfg.Server.Origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 300
	}
	if cfg.Redis.LatestTTLSecond == 0 {
		cfg.Redis.LatestTTLSecond = 3600
	}
	if cfg.Source.Type == "" {
		cfg.Source.Type = "postgres"
	}
	if cfg.Snowflake.Table == "" {
		cfg.Snowflake.Table = "ANALYTICS_EVENTS"
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "postgres"
	}
	if cfg.Storage.LocalPath == "" {
		cfg.Storage.LocalPath = "./data/runs"
	}
	if cfg.Storage.AWSRegion == "" {
		cfg.Storage.AWSRegion = "us-east-1"
	}
	if cfg.Analytics.DefaultDays == 0 {
		cfg.Analytics.DefaultDays = 7
	}
	if cfg.Analytics.MaxDays == 0 {
		cfg.Analytics.MaxDays = 365
	}
	if len(cfg.Analytics.Metrics) == 0 {
		cfg.Analytics.Metrics = []string{
			"revenue", "orders", "sessions", "conversion_rate", "new_customers",
			"spend", "email_sent", "email_failed", "email_failure_rate",
		}
	}

	// Delivery-issue tiers
	if cfg.Delivery.Warning == 0 {
		cfg.Delivery.Warning = 0.05
	}
	if cfg.Delivery.Critical == 0 {
		cfg.Delivery.Critical = 0.15
	}

	// Recommendation rules
	if cfg.Recommendation.ShareDropPoints == 0 {
		cfg.Recommendation.ShareDropPoints = 10
	}
	if cfg.Recommendation.DeclineBuckets == 0 {
		cfg.Recommendation.DeclineBuckets = 3
	}
	if cfg.Recommendation.ConcentrationThreshold == 0 {
		cfg.Recommendation.ConcentrationThreshold = 0.8
	}
	if cfg.Recommendation.GrowthThreshold == 0 {
		cfg.Recommendation.GrowthThreshold = 0.10
	}
	if cfg.Recommendation.MinROAS == 0 {
		cfg.Recommendation.MinROAS = 1.0
	}

	// Advisory engine
	if cfg.Advisor.CriticalIssuePenalty == 0 {
		cfg.Advisor.CriticalIssuePenalty = 15
	}
	if cfg.Advisor.WarningIssuePenalty == 0 {
		cfg.Advisor.WarningIssuePenalty = 3
	}
	if cfg.Advisor.NegativeTrendPenalty == 0 {
		cfg.Advisor.NegativeTrendPenalty = 10
	}
	if cfg.Advisor.CriticalAnomalyPenalty == 0 {
		cfg.Advisor.CriticalAnomalyPenalty = 10
	}
	if cfg.Advisor.TrendDeclineThreshold == 0 {
		cfg.Advisor.TrendDeclineThreshold = 0.05
	}
	if cfg.Advisor.AnomalySigma == 0 {
		cfg.Advisor.AnomalySigma = 2.0
	}
	if cfg.Advisor.MinSample == 0 {
		cfg.Advisor.MinSample = 5
	}
	if cfg.Advisor.TrailingWindow == 0 {
		cfg.Advisor.TrailingWindow = 7
	}
	if cfg.Advisor.MaxTopActions == 0 {
		cfg.Advisor.MaxTopActions = 5
	}
	if cfg.Advisor.BudgetMargin == 0 {
		cfg.Advisor.BudgetMargin = 0.10
	}
	if cfg.Advisor.RebalanceFactor == 0 {
		cfg.Advisor.RebalanceFactor = 0.5
	}
	if cfg.Advisor.HorizonDays == 0 {
		cfg.Advisor.HorizonDays = 1
	}
	if cfg.Advisor.ConfidenceZ == 0 {
		cfg.Advisor.ConfidenceZ = 1.96
	}
	if len(cfg.Advisor.CoreMetrics) == 0 {
		cfg.Advisor.CoreMetrics = []string{"revenue", "orders", "conversion_rate"}
	}
	if len(cfg.Advisor.CorrelationPairs) == 0 {
		cfg.Advisor.CorrelationPairs = [][2]string{
			{"revenue", "orders"},
			{"revenue", "sessions"},
			{"orders", "email_sent"},
			{"conversion_rate", "email_failure_rate"},
			{"spend", "revenue"},
		}
	}

	// Digest
	if cfg.Digest.Provider == "" {
		cfg.Digest.Provider = "log"
	}
	if cfg.Digest.FromName == "" {
		cfg.Digest.FromName = "Storefront Insights"
	}
	if cfg.Digest.SubjectPrefix == "" {
		cfg.Digest.SubjectPrefix = "[Insights]"
	}
	if cfg.Digest.QueueSize == 0 {
		cfg.Digest.QueueSize = 16
	}
	if cfg.Digest.Workers == 0 {
		cfg.Digest.Workers = 1
	}
	if cfg.Digest.SendTimeoutSec == 0 {
		cfg.Digest.SendTimeoutSec = 30
	}
	if cfg.Digest.ClaimTTLHours == 0 {
		cfg.Digest.ClaimTTLHours = 24 * 30
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}

	// Scheduled runs
	if cfg.Schedule.IntervalMinutes == 0 {
		cfg.Schedule.IntervalMinutes = 24 * 60
	}
	if cfg.Schedule.Days == 0 {
		cfg.Schedule.Days = 7
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("CRON_SECRET"); v != "" {
		cfg.Server.CronSecret = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DIGEST_RECIPIENT"); v != "" {
		cfg.Digest.Recipient = v
	}
	if v := os.Getenv("SENDGRID_API_KEY"); v != "" {
		cfg.SendGrid.APIKey = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}

	// Snowflake overrides
	if v := os.Getenv("SNOWFLAKE_ACCOUNT"); v != "" {
		cfg.Snowflake.Account = v
	}
	if v := os.Getenv("SNOWFLAKE_USER"); v != "" {
		cfg.Snowflake.User = v
	}
	if v := os.Getenv("SNOWFLAKE_PASSWORD"); v != "" {
		cfg.Snowflake.Password = v
	}

	return cfg, nil
}
