package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where mutationmechanic stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string

	// Cache configuration
	FastTTL        time.Duration // MM_CACHE_FAST_TTL (default: 7 days)
	DurableTTL     time.Duration // MM_CACHE_DURABLE_TTL (default: 30 days)
	FastQuotaBytes int64         // MM_CACHE_FAST_QUOTA_BYTES (default: 5 MiB)
	RetentionTTL   time.Duration // MM_HISTORY_RETENTION (default: 365 days)

	// Annotation providers. An empty URL disables the provider.
	FrequencyURL    string        // MM_PROVIDER_FREQUENCY_URL
	ConservationURL string        // MM_PROVIDER_CONSERVATION_URL
	ImpactURL       string        // MM_PROVIDER_IMPACT_URL
	OrthologURL     string        // MM_PROVIDER_ORTHOLOG_URL
	RegulatoryURL   string        // MM_PROVIDER_REGULATORY_URL
	ClinicalURL     string        // MM_PROVIDER_CLINICAL_URL
	ProviderTimeout time.Duration // MM_PROVIDER_TIMEOUT (default: 15s)

	// AI Configuration
	AIAPIKey  string // MM_AI_API_KEY
	AIBaseURL string // MM_AI_BASE_URL (default: https://api.openai.com/v1)
	AIModel   string // MM_AI_MODEL (default: gpt-4o-mini)
}

const (
	DefaultFastTTL         = 7 * 24 * time.Hour
	DefaultDurableTTL      = 30 * 24 * time.Hour
	DefaultFastQuotaBytes  = 5 << 20
	DefaultRetentionTTL    = 365 * 24 * time.Hour
	DefaultProviderTimeout = 15 * time.Second
)

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if an API key is configured for the explainer.
func (p *Profile) IsAIEnabled() bool {
	return p.AIAPIKey != ""
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnvOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("invalid duration in environment, using default", slog.String("key", key), slog.String("value", value))
		return defaultValue
	}
	return d
}

// FromEnv loads configuration from environment variables.
// Values already set on the profile are only overwritten when the variable is present.
func (p *Profile) FromEnv() {
	p.FastTTL = getDurationEnvOrDefault("MM_CACHE_FAST_TTL", orDuration(p.FastTTL, DefaultFastTTL))
	p.DurableTTL = getDurationEnvOrDefault("MM_CACHE_DURABLE_TTL", orDuration(p.DurableTTL, DefaultDurableTTL))
	p.RetentionTTL = getDurationEnvOrDefault("MM_HISTORY_RETENTION", orDuration(p.RetentionTTL, DefaultRetentionTTL))
	p.ProviderTimeout = getDurationEnvOrDefault("MM_PROVIDER_TIMEOUT", orDuration(p.ProviderTimeout, DefaultProviderTimeout))

	if p.FastQuotaBytes <= 0 {
		p.FastQuotaBytes = DefaultFastQuotaBytes
	}
	if v := os.Getenv("MM_CACHE_FAST_QUOTA_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			p.FastQuotaBytes = n
		}
	}

	p.FrequencyURL = getEnvOrDefault("MM_PROVIDER_FREQUENCY_URL", p.FrequencyURL)
	p.ConservationURL = getEnvOrDefault("MM_PROVIDER_CONSERVATION_URL", p.ConservationURL)
	p.ImpactURL = getEnvOrDefault("MM_PROVIDER_IMPACT_URL", p.ImpactURL)
	p.OrthologURL = getEnvOrDefault("MM_PROVIDER_ORTHOLOG_URL", p.OrthologURL)
	p.RegulatoryURL = getEnvOrDefault("MM_PROVIDER_REGULATORY_URL", p.RegulatoryURL)
	p.ClinicalURL = getEnvOrDefault("MM_PROVIDER_CLINICAL_URL", p.ClinicalURL)

	p.AIAPIKey = getEnvOrDefault("MM_AI_API_KEY", p.AIAPIKey)
	p.AIBaseURL = getEnvOrDefault("MM_AI_BASE_URL", orString(p.AIBaseURL, "https://api.openai.com/v1"))
	p.AIModel = getEnvOrDefault("MM_AI_MODEL", orString(p.AIModel, "gpt-4o-mini"))
}

func orDuration(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}

func orString(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}
	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	if p.Driver != "sqlite" && p.Driver != "postgres" {
		return errors.Errorf("unsupported driver %q: only sqlite and postgres are supported", p.Driver)
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "mutationmechanic")
		} else {
			p.Data = "/var/opt/mutationmechanic"
		}
		if _, err := os.Stat(p.Data); os.IsNotExist(err) {
			if err := os.MkdirAll(p.Data, 0770); err != nil {
				slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
				return err
			}
		}
	}
	if p.Data == "" {
		p.Data = "."
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("mutationmechanic_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("dsn is required for the postgres driver")
	}

	return nil
}

// FastSnapshotPath is where the fast cache tier is persisted between runs.
func (p *Profile) FastSnapshotPath() string {
	return filepath.Join(p.Data, fmt.Sprintf("fast_cache_%s.json", p.Mode))
}
