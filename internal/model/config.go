package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidConfig is returned when configuration cannot be used to start.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the complete painpoint configuration
type Config struct {
	Scoring     ScoringConfig           `yaml:"scoring" mapstructure:"scoring"`
	Outreach    OutreachConfig          `yaml:"outreach" mapstructure:"outreach"`
	Dedup       DedupConfig             `yaml:"dedup" mapstructure:"dedup"`
	Store       StoreConfig             `yaml:"store" mapstructure:"store"`
	Sink        SinkConfig              `yaml:"sink" mapstructure:"sink"`
	NATS        NATSConfig              `yaml:"nats" mapstructure:"nats"`
	Redis       RedisConfig             `yaml:"redis" mapstructure:"redis"`
	Sources     map[string]SourceConfig `yaml:"sources" mapstructure:"sources"`
	Analysis    AnalysisConfig          `yaml:"analysis" mapstructure:"analysis"`
	HTTP        HTTPConfig              `yaml:"http" mapstructure:"http"`
	Logging     LoggingConfig           `yaml:"logging" mapstructure:"logging"`
	Metrics     MetricsConfig           `yaml:"metrics" mapstructure:"metrics"`
	Concurrency ConcurrencyConfig       `yaml:"concurrency" mapstructure:"concurrency"`
}

// Weights are the composite weights per EDP dimension.
type Weights struct {
	DwellTime  float64 `yaml:"dwell_time" mapstructure:"dwell_time"`
	SkillsGap  float64 `yaml:"skills_gap" mapstructure:"skills_gap"`
	AfterHours float64 `yaml:"after_hours" mapstructure:"after_hours"`
	Insurance  float64 `yaml:"insurance" mapstructure:"insurance"`
	BreachCost float64 `yaml:"breach_cost" mapstructure:"breach_cost"`
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.DwellTime + w.SkillsGap + w.AfterHours + w.Insurance + w.BreachCost
}

// Apply returns the weighted sum of sub-scores in [0,1].
func (w Weights) Apply(s SubScores) float64 {
	return s.DwellTime*w.DwellTime +
		s.SkillsGap*w.SkillsGap +
		s.AfterHours*w.AfterHours +
		s.Insurance*w.Insurance +
		s.BreachCost*w.BreachCost
}

// DefaultWeights returns the fixed EDP weights.
func DefaultWeights() Weights {
	return Weights{
		DwellTime:  0.35,
		SkillsGap:  0.25,
		AfterHours: 0.15,
		Insurance:  0.15,
		BreachCost: 0.10,
	}
}

// ScoringConfig controls the EDP scorer.
type ScoringConfig struct {
	Weights              Weights `yaml:"weights" mapstructure:"weights"`
	DefaultEmployeeCount int     `yaml:"default_employee_count" mapstructure:"default_employee_count"`
	BatchSize            int     `yaml:"batch_size" mapstructure:"batch_size"` // buffered writes per flush
}

// OutreachConfig controls the outreach gate.
type OutreachConfig struct {
	MinPainScore  float64 `yaml:"min_pain_score" mapstructure:"min_pain_score"`
	DailyLimit    int     `yaml:"daily_limit" mapstructure:"daily_limit"`
	BudgetBackend string  `yaml:"budget_backend" mapstructure:"budget_backend"` // memory, redis
}

// DedupConfig selects and configures the dedup ledger.
type DedupConfig struct {
	Backend    string `yaml:"backend" mapstructure:"backend"` // file, redis
	LedgerPath string `yaml:"ledger_path" mapstructure:"ledger_path"`
	RedisKey   string `yaml:"redis_key" mapstructure:"redis_key"`
}

// StoreConfig selects the external datastore.
type StoreConfig struct {
	Backend       string `yaml:"backend" mapstructure:"backend"` // memory, postgres
	DatabaseURL   string `yaml:"database_url" mapstructure:"database_url"`
	Migrate       bool   `yaml:"migrate" mapstructure:"migrate"`
	RetentionDays int    `yaml:"retention_days" mapstructure:"retention_days"` // 0 = all history
}

// SinkConfig configures webhook delivery of new signals.
type SinkConfig struct {
	WebhookURL    string        `yaml:"webhook_url" mapstructure:"webhook_url"`
	WebhookSecret string        `yaml:"webhook_secret" mapstructure:"webhook_secret"`
	BatchSize     int           `yaml:"batch_size" mapstructure:"batch_size"`
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// NATSConfig configures the admitted-prospect publisher.
type NATSConfig struct {
	URL     string `yaml:"url" mapstructure:"url"` // empty disables
	Subject string `yaml:"subject" mapstructure:"subject"`
}

// RedisConfig is shared by the redis ledger and budget.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

// SourceConfig configures one signal provider.
type SourceConfig struct {
	Enabled           bool    `yaml:"enabled" mapstructure:"enabled"`
	Kind              string  `yaml:"kind,omitempty" mapstructure:"kind"` // adapter; defaults to the entry name
	URL               string  `yaml:"url" mapstructure:"url"`
	APIKey            string  `yaml:"api_key,omitempty" mapstructure:"api_key"`
	RequestsPerMinute float64 `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// AnalysisConfig controls per-company profiling.
type AnalysisConfig struct {
	Enabled           bool    `yaml:"enabled" mapstructure:"enabled"`
	Provider          string  `yaml:"provider" mapstructure:"provider"` // none, file, http
	URL               string  `yaml:"url" mapstructure:"url"`           // profile list path or endpoint with optional {domain}
	APIKey            string  `yaml:"api_key,omitempty" mapstructure:"api_key"`
	RefreshDays       int     `yaml:"refresh_days" mapstructure:"refresh_days"` // 0 analyzes each company once
	RequestsPerMinute float64 `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// HTTPConfig holds HTTP client settings for source adapters
type HTTPConfig struct {
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent    string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	MaxRetries   int           `yaml:"max_retries" mapstructure:"max_retries"`
	HTTPProxy    string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy   string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
}

// LoggingConfig selects slog level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // text, json
}

// MetricsConfig configures the metrics listener.
type MetricsConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"` // empty disables
}

// ConcurrencyConfig sizes the source worker pool.
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() Config {
	return Config{
		Scoring: ScoringConfig{
			Weights:              DefaultWeights(),
			DefaultEmployeeCount: 100,
			BatchSize:            50,
		},
		Outreach: OutreachConfig{
			MinPainScore:  70,
			DailyLimit:    500,
			BudgetBackend: "memory",
		},
		Dedup: DedupConfig{
			Backend:    "file",
			LedgerPath: "data/sent_signal_hashes.json",
			RedisKey:   "painpoint:dedup:sent",
		},
		Store: StoreConfig{
			Backend: "memory",
			Migrate: true,
		},
		Sink: SinkConfig{
			BatchSize: 100,
			Timeout:   30 * time.Second,
		},
		NATS: NATSConfig{
			Subject: "painpoint.prospects.admitted",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Sources: map[string]SourceConfig{
			"california_ag": {
				URL:               "https://oag.ca.gov/privacy/databreach/list",
				RequestsPerMinute: 10,
				Burst:             1,
			},
			"ransomware_live": {
				URL:               "https://api.ransomware.live/recentvictims",
				RequestsPerMinute: 30,
				Burst:             1,
			},
			"hibp": {
				URL:               "https://haveibeenpwned.com/api/v3/breaches",
				RequestsPerMinute: 10,
				Burst:             1,
			},
			"job_board": {
				RequestsPerMinute: 60,
				Burst:             2,
			},
		},
		Analysis: AnalysisConfig{
			Enabled:           true,
			Provider:          "none",
			RefreshDays:       30,
			RequestsPerMinute: 60,
		},
		HTTP: HTTPConfig{
			Timeout:      15 * time.Second,
			UserAgent:    "painpoint/0.1 (+https://github.com/ppiankov/painpoint)",
			MaxBodyBytes: 10 << 20,
			MaxRetries:   3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
	}
}

// Validate checks keys a run cannot proceed without.
func (c Config) Validate() error {
	if sum := c.Scoring.Weights.Sum(); math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("%w: scoring weights sum to %v, want 1.0", ErrInvalidConfig, sum)
	}
	for _, w := range []float64{c.Scoring.Weights.DwellTime, c.Scoring.Weights.SkillsGap,
		c.Scoring.Weights.AfterHours, c.Scoring.Weights.Insurance, c.Scoring.Weights.BreachCost} {
		if w < 0 {
			return fmt.Errorf("%w: negative scoring weight %v", ErrInvalidConfig, w)
		}
	}
	if c.Outreach.MinPainScore < 0 || c.Outreach.MinPainScore > 100 {
		return fmt.Errorf("%w: outreach.min_pain_score %v outside [0,100]", ErrInvalidConfig, c.Outreach.MinPainScore)
	}
	if c.Outreach.DailyLimit < 0 {
		return fmt.Errorf("%w: outreach.daily_limit must not be negative", ErrInvalidConfig)
	}

	switch c.Outreach.BudgetBackend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("%w: redis.addr required for redis budget", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown outreach.budget_backend %q", ErrInvalidConfig, c.Outreach.BudgetBackend)
	}

	switch c.Dedup.Backend {
	case "file":
		if c.Dedup.LedgerPath == "" {
			return fmt.Errorf("%w: dedup.ledger_path required", ErrInvalidConfig)
		}
	case "redis":
		if c.Redis.Addr == "" || c.Dedup.RedisKey == "" {
			return fmt.Errorf("%w: redis.addr and dedup.redis_key required for redis ledger", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown dedup.backend %q", ErrInvalidConfig, c.Dedup.Backend)
	}

	switch c.Store.Backend {
	case "memory":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("%w: store.database_url required for postgres", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store.backend %q", ErrInvalidConfig, c.Store.Backend)
	}

	if c.Sink.WebhookURL != "" && c.Sink.WebhookSecret == "" {
		return fmt.Errorf("%w: sink.webhook_secret required when sink.webhook_url is set", ErrInvalidConfig)
	}
	switch c.Analysis.Provider {
	case "none", "":
	case "file", "http":
		if c.Analysis.Enabled && c.Analysis.URL == "" {
			return fmt.Errorf("%w: analysis.url required for %s provider", ErrInvalidConfig, c.Analysis.Provider)
		}
	default:
		return fmt.Errorf("%w: unknown analysis.provider %q", ErrInvalidConfig, c.Analysis.Provider)
	}
	if c.Analysis.RefreshDays < 0 {
		return fmt.Errorf("%w: analysis.refresh_days must not be negative", ErrInvalidConfig)
	}

	if c.Store.RetentionDays < 0 {
		return fmt.Errorf("%w: store.retention_days must not be negative", ErrInvalidConfig)
	}
	return nil
}
