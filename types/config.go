package types

import (
	"time"
)

type ConfigManager interface {
	Load() error
	GetConfig() *RelayConfig
}

type RelayConfig struct {
	Name      string           `yaml:"name" json:"name" validate:"required"`
	Version   string           `yaml:"version" json:"version"`
	Logger    *LoggerConfig    `yaml:"logger" json:"logger"`
	Scheduler *SchedulerConfig `yaml:"scheduler" json:"scheduler"`
	Cache     *CacheConfig     `yaml:"cache" json:"cache"`
	TTL       *TTLConfig       `yaml:"ttl" json:"ttl"`
	Metrics   *MetricsConfig   `yaml:"metrics" json:"metrics"`
	Cron      *CronConfig      `yaml:"cron" json:"cron"`
	Upstream  *UpstreamConfig  `yaml:"upstream" json:"upstream"`
}

type LoggerConfig struct {
	Type   string      `yaml:"type" json:"type"`
	Level  string      `yaml:"level" json:"level"`
	Config interface{} `yaml:"config" json:"config"`
}

type SchedulerConfig struct {
	MinimumSpacing time.Duration `yaml:"minimum_spacing" json:"minimum_spacing" validate:"min=0"`
	MaxConcurrent  int           `yaml:"max_concurrent" json:"max_concurrent" validate:"min=1"`
	QueueWarnDepth int           `yaml:"queue_warn_depth" json:"queue_warn_depth" validate:"min=0"`
}

type CacheConfig struct {
	Enabled    bool                  `yaml:"enabled" json:"enabled"`
	Memory     *MemoryTierConfig     `yaml:"memory" json:"memory"`
	Persistent *PersistentTierConfig `yaml:"persistent" json:"persistent"`
	Structured *StructuredTierConfig `yaml:"structured" json:"structured"`
}

type MemoryTierConfig struct {
	MaxEntries      int    `yaml:"max_entries" json:"max_entries" validate:"min=0"`
	CleanupInterval string `yaml:"cleanup_interval" json:"cleanup_interval"`
}

type PersistentTierConfig struct {
	Type   string      `yaml:"type" json:"type" validate:"required"`
	Config interface{} `yaml:"config" json:"config"`
}

type StructuredTierConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// TTLConfig is the per-endpoint freshness table. Endpoints not listed
// fall back to Default; a zero duration means "never cache".
type TTLConfig struct {
	Default   time.Duration            `yaml:"default" json:"default" validate:"min=0"`
	Endpoints map[string]time.Duration `yaml:"endpoints" json:"endpoints"`
}

type MetricsConfig struct {
	Enabled bool              `yaml:"enabled" json:"enabled"`
	Type    string            `yaml:"type" json:"type"`
	Prefix  string            `yaml:"prefix" json:"prefix"`
	Labels  map[string]string `yaml:"labels" json:"labels"`
	Config  interface{}       `yaml:"config" json:"config"`
}

type CronConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	Timezone      string `yaml:"timezone" json:"timezone"`
	PurgeSchedule string `yaml:"purge_schedule" json:"purge_schedule"`
}

type UpstreamConfig struct {
	Enabled        bool                       `yaml:"enabled" json:"enabled"`
	DefaultTimeout time.Duration              `yaml:"default_timeout" json:"default_timeout"`
	DefaultRetries int                        `yaml:"default_retries" json:"default_retries"`
	Endpoints      map[string]EndpointConfig  `yaml:"endpoints" json:"endpoints"`
	CircuitBreaker *CircuitBreakerConfig      `yaml:"circuit_breaker" json:"circuit_breaker"`
}

type EndpointConfig struct {
	URL     string        `yaml:"url" json:"url" validate:"required,url"`
	Method  string        `yaml:"method" json:"method"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	Retries int           `yaml:"retries" json:"retries"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" json:"recovery_timeout"`
	HalfOpenRequests int           `yaml:"half_open_requests" json:"half_open_requests"`
}
