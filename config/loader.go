package config

import (
	"context"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/saiset-co/sai-relay/types"
)

type Loader struct {
	validator *validator.Validate
}

func NewLoader() *Loader {
	return &Loader{
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (l *Loader) LoadFromFile(configPath string) (*types.RelayConfig, error) {
	if configPath == "" {
		return nil, types.ErrConfigNotFound
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, types.WrapError(err, "file not found: "+configPath)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	data, err := l.ReadFileWithTimeout(ctx, configPath)
	if err != nil {
		return nil, types.WrapError(err, "failed to read config file")
	}

	config := Defaults()

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, types.WrapError(err, "failed to parse YAML config")
	}

	if err := l.Validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

func (l *Loader) Validate(config *types.RelayConfig) error {
	if config == nil {
		return types.ErrConfigIsNil
	}

	if err := l.validator.Struct(config); err != nil {
		return types.WrapError(err, "config validation failed")
	}

	if config.Scheduler != nil && config.Scheduler.MaxConcurrent < 1 {
		return types.ErrConcurrencyInvalid
	}

	return nil
}

func (l *Loader) ReadFileWithTimeout(ctx context.Context, filepath string) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}

	resultChan := make(chan result, 1)

	go func() {
		data, err := os.ReadFile(filepath)
		resultChan <- result{data: data, err: err}
	}()

	select {
	case res := <-resultChan:
		return res.data, res.err
	case <-ctx.Done():
		return nil, types.WrapError(ctx.Err(), "file read timeout")
	}
}

// Defaults mirrors the documented configuration surface: one second of
// spacing, one in-flight call, six hour default freshness.
func Defaults() *types.RelayConfig {
	return &types.RelayConfig{
		Name:    "sai-relay",
		Version: "0.1.0",
		Logger: &types.LoggerConfig{
			Type:  "zap",
			Level: "info",
		},
		Scheduler: &types.SchedulerConfig{
			MinimumSpacing: time.Second,
			MaxConcurrent:  1,
			QueueWarnDepth: 100,
		},
		Cache: &types.CacheConfig{
			Enabled: true,
			Memory: &types.MemoryTierConfig{
				MaxEntries:      10000,
				CleanupInterval: "5m",
			},
			Persistent: &types.PersistentTierConfig{
				Type: "memory",
			},
			Structured: &types.StructuredTierConfig{
				Enabled: false,
			},
		},
		TTL: &types.TTLConfig{
			Default:   6 * time.Hour,
			Endpoints: map[string]time.Duration{},
		},
		Metrics: &types.MetricsConfig{
			Enabled: false,
			Type:    "memory",
			Prefix:  "sai_relay",
		},
		Cron: &types.CronConfig{
			Enabled:       false,
			Timezone:      "UTC",
			PurgeSchedule: "0 */10 * * * *",
		},
		Upstream: &types.UpstreamConfig{
			Enabled:        false,
			DefaultTimeout: 30 * time.Second,
			DefaultRetries: 0,
		},
	}
}
