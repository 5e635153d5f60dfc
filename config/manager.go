package config

import (
	"sync/atomic"

	"github.com/saiset-co/sai-relay/types"
)

type Manager struct {
	config     atomic.Pointer[types.RelayConfig]
	configPath string
	loader     *Loader
}

func NewManager(configPath string) (*Manager, error) {
	m := &Manager{
		configPath: configPath,
		loader:     NewLoader(),
	}

	if err := m.Load(); err != nil {
		return nil, types.WrapError(err, "failed to load initial configuration")
	}

	return m, nil
}

// NewManagerFromConfig wraps an already constructed config. Intended
// for tests and for hosts that assemble the config in code.
func NewManagerFromConfig(config *types.RelayConfig) (*Manager, error) {
	m := &Manager{
		loader: NewLoader(),
	}

	if config == nil {
		config = Defaults()
	}

	if err := m.loader.Validate(config); err != nil {
		return nil, err
	}

	m.config.Store(config)
	return m, nil
}

func (m *Manager) Load() error {
	if m.configPath == "" {
		m.config.Store(Defaults())
		return nil
	}

	config, err := m.loader.LoadFromFile(m.configPath)
	if err != nil {
		return err
	}

	m.config.Store(config)
	return nil
}

func (m *Manager) GetConfig() *types.RelayConfig {
	return m.config.Load()
}
