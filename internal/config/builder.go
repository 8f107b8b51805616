package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// builder collects partial configurations in priority order; earlier ones
// win because mergo only fills zero fields.
type builder struct {
	configs []*Config
	err     error
}

func newBuilder() *builder {
	return &builder{configs: make([]*Config, 0, 3)}
}

func (b *builder) withEnv() *builder {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		b.err = errors.Join(b.err, fmt.Errorf("error getting env configs: %w", err))
		return b
	}
	b.configs = append(b.configs, cfg)
	return b
}

func (b *builder) withFile(path string) *builder {
	if path == "" {
		return b
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if os.IsNotExist(err) {
		if err := Save(DefaultConfig(), path); err != nil {
			b.err = errors.Join(b.err, fmt.Errorf("failed to create default config: %w", err))
		}
		return b
	}
	if err != nil {
		b.err = errors.Join(b.err, fmt.Errorf("failed to read config file: %w", err))
		return b
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		b.err = errors.Join(b.err, fmt.Errorf("failed to parse config file: %w", err))
		return b
	}
	b.configs = append(b.configs, cfg)
	return b
}

func (b *builder) withDefaults() *builder {
	b.configs = append(b.configs, DefaultConfig())
	return b
}

func (b *builder) build() (*Config, error) {
	if b.err != nil {
		return nil, fmt.Errorf("error occurred during building config: %w", b.err)
	}

	cfg := new(Config)
	for _, c := range b.configs {
		if err := mergo.Merge(cfg, c); err != nil {
			return nil, fmt.Errorf("error merging configs: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
