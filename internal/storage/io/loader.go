package io

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/slok/taskbroker/internal/model"
	"github.com/slok/taskbroker/internal/storage"
)

// PlatformConfigYAMLRepository loads the platform policy from a YAML file.
type PlatformConfigYAMLRepository struct {
	fs   fs.FS
	path string
}

var _ storage.PlatformConfigRepository = &PlatformConfigYAMLRepository{}

// NewPlatformConfigYAMLRepository creates a new YAML platform config repository.
func NewPlatformConfigYAMLRepository(filesystem fs.FS, path string) *PlatformConfigYAMLRepository {
	return &PlatformConfigYAMLRepository{fs: filesystem, path: path}
}

// GetPlatformConfig loads the policy, missing fields get the platform defaults.
func (r *PlatformConfigYAMLRepository) GetPlatformConfig(ctx context.Context) (*model.PlatformConfig, error) {
	data, err := fs.ReadFile(r.fs, r.path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var cfg PlatformConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	m, err := cfg.toModel()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return m, nil
}

// PlatformConfig represents the YAML structure of the platform policy.
type PlatformConfig struct {
	// CommissionRate is a fraction, 0.17 is 17%.
	CommissionRate      *float64       `yaml:"commission_rate"`
	Currency            string         `yaml:"currency"`
	DisputeTimeout      *time.Duration `yaml:"dispute_timeout"`
	ClientSplitShare    *float64       `yaml:"client_split_share"`
	Gateway             GatewayConfig  `yaml:"gateway"`
	WebhookDedupeTTL    time.Duration  `yaml:"webhook_dedupe_ttl"`
	VerifiedContractors []string       `yaml:"verified_contractors"`
}

// GatewayConfig represents the YAML structure of the payment gateway policy.
type GatewayConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries *int          `yaml:"max_retries"`
}

func (c PlatformConfig) toModel() (*model.PlatformConfig, error) {
	cfg := model.DefaultPlatformConfig()

	if c.CommissionRate != nil {
		r, err := model.RateFromFloat(*c.CommissionRate)
		if err != nil {
			return nil, fmt.Errorf("commission_rate: %w", err)
		}
		cfg.CommissionRate = r
	}
	if c.ClientSplitShare != nil {
		r, err := model.RateFromFloat(*c.ClientSplitShare)
		if err != nil {
			return nil, fmt.Errorf("client_split_share: %w", err)
		}
		cfg.ClientSplitShare = r
	}
	if c.Currency != "" {
		cfg.Currency = c.Currency
	}
	if c.DisputeTimeout != nil {
		cfg.DisputeTimeout = *c.DisputeTimeout
	}
	if c.Gateway.Timeout != 0 {
		cfg.GatewayTimeout = c.Gateway.Timeout
	}
	if c.Gateway.MaxRetries != nil {
		cfg.GatewayMaxRetries = *c.Gateway.MaxRetries
	}
	if c.WebhookDedupeTTL != 0 {
		cfg.WebhookDedupeTTL = c.WebhookDedupeTTL
	}
	cfg.VerifiedContractors = c.VerifiedContractors

	return &cfg, nil
}
