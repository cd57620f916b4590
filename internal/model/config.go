package model

import (
	"fmt"
	"time"
)

// PlatformConfig is the business policy of the platform.
type PlatformConfig struct {
	// CommissionRate is the platform cut applied on holds and completions.
	CommissionRate Rate
	Currency       string
	// DisputeTimeout is how long a task can stay accepted or in progress before the
	// sweeper raises a dispute on it. Zero disables the sweeper.
	DisputeTimeout time.Duration
	// ClientSplitShare is the part of the escrow returned to the client on split resolutions.
	ClientSplitShare Rate

	GatewayTimeout    time.Duration
	GatewayMaxRetries int
	WebhookDedupeTTL  time.Duration

	// VerifiedContractors is the static allow list used when no external eligibility
	// service is configured. Empty means every contractor is eligible.
	VerifiedContractors []string
}

// DefaultPlatformConfig returns the platform policy used when nothing is configured.
func DefaultPlatformConfig() PlatformConfig {
	return PlatformConfig{
		CommissionRate:    1700,
		Currency:          "pln",
		DisputeTimeout:    7 * 24 * time.Hour,
		ClientSplitShare:  5000,
		GatewayTimeout:    10 * time.Second,
		GatewayMaxRetries: 3,
		WebhookDedupeTTL:  24 * time.Hour,
	}
}

// Validate validates the platform config.
func (c PlatformConfig) Validate() error {
	if err := c.CommissionRate.Validate(); err != nil {
		return fmt.Errorf("invalid commission rate: %w", err)
	}
	if err := c.ClientSplitShare.Validate(); err != nil {
		return fmt.Errorf("invalid client split share: %w", err)
	}
	if c.Currency == "" {
		return fmt.Errorf("currency is required: %w", ErrNotValid)
	}
	if c.DisputeTimeout < 0 {
		return fmt.Errorf("dispute timeout can't be negative: %w", ErrNotValid)
	}
	if c.GatewayTimeout <= 0 {
		return fmt.Errorf("gateway timeout must be positive: %w", ErrNotValid)
	}
	if c.GatewayMaxRetries < 0 {
		return fmt.Errorf("gateway retries can't be negative: %w", ErrNotValid)
	}
	if c.WebhookDedupeTTL <= 0 {
		return fmt.Errorf("webhook dedupe ttl must be positive: %w", ErrNotValid)
	}
	return nil
}
