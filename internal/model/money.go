package model

import (
	"fmt"
	"math"
)

// Money is an amount expressed in integer minor units (e.g. grosz, cents).
type Money int64

// String formats the amount with two decimals.
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Rate is a percentage expressed in basis points (1700 = 17%).
type Rate int64

const maxRate Rate = 10000

// RateFromFloat converts a fractional rate (0.17) into basis points.
func RateFromFloat(f float64) (Rate, error) {
	if math.IsNaN(f) || f < 0 || f > 1 {
		return 0, fmt.Errorf("rate %v must be between 0 and 1: %w", f, ErrNotValid)
	}
	return Rate(math.Round(f * float64(maxRate))), nil
}

// Float returns the fractional representation of the rate.
func (r Rate) Float() float64 { return float64(r) / float64(maxRate) }

// Validate checks the rate is in the [0, 100%] range.
func (r Rate) Validate() error {
	if r < 0 || r > maxRate {
		return fmt.Errorf("rate %d bps out of range: %w", r, ErrNotValid)
	}
	return nil
}

// Commission returns the platform cut of amount at the given rate, rounded half up to the
// minor unit. It only uses integer arithmetic so the result is deterministic.
func Commission(amount Money, rate Rate) Money {
	if amount <= 0 || rate <= 0 {
		return 0
	}
	return Money((int64(amount)*int64(rate) + int64(maxRate)/2) / int64(maxRate))
}

// ContractorShare is the part of amount that goes to the contractor.
func ContractorShare(amount, commission Money) Money {
	return amount - commission
}

// Split is the immutable division of an escrowed amount.
type Split struct {
	Amount           Money
	CommissionAmount Money
	ContractorAmount Money
}

// NewSplit computes the split for an amount at the given commission rate.
func NewSplit(amount Money, rate Rate) Split {
	commission := Commission(amount, rate)
	return Split{
		Amount:           amount,
		CommissionAmount: commission,
		ContractorAmount: ContractorShare(amount, commission),
	}
}

// Validate checks the split is lossless.
func (s Split) Validate() error {
	if s.Amount <= 0 {
		return fmt.Errorf("amount must be positive: %w", ErrNotValid)
	}
	if s.CommissionAmount < 0 || s.ContractorAmount < 0 {
		return fmt.Errorf("split parts can't be negative: %w", ErrNotValid)
	}
	if s.CommissionAmount+s.ContractorAmount != s.Amount {
		return fmt.Errorf("split %s+%s doesn't add up to %s: %w", s.CommissionAmount, s.ContractorAmount, s.Amount, ErrNotValid)
	}
	return nil
}
