// Package matcher pairs ledger records with settlement records.
//
// Matching runs in two greedy, one-to-one phases over FIFO queues:
//  1. Exact: settlement records queued by normalized reference number;
//     each ledger record, in input order, takes the head of its queue.
//  2. Fallback: the records still unconsumed are keyed by normalized
//     branch plus amount rounded to whole currency units, and paired the
//     same way.
//
// Every ledger record yields exactly one MatchResult (EXACT, FALLBACK or
// UNMATCHED). Settlement records left over are reported per channel.
//
// Example usage:
//
//	m := matcher.NewMatcher(matcher.DefaultMatchingConfig())
//	result, err := m.Match(settlements, ledger)
//	if err != nil {
//		return err // invariant violations are fatal
//	}
//	fmt.Println(result.Summary.Exact, result.Summary.Fallback)
package matcher

import (
	"fmt"

	"card-reconciliation-service/pkg/errors"
)

// Tier classifies how a ledger record was matched
type Tier string

const (
	// TierExact means the reference numbers were equal
	TierExact Tier = "EXACT"
	// TierFallback means branch and rounded amount were equal
	TierFallback Tier = "FALLBACK"
	// TierUnmatched means no settlement record was found
	TierUnmatched Tier = "UNMATCHED"
)

// String returns the string representation of Tier
func (t Tier) String() string {
	return string(t)
}

// IsMatched reports whether the tier paired a settlement record
func (t Tier) IsMatched() bool {
	return t == TierExact || t == TierFallback
}

// MatchingConfig holds the tunable parts of the matcher
type MatchingConfig struct {
	// EnableFallback runs phase 2. With it off only reference matches count.
	EnableFallback bool `json:"enable_fallback" mapstructure:"enable_fallback"`

	// FallbackPrecision is the number of decimal places amounts are rounded
	// to in the fallback key. Zero rounds to whole currency units.
	FallbackPrecision int32 `json:"fallback_precision" mapstructure:"fallback_precision"`
}

// DefaultMatchingConfig returns the standard two-phase configuration
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		EnableFallback:    true,
		FallbackPrecision: 0,
	}
}

// Validate checks if the matching configuration is valid
func (c *MatchingConfig) Validate() error {
	if c.FallbackPrecision < 0 || c.FallbackPrecision > 4 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "matching.fallback_precision",
			c.FallbackPrecision, fmt.Errorf("must be between 0 and 4"))
	}
	return nil
}
