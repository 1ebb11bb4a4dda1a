package listing

import (
	"fmt"
	"strings"

	"github.com/pitabwire/shopdesk/model"
)

// FailurePolicy decides what happens to the current list when a Load fails.
type FailurePolicy string

const (
	// PolicyPreserve keeps the previous list visible.
	PolicyPreserve FailurePolicy = "preserve"
	// PolicyClear empties the list and zeroes the totals.
	PolicyClear FailurePolicy = "clear"
	// PolicyAdaptive clears when the query itself was rejected and preserves
	// on transient failures.
	PolicyAdaptive FailurePolicy = "adaptive"
)

// ParseFailurePolicy parses a policy name. The empty string yields
// PolicyPreserve.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyPreserve, nil
	case PolicyPreserve, PolicyClear, PolicyAdaptive:
		return p, nil
	default:
		return "", fmt.Errorf("listing: unknown failure policy %q (supported: preserve, clear, adaptive)", s)
	}
}

func (p FailurePolicy) clears(err *model.ErrorEnvelope) bool {
	switch p {
	case PolicyClear:
		return true
	case PolicyAdaptive:
		return err.Code == model.ErrValidationRejected || err.Code == model.ErrNotFound
	default:
		return false
	}
}
