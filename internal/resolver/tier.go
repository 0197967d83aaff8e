package resolver

import "math"

// Confidence thresholds of the routing policy.
const (
	ExecuteThreshold = 0.70
	ConfirmThreshold = 0.50
)

// Tier is the action a resolution confidence allows.
type Tier string

const (
	TierExecute Tier = "execute"
	TierConfirm Tier = "confirm"
	TierClarify Tier = "clarify"
)

// TierFor maps a confidence to its tier. Confidence is rounded to four
// decimals first so float noise cannot move a value across a boundary.
func TierFor(confidence float64) Tier {
	c := math.Round(confidence*10000) / 10000
	switch {
	case c >= ExecuteThreshold:
		return TierExecute
	case c >= ConfirmThreshold:
		return TierConfirm
	default:
		return TierClarify
	}
}
