package decode

import (
	"strings"

	"brainlink/internal/model"
)

// ComputeValue turns a population bit vector into a control scalar under the
// named scheme. threshold <= 0 means unset and only matters for
// booleanThreshold. Unknown scheme names yield 0.0 rather than an error so
// a stale mapping cannot abort a cycle.
func ComputeValue(bits []int, scheme string, threshold int) float64 {
	switch strings.TrimSpace(scheme) {
	case "", model.SchemeBipolarSplit:
		return bipolarSplit(bits)
	case model.SchemeAddition:
		return addition(bits)
	case model.SchemeBooleanThreshold:
		if threshold <= 0 {
			threshold = max(1, len(bits)/2)
		}
		return booleanThreshold(bits, threshold)
	case model.SchemeBipolarScalar:
		return bipolarScalar(bits)
	default:
		return 0
	}
}

// bipolarSplit returns first-half sum minus second-half sum. The result is
// deliberately unnormalized ([-half, +half]); downstream tuning of
// per_step_max depends on that range.
func bipolarSplit(bits []int) float64 {
	half := len(bits) / 2
	if half == 0 {
		return 0
	}
	pos, neg := halfSums(bits, half)
	return float64(pos - neg)
}

func addition(bits []int) float64 {
	sum := 0
	for _, b := range bits {
		sum += b
	}
	return float64(sum)
}

func booleanThreshold(bits []int, threshold int) float64 {
	n := len(bits)
	if n == 0 {
		return 0
	}
	if threshold < 1 {
		threshold = 1
	}
	if threshold > n {
		threshold = n
	}
	sum := 0
	for _, b := range bits {
		sum += b
	}
	if sum >= threshold {
		return 1
	}
	return 0
}

func bipolarScalar(bits []int) float64 {
	half := len(bits) / 2
	if half == 0 {
		return 0
	}
	pos, neg := halfSums(bits, half)
	switch {
	case pos > neg:
		return 1
	case neg > pos:
		return -1
	default:
		return 0
	}
}

func halfSums(bits []int, half int) (pos, neg int) {
	for i := 0; i < half; i++ {
		pos += bits[i]
	}
	for i := half; i < half*2; i++ {
		neg += bits[i]
	}
	return pos, neg
}
