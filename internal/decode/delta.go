package decode

import "brainlink/internal/model"

// ToDelta converts a scheme scalar into an actuator delta for one mapping
// entry. The stage order is fixed: invert, scale, deadzone suppression,
// min-step floor, clamp. Deadzone wins over min-step; the clamp is applied
// last and may override the floor.
func ToDelta(value float64, entry model.MappingEntry) float64 {
	if entry.Invert {
		value = -value
	}

	delta := value * entry.PerStepMax * entry.Gain

	if entry.Deadzone > 0 && abs(delta) < entry.Deadzone {
		return 0
	}

	if entry.MinStep > 0 && delta != 0 && abs(delta) < entry.MinStep {
		if delta > 0 {
			delta = entry.MinStep
		} else {
			delta = -entry.MinStep
		}
	}

	if entry.Clamp != nil {
		delta = clamp(delta, entry.Clamp.Lo, entry.Clamp.Hi)
	}
	return delta
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
