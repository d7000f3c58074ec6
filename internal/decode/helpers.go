package decode

import "strconv"

func asString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	default:
		return "", false
	}
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int8:
		return int(x), true
	case int16:
		return int(x), true
	case int32:
		return int(x), true
	case int64:
		return int(x), true
	case float64:
		return int(x), true
	case float32:
		return int(x), true
	case string:
		n, err := strconv.Atoi(x)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

func asBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	default:
		return false, false
	}
}

// asBit coerces a single loose element to {0,1}; anything unrecognized
// counts as no spike.
func asBit(v any) int {
	switch x := v.(type) {
	case bool:
		if x {
			return 1
		}
		return 0
	default:
		if f, ok := asFloat64(v); ok && f != 0 {
			return 1
		}
		return 0
	}
}

// asBits coerces a loose bit vector. Only slice forms qualify; nil means
// the field was not a sequence at all and the row should be dropped.
func asBits(v any) []int {
	switch xs := v.(type) {
	case []int:
		out := make([]int, len(xs))
		for i, b := range xs {
			if b != 0 {
				out[i] = 1
			}
		}
		return out
	case []float64:
		out := make([]int, len(xs))
		for i, b := range xs {
			if b != 0 {
				out[i] = 1
			}
		}
		return out
	case []any:
		out := make([]int, len(xs))
		for i, b := range xs {
			out[i] = asBit(b)
		}
		return out
	default:
		return nil
	}
}
