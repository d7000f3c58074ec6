package decode

import (
	"strings"

	"brainlink/internal/model"
)

const (
	defaultPerStepMax = 0.01
	defaultGain       = 1.0
)

// NormalizeMapping canonicalizes a heterogeneous mapping list. Elements may
// be typed entries (model.MappingEntry or *model.MappingEntry) or loose
// map[string]any records carrying synonym keys; mappings are often
// hand-authored or generated from a contract that lags the code, so entries
// that cannot be resolved to a node id and a channel are dropped rather
// than reported.
func NormalizeMapping(mapping []any) []model.MappingEntry {
	out := make([]model.MappingEntry, 0, len(mapping))
	for _, m := range mapping {
		switch e := m.(type) {
		case model.MappingEntry:
			out = append(out, e)
		case *model.MappingEntry:
			if e != nil {
				out = append(out, *e)
			}
		case map[string]any:
			entry, ok := convertMappingRecord(e)
			if !ok {
				continue
			}
			out = append(out, entry)
		}
	}
	return out
}

func convertMappingRecord(in map[string]any) (model.MappingEntry, bool) {
	entry := model.MappingEntry{
		Scheme:     model.SchemeBipolarSplit,
		PerStepMax: defaultPerStepMax,
		Gain:       defaultGain,
	}

	entry.NodeID = firstString(in, "node_id", "nodeId")
	entry.Channel = firstString(in, "channel", "controllerChannel")
	if entry.NodeID == "" || entry.Channel == "" {
		return model.MappingEntry{}, false
	}

	if s := firstString(in, "scheme"); s != "" {
		entry.Scheme = s
	}
	if f, ok := firstFloat(in, "per_step_max", "perStepMax", "perStepMaxRad"); ok {
		entry.PerStepMax = f
	}
	if f, ok := firstFloat(in, "gain"); ok {
		entry.Gain = f
	}
	if f, ok := firstFloat(in, "deadzone"); ok {
		entry.Deadzone = f
	}
	if f, ok := firstFloat(in, "min_step", "minStep", "minStepRad"); ok {
		entry.MinStep = f
	}
	if b, ok := asBool(in["invert"]); ok {
		entry.Invert = b
	}
	if n, ok := asInt(in["threshold"]); ok && n > 0 {
		entry.Threshold = n
	}
	entry.Clamp = convertClamp(in)
	return entry, true
}

// convertClamp accepts either clamp or the limits synonym, shaped as a
// {min,max} record or a 2-element pair.
func convertClamp(in map[string]any) *model.Range {
	raw, ok := in["clamp"]
	if !ok || raw == nil {
		raw, ok = in["limits"]
		if !ok || raw == nil {
			return nil
		}
	}
	switch v := raw.(type) {
	case map[string]any:
		lo, ok1 := asFloat64(v["min"])
		hi, ok2 := asFloat64(v["max"])
		if !ok1 || !ok2 {
			return nil
		}
		return &model.Range{Lo: lo, Hi: hi}
	case []any:
		if len(v) != 2 {
			return nil
		}
		lo, ok1 := asFloat64(v[0])
		hi, ok2 := asFloat64(v[1])
		if !ok1 || !ok2 {
			return nil
		}
		return &model.Range{Lo: lo, Hi: hi}
	case []float64:
		if len(v) != 2 {
			return nil
		}
		return &model.Range{Lo: v[0], Hi: v[1]}
	default:
		return nil
	}
}

func firstString(in map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := asString(in[key]); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func firstFloat(in map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		if v, ok := in[key]; ok && v != nil {
			if f, ok := asFloat64(v); ok {
				return f, true
			}
		}
	}
	return 0, false
}
