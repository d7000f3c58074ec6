package decode

import (
	"testing"

	"brainlink/internal/model"
)

func TestNormalizeMappingTypedEntriesPassThrough(t *testing.T) {
	typed := model.MappingEntry{NodeID: "V2", Channel: "joint:3", Scheme: model.SchemeAddition, PerStepMax: 0.003, Gain: 0.5}
	out := NormalizeMapping([]any{typed, &typed})
	if len(out) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(out))
	}
	if out[0] != typed || out[1] != typed {
		t.Fatalf("typed entries changed during normalization: %+v", out)
	}
}

func TestNormalizeMappingSynonymKeys(t *testing.T) {
	out := NormalizeMapping([]any{
		map[string]any{
			"nodeId":            "V1",
			"controllerChannel": "wheel:left",
			"perStepMaxRad":     0.004,
			"minStepRad":        0.001,
			"invert":            true,
			"limits":            map[string]any{"min": -0.01, "max": 0.01},
		},
	})
	if len(out) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(out))
	}
	e := out[0]
	if e.NodeID != "V1" || e.Channel != "wheel:left" {
		t.Fatalf("identity not resolved: %+v", e)
	}
	if e.PerStepMax != 0.004 || e.MinStep != 0.001 || !e.Invert {
		t.Fatalf("synonym fields not resolved: %+v", e)
	}
	if e.Scheme != model.SchemeBipolarSplit {
		t.Fatalf("default scheme = %q, want %q", e.Scheme, model.SchemeBipolarSplit)
	}
	if e.Clamp == nil || e.Clamp.Lo != -0.01 || e.Clamp.Hi != 0.01 {
		t.Fatalf("limits synonym not resolved: %+v", e.Clamp)
	}
}

func TestNormalizeMappingClampPair(t *testing.T) {
	out := NormalizeMapping([]any{
		map[string]any{
			"node_id": "V3",
			"channel": "thruster:z",
			"clamp":   []any{-1.0, 1.0},
		},
	})
	if len(out) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(out))
	}
	if out[0].Clamp == nil || out[0].Clamp.Lo != -1 || out[0].Clamp.Hi != 1 {
		t.Fatalf("pair clamp not resolved: %+v", out[0].Clamp)
	}
	if out[0].PerStepMax != defaultPerStepMax || out[0].Gain != defaultGain {
		t.Fatalf("defaults not applied: %+v", out[0])
	}
}

func TestNormalizeMappingDropsIncompleteEntries(t *testing.T) {
	out := NormalizeMapping([]any{
		map[string]any{"channel": "joint:0"},
		map[string]any{"node_id": "V2"},
		map[string]any{"node_id": "", "channel": "joint:1"},
		map[string]any{"node_id": "   ", "channel": "joint:2"},
		"not a record",
		nil,
		map[string]any{"node_id": "V9", "channel": "joint:9"},
	})
	if len(out) != 1 {
		t.Fatalf("expected only the complete entry to survive, got %d: %+v", len(out), out)
	}
	if out[0].NodeID != "V9" {
		t.Fatalf("unexpected surviving entry: %+v", out[0])
	}
}

func TestNormalizeMappingThreshold(t *testing.T) {
	out := NormalizeMapping([]any{
		map[string]any{"node_id": "V2", "channel": "grip", "scheme": model.SchemeBooleanThreshold, "threshold": float64(3)},
	})
	if len(out) != 1 || out[0].Threshold != 3 {
		t.Fatalf("threshold not resolved: %+v", out)
	}
}
