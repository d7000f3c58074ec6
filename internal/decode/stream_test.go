package decode

import (
	"math"
	"reflect"
	"testing"

	"brainlink/internal/model"
)

func TestStreamEmptyRows(t *testing.T) {
	mapping := []model.MappingEntry{{NodeID: "V2", Channel: "joint:3", Scheme: model.SchemeBipolarSplit, PerStepMax: 0.01, Gain: 1}}
	out := Stream(nil, mapping)
	if len(out) != 0 {
		t.Fatalf("expected no commands for empty rows, got %d", len(out))
	}
}

func TestStreamEmptyMapping(t *testing.T) {
	rows := []model.SpikeRow{
		{T: 3, ID: "V1", Bits: []int{1, 0}},
		{T: 1, ID: "V2", Bits: []int{0, 1}},
		{T: 3, ID: "V2", Bits: []int{1, 1}},
	}
	out := Stream(rows, nil)
	if len(out) != 2 {
		t.Fatalf("expected one command per distinct t, got %d", len(out))
	}
	if out[0].T != 1 || out[1].T != 3 {
		t.Fatalf("commands not in ascending t order: %+v", out)
	}
	for _, cmd := range out {
		if cmd.Deltas == nil || len(cmd.Deltas) != 0 {
			t.Fatalf("expected empty non-nil deltas, got %+v", cmd.Deltas)
		}
	}
}

func TestStreamEndToEnd(t *testing.T) {
	rows := []model.SpikeRow{{T: 1, ID: "V2", Bits: []int{1, 1, 0, 0}}}
	mapping := []model.MappingEntry{{NodeID: "V2", Channel: "joint:3", Scheme: model.SchemeBipolarSplit, PerStepMax: 0.01, Gain: 1}}
	out := Stream(rows, mapping)
	if len(out) != 1 {
		t.Fatalf("expected 1 command, got %d", len(out))
	}
	if out[0].T != 1 {
		t.Fatalf("t = %d, want 1", out[0].T)
	}
	got := out[0].Deltas["joint:3"]
	if math.Abs(got-0.02) > 1e-12 {
		t.Fatalf("joint:3 delta = %v, want 0.02", got)
	}
}

func TestStreamAccumulatesSharedChannel(t *testing.T) {
	rows := []model.SpikeRow{
		{T: 5, ID: "A", Bits: []int{1, 0}},
		{T: 5, ID: "B", Bits: []int{1, 0}},
	}
	mapping := []model.MappingEntry{
		{NodeID: "A", Channel: "joint:0", Scheme: model.SchemeBipolarSplit, PerStepMax: 0.01, Gain: 1},
		{NodeID: "B", Channel: "joint:0", Scheme: model.SchemeBipolarSplit, PerStepMax: 0.02, Gain: 1},
	}
	out := Stream(rows, mapping)
	if len(out) != 1 {
		t.Fatalf("expected 1 command, got %d", len(out))
	}
	got := out[0].Deltas["joint:0"]
	if math.Abs(got-0.03) > 1e-12 {
		t.Fatalf("accumulated delta = %v, want 0.03", got)
	}
}

func TestStreamUnmappedPopulationInert(t *testing.T) {
	rows := []model.SpikeRow{
		{T: 1, ID: "unmapped", Bits: []int{1, 1, 1, 1}},
		{T: 1, ID: "V2", Bits: []int{1, 0}},
	}
	mapping := []model.MappingEntry{{NodeID: "V2", Channel: "joint:3", Scheme: model.SchemeBipolarSplit, PerStepMax: 0.01, Gain: 1}}
	out := Stream(rows, mapping)
	if len(out) != 1 || len(out[0].Deltas) != 1 {
		t.Fatalf("unexpected commands: %+v", out)
	}
}

func TestStreamOmitsZeroDeltas(t *testing.T) {
	// |delta| = 0.005 under deadzone 0.01, suppressed and absent.
	rows := []model.SpikeRow{{T: 1, ID: "V2", Bits: []int{1, 0}}}
	mapping := []model.MappingEntry{{NodeID: "V2", Channel: "joint:3", Scheme: model.SchemeBipolarSplit, PerStepMax: 0.005, Gain: 1, Deadzone: 0.01}}
	out := Stream(rows, mapping)
	if len(out) != 1 {
		t.Fatalf("expected 1 command, got %d", len(out))
	}
	if _, present := out[0].Deltas["joint:3"]; present {
		t.Fatalf("suppressed channel present in deltas: %+v", out[0].Deltas)
	}
}

func TestStreamIdempotent(t *testing.T) {
	rows := []model.SpikeRow{
		{T: 2, ID: "V2", Bits: []int{1, 1, 0, 0}},
		{T: 1, ID: "V1", Bits: []int{0, 0, 1, 1}},
	}
	mapping := []model.MappingEntry{
		{NodeID: "V1", Channel: "joint:0", Scheme: model.SchemeBipolarScalar, PerStepMax: 0.01, Gain: 1},
		{NodeID: "V2", Channel: "joint:1", Scheme: model.SchemeAddition, PerStepMax: 0.001, Gain: 2},
	}
	first := Stream(rows, mapping)
	second := Stream(rows, mapping)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("decode not idempotent:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestRowsFromPayload(t *testing.T) {
	rows := RowsFromPayload([]any{
		map[string]any{"t": float64(190), "id": "V2", "bits": []any{0, 1, 0}},
		map[string]any{"t": "191", "id": "V2", "bits": []any{true, false}},
		map[string]any{"t": "bogus", "id": "V2", "bits": []any{1}},
		map[string]any{"t": float64(1), "id": "V2", "bits": "not bits"},
		[]any{float64(5), "V1", []any{1, 0, 1}},
		[]any{"nope", "V1", []any{1}},
		[]any{float64(6), "V1"},
		42,
	})
	if len(rows) != 3 {
		t.Fatalf("expected 3 parsed rows, got %d: %+v", len(rows), rows)
	}
	if rows[0].T != 190 || !reflect.DeepEqual(rows[0].Bits, []int{0, 1, 0}) {
		t.Fatalf("object row parsed wrong: %+v", rows[0])
	}
	if rows[1].T != 191 || !reflect.DeepEqual(rows[1].Bits, []int{1, 0}) {
		t.Fatalf("bool bits coerced wrong: %+v", rows[1])
	}
	if rows[2].T != 5 || rows[2].ID != "V1" {
		t.Fatalf("tuple row parsed wrong: %+v", rows[2])
	}
}

func TestSplitDeltas(t *testing.T) {
	dq, dg := SplitDeltas(map[string]float64{
		"joint:0":  0.01,
		"joint:2":  -0.02,
		"joint:9":  1.0, // out of range, ignored
		"joint:xx": 1.0, // unparsable index, ignored
		"gripper":  0.1,
		"dg":       0.2,
		"wheel:l":  5.0, // foreign channel, ignored
	}, 3, "")
	want := []float64{0.01, 0, -0.02}
	if !reflect.DeepEqual(dq, want) {
		t.Fatalf("dq = %v, want %v", dq, want)
	}
	if math.Abs(dg-0.3) > 1e-12 {
		t.Fatalf("dg = %v, want 0.3", dg)
	}
}
