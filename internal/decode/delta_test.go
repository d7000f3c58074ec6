package decode

import (
	"testing"

	"brainlink/internal/model"
)

func TestToDelta(t *testing.T) {
	cases := []struct {
		name  string
		value float64
		entry model.MappingEntry
		want  float64
	}{
		{
			name:  "plain scale",
			value: 2,
			entry: model.MappingEntry{PerStepMax: 0.01, Gain: 1},
			want:  0.02,
		},
		{
			name:  "gain applied",
			value: 2,
			entry: model.MappingEntry{PerStepMax: 0.01, Gain: 0.5},
			want:  0.01,
		},
		{
			name:  "invert",
			value: 2,
			entry: model.MappingEntry{PerStepMax: 0.01, Gain: 1, Invert: true},
			want:  -0.02,
		},
		{
			name:  "deadzone suppresses fully",
			value: 0.5,
			entry: model.MappingEntry{PerStepMax: 0.01, Gain: 1, Deadzone: 0.01},
			want:  0,
		},
		{
			name:  "deadzone passes at boundary",
			value: 1,
			entry: model.MappingEntry{PerStepMax: 0.01, Gain: 1, Deadzone: 0.01},
			want:  0.01,
		},
		{
			name:  "min step floors positive",
			value: 0.5,
			entry: model.MappingEntry{PerStepMax: 0.01, Gain: 1, MinStep: 0.02},
			want:  0.02,
		},
		{
			name:  "min step floors negative",
			value: -0.5,
			entry: model.MappingEntry{PerStepMax: 0.01, Gain: 1, MinStep: 0.02},
			want:  -0.02,
		},
		{
			name:  "min step ignores zero",
			value: 0,
			entry: model.MappingEntry{PerStepMax: 0.01, Gain: 1, MinStep: 0.02},
			want:  0,
		},
		{
			name:  "deadzone beats min step",
			value: 0.5,
			entry: model.MappingEntry{PerStepMax: 0.01, Gain: 1, Deadzone: 0.01, MinStep: 0.02},
			want:  0,
		},
		{
			name:  "clamp overrides floor",
			value: 0.5,
			entry: model.MappingEntry{PerStepMax: 0.01, Gain: 1, MinStep: 0.02, Clamp: &model.Range{Lo: -0.015, Hi: 0.015}},
			want:  0.015,
		},
		{
			name:  "clamp lower bound",
			value: -10,
			entry: model.MappingEntry{PerStepMax: 0.01, Gain: 1, Clamp: &model.Range{Lo: -0.05, Hi: 0.05}},
			want:  -0.05,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ToDelta(tc.value, tc.entry)
			if got != tc.want {
				t.Fatalf("ToDelta(%v, %+v) = %v, want %v", tc.value, tc.entry, got, tc.want)
			}
		})
	}
}
