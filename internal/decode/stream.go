package decode

import (
	"sort"
	"strconv"
	"strings"

	"brainlink/internal/model"
)

// Stream converts streamed spike rows into per-timestep actuator commands.
// Rows may arrive in any order and are grouped by timestep; one Command is
// emitted per distinct t, ascending. Populations with no mapping entry are
// inert. Zero deltas are omitted, so an all-quiet timestep yields an empty
// (non-nil) Deltas map. Pure function of its arguments.
func Stream(rows []model.SpikeRow, mapping []model.MappingEntry) []model.Command {
	byID := make(map[string][]model.MappingEntry, len(mapping))
	for _, e := range mapping {
		byID[e.NodeID] = append(byID[e.NodeID], e)
	}

	byT := make(map[int][]model.SpikeRow)
	for _, r := range rows {
		byT[r.T] = append(byT[r.T], r)
	}
	ts := make([]int, 0, len(byT))
	for t := range byT {
		ts = append(ts, t)
	}
	sort.Ints(ts)

	out := make([]model.Command, 0, len(ts))
	for _, t := range ts {
		deltas := make(map[string]float64)
		for _, r := range byT[t] {
			if r.ID == "" {
				continue
			}
			entries := byID[r.ID]
			if len(entries) == 0 {
				continue
			}
			bits := canonicalBits(r.Bits)
			for _, entry := range entries {
				value := ComputeValue(bits, entry.Scheme, entry.Threshold)
				delta := ToDelta(value, entry)
				if delta == 0 {
					continue
				}
				deltas[entry.Channel] += delta
			}
		}
		out = append(out, model.Command{T: t, Deltas: deltas})
	}
	return out
}

// DecodeLoose normalizes a loose mapping and decodes loose rows in one
// step, mirroring how mapping and telemetry typically arrive together off
// the wire.
func DecodeLoose(rows []any, mapping []any) []model.Command {
	return Stream(RowsFromPayload(rows), NormalizeMapping(mapping))
}

func canonicalBits(bits []int) []int {
	out := make([]int, len(bits))
	for i, b := range bits {
		if b != 0 {
			out[i] = 1
		}
	}
	return out
}

// RowsFromPayload parses loosely-typed telemetry rows. Each element may be
// an object {t,id,bits} or a 3-element [t,id,bits] tuple; rows with an
// unparsable t or a non-sequence bits field are dropped. Streaming
// telemetry is lossy by nature and one bad row must not abort a cycle.
func RowsFromPayload(rows []any) []model.SpikeRow {
	out := make([]model.SpikeRow, 0, len(rows))
	for _, raw := range rows {
		switch r := raw.(type) {
		case map[string]any:
			t, ok := asInt(r["t"])
			if !ok {
				continue
			}
			id, _ := asString(r["id"])
			bits := asBits(r["bits"])
			if bits == nil {
				continue
			}
			out = append(out, model.SpikeRow{T: t, ID: id, Bits: bits})
		case []any:
			if len(r) != 3 {
				continue
			}
			t, ok := asInt(r[0])
			if !ok {
				continue
			}
			id, _ := asString(r[1])
			bits := asBits(r[2])
			if bits == nil {
				continue
			}
			out = append(out, model.SpikeRow{T: t, ID: id, Bits: bits})
		}
	}
	return out
}

// SplitDeltas projects channel deltas onto the common dq/dg convention:
// channels named <jointPrefix><index> accumulate into dq, "dg" and
// "gripper" accumulate into dg, everything else is ignored.
func SplitDeltas(deltas map[string]float64, dof int, jointPrefix string) ([]float64, float64) {
	if jointPrefix == "" {
		jointPrefix = "joint:"
	}
	dq := make([]float64, dof)
	var dg float64
	for channel, v := range deltas {
		switch {
		case strings.HasPrefix(channel, jointPrefix):
			idx, err := strconv.Atoi(channel[len(jointPrefix):])
			if err != nil || idx < 0 || idx >= len(dq) {
				continue
			}
			dq[idx] += v
		case channel == "dg" || channel == "gripper":
			dg += v
		}
	}
	return dq, dg
}
