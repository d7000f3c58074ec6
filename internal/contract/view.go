// Package contract derives the stable policy-facing view of a run contract
// and scaffolds the local policy workspace from it.
package contract

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"brainlink/internal/model"
)

// FeedbackInfo is the per-feedback metadata policy authors need: the input
// id, its population size and the output it corrects, if any.
type FeedbackInfo struct {
	ID         string `json:"id"`
	N          int    `json:"n"`
	FromOutput string `json:"fromOutput,omitempty"`
	OutputKind string `json:"outputKind,omitempty"`
}

// View is the run-independent slice of a contract: everything a reward or
// deviation policy depends on, and nothing else. Equal views hash equal.
type View struct {
	Constants model.Constants `json:"constants"`
	IO        ViewIO          `json:"io"`
}

type ViewIO struct {
	Inputs   []model.IOPort `json:"inputs"`
	Outputs  []model.IOPort `json:"outputs"`
	Feedback []model.IOPort `json:"feedback"`
	STDP3    model.STDP3    `json:"stdp3"`
}

// NewView strips run-specific fields from a contract and fills defaulted
// constants, producing the view that is hashed and persisted.
func NewView(c model.Contract) View {
	consts := c.Constants
	consts.ApplyDefaults()
	return View{
		Constants: consts,
		IO: ViewIO{
			Inputs:   clonePorts(c.IO.Inputs),
			Outputs:  clonePorts(c.IO.Outputs),
			Feedback: clonePorts(c.IO.Feedback),
			STDP3:    model.STDP3{Layers: append([]string{}, c.IO.STDP3.Layers...)},
		},
	}
}

// Checksum returns the sha256 hex digest of the view's canonical JSON
// encoding. The encoding is deterministic (fixed field order, compact), so
// the digest changes exactly when the policy contract changes.
func (v View) Checksum() (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// FeedbackInfos extracts the feedback metadata, defaulting each population
// size to the contract feedbackN constant.
func (v View) FeedbackInfos() []FeedbackInfo {
	out := make([]FeedbackInfo, 0, len(v.IO.Feedback))
	for _, fb := range v.IO.Feedback {
		n := fb.N
		if n <= 0 {
			n = v.Constants.FeedbackN
		}
		out = append(out, FeedbackInfo{ID: fb.ID, N: n, FromOutput: fb.FromOutput, OutputKind: fb.OutputKind})
	}
	return out
}

func portIDs(ports []model.IOPort) []string {
	ids := make([]string, 0, len(ports))
	for _, p := range ports {
		if p.ID != "" {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

func clonePorts(ports []model.IOPort) []model.IOPort {
	out := make([]model.IOPort, len(ports))
	copy(out, ports)
	return out
}
