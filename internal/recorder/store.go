// Package recorder persists what a run saw and did: cycle telemetry,
// decoded commands, rewards, and feedback baselines, keyed by run. It is
// the local source of truth for post-hoc inspection and export.
package recorder

import (
	"context"
	"time"

	"github.com/google/uuid"

	"brainlink/internal/model"
)

// VersionedRecord stamps persisted payloads so a future schema change can
// refuse records it no longer understands.
type VersionedRecord struct {
	SchemaVersion int `json:"schemaVersion"`
}

// RunRecord is the per-run header row.
type RunRecord struct {
	VersionedRecord
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Checksum  string    `json:"checksum,omitempty"`
	StartedAt time.Time `json:"startedAt"`
	StoppedAt time.Time `json:"stoppedAt,omitempty"`
	SizeBytes int64     `json:"sizeBytes,omitempty"`
}

// NewRunRecord stamps a header for a fresh run. An empty run id gets a
// generated one so locally-driven dry runs can still be recorded.
func NewRunRecord(runID, projectID string) RunRecord {
	if runID == "" {
		runID = uuid.NewString()
	}
	return RunRecord{
		VersionedRecord: VersionedRecord{SchemaVersion: CurrentSchemaVersion},
		ID:              runID,
		ProjectID:       projectID,
		StartedAt:       time.Now().UTC(),
	}
}

// CycleRecord is one cycle's telemetry snapshot.
type CycleRecord struct {
	Cycle   int              `json:"cycle"`
	At      time.Time        `json:"at"`
	Outputs []model.SpikeRow `json:"outputs,omitempty"`
}

// CommandRecord ties decoded commands to the cycle that produced them.
type CommandRecord struct {
	Cycle    int             `json:"cycle"`
	Commands []model.Command `json:"commands"`
}

// RewardRecord is one emitted reward.
type RewardRecord struct {
	Cycle   int                `json:"cycle"`
	Global  float64            `json:"global"`
	ByLayer map[string]float64 `json:"byLayer,omitempty"`
}

// Store defines the persistence operations of the run recorder. Append
// operations keep insertion order; Get operations report ok=false for an
// unknown run rather than an error.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run RunRecord) error
	GetRun(ctx context.Context, runID string) (RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]RunRecord, error)
	AppendCycle(ctx context.Context, runID string, cycle CycleRecord) error
	GetCycles(ctx context.Context, runID string) ([]CycleRecord, bool, error)
	AppendCommands(ctx context.Context, runID string, record CommandRecord) error
	GetCommands(ctx context.Context, runID string) ([]CommandRecord, bool, error)
	AppendReward(ctx context.Context, runID string, reward RewardRecord) error
	GetRewards(ctx context.Context, runID string) ([]RewardRecord, bool, error)
	SaveBaselines(ctx context.Context, runID string, baselines map[string][]float64) error
	GetBaselines(ctx context.Context, runID string) (map[string][]float64, bool, error)
}
