package recorder

import (
	"context"
	"testing"

	"brainlink/internal/model"
)

func TestMemoryStoreRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	run := NewRunRecord("run-1", "proj-1")
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("save run: %v", err)
	}

	output, ok, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted run")
	}
	if output.ProjectID != "proj-1" || output.SchemaVersion != CurrentSchemaVersion {
		t.Fatalf("unexpected run: %+v", output)
	}

	_, ok, err = store.GetRun(ctx, "missing")
	if err != nil {
		t.Fatalf("get missing run: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for unknown run")
	}
}

func TestNewRunRecordGeneratesID(t *testing.T) {
	a := NewRunRecord("", "proj")
	b := NewRunRecord("", "proj")
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected distinct generated ids, got %q and %q", a.ID, b.ID)
	}
}

func TestMemoryStoreListRunsOrdered(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	first := NewRunRecord("run-a", "proj")
	second := NewRunRecord("run-b", "proj")
	second.StartedAt = first.StartedAt.Add(1)
	if err := store.SaveRun(ctx, second); err != nil {
		t.Fatalf("save run: %v", err)
	}
	if err := store.SaveRun(ctx, first); err != nil {
		t.Fatalf("save run: %v", err)
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-a" || runs[1].ID != "run-b" {
		t.Fatalf("unexpected order: %+v", runs)
	}
}

func TestMemoryStoreCycleJournal(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	for i := 0; i < 3; i++ {
		record := CycleRecord{
			Cycle:   i,
			Outputs: []model.SpikeRow{{T: 0, ID: "motor", Bits: []int{1, 0}}},
		}
		if err := store.AppendCycle(ctx, "run-1", record); err != nil {
			t.Fatalf("append cycle %d: %v", i, err)
		}
	}

	cycles, ok, err := store.GetCycles(ctx, "run-1")
	if err != nil {
		t.Fatalf("get cycles: %v", err)
	}
	if !ok || len(cycles) != 3 {
		t.Fatalf("expected 3 cycles, got ok=%v len=%d", ok, len(cycles))
	}
	if cycles[2].Cycle != 2 || cycles[2].Outputs[0].ID != "motor" {
		t.Fatalf("unexpected cycle: %+v", cycles[2])
	}
}

func TestMemoryStoreCommandsAndRewards(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	record := CommandRecord{
		Cycle:    7,
		Commands: []model.Command{{T: 0, Deltas: map[string]float64{"joint:0": 0.01}}},
	}
	if err := store.AppendCommands(ctx, "run-1", record); err != nil {
		t.Fatalf("append commands: %v", err)
	}
	commands, ok, err := store.GetCommands(ctx, "run-1")
	if err != nil {
		t.Fatalf("get commands: %v", err)
	}
	if !ok || len(commands) != 1 || commands[0].Commands[0].Deltas["joint:0"] != 0.01 {
		t.Fatalf("unexpected commands: %+v", commands)
	}

	if err := store.AppendReward(ctx, "run-1", RewardRecord{Cycle: 7, Global: 0.8}); err != nil {
		t.Fatalf("append reward: %v", err)
	}
	rewards, ok, err := store.GetRewards(ctx, "run-1")
	if err != nil {
		t.Fatalf("get rewards: %v", err)
	}
	if !ok || len(rewards) != 1 || rewards[0].Global != 0.8 {
		t.Fatalf("unexpected rewards: %+v", rewards)
	}
}

func TestMemoryStoreBaselinesCopied(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := map[string][]float64{"fb": {0, 1, -1}}
	if err := store.SaveBaselines(ctx, "run-1", input); err != nil {
		t.Fatalf("save baselines: %v", err)
	}
	input["fb"][0] = 99

	baselines, ok, err := store.GetBaselines(ctx, "run-1")
	if err != nil {
		t.Fatalf("get baselines: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted baselines")
	}
	if baselines["fb"][0] != 0 {
		t.Fatalf("store aliased caller slice: %+v", baselines)
	}
}
