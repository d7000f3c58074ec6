package contract

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"brainlink/internal/model"
)

func sampleContract() model.Contract {
	return model.Contract{
		RunID: "run-123",
		Constants: model.Constants{
			Gamma:         64,
			OutputWindowN: 32,
			FeedbackN:     128,
			FeedbackT:     128,
		},
		IO: model.IOManifest{
			Inputs:  []model.IOPort{{ID: "cam_rgb", Kind: "Image"}},
			Outputs: []model.IOPort{{ID: "V2", Kind: "Spikes"}},
			Feedback: []model.IOPort{
				{ID: "fb_arm", N: 128, FromOutput: "V2", OutputKind: "Spikes"},
				{ID: "fb_base"},
			},
			STDP3: model.STDP3{Layers: []string{"L1", "L2"}},
		},
	}
}

func TestViewStripsRunFieldsAndAppliesDefaults(t *testing.T) {
	c := sampleContract()
	c.Constants = model.Constants{}
	v := NewView(c)
	if v.Constants.Gamma != 64 || v.Constants.OutputWindowN != 32 ||
		v.Constants.FeedbackN != 128 || v.Constants.FeedbackT != 128 {
		t.Fatalf("defaults not applied: %+v", v.Constants)
	}
}

func TestChecksumStableAcrossRunIDs(t *testing.T) {
	a := sampleContract()
	b := sampleContract()
	b.RunID = "run-456"
	sumA, err := NewView(a).Checksum()
	if err != nil {
		t.Fatalf("checksum a: %v", err)
	}
	sumB, err := NewView(b).Checksum()
	if err != nil {
		t.Fatalf("checksum b: %v", err)
	}
	if sumA != sumB {
		t.Fatalf("checksum depends on run id: %s vs %s", sumA, sumB)
	}

	b.IO.STDP3.Layers = append(b.IO.STDP3.Layers, "L3")
	sumC, err := NewView(b).Checksum()
	if err != nil {
		t.Fatalf("checksum c: %v", err)
	}
	if sumC == sumA {
		t.Fatalf("checksum ignored an IO change")
	}
}

func TestFeedbackInfosDefaultN(t *testing.T) {
	infos := NewView(sampleContract()).FeedbackInfos()
	if len(infos) != 2 {
		t.Fatalf("expected 2 feedback infos, got %d", len(infos))
	}
	if infos[0].N != 128 || infos[0].FromOutput != "V2" {
		t.Fatalf("explicit feedback info wrong: %+v", infos[0])
	}
	if infos[1].N != 128 {
		t.Fatalf("feedbackN default not applied: %+v", infos[1])
	}
}

func TestScaffoldWritesMachineOwnedAndCreatesPoliciesOnce(t *testing.T) {
	dir := t.TempDir()
	res, err := Scaffold(sampleContract(), dir)
	if err != nil {
		t.Fatalf("scaffold: %v", err)
	}
	if !res.CreatedRewardPolicy || !res.CreatedDeviationPolicy {
		t.Fatalf("policies not created on first sync: %+v", res)
	}
	for _, name := range []string{"_contract.json", "_contract.go", "_contract.sha256", "reward_policy.go", "deviation_policy.go"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}

	gen, err := os.ReadFile(filepath.Join(dir, "_contract.go"))
	if err != nil {
		t.Fatalf("read generated file: %v", err)
	}
	for _, want := range []string{"package policies", "Gamma         = 64", `"V2"`, `"fb_arm"`, res.Checksum} {
		if !strings.Contains(string(gen), want) {
			t.Fatalf("generated file missing %q", want)
		}
	}

	sha, err := os.ReadFile(filepath.Join(dir, "_contract.sha256"))
	if err != nil {
		t.Fatalf("read sha file: %v", err)
	}
	if strings.TrimSpace(string(sha)) != res.Checksum {
		t.Fatalf("sha file %q != checksum %q", sha, res.Checksum)
	}

	// User edits survive a re-sync; machine-owned files are rewritten.
	custom := []byte("package policies\n// customized\n")
	if err := os.WriteFile(filepath.Join(dir, "reward_policy.go"), custom, 0o644); err != nil {
		t.Fatalf("write custom policy: %v", err)
	}
	res2, err := Scaffold(sampleContract(), dir)
	if err != nil {
		t.Fatalf("second scaffold: %v", err)
	}
	if res2.CreatedRewardPolicy || res2.CreatedDeviationPolicy {
		t.Fatalf("second sync recreated user policies: %+v", res2)
	}
	after, err := os.ReadFile(filepath.Join(dir, "reward_policy.go"))
	if err != nil {
		t.Fatalf("re-read custom policy: %v", err)
	}
	if string(after) != string(custom) {
		t.Fatalf("user policy was overwritten")
	}
}

func TestScaffoldRequiresDir(t *testing.T) {
	if _, err := Scaffold(sampleContract(), ""); err == nil {
		t.Fatalf("expected error for empty dir")
	}
}
