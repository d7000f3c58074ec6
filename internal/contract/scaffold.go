package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"brainlink/internal/model"
)

const (
	machineOwnedJSON = "_contract.json"
	machineOwnedGo   = "_contract.go"
	machineOwnedSHA  = "_contract.sha256"

	userRewardPolicy    = "reward_policy.go"
	userDeviationPolicy = "deviation_policy.go"
)

// Result reports what a scaffold pass wrote. Machine-owned files are always
// rewritten; user-owned policy files are only created when absent.
type Result struct {
	Dir                    string
	Checksum               string
	CreatedRewardPolicy    bool
	CreatedDeviationPolicy bool
}

// Scaffold materializes the policy workspace for a contract under dir.
// _contract.json, _contract.go and _contract.sha256 are machine-owned and
// overwritten on every sync; reward_policy.go and deviation_policy.go are
// user-owned stubs created once and never touched again.
func Scaffold(c model.Contract, dir string) (Result, error) {
	if dir == "" {
		return Result{}, errors.New("scaffold dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, err
	}

	view := NewView(c)
	sum, err := view.Checksum()
	if err != nil {
		return Result{}, err
	}

	pretty, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return Result{}, err
	}
	if err := os.WriteFile(filepath.Join(dir, machineOwnedJSON), append(pretty, '\n'), 0o644); err != nil {
		return Result{}, err
	}
	if err := os.WriteFile(filepath.Join(dir, machineOwnedGo), []byte(renderContractGo(view, sum)), 0o644); err != nil {
		return Result{}, err
	}
	if err := os.WriteFile(filepath.Join(dir, machineOwnedSHA), []byte(sum+"\n"), 0o644); err != nil {
		return Result{}, err
	}

	res := Result{Dir: dir, Checksum: sum}
	res.CreatedRewardPolicy, err = writeOnce(filepath.Join(dir, userRewardPolicy), rewardPolicyStub)
	if err != nil {
		return Result{}, err
	}
	res.CreatedDeviationPolicy, err = writeOnce(filepath.Join(dir, userDeviationPolicy), deviationPolicyStub)
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func writeOnce(path, content string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	return true, os.WriteFile(path, []byte(content), 0o644)
}

func renderContractGo(v View, checksum string) string {
	var b strings.Builder
	b.WriteString("// Code generated by brainlinkctl sync. DO NOT EDIT.\n")
	b.WriteString("//\n")
	b.WriteString("// Machine-owned: rewritten on every contract sync. If this file changed,\n")
	b.WriteString("// the graph or IO manifest changed; diff _contract.json to see how.\n\n")
	b.WriteString("package policies\n\n")
	fmt.Fprintf(&b, "const ContractSHA256 = %q\n\n", checksum)
	b.WriteString("const (\n")
	fmt.Fprintf(&b, "\tGamma         = %d\n", v.Constants.Gamma)
	fmt.Fprintf(&b, "\tOutputWindowN = %d\n", v.Constants.OutputWindowN)
	fmt.Fprintf(&b, "\tFeedbackN     = %d\n", v.Constants.FeedbackN)
	fmt.Fprintf(&b, "\tFeedbackT     = %d\n", v.Constants.FeedbackT)
	b.WriteString(")\n\n")
	fmt.Fprintf(&b, "var InputIDs = %s\n\n", renderStringSlice(portIDs(v.IO.Inputs)))
	fmt.Fprintf(&b, "var OutputIDs = %s\n\n", renderStringSlice(portIDs(v.IO.Outputs)))
	fmt.Fprintf(&b, "var FeedbackIDs = %s\n\n", renderStringSlice(portIDs(v.IO.Feedback)))
	fmt.Fprintf(&b, "var STDP3Layers = %s\n\n", renderStringSlice(v.IO.STDP3.Layers))

	b.WriteString("type FeedbackInfo struct {\n")
	b.WriteString("\tID         string\n")
	b.WriteString("\tN          int\n")
	b.WriteString("\tFromOutput string\n")
	b.WriteString("\tOutputKind string\n")
	b.WriteString("}\n\n")
	b.WriteString("var FeedbackInfos = []FeedbackInfo{\n")
	for _, fb := range v.FeedbackInfos() {
		fmt.Fprintf(&b, "\t{ID: %q, N: %d, FromOutput: %q, OutputKind: %q},\n", fb.ID, fb.N, fb.FromOutput, fb.OutputKind)
	}
	b.WriteString("}\n")
	return b.String()
}

func renderStringSlice(items []string) string {
	if len(items) == 0 {
		return "[]string{}"
	}
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = strconv.Quote(s)
	}
	return "[]string{" + strings.Join(quoted, ", ") + "}"
}

const rewardPolicyStub = `// User-owned policy file: created once by brainlinkctl sync, never
// overwritten. Shape the reward however your task demands; keep it
// deterministic unless you explicitly want exploration here.

package policies

// CycleSummary carries whatever your controller can report about a cycle.
// Replace the fields to match your task.
type CycleSummary struct {
	StartDist float64
	EndDist   float64
	Success   bool
}

// ComputeReward returns a global reward in [0,1] and a per-layer map keyed
// by the STDP3 layer ids in STDP3Layers.
func ComputeReward(summary *CycleSummary) (float64, map[string]float64) {
	r := 0.5
	if summary != nil {
		switch {
		case summary.Success:
			r = 1.0
		case summary.EndDist < summary.StartDist:
			r = 0.6
		default:
			r = 0.4
		}
	}
	byLayer := make(map[string]float64, len(STDP3Layers))
	for _, layer := range STDP3Layers {
		byLayer[layer] = r
	}
	return r, byLayer
}
`

const deviationPolicyStub = `// User-owned policy file: created once by brainlinkctl sync, never
// overwritten. For each feedback input id produce a deviation signal of
// length T with values in [-1,1]; the SDK turns it into a feedback raster.

package policies

// DeviationContext carries whatever per-cycle measurements your deviation
// needs: distances by timestep, joint errors, and so on.
type DeviationContext struct {
	DistByT map[int]float64
}

// ComputeDeviation returns dev[t] of length T for one feedback input. The
// default is all zeros (no correction); customize per feedbackID if
// different channels mean different things.
func ComputeDeviation(feedbackID string, T int, ctx *DeviationContext) []float64 {
	_ = feedbackID
	_ = ctx
	return make([]float64, T)
}
`
