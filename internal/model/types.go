package model

// SpikeRow is one output population's bit vector at one timestep, as
// streamed by the backend.
type SpikeRow struct {
	T    int    `json:"t"`
	ID   string `json:"id"`
	Bits []int  `json:"bits"`
}

// Command holds the accumulated actuator deltas for one timestep. Channels
// whose delta is exactly zero are absent from Deltas.
type Command struct {
	T      int                `json:"t"`
	Deltas map[string]float64 `json:"deltas"`
}

const (
	SchemeBipolarSplit     = "bipolarSplit"
	SchemeAddition         = "addition"
	SchemeBooleanThreshold = "booleanThreshold"
	SchemeBipolarScalar    = "bipolarScalar"
)

// Range is an inclusive [Lo, Hi] clamp interval.
type Range struct {
	Lo float64 `json:"lo"`
	Hi float64 `json:"hi"`
}

// MappingEntry binds one output population to one actuator channel.
// Threshold <= 0 means unset (booleanThreshold derives it from the bit
// count). A nil Clamp disables the post-scale clamp.
type MappingEntry struct {
	NodeID     string  `json:"node_id"`
	Channel    string  `json:"channel"`
	Scheme     string  `json:"scheme"`
	PerStepMax float64 `json:"per_step_max"`
	Gain       float64 `json:"gain"`
	Deadzone   float64 `json:"deadzone"`
	MinStep    float64 `json:"min_step"`
	Invert     bool    `json:"invert"`
	Threshold  int     `json:"threshold,omitempty"`
	Clamp      *Range  `json:"clamp,omitempty"`
}

// WeightLayer carries one named layer of synaptic weights. The same shape
// is used for eligibility traces.
type WeightLayer struct {
	LayerName string    `json:"layerName"`
	Data      []float64 `json:"data"`
}

// AstroConfig is optional per-layer neuromodulation configuration. Nil
// fields mean "not configured".
type AstroConfig struct {
	DopamineGain *float64 `json:"dopamineGain,omitempty"`
	Baseline     *float64 `json:"baseline,omitempty"`
}

type Constants struct {
	Gamma         int `json:"gamma"`
	OutputWindowN int `json:"outputWindowN"`
	FeedbackN     int `json:"feedbackN"`
	FeedbackT     int `json:"feedbackT"`
}

// IOPort describes one entry of the contract IO manifest. N and the source
// output linkage are only populated for feedback ports.
type IOPort struct {
	ID         string `json:"id"`
	Kind       string `json:"kind,omitempty"`
	N          int    `json:"n,omitempty"`
	FromOutput string `json:"fromOutput,omitempty"`
	OutputKind string `json:"outputKind,omitempty"`
}

type STDP3 struct {
	Layers []string `json:"layers"`
}

type IOManifest struct {
	Inputs   []IOPort `json:"inputs"`
	Outputs  []IOPort `json:"outputs"`
	Feedback []IOPort `json:"feedback"`
	STDP3    STDP3    `json:"stdp3"`
}

type Realtime struct {
	URL       string `json:"url,omitempty"`
	Namespace string `json:"namespace,omitempty"`
}

// Contract is the run contract returned by the backend when a run starts.
type Contract struct {
	RunID     string     `json:"runId,omitempty"`
	Constants Constants  `json:"constants"`
	IO        IOManifest `json:"io"`
	Realtime  Realtime   `json:"realtime,omitempty"`
}

// Telemetry is the payload of one cycle update. Outputs is the parsed spike
// stream; Raw preserves the full payload for custom policies.
type Telemetry struct {
	Cycle   int
	Outputs []SpikeRow
	Raw     map[string]any
}

// Need is one requested input in an io:need event.
type Need struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

type IONeed struct {
	RunID      string `json:"runId"`
	Cycle      int    `json:"cycle"`
	Needs      []Need `json:"needs"`
	DeadlineMs int    `json:"deadlineMs,omitempty"`
}

const (
	DefaultGamma         = 64
	DefaultOutputWindowN = 32
	DefaultFeedbackN     = 128
	DefaultFeedbackT     = 128
)

// ApplyDefaults fills unset contract constants with the server defaults.
func (c *Constants) ApplyDefaults() {
	if c.Gamma <= 0 {
		c.Gamma = DefaultGamma
	}
	if c.OutputWindowN <= 0 {
		c.OutputWindowN = DefaultOutputWindowN
	}
	if c.FeedbackN <= 0 {
		c.FeedbackN = DefaultFeedbackN
	}
	if c.FeedbackT <= 0 {
		c.FeedbackT = DefaultFeedbackT
	}
}
