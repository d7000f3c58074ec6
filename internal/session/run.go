package session

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"brainlink/internal/decode"
	"brainlink/internal/model"
)

// Run is the per-run state container and event router. Inbound events are
// dispatched sequentially from the channel's reader goroutine to the
// registered handlers, in registration order; a panicking handler is
// recovered and reported through the hooks so the remaining handlers still
// run. Registration is safe from any goroutine.
type Run struct {
	ProjectID string
	RunID     string
	Contract  model.Contract
	Namespace string

	conn  Conn
	hooks Hooks

	mu            sync.RWMutex
	cycleHandlers []func(model.Telemetry)
	needHandlers  []func(model.IONeed)
	cmdHandlers   []func(map[string]any)

	ioInputs   map[string]model.IOPort
	ioFeedback map[string]model.IOPort
	stdpLayers []string
}

// NewRun wires a run around an established event connection. The contract
// constants are defaulted in place.
func NewRun(conn Conn, projectID string, contract model.Contract, namespace string, hooks Hooks) *Run {
	contract.Constants.ApplyDefaults()
	if namespace == "" {
		namespace = DefaultNamespace
	}
	r := &Run{
		ProjectID:  projectID,
		RunID:      contract.RunID,
		Contract:   contract,
		Namespace:  namespace,
		conn:       conn,
		hooks:      hooks,
		ioInputs:   make(map[string]model.IOPort, len(contract.IO.Inputs)),
		ioFeedback: make(map[string]model.IOPort, len(contract.IO.Feedback)),
		stdpLayers: append([]string(nil), contract.IO.STDP3.Layers...),
	}
	for _, p := range contract.IO.Inputs {
		r.ioInputs[p.ID] = p
	}
	for _, p := range contract.IO.Feedback {
		r.ioFeedback[p.ID] = p
	}
	return r
}

func (r *Run) Gamma() int     { return r.Contract.Constants.Gamma }
func (r *Run) OutputN() int   { return r.Contract.Constants.OutputWindowN }
func (r *Run) FeedbackN() int { return r.Contract.Constants.FeedbackN }

// FeedbackPort reports the manifest entry of a feedback input, if any.
func (r *Run) FeedbackPort(id string) (model.IOPort, bool) {
	p, ok := r.ioFeedback[id]
	return p, ok
}

func (r *Run) STDPLayers() []string {
	return append([]string(nil), r.stdpLayers...)
}

// OnCycleUpdate registers a handler for per-cycle telemetry.
func (r *Run) OnCycleUpdate(handler func(model.Telemetry)) {
	r.mu.Lock()
	r.cycleHandlers = append(r.cycleHandlers, handler)
	r.mu.Unlock()
}

// OnIONeed registers a handler for input requests. The input streamer
// registers one of these; most callers never do directly.
func (r *Run) OnIONeed(handler func(model.IONeed)) {
	r.mu.Lock()
	r.needHandlers = append(r.needHandlers, handler)
	r.mu.Unlock()
}

// OnRobotCmd registers a handler for legacy server-side command events.
// Newer backends stop sending these once decoding moves into the SDK.
func (r *Run) OnRobotCmd(handler func(map[string]any)) {
	r.mu.Lock()
	r.cmdHandlers = append(r.cmdHandlers, handler)
	r.mu.Unlock()
}

// Dispatch routes one inbound envelope. Exposed for the client's channel
// wiring and for tests; not intended for application code.
func (r *Run) Dispatch(event string, payload json.RawMessage) {
	switch event {
	case EventCycleUpdate:
		telemetry := parseTelemetry(payload)
		r.mu.RLock()
		handlers := append(([]func(model.Telemetry))(nil), r.cycleHandlers...)
		r.mu.RUnlock()
		for _, h := range handlers {
			r.safeCall(event, func() { h(telemetry) })
		}
	case EventIONeed:
		var need model.IONeed
		if err := json.Unmarshal(payload, &need); err != nil {
			r.handlerError(event, fmt.Errorf("decode io:need payload: %w", err))
			return
		}
		r.mu.RLock()
		handlers := append(([]func(model.IONeed))(nil), r.needHandlers...)
		r.mu.RUnlock()
		for _, h := range handlers {
			r.safeCall(event, func() { h(need) })
		}
	case EventRobotCmd:
		var cmd map[string]any
		if err := json.Unmarshal(payload, &cmd); err != nil {
			r.handlerError(event, fmt.Errorf("decode robot:cmd payload: %w", err))
			return
		}
		r.mu.RLock()
		handlers := append(([]func(map[string]any))(nil), r.cmdHandlers...)
		r.mu.RUnlock()
		for _, h := range handlers {
			r.safeCall(event, func() { h(cmd) })
		}
	}
}

func parseTelemetry(payload json.RawMessage) model.Telemetry {
	var raw map[string]any
	_ = json.Unmarshal(payload, &raw)
	telemetry := model.Telemetry{Raw: raw}
	if cycle, ok := raw["cycle"].(float64); ok {
		telemetry.Cycle = int(cycle)
	}
	if outputs, ok := raw["outputs"].([]any); ok {
		telemetry.Outputs = decode.RowsFromPayload(outputs)
	}
	return telemetry
}

func (r *Run) safeCall(event string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.handlerError(event, fmt.Errorf("handler panic: %v", rec))
		}
	}()
	fn()
}

func (r *Run) handlerError(event string, err error) {
	if r.hooks.OnHandlerError != nil {
		r.hooks.OnHandlerError(event, err)
	}
}

// SendInputChunk emits one raw input chunk. Data rides as base64 inside
// the JSON envelope.
func (r *Run) SendInputChunk(inputID, kind string, seq int64, t float64, format string, meta map[string]any, data []byte) error {
	if inputID == "" {
		return fmt.Errorf("input id is required")
	}
	return r.conn.Emit(EventIOChunk, map[string]any{
		"runId":   r.RunID,
		"inputId": inputID,
		"kind":    kind,
		"seq":     seq,
		"t":       t,
		"format":  format,
		"meta":    meta,
		"data":    base64.StdEncoding.EncodeToString(data),
	})
}

// SendFeedbackRaster transmits a flat T*N raster for one feedback input,
// packed as little-endian float32 with meta {T, N, cycle}.
func (r *Run) SendFeedbackRaster(inputID string, raster []float64, cycle int) error {
	if inputID == "" {
		return fmt.Errorf("feedback input id is required")
	}
	n := r.FeedbackN()
	if port, ok := r.ioFeedback[inputID]; ok && port.N > 0 {
		n = port.N
	}
	t := r.Gamma()
	if n > 0 && len(raster)%n == 0 && len(raster)/n != t && len(raster) > 0 {
		t = len(raster) / n
	}
	meta := map[string]any{"T": t, "N": n, "cycle": cycle}
	return r.SendInputChunk(inputID, "Feedback", int64(cycle),
		float64(time.Now().UnixNano())/1e9, "raster_f32", meta, PackFloat32(raster))
}

// SendReward emits the global and per-layer reward. Only layers named by
// the contract's stdp3 manifest are included; layers absent from byLayer
// fall back to the global value. Everything is clamped to [0,1].
func (r *Run) SendReward(global float64, byLayer map[string]float64, cycle int) error {
	payloadLayers := make(map[string]float64, len(r.stdpLayers))
	for _, layer := range r.stdpLayers {
		val, ok := byLayer[layer]
		if !ok {
			val = global
		}
		payloadLayers[layer] = clamp01(val)
	}
	return r.conn.Emit(EventLearnReward, map[string]any{
		"runId":        r.RunID,
		"cycle":        cycle,
		"globalReward": clamp01(global),
		"byLayer":      payloadLayers,
	})
}

// SendState emits the robot's current observed state.
func (r *Run) SendState(state map[string]any) error {
	return r.conn.Emit(EventRobotState, map[string]any{
		"runId": r.RunID,
		"state": state,
	})
}

func (r *Run) Close() error {
	return r.conn.Close()
}

// PackFloat32 serializes values as little-endian float32, the raster wire
// format.
func PackFloat32(values []float64) []byte {
	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(float32(v)))
	}
	return out
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
