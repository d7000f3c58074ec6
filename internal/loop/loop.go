// Package loop runs the robot side of a session: a periodic state
// transmitter plus a cycle-update pipeline that decodes spikes into
// actuator commands and answers with feedback and reward.
package loop

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"brainlink/internal/decode"
	"brainlink/internal/feedback"
	"brainlink/internal/model"
	"brainlink/internal/session"
)

// Decoder turns one cycle's spike rows into actuator commands.
type Decoder interface {
	Decode(telemetry model.Telemetry) ([]model.Command, error)
}

// Deviation computes per-feedback-input deviation signals in [-1,1],
// one slice per feedback id, indexed by timestep within the cycle.
type Deviation interface {
	Compute(telemetry model.Telemetry) map[string][]float64
}

// Reward scores one cycle: a global value plus optional per-layer values,
// all on [0,1].
type Reward interface {
	Compute(telemetry model.Telemetry) (float64, map[string]float64)
}

// MappingDecoder is the stock Decoder: the stream decoder applied under a
// fixed mapping table.
type MappingDecoder struct {
	Mapping []model.MappingEntry
}

func (d MappingDecoder) Decode(telemetry model.Telemetry) ([]model.Command, error) {
	return decode.Stream(telemetry.Outputs, d.Mapping), nil
}

// ZeroDeviation reports no deviation for every feedback input, which makes
// the feedback raster a pass-through of its baseline.
type ZeroDeviation struct {
	FeedbackIDs []string
	T           int
}

func (d ZeroDeviation) Compute(model.Telemetry) map[string][]float64 {
	out := make(map[string][]float64, len(d.FeedbackIDs))
	for _, id := range d.FeedbackIDs {
		out[id] = make([]float64, d.T)
	}
	return out
}

// NeutralReward scores every cycle 0.5 with no layer overrides.
type NeutralReward struct{}

func (NeutralReward) Compute(model.Telemetry) (float64, map[string]float64) {
	return 0.5, nil
}

// Config assembles a Loop. Executor receives each decoded command in
// timestep order and is the only required field besides Run; nil plugin
// slots fall back to the stock implementations.
type Config struct {
	Run      *session.Run
	Executor func(cmd model.Command) error

	Decoder   Decoder
	Deviation Deviation
	Reward    Reward

	// State samples the robot's pose for the periodic robot:state
	// transmit. Nil disables the transmitter regardless of rate.
	State func() map[string]any

	// StateInterval is the robot:state period. Zero means the 20Hz
	// default; negative disables.
	StateInterval time.Duration

	// FeedbackDeadZone and Rand parameterize raster generation.
	FeedbackDeadZone float64
	Rand             *rand.Rand

	Hooks session.Hooks
}

const defaultStateInterval = 50 * time.Millisecond

// Loop owns one run's control cycle.
type Loop struct {
	cfg Config
}

// New validates the config, fills plugin defaults, and attaches the
// cycle-update handler. The periodic state transmitter does not start
// until Run is called.
func New(cfg Config) (*Loop, error) {
	if cfg.Run == nil {
		return nil, fmt.Errorf("loop: run is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("loop: command executor is required")
	}
	if cfg.Decoder == nil {
		cfg.Decoder = MappingDecoder{}
	}
	if cfg.Deviation == nil {
		ids := make([]string, 0, len(cfg.Run.Contract.IO.Feedback))
		for _, p := range cfg.Run.Contract.IO.Feedback {
			ids = append(ids, p.ID)
		}
		cfg.Deviation = ZeroDeviation{FeedbackIDs: ids, T: cfg.Run.Gamma()}
	}
	if cfg.Reward == nil {
		cfg.Reward = NeutralReward{}
	}
	if cfg.StateInterval == 0 {
		cfg.StateInterval = defaultStateInterval
	}
	l := &Loop{cfg: cfg}
	cfg.Run.OnCycleUpdate(l.handleCycle)
	return l, nil
}

// Run drives the periodic robot:state transmitter until ctx is canceled.
// With the transmitter disabled it just blocks on ctx; cycle handling
// rides on the event channel either way.
func (l *Loop) Run(ctx context.Context) error {
	if l.cfg.State == nil || l.cfg.StateInterval < 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(l.cfg.StateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := l.cfg.Run.SendState(l.cfg.State()); err != nil {
				l.fault(session.EventRobotState, err)
			}
		}
	}
}

// handleCycle is the per-cycle pipeline: decode, execute, feed back,
// reward. Any stage error is reported and the rest still runs.
func (l *Loop) handleCycle(telemetry model.Telemetry) {
	commands, err := l.cfg.Decoder.Decode(telemetry)
	if err != nil {
		l.fault(session.EventCycleUpdate, fmt.Errorf("decode cycle %d: %w", telemetry.Cycle, err))
	}
	for _, cmd := range commands {
		if err := l.cfg.Executor(cmd); err != nil {
			l.fault(session.EventCycleUpdate, fmt.Errorf("execute command t=%d: %w", cmd.T, err))
		}
	}

	for id, deviations := range l.cfg.Deviation.Compute(telemetry) {
		n := l.cfg.Run.FeedbackN()
		if port, ok := l.cfg.Run.FeedbackPort(id); ok && port.N > 0 {
			n = port.N
		}
		raster, err := feedback.Build(deviations, feedback.Config{
			N:        n,
			DeadZone: l.cfg.FeedbackDeadZone,
			Rand:     l.cfg.Rand,
		})
		if err != nil {
			l.fault(session.EventIOChunk, fmt.Errorf("build raster for %s: %w", id, err))
			continue
		}
		if err := l.cfg.Run.SendFeedbackRaster(id, raster, telemetry.Cycle); err != nil {
			l.fault(session.EventIOChunk, fmt.Errorf("send raster for %s: %w", id, err))
		}
	}

	global, byLayer := l.cfg.Reward.Compute(telemetry)
	if err := l.cfg.Run.SendReward(global, byLayer, telemetry.Cycle); err != nil {
		l.fault(session.EventLearnReward, err)
	}
}

func (l *Loop) fault(event string, err error) {
	if l.cfg.Hooks.OnHandlerError != nil {
		l.cfg.Hooks.OnHandlerError(event, err)
	}
}
