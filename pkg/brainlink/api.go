// Package brainlink is the public SDK surface: one import that covers the
// run lifecycle, the event channel, stream decoding, feedback rasters,
// neuromodulation, and the local run recorder.
package brainlink

import (
	"context"
	"math/rand"
	"time"

	"brainlink/internal/astro"
	"brainlink/internal/contract"
	"brainlink/internal/decode"
	"brainlink/internal/feedback"
	"brainlink/internal/loop"
	"brainlink/internal/model"
	"brainlink/internal/recorder"
	"brainlink/internal/session"
	"brainlink/internal/stream"
)

const defaultDBPath = "brainlink.db"

// Re-exported core types so callers rarely reach into internal packages.
type (
	SpikeRow     = model.SpikeRow
	Command      = model.Command
	MappingEntry = model.MappingEntry
	WeightLayer  = model.WeightLayer
	AstroConfig  = model.AstroConfig
	Contract     = model.Contract
	Telemetry    = model.Telemetry
	IONeed       = model.IONeed
	Need         = model.Need

	Run           = session.Run
	Hooks         = session.Hooks
	Streamer      = stream.Streamer
	Chunk         = stream.Chunk
	Loop          = loop.Loop
	LoopConfig    = loop.Config
	AstroParams   = astro.Params
	RasterConfig  = feedback.Config
	RunRecord     = recorder.RunRecord
	ScaffoldValue = contract.Result
)

// Options configures a Client. Zero values select the defaults: the
// recorder picks its build's default backend, the namespace falls back to
// the gateway default, and Timeout falls back to the HTTP client default.
type Options struct {
	BaseURL   string
	APIKey    string
	Namespace string
	Timeout   time.Duration
	StoreKind string
	DBPath    string
	Policy    session.ReconnectPolicy
	Hooks     session.Hooks
}

// Client bundles the lifecycle client with a local run recorder.
type Client struct {
	api   *session.Client
	store recorder.Store
	hooks session.Hooks
}

func New(opts Options) (*Client, error) {
	api, err := session.NewClient(session.ClientConfig{
		BaseURL:   opts.BaseURL,
		APIKey:    opts.APIKey,
		Namespace: opts.Namespace,
		Timeout:   opts.Timeout,
		Policy:    opts.Policy,
		Hooks:     opts.Hooks,
	})
	if err != nil {
		return nil, err
	}
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = recorder.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	store, err := recorder.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}
	return &Client{api: api, store: store, hooks: opts.Hooks}, nil
}

func (c *Client) Close() error {
	return recorder.CloseIfSupported(c.store)
}

// Store exposes the run recorder for inspection and export tooling.
func (c *Client) Store() recorder.Store {
	return c.store
}

// Start begins a run, joins its event channel, and records the run header
// plus every inbound cycle locally.
func (c *Client) Start(ctx context.Context, projectID string, opts map[string]any) (*Run, error) {
	if err := c.store.Init(ctx); err != nil {
		return nil, err
	}
	run, err := c.api.Start(ctx, projectID, opts)
	if err != nil {
		return nil, err
	}

	header := recorder.NewRunRecord(run.RunID, projectID)
	if sum, err := contract.NewView(run.Contract).Checksum(); err == nil {
		header.Checksum = sum
	}
	if err := c.store.SaveRun(ctx, header); err != nil {
		_ = run.Close()
		return nil, err
	}
	run.OnCycleUpdate(func(telemetry Telemetry) {
		record := recorder.CycleRecord{
			Cycle:   telemetry.Cycle,
			At:      time.Now().UTC(),
			Outputs: telemetry.Outputs,
		}
		if err := c.store.AppendCycle(context.Background(), run.RunID, record); err != nil {
			if c.hooks.OnHandlerError != nil {
				c.hooks.OnHandlerError(session.EventCycleUpdate, err)
			}
		}
	})
	return run, nil
}

// Stop ends a run and stamps its recorded header.
func (c *Client) Stop(ctx context.Context, projectID, runID string) error {
	if err := c.api.Stop(ctx, projectID, runID); err != nil {
		return err
	}
	if header, ok, err := c.store.GetRun(ctx, runID); err == nil && ok {
		header.StoppedAt = time.Now().UTC()
		_ = c.store.SaveRun(ctx, header)
	}
	return nil
}

// Contract fetches the current run contract without starting a run.
func (c *Client) Contract(ctx context.Context, projectID string) (Contract, error) {
	return c.api.Contract(ctx, projectID)
}

// IOState fetches the backend's ingest state for the project's inputs.
func (c *Client) IOState(ctx context.Context, projectID string) (map[string]any, error) {
	return c.api.IOState(ctx, projectID)
}

// Scaffold fetches the contract and writes the policy workspace into dir.
func (c *Client) Scaffold(ctx context.Context, projectID, dir string) (ScaffoldValue, error) {
	fetched, err := c.api.Contract(ctx, projectID)
	if err != nil {
		return ScaffoldValue{}, err
	}
	return contract.Scaffold(fetched, dir)
}

// NewStreamer builds an input streamer bound to the run.
func (c *Client) NewStreamer(run *Run) *Streamer {
	return stream.New(run, c.hooks)
}

// NewLoop builds a robot control loop with the client's hooks attached.
func (c *Client) NewLoop(cfg LoopConfig) (*Loop, error) {
	if cfg.Hooks.OnReconnect == nil && cfg.Hooks.OnDisconnect == nil && cfg.Hooks.OnHandlerError == nil {
		cfg.Hooks = c.hooks
	}
	return loop.New(cfg)
}

// DecodeStreamRows converts spike rows to per-timestep commands under a
// mapping table.
func DecodeStreamRows(rows []SpikeRow, mapping []MappingEntry) []Command {
	return decode.Stream(rows, mapping)
}

// NormalizeMapping converts loosely-typed mapping records into entries.
func NormalizeMapping(raw []any) []MappingEntry {
	return decode.NormalizeMapping(raw)
}

// SplitDeltas projects channel deltas onto joint and gripper axes.
func SplitDeltas(deltas map[string]float64, dof int, jointPrefix string) ([]float64, float64) {
	return decode.SplitDeltas(deltas, dof, jointPrefix)
}

// BuildFeedbackRaster turns per-timestep deviations into a spike raster.
func BuildFeedbackRaster(deviations []float64, cfg RasterConfig) ([]float64, error) {
	return feedback.Build(deviations, cfg)
}

// Modulate applies one step of astrocyte weight modulation.
func Modulate(
	weights, eligibility []WeightLayer,
	globalErr float64,
	byLayer map[string]AstroConfig,
	prev map[string]float64,
	p AstroParams,
) ([]WeightLayer, map[string]float64) {
	return astro.Modulate(weights, eligibility, globalErr, byLayer, prev, p)
}

// DefaultAstroParams returns the stock modulation parameters, optionally
// seeded for reproducibility.
func DefaultAstroParams(rng *rand.Rand) AstroParams {
	p := astro.DefaultParams()
	p.Rand = rng
	return p
}
