package feedback

import (
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// ErrShapeMismatch reports a baseline raster whose length does not match
// T*N. A mismatched shape means the caller's contract drifted; it is never
// papered over.
var ErrShapeMismatch = errors.New("baseline shape mismatch")

const probEpsilon = 1e-9

// Config controls raster generation. N is the feedback population size.
// Baseline, when set, seeds the raster before deviations are applied and
// must have length len(deviations)*N. Rand, when set, makes the draw
// sequence reproducible; nil uses a fresh time-seeded source.
type Config struct {
	N        int
	Baseline []float64
	DeadZone float64
	Rand     *rand.Rand
}

// Build turns a per-timestep deviation signal into a flat T*N spike raster.
// Deviations are clamped to [-1,1]; a deviation inside the dead zone leaves
// that timestep's slots untouched. Otherwise each of the N positions
// independently receives sign(deviation) with probability
// (|deviation|-deadZone)/(1-deadZone). Untouched positions keep their
// baseline values verbatim.
func Build(deviations []float64, cfg Config) ([]float64, error) {
	n := cfg.N
	tLen := len(deviations)
	if cfg.Baseline != nil && len(cfg.Baseline) != tLen*n {
		return nil, fmt.Errorf("%w: baseline length %d, want %d (T=%d N=%d)",
			ErrShapeMismatch, len(cfg.Baseline), tLen*n, tLen, n)
	}

	raster := make([]float64, tLen*n)
	copy(raster, cfg.Baseline)

	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	for t, dev := range deviations {
		if dev > 1 {
			dev = 1
		} else if dev < -1 {
			dev = -1
		}
		magnitude := dev
		if magnitude < 0 {
			magnitude = -magnitude
		}
		if magnitude <= cfg.DeadZone {
			continue
		}
		sign := 1.0
		if dev < 0 {
			sign = -1.0
		}
		denom := 1 - cfg.DeadZone
		if denom < probEpsilon {
			denom = probEpsilon
		}
		prob := (magnitude - cfg.DeadZone) / denom
		base := t * n
		for i := 0; i < n; i++ {
			if rng.Float64() < prob {
				raster[base+i] = sign
			}
		}
	}
	return raster, nil
}
