// Package astro implements the astrocyte-style neuromodulation update:
// synaptic weights are nudged along their eligibility traces by a
// reward-prediction-error signal, with an update budget that widens as the
// global error grows.
package astro

import (
	"math"
	"math/rand"
	"time"

	"brainlink/internal/model"
)

// Params tunes the modulation rule. Zero values are replaced by the
// defaults via Normalize; callers usually start from DefaultParams and
// override selectively.
type Params struct {
	Eta             float64
	BaselineBeta    float64
	BaseScale       float64
	PanicScale      float64
	MinClamp        float64
	MaxClamp        float64
	MinWeight       float64
	MaxWeight       float64
	PanicExponent   float64
	MixExponent     float64
	DefaultBaseline float64

	// Rand drives the exploration noise. Nil means a fresh time-seeded
	// source; inject a seeded one for reproducible updates.
	Rand *rand.Rand
}

func DefaultParams() Params {
	return Params{
		Eta:             0.1,
		BaselineBeta:    0.05,
		BaseScale:       1,
		PanicScale:      100,
		MinClamp:        0.05,
		MaxClamp:        5,
		MinWeight:       -10,
		MaxWeight:       10,
		PanicExponent:   4,
		MixExponent:     2.5,
		DefaultBaseline: 0.5,
	}
}

func (p Params) Normalize() Params {
	def := DefaultParams()
	if p.Eta == 0 {
		p.Eta = def.Eta
	}
	if p.BaselineBeta == 0 {
		p.BaselineBeta = def.BaselineBeta
	}
	if p.BaseScale == 0 {
		p.BaseScale = def.BaseScale
	}
	if p.PanicScale == 0 {
		p.PanicScale = def.PanicScale
	}
	if p.MinClamp == 0 {
		p.MinClamp = def.MinClamp
	}
	if p.MaxClamp == 0 {
		p.MaxClamp = def.MaxClamp
	}
	if p.MinWeight == 0 && p.MaxWeight == 0 {
		p.MinWeight = def.MinWeight
		p.MaxWeight = def.MaxWeight
	}
	if p.PanicExponent == 0 {
		p.PanicExponent = def.PanicExponent
	}
	if p.MixExponent == 0 {
		p.MixExponent = def.MixExponent
	}
	if p.DefaultBaseline == 0 {
		p.DefaultBaseline = def.DefaultBaseline
	}
	return p
}

// Modulate computes updated weight layers from eligibility traces, a global
// error in [0,1] (0 perfect, 1 total failure) and optional per-layer astro
// configuration. prev carries the baselines returned by the previous call;
// the returned map must be persisted by the caller and passed back next
// cycle. Input layers are never mutated; layers without a matching
// eligibility layer (or with an empty name or nil data) pass through
// unchanged and keep no baseline.
func Modulate(
	weights []model.WeightLayer,
	eligibility []model.WeightLayer,
	globalErr float64,
	byLayer map[string]model.AstroConfig,
	prev map[string]float64,
	p Params,
) ([]model.WeightLayer, map[string]float64) {
	p = p.Normalize()
	rng := p.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	eligByLayer := make(map[string][]float64, len(eligibility))
	for _, layer := range eligibility {
		if layer.LayerName != "" && layer.Data != nil {
			eligByLayer[layer.LayerName] = layer.Data
		}
	}

	globalScore := 1 - clamp01(globalErr)
	nextBaselines := make(map[string]float64)
	updated := make([]model.WeightLayer, 0, len(weights))

	for _, layer := range weights {
		elig, ok := eligByLayer[layer.LayerName]
		if layer.LayerName == "" || layer.Data == nil || !ok {
			updated = append(updated, layer)
			continue
		}
		cfg := byLayer[layer.LayerName]

		finalScore := globalScore
		if cfg.DopamineGain != nil {
			local := *cfg.DopamineGain
			mix := math.Pow(local, p.MixExponent)
			finalScore = local*(1-mix) + globalScore*mix
		}
		finalScore = clamp01(finalScore)

		baseline := p.DefaultBaseline
		switch {
		case cfg.Baseline != nil:
			baseline = *cfg.Baseline
		default:
			if prevBase, ok := prev[layer.LayerName]; ok {
				baseline = prevBase
			}
		}

		failure := 1 - finalScore
		dynamicMult := p.BaseScale + math.Pow(failure, p.PanicExponent)*(p.PanicScale-p.BaseScale)
		currentCap := p.MinClamp + failure*(p.MaxClamp-p.MinClamp)
		centered := (finalScore - baseline) * dynamicMult

		nextBaselines[layer.LayerName] = baseline + p.BaselineBeta*(finalScore-baseline)

		data := append([]float64(nil), layer.Data...)
		n := min(len(data), len(elig))
		noiseScale := 0.001 * dynamicMult
		for i := 0; i < n; i++ {
			noise := (rng.Float64()*2 - 1) * noiseScale
			delta := clampRange(centered+noise, -currentCap, currentCap)
			data[i] = clampRange(data[i]+p.Eta*delta*elig[i], p.MinWeight, p.MaxWeight)
		}
		updated = append(updated, model.WeightLayer{LayerName: layer.LayerName, Data: data})
	}
	return updated, nextBaselines
}

func clamp01(x float64) float64 {
	return clampRange(x, 0, 1)
}

func clampRange(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
