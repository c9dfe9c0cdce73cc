package sensor

import (
	"context"
	"math"
	"math/rand/v2"
)

// Background values the synthetic survey is generated around.
const (
	syntheticSARBackground      = -15.0   // dB
	syntheticAmbientTemperature = 25.0    // °C
	syntheticSeismicVelocity    = 2500.0  // m/s, limestone
	syntheticGravityBackground  = 0.0     // µGal
	syntheticMagneticField      = 38000.0 // nT
)

// referenceGridSize is the grid size the feature radii below are expressed in.
const referenceGridSize = 50.0

// SyntheticProvider generates a reproducible survey: a buried structure at
// the grid center (a void surrounded by a ring of dense walls) on top of
// low-amplitude measurement noise. The same seed always yields the same
// samples, and each modality draws from its own stream so disabling one
// modality does not change the others.
type SyntheticProvider struct {
	// Disabled modalities are reported unavailable.
	Disabled map[Modality]bool

	// AmbientOffset shifts the thermal baseline reported with the layer.
	AmbientOffset float64
}

// NewSyntheticProvider returns a provider with the given modalities disabled.
func NewSyntheticProvider(disabled ...Modality) *SyntheticProvider {
	p := &SyntheticProvider{Disabled: make(map[Modality]bool)}
	for _, m := range disabled {
		p.Disabled[m] = true
	}
	return p
}

func (p *SyntheticProvider) Acquire(ctx context.Context, req Request) (*Batch, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	batch := NewBatch(req.Rows, req.Cols)
	for _, m := range All() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !req.Wants(m) {
			batch.Set(UnavailableLayer(m, "not requested"))
			continue
		}
		l, err := p.AcquireLayer(ctx, m, req)
		if err != nil {
			batch.Set(UnavailableLayer(m, err.Error()))
			continue
		}
		batch.Set(l)
	}
	logf("", "synthetic survey %dx%d seed=%d", req.Rows, req.Cols, req.Seed)
	return batch, nil
}

// AcquireLayer generates one modality. It lets the synthetic survey back a
// CompositeProvider source as well.
func (p *SyntheticProvider) AcquireLayer(ctx context.Context, m Modality, req Request) (*Layer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Disabled[m] {
		return UnavailableLayer(m, "disabled"), nil
	}

	rng := rand.New(rand.NewPCG(req.Seed, modalityStream(m)))
	values := NewLayerValues(req.Rows, req.Cols)
	scale := math.Min(float64(req.Rows), float64(req.Cols)) / referenceGridSize
	if scale <= 0 {
		scale = 1
	}

	var baseline *float64
	if m == Thermal {
		ambient := syntheticAmbientTemperature + p.AmbientOffset
		baseline = &ambient
	}

	for i := 0; i < req.Rows; i++ {
		for j := 0; j < req.Cols; j++ {
			di := float64(i) - float64(req.Rows)/2
			dj := float64(j) - float64(req.Cols)/2
			d := math.Sqrt(di*di+dj*dj) / scale
			values[i][j] = syntheticSample(m, d, rng, baseline)
		}
	}

	return &Layer{
		Modality: m,
		Values:   values,
		Baseline: baseline,
		Source:   "synthetic:" + m.String(),
	}, nil
}

func modalityStream(m Modality) uint64 {
	for i, v := range allModalities {
		if v == m {
			return uint64(i) + 1
		}
	}
	return 0
}

// syntheticSample draws the raw value for a cell at distance d (in reference
// grid units) from the structure center.
func syntheticSample(m Modality, d float64, rng *rand.Rand, baseline *float64) float64 {
	u := rng.Float64
	switch m {
	case SAR:
		v := syntheticSARBackground + (u()*4 - 2)
		if d > 3 && d < 8 {
			v += 5 + u()*3 // wall reflection
		}
		if d < 3 {
			v -= 3 + u()*2 // void
		}
		return v
	case Thermal:
		ambient := syntheticAmbientTemperature
		if baseline != nil {
			ambient = *baseline
		}
		v := ambient + (u() - 0.5)
		if d < 5 {
			v -= 2 + u()*1.5 // void keeps the surface cooler
		}
		if d > 5 && d < 10 {
			v += 1.5 + u() // dense stone
		}
		return v
	case Seismic:
		v := syntheticSeismicVelocity + (u()*200 - 100)
		if d < 5 {
			v *= 0.7 + u()*0.1
		}
		return v
	case Gravity:
		v := syntheticGravityBackground + (u()*10 - 5)
		if d < 5 {
			v -= 150 + u()*100 // mass deficit
		}
		if d > 8 && d < 12 {
			v += 100 + u()*50
		}
		return v
	case Magnetic:
		v := syntheticMagneticField + (u()*20 - 10)
		if d < 3 && u() > 0.7 {
			v += 100 + u()*50 // fired material
		}
		if d > 3 && d < 8 {
			v -= 20 + u()*15 // cut features
		}
		return v
	default:
		return math.NaN()
	}
}
