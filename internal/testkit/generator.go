package testkit

import (
	"math"
	"math/rand/v2"
	"time"

	"hydrocast/domain/model"
	"hydrocast/domain/series"
)

// Generator produces deterministic synthetic daily series directly from
// the model's own generative equations, for fixtures and recovery tests.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator creates a seeded generator.
func NewGenerator(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0xda942042e4dd58b5))}
}

// Scenario configures one simulated series.
type Scenario struct {
	N      int
	Start  time.Time
	Spec   model.Spec
	Truth  model.Params
	X0     float64 // initial latent state on the log scale
	RainSD float64 // natural-scale rainfall spread; defaults to 1

	MissingFlowEvery int // drop every k-th response (0 = none)
	MissingRainEvery int // drop every k-th rainfall (0 = none)
}

// Simulated is the generated data plus the latent truth behind it.
type Simulated struct {
	Dates  []time.Time
	Flow   []float64 // natural scale, NaN where dropped
	Rain   []float64 // natural scale, NaN where dropped
	Latent []float64 // log scale, fully known
}

// Simulate runs the generative equations forward with the given true
// parameters and returns the natural-scale series a caller would feed to
// the dataset constructor.
func (g *Generator) Simulate(sc Scenario) Simulated {
	start := sc.Start
	if start.IsZero() {
		start = time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)
	}
	rainSD := sc.RainSD
	if rainSD == 0 {
		rainSD = 1
	}

	sim := Simulated{
		Dates:  make([]time.Time, sc.N),
		Flow:   make([]float64, sc.N),
		Rain:   make([]float64, sc.N),
		Latent: make([]float64, sc.N),
	}

	// Natural-scale rainfall, day-aligned; the dataset constructor applies
	// the one-day lag itself.
	rainNat := make([]float64, sc.N)
	rainLog := make([]float64, sc.N)
	for t := 0; t < sc.N; t++ {
		sim.Dates[t] = start.AddDate(0, 0, t)
		r := math.Abs(g.rng.NormFloat64()) * rainSD
		rainNat[t] = r
		rainLog[t] = math.Log1p(r)
	}

	sdAdd := 1 / math.Sqrt(sc.Truth.TauAdd)
	sdObs := 1 / math.Sqrt(sc.Truth.TauObs)

	x := sc.X0
	for t := 0; t < sc.N; t++ {
		if t > 0 {
			var lagRain float64
			if t >= 1 {
				lagRain = rainLog[t-1]
			}
			sin := math.Sin(2 * math.Pi * float64(sim.Dates[t].YearDay()) / 365.0)
			cos := math.Cos(2 * math.Pi * float64(sim.Dates[t].YearDay()) / 365.0)
			mean := sc.Spec.Mean(x, sc.Truth, lagRain, sin, cos)
			x = mean + g.rng.NormFloat64()*sdAdd
		}
		sim.Latent[t] = x
		sim.Flow[t] = math.Exp(x + g.rng.NormFloat64()*sdObs)
		sim.Rain[t] = rainNat[t]
	}

	for t := 0; t < sc.N; t++ {
		if sc.MissingFlowEvery > 0 && (t+1)%sc.MissingFlowEvery == 0 {
			sim.Flow[t] = series.MissingValue()
		}
		if sc.MissingRainEvery > 0 && (t+1)%sc.MissingRainEvery == 0 {
			sim.Rain[t] = series.MissingValue()
		}
	}
	return sim
}

// Dataset builds the series.Dataset for a simulation, failing the test
// setup loudly on constructor errors.
func (s Simulated) Dataset() (*series.Dataset, error) {
	return series.NewDaily(s.Dates, s.Flow, s.Rain)
}
