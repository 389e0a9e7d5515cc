package sampler

import (
	"context"

	"golang.org/x/sync/errgroup"

	"hydrocast/domain/model"
	"hydrocast/domain/series"
	"hydrocast/internal"
	"hydrocast/internal/errors"
)

// seedStride separates per-chain seeds derived from the base seed.
const seedStride = 0x9e3779b97f4a7c15

// Config bounds one sampling run.
type Config struct {
	Chains     int      `json:"chains"`
	Iterations int      `json:"iterations"`
	Seed       uint64   `json:"seed"`
	Seeds      []uint64 `json:"seeds,omitempty"` // optional explicit per-chain seeds
}

// DefaultConfig returns the reference sampling configuration.
func DefaultConfig() Config {
	return Config{
		Chains:     3,
		Iterations: 5000,
		Seed:       1,
	}
}

// Validate rejects unusable sampling configurations.
func (c Config) Validate() error {
	if c.Chains < 2 {
		return errors.ConfigInvalid("at least 2 chains are required for convergence diagnostics")
	}
	if c.Iterations <= 0 {
		return errors.ConfigInvalid("iteration count must be positive")
	}
	if len(c.Seeds) > 0 && len(c.Seeds) != c.Chains {
		return errors.ConfigInvalid("explicit seed list must match the chain count")
	}
	return nil
}

// chainSeed returns the seed for chain i: explicit if provided, otherwise
// derived from the base seed so every chain gets its own stream.
func (c Config) chainSeed(i int) uint64 {
	if len(c.Seeds) > 0 {
		return c.Seeds[i]
	}
	return c.Seed + uint64(i)*seedStride
}

// Engine samples the joint posterior over latent states, parameters and
// imputed rainfall by running independent Gibbs chains in parallel. It
// never mutates the dataset; its only output is the completed draws.
type Engine struct {
	log *internal.Logger
}

// NewEngine creates an inference engine.
func NewEngine(logger *internal.Logger) *Engine {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Engine{log: logger}
}

// Run executes the configured chains to completion. A numerical failure
// aborts only its own chain and is recorded on the trace; Run errors only
// on configuration problems or when every chain fails.
func (e *Engine) Run(ctx context.Context, spec model.Spec, ds *series.Dataset, cfg Config) (*SampleSet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, errors.Wrap(errors.ConfigInvalid(err.Error()), "invalid model specification")
	}
	missing := ds.MissingRain()
	if spec.Terms.Rain && len(missing) > 0 && !spec.Terms.ImputeRain {
		return nil, errors.ConfigInvalid("rainfall covariate has missing values; enable rainfall imputation")
	}

	set := &SampleSet{
		Iterations:  cfg.Iterations,
		MissingRain: missing,
		Chains:      make([]ChainTrace, cfg.Chains),
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Chains; i++ {
		g.Go(func() error {
			seed := cfg.chainSeed(i)
			trace := runChain(gctx, i, seed, spec, ds, cfg.Iterations)
			set.Chains[i] = trace
			if trace.Failed() {
				e.log.Warn("[Sampler] %v", trace.Err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if len(set.Surviving()) == 0 {
		return nil, errors.NumericalFailure("every chain aborted on a non-finite value")
	}
	return set, nil
}

// runChain drives one chain through its full iteration budget.
func runChain(ctx context.Context, id int, seed uint64, spec model.Spec, ds *series.Dataset, iters int) ChainTrace {
	c := newChain(id, seed, spec, ds)
	c.init()

	trace := ChainTrace{
		Chain: id,
		Seed:  seed,
		Draws: make([]Draw, 0, iters),
	}
	for it := 0; it < iters; it++ {
		if it%64 == 0 && ctx.Err() != nil {
			return trace
		}
		if bad := c.step(); bad != "" {
			trace.Err = &ChainError{Chain: id, Iteration: it, Variable: bad}
			return trace
		}
		trace.Draws = append(trace.Draws, c.snapshot())
	}
	return trace
}
