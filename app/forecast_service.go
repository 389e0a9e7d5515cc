package app

import (
	"context"
	"time"

	"hydrocast/domain/core"
	"hydrocast/domain/model"
	"hydrocast/domain/series"
	"hydrocast/internal"
	"hydrocast/internal/diagnostics"
	"hydrocast/internal/errors"
	"hydrocast/internal/posterior"
	"hydrocast/internal/sampler"
	"hydrocast/internal/validation"
)

// RunResult is the complete externally consumable outcome of one fit:
// the convergence verdict, the forecast tables, the skill metrics, and
// any per-chain failures.
type RunResult struct {
	RunID      core.RunID          `json:"run_id"`
	CreatedAt  core.Timestamp      `json:"created_at"`
	Terms      model.Terms         `json:"terms"`
	Chains     int                 `json:"chains"`
	Iterations int                 `json:"iterations"`
	Verdict    diagnostics.Verdict `json:"verdict"`
	Forecast   *posterior.Forecast `json:"forecast"`
	Metrics    *validation.Metrics `json:"metrics,omitempty"`
	Failures   []string            `json:"chain_failures,omitempty"`
}

// RunRepository persists completed runs; the service works without one.
type RunRepository interface {
	SaveRun(ctx context.Context, result *RunResult) error
}

// ForecastService wires the pipeline: dataset and specification in,
// sampled posterior through diagnostics and summarization, scored
// forecast out.
type ForecastService struct {
	log    *internal.Logger
	engine *sampler.Engine
	repo   RunRepository
}

// NewForecastService creates the pipeline service. repo may be nil to
// skip persistence.
func NewForecastService(logger *internal.Logger, repo RunRepository) *ForecastService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &ForecastService{
		log:    logger,
		engine: sampler.NewEngine(logger),
		repo:   repo,
	}
}

// Run executes one complete fit. Non-convergence is reported on the
// verdict, not returned as an error; numerical failure of individual
// chains is tolerated as long as two chains survive.
func (s *ForecastService) Run(ctx context.Context, spec model.Spec, ds *series.Dataset,
	samplerCfg sampler.Config, diagCfg diagnostics.Config) (*RunResult, error) {

	start := time.Now()
	s.log.Info("[Forecast] starting run: n=%d chains=%d iterations=%d",
		ds.N(), samplerCfg.Chains, samplerCfg.Iterations)

	set, err := s.engine.Run(ctx, spec, ds, samplerCfg)
	if err != nil {
		return nil, err
	}

	result := &RunResult{
		RunID:      core.NewRunID(),
		CreatedAt:  core.Now(),
		Terms:      spec.Terms,
		Chains:     samplerCfg.Chains,
		Iterations: samplerCfg.Iterations,
	}
	for _, ch := range set.Chains {
		if ch.Failed() {
			result.Failures = append(result.Failures, ch.Err.Error())
		}
	}

	if len(set.Surviving()) < 2 {
		return nil, errors.NumericalFailure("fewer than 2 chains survived; no convergence verdict possible")
	}

	verdict, err := diagnostics.Diagnose(set, diagCfg)
	if err != nil {
		return nil, errors.Wrap(err, "convergence diagnostics failed")
	}
	result.Verdict = verdict
	if !verdict.Converged {
		s.log.Warn("[Forecast] chains not converged (ratios %v); proceeding with caveat", verdict.Ratios)
	}

	fc, err := posterior.Summarize(set, verdict.BurnIn, posterior.Options{
		IncludeLog: true,
		Dates:      ds.Dates(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "posterior summarization failed")
	}
	result.Forecast = fc

	if ds.HeldOutCount() > 0 {
		metrics, err := validation.Evaluate(fc, ds)
		if err != nil {
			return nil, errors.Wrap(err, "validation scoring failed")
		}
		result.Metrics = metrics
	}

	if s.repo != nil {
		if err := s.repo.SaveRun(ctx, result); err != nil {
			return nil, errors.StoreError("failed to persist run", err)
		}
	}

	s.log.Info("[Forecast] run %s finished in %s (converged=%v, burn-in=%d)",
		result.RunID, time.Since(start).Round(time.Millisecond), verdict.Converged, verdict.BurnIn)
	return result, nil
}
