package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"hydrocast/adapters/excel"
	"hydrocast/adapters/postgres"
	"hydrocast/app"
	"hydrocast/domain/core"
	"hydrocast/domain/model"
	"hydrocast/domain/series"
	"hydrocast/internal"
	"hydrocast/internal/config"
	"hydrocast/internal/diagnostics"
	"hydrocast/internal/sampler"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := internal.NewDefaultLogger()

	ds, err := loadDataset(appConfig)
	if err != nil {
		log.Fatalf("Failed to load dataset: %v", err)
	}
	logger.Info("[Fit] loaded %d days from %s (%d missing rain, %d held out)",
		ds.N(), appConfig.Data.File, len(ds.MissingRain()), ds.HeldOutCount())

	var repo app.RunRepository
	if appConfig.Database.URL != "" {
		pg, err := postgres.Connect(context.Background(), appConfig.Database.URL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pg.Close()
		repo = pg
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	service := app.NewForecastService(logger, repo)
	result, err := service.Run(ctx, buildSpec(appConfig), ds,
		buildSamplerConfig(appConfig), buildDiagnosticsConfig(appConfig))
	if err != nil {
		log.Fatalf("Run failed: %v", err)
	}

	printResult(result)
}

// loadDataset reads the daily table and applies the hold-out split.
func loadDataset(cfg *config.Config) (*series.Dataset, error) {
	reader := excel.NewDataReader(cfg.Data.File, cfg.Data.Sheet)
	table, err := reader.ReadDaily()
	if err != nil {
		return nil, err
	}

	ds, err := series.NewDaily(table.Dates, table.Flow, table.Rain)
	if err != nil {
		return nil, err
	}

	if cfg.Data.HoldoutAfter != "" {
		cutoff, err := time.Parse("2006-01-02", cfg.Data.HoldoutAfter)
		if err != nil {
			return nil, err
		}
		return ds.WithHoldoutAfter(core.NewCutoffAt(cutoff))
	}
	return ds, nil
}

func buildSpec(cfg *config.Config) model.Spec {
	spec := model.Default()
	spec.Terms = model.Terms{
		Rain:       cfg.Model.Rain,
		Season:     cfg.Model.Season,
		Decay:      cfg.Model.Decay,
		ImputeRain: cfg.Model.ImputeRain,
	}
	return spec
}

func buildSamplerConfig(cfg *config.Config) sampler.Config {
	return sampler.Config{
		Chains:     cfg.Sampler.Chains,
		Iterations: cfg.Sampler.Iterations,
		Seed:       cfg.Sampler.Seed,
	}
}

// buildDiagnosticsConfig monitors every scalar parameter the active
// terms bring into the model, not just the two precisions.
func buildDiagnosticsConfig(cfg *config.Config) diagnostics.Config {
	diagCfg := diagnostics.DefaultConfig()
	diagCfg.Policy = diagnostics.BurnInPolicy(cfg.Diagnostics.Policy)
	diagCfg.FixedCount = cfg.Diagnostics.BurnIn
	diagCfg.Threshold = cfg.Diagnostics.Threshold

	if cfg.Model.Decay {
		diagCfg.Monitored = append(diagCfg.Monitored, "mu0", "beta_decay")
	}
	if cfg.Model.Rain {
		diagCfg.Monitored = append(diagCfg.Monitored, "beta_rain")
	}
	if cfg.Model.Season {
		diagCfg.Monitored = append(diagCfg.Monitored, "beta_season_sin", "beta_season_cos")
	}
	if cfg.Model.ImputeRain {
		diagCfg.Monitored = append(diagCfg.Monitored, "mu_rain", "tau_rain")
	}
	return diagCfg
}

func printResult(result *app.RunResult) {
	fmt.Printf("Run %s\n", result.RunID)
	fmt.Printf("  converged: %v (burn-in %d)\n", result.Verdict.Converged, result.Verdict.BurnIn)
	for name, ratio := range result.Verdict.Ratios {
		fmt.Printf("  psrf[%s] = %.4f\n", name, ratio)
	}
	for _, w := range result.Verdict.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
	for _, f := range result.Failures {
		fmt.Printf("  chain failure: %s\n", f)
	}
	fmt.Printf("  forecast: %d days\n", len(result.Forecast.Natural))

	if result.Metrics != nil {
		fmt.Println("  validation:")
		for _, row := range result.Metrics.Table() {
			if row.Defined {
				fmt.Printf("    %-18s %.4f\n", row.Name, row.Value)
			} else {
				fmt.Printf("    %-18s undefined\n", row.Name)
			}
		}
	}
}
