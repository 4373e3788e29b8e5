package ota

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ngoclaw/goosecore/internal/domain/entity"
)

// Builder is the external build contract (§6): it produces a new binary at
// some path, reporting success/failure and where the artifact landed.
type Builder interface {
	Build(ctx context.Context) (*entity.BuildResult, error)
}

// HealthChecker probes a freshly built binary before it is promoted.
type HealthChecker interface {
	Check(ctx context.Context, binaryPath string) (*entity.HealthReport, error)
}

// Pipeline orchestrates the full perform_update flow: plan, build, test,
// health-check, then atomically swap or roll back.
type Pipeline struct {
	Planner *ImprovementPlanner
	Applier *CodeApplier
	Runner  *TestRunner
	Builder Builder
	Health  HealthChecker

	installPath string
	logger      *zap.Logger
}

// NewPipeline wires the OTA components together. installPath is the
// currently-running binary's location; a successful update renames it aside
// and moves the new build into place.
func NewPipeline(planner *ImprovementPlanner, applier *CodeApplier, runner *TestRunner, builder Builder, health HealthChecker, installPath string, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{Planner: planner, Applier: applier, Runner: runner, Builder: builder, Health: health, installPath: installPath, logger: logger}
}

// PerformUpdate runs one OTA cycle per §4.O:
//  1. dry-run: plan + test only, no binary changes.
//  2. build the new binary via the external build contract.
//  3. run tests; fail the cycle if overall_success is false.
//  4. compute health.
//  5. swap the binary atomically if healthy, else roll back.
//  6. return the persisted UpdateResult.
func (p *Pipeline) PerformUpdate(ctx context.Context, insights []InsightInput, dryRun bool) (*entity.UpdateResult, error) {
	plan := p.Planner.PlanFromInsights(insights)

	if dryRun {
		testResult, err := p.Runner.RunAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("ota: dry run test pass: %w", err)
		}
		return &entity.UpdateResult{
			Status:      entity.UpdateDryRun,
			Summary:     fmt.Sprintf("Status: Dry run | %s", Summary(plan)),
			Plan:        plan,
			TestResult:  testResult,
			CompletedAt: time.Now(),
		}, nil
	}

	buildResult, err := p.Builder.Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("ota: build: %w", err)
	}
	if !buildResult.Success {
		return &entity.UpdateResult{
			Status:      entity.UpdateFailed,
			Summary:     fmt.Sprintf("Build failed: %s", buildResult.ErrorMessage),
			Plan:        plan,
			BuildResult: buildResult,
			CompletedAt: time.Now(),
		}, nil
	}

	testResult, err := p.Runner.RunAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("ota: test run: %w", err)
	}
	if !testResult.OverallSuccess {
		p.logger.Warn("ota test run failed, aborting update", zap.String("summary", testResult.Summary))
		return &entity.UpdateResult{
			Status:      entity.UpdateFailed,
			Summary:     fmt.Sprintf("Tests failed: %s", testResult.Summary),
			Plan:        plan,
			BuildResult: buildResult,
			TestResult:  testResult,
			CompletedAt: time.Now(),
		}, nil
	}

	healthReport, err := p.Health.Check(ctx, buildResult.BinaryPath)
	if err != nil {
		return nil, fmt.Errorf("ota: health check: %w", err)
	}

	if healthReport.Healthy {
		if err := p.swapBinary(buildResult.BinaryPath); err != nil {
			return nil, fmt.Errorf("ota: binary swap: %w", err)
		}
		p.logger.Info("ota update promoted", zap.String("summary", testResult.Summary))
		return &entity.UpdateResult{
			Status:       entity.UpdateSucceeded,
			Summary:      fmt.Sprintf("Updated successfully | %s", testResult.Summary),
			Plan:         plan,
			BuildResult:  buildResult,
			TestResult:   testResult,
			HealthReport: healthReport,
			CompletedAt:  time.Now(),
		}, nil
	}

	rollback, err := p.rollback("health check failed")
	if err != nil {
		return nil, fmt.Errorf("ota: rollback: %w", err)
	}
	p.logger.Warn("ota update rolled back", zap.String("reason", rollback.Reason))
	return &entity.UpdateResult{
		Status:         entity.UpdateRolledBack,
		Summary:        "Update rolled back after failed health check",
		Plan:           plan,
		BuildResult:    buildResult,
		TestResult:     testResult,
		HealthReport:   healthReport,
		RollbackRecord: rollback,
		CompletedAt:    time.Now(),
	}, nil
}

// swapBinary renames the currently installed binary aside to a timestamped
// backup, then moves the new build into place. Both operations are renames
// within the same filesystem so the swap is atomic per step.
func (p *Pipeline) swapBinary(newBinaryPath string) error {
	backupPath := fmt.Sprintf("%s.bak.%d", p.installPath, time.Now().Unix())
	if _, err := os.Stat(p.installPath); err == nil {
		if err := os.Rename(p.installPath, backupPath); err != nil {
			return fmt.Errorf("backup current binary: %w", err)
		}
	}
	if err := os.Rename(newBinaryPath, p.installPath); err != nil {
		return fmt.Errorf("install new binary: %w", err)
	}
	return nil
}

// rollback restores the most recent binary backup next to installPath.
func (p *Pipeline) rollback(reason string) (*entity.RollbackRecord, error) {
	dir := filepath.Dir(p.installPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read install dir: %w", err)
	}

	var latest string
	var latestMod time.Time
	base := filepath.Base(p.installPath)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if len(name) <= len(base)+5 || name[:len(base)] != base {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(latestMod) {
			latest = filepath.Join(dir, name)
			latestMod = info.ModTime()
		}
	}
	if latest == "" {
		return nil, fmt.Errorf("no backup binary found to roll back to")
	}

	if err := os.Rename(latest, p.installPath); err != nil {
		return nil, fmt.Errorf("restore backup binary: %w", err)
	}
	return &entity.RollbackRecord{Reason: reason, RestoredFrom: latest, RolledBackAt: time.Now()}, nil
}
