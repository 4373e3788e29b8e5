package ota

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ngoclaw/goosecore/internal/domain/entity"
)

type fakeBuilder struct {
	result *entity.BuildResult
	err    error
}

func (f *fakeBuilder) Build(ctx context.Context) (*entity.BuildResult, error) {
	return f.result, f.err
}

type fakeHealthChecker struct {
	report *entity.HealthReport
	err    error
}

func (f *fakeHealthChecker) Check(ctx context.Context, binaryPath string) (*entity.HealthReport, error) {
	return f.report, f.err
}

// noopTestRunner returns a TestRunner configured to skip every suite so
// RunAll completes instantly and deterministically in pipeline tests.
func noopTestRunner() *TestRunner {
	cfg := TestRunConfig{}
	return NewTestRunner(cfg, zap.NewNop())
}

func newTestPipeline(t *testing.T, builder Builder, health HealthChecker, installPath string) *Pipeline {
	t.Helper()
	planner := NewImprovementPlanner(entity.RiskCritical, zap.NewNop())
	applier := NewCodeApplier(t.TempDir(), zap.NewNop())
	runner := noopTestRunner()
	return NewPipeline(planner, applier, runner, builder, health, installPath, zap.NewNop())
}

func TestPerformUpdate_DryRunSkipsBuildAndSwap(t *testing.T) {
	installPath := filepath.Join(t.TempDir(), "goosed")
	if err := os.WriteFile(installPath, []byte("old-binary"), 0o755); err != nil {
		t.Fatalf("seed install path: %v", err)
	}

	pipeline := newTestPipeline(t, &fakeBuilder{err: nil}, &fakeHealthChecker{}, installPath)

	result, err := pipeline.PerformUpdate(context.Background(), []InsightInput{
		{ID: "i1", Category: "documentation", Description: "add docs", Confidence: 0.9},
	}, true)
	if err != nil {
		t.Fatalf("PerformUpdate: %v", err)
	}
	if result.Status != entity.UpdateDryRun {
		t.Fatalf("expected dry run status, got %s", result.Status)
	}
	if result.BuildResult != nil {
		t.Fatalf("expected no build result in dry run mode")
	}

	content, err := os.ReadFile(installPath)
	if err != nil || string(content) != "old-binary" {
		t.Fatalf("expected install path untouched by dry run, got %q err=%v", content, err)
	}
}

func TestPerformUpdate_BuildFailureAbortsBeforeTests(t *testing.T) {
	installPath := filepath.Join(t.TempDir(), "goosed")
	builder := &fakeBuilder{result: &entity.BuildResult{Success: false, ErrorMessage: "compile error"}}
	pipeline := newTestPipeline(t, builder, &fakeHealthChecker{}, installPath)

	result, err := pipeline.PerformUpdate(context.Background(), nil, false)
	if err != nil {
		t.Fatalf("PerformUpdate: %v", err)
	}
	if result.Status != entity.UpdateFailed {
		t.Fatalf("expected failed status, got %s", result.Status)
	}
	if result.TestResult != nil {
		t.Fatalf("expected no test result recorded when build fails")
	}
}

func TestPerformUpdate_HealthyBuildSwapsBinaryInPlace(t *testing.T) {
	installDir := t.TempDir()
	installPath := filepath.Join(installDir, "goosed")
	if err := os.WriteFile(installPath, []byte("old-binary"), 0o755); err != nil {
		t.Fatalf("seed install path: %v", err)
	}

	newBinary := filepath.Join(t.TempDir(), "goosed-new")
	if err := os.WriteFile(newBinary, []byte("new-binary"), 0o755); err != nil {
		t.Fatalf("seed new binary: %v", err)
	}

	builder := &fakeBuilder{result: &entity.BuildResult{Success: true, BinaryPath: newBinary, StartedAt: time.Now()}}
	health := &fakeHealthChecker{report: &entity.HealthReport{Healthy: true, Checks: []entity.HealthCheck{{Name: "startup", Passed: true}}}}
	pipeline := newTestPipeline(t, builder, health, installPath)

	result, err := pipeline.PerformUpdate(context.Background(), nil, false)
	if err != nil {
		t.Fatalf("PerformUpdate: %v", err)
	}
	if result.Status != entity.UpdateSucceeded {
		t.Fatalf("expected succeeded status, got %s: %s", result.Status, result.Summary)
	}

	content, err := os.ReadFile(installPath)
	if err != nil || string(content) != "new-binary" {
		t.Fatalf("expected new binary swapped into install path, got %q err=%v", content, err)
	}
}

func TestPerformUpdate_UnhealthyBuildRollsBack(t *testing.T) {
	installDir := t.TempDir()
	installPath := filepath.Join(installDir, "goosed")
	if err := os.WriteFile(installPath, []byte("old-binary"), 0o755); err != nil {
		t.Fatalf("seed install path: %v", err)
	}

	newBinary := filepath.Join(t.TempDir(), "goosed-new")
	if err := os.WriteFile(newBinary, []byte("new-binary"), 0o755); err != nil {
		t.Fatalf("seed new binary: %v", err)
	}

	builder := &fakeBuilder{result: &entity.BuildResult{Success: true, BinaryPath: newBinary, StartedAt: time.Now()}}
	health := &fakeHealthChecker{report: &entity.HealthReport{Healthy: false, Checks: []entity.HealthCheck{{Name: "startup", Passed: false, Detail: "crashed"}}}}
	pipeline := newTestPipeline(t, builder, health, installPath)

	// Seed a prior backup so rollback has something to restore from.
	backupPath := installPath + ".bak.1"
	if err := os.WriteFile(backupPath, []byte("backed-up-binary"), 0o755); err != nil {
		t.Fatalf("seed backup: %v", err)
	}

	result, err := pipeline.PerformUpdate(context.Background(), nil, false)
	if err != nil {
		t.Fatalf("PerformUpdate: %v", err)
	}
	if result.Status != entity.UpdateRolledBack {
		t.Fatalf("expected rolled back status, got %s: %s", result.Status, result.Summary)
	}
	if result.RollbackRecord == nil {
		t.Fatalf("expected a rollback record")
	}

	content, err := os.ReadFile(installPath)
	if err != nil || string(content) != "backed-up-binary" {
		t.Fatalf("expected install path restored from backup, got %q err=%v", content, err)
	}
}
