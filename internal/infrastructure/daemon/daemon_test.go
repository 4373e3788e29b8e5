package daemon

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ngoclaw/goosecore/internal/domain/entity"
)

func TestAutonomousDaemon_StartStopLifecycle(t *testing.T) {
	d := New("agent-1", zap.NewNop())

	if d.IsRunning() || d.IsShutdown() {
		t.Fatalf("expected a freshly created daemon to be neither running nor shut down")
	}

	if err := d.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !d.IsRunning() {
		t.Fatalf("expected IsRunning true after Start")
	}

	// Starting again is a no-op, not an error.
	if err := d.Start(); err != nil {
		t.Fatalf("second start: %v", err)
	}

	d.Stop()
	if d.IsRunning() {
		t.Fatalf("expected IsRunning false after Stop")
	}
	if !d.IsShutdown() {
		t.Fatalf("expected IsShutdown true after Stop")
	}

	if err := d.Start(); err == nil {
		t.Fatalf("expected starting a shut down daemon to error")
	}
}

func TestAutonomousDaemon_ScheduleOnceRequiresRunning(t *testing.T) {
	d := New("agent-1", zap.NewNop())
	if _, err := d.ScheduleOnce("do a thing", entity.PriorityNormal, time.Now().Add(time.Minute), entity.ActionHealthCheck); err == nil {
		t.Fatalf("expected scheduling before Start to error")
	}
}

func TestAutonomousDaemon_ScheduleOnceTracksPendingCount(t *testing.T) {
	d := New("agent-1", zap.NewNop())
	d.RegisterExecutor(entity.ActionHealthCheck, ActionExecutorFunc(func(ctx context.Context, task entity.ScheduledTask) error {
		return nil
	}))
	if err := d.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Stop()

	if d.PendingTaskCount() != 0 {
		t.Fatalf("expected zero pending tasks initially")
	}

	far := time.Now().Add(time.Hour)
	if _, err := d.ScheduleOnce("far future task", entity.PriorityLow, far, entity.ActionHealthCheck); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if d.PendingTaskCount() != 1 {
		t.Fatalf("expected one pending task, got %d", d.PendingTaskCount())
	}
}

func TestAutonomousDaemon_ScheduleOnceFiresAndClearsPending(t *testing.T) {
	d := New("agent-1", zap.NewNop())

	var ran int32
	done := make(chan struct{})
	d.RegisterExecutor(entity.ActionHealthCheck, ActionExecutorFunc(func(ctx context.Context, task entity.ScheduledTask) error {
		atomic.AddInt32(&ran, 1)
		close(done)
		return nil
	}))

	if err := d.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Stop()

	at := time.Now().Add(2 * time.Second)
	taskID, err := d.ScheduleOnce("imminent task", entity.PriorityHigh, at, entity.ActionHealthCheck)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if taskID == "" {
		t.Fatalf("expected a non-empty task id")
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("expected scheduled task to fire within 5s")
	}

	if atomic.LoadInt32(&ran) != 1 {
		t.Fatalf("expected executor to run exactly once, ran=%d", ran)
	}

	deadline := time.Now().Add(2 * time.Second)
	for d.PendingTaskCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if d.PendingTaskCount() != 0 {
		t.Fatalf("expected pending count to drop to zero after the task fires")
	}
}

func TestAutonomousDaemon_FailsafeStatusTracksBreakerFailures(t *testing.T) {
	d := New("agent-1", zap.NewNop())
	d.RegisterExecutor(entity.ActionSelfImprove, ActionExecutorFunc(func(ctx context.Context, task entity.ScheduledTask) error {
		return fmt.Errorf("boom")
	}))
	if err := d.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Stop()

	for i := 0; i < failureThreshold; i++ {
		d.runTask(entity.ScheduledTask{ID: fmt.Sprintf("t%d", i), Action: entity.ActionSelfImprove})
	}

	statuses := d.FailsafeStatus()
	var found *entity.BreakerStatus
	for i := range statuses {
		if statuses[i].Name == string(entity.ActionSelfImprove) {
			found = &statuses[i]
		}
	}
	if found == nil {
		t.Fatalf("expected a breaker status for self_improve")
	}
	if found.State != entity.BreakerOpen {
		t.Fatalf("expected breaker to open after %d consecutive failures, got %s", failureThreshold, found.State)
	}
	if found.ConsecutiveFailures != failureThreshold {
		t.Fatalf("expected consecutive_failures=%d, got %d", failureThreshold, found.ConsecutiveFailures)
	}
}

func TestAutonomousDaemon_MissingExecutorFailsGracefully(t *testing.T) {
	d := New("agent-1", zap.NewNop())
	if err := d.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Stop()

	// No panic, no executor registered for this action: runTask should just
	// log and return without crashing the scheduler.
	d.runTask(entity.ScheduledTask{ID: "t1", Action: entity.ActionMemoryConsolidate})
}
