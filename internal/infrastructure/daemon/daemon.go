// Package daemon implements the §4.P AutonomousDaemon contract: a per-agent
// background scheduler that runs self-improvement, insight extraction, and
// other autonomous actions on a cron-style schedule, guarded by a per-action
// circuit breaker so a repeatedly failing action stops retrying itself.
package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ngoclaw/goosecore/internal/domain/entity"
	"github.com/ngoclaw/goosecore/internal/infrastructure/llm"
)

// ActionExecutor runs one ScheduledTask's ActionType. The daemon itself
// holds no knowledge of how to self-improve, extract insights, or
// consolidate memory; those behaviors are injected, the same seam pattern
// as ota.Builder/ota.HealthChecker.
type ActionExecutor interface {
	Execute(ctx context.Context, task entity.ScheduledTask) error
}

// ActionExecutorFunc adapts a plain function to ActionExecutor.
type ActionExecutorFunc func(ctx context.Context, task entity.ScheduledTask) error

func (f ActionExecutorFunc) Execute(ctx context.Context, task entity.ScheduledTask) error {
	return f(ctx, task)
}

// failureThreshold is the number of consecutive action failures before that
// action's breaker opens and the daemon stops attempting it automatically.
const failureThreshold = 3

// recoveryTimeout is how long an open breaker waits before allowing a probe.
const recoveryTimeout = 5 * time.Minute

// AutonomousDaemon schedules and runs one agent's background actions. The
// core instantiates one daemon per agent lazily on first reply (§4.P);
// failure to initialize it is non-fatal to that reply.
type AutonomousDaemon struct {
	agentID   string
	executors map[entity.ActionType]ActionExecutor
	logger    *zap.Logger

	cronRunner *cron.Cron

	mu       sync.Mutex
	running  bool
	shutdown bool
	pending  map[string]entity.ScheduledTask
	breakers map[entity.ActionType]*llm.CircuitBreaker
}

// New creates a daemon for agentID. Register action executors with
// RegisterExecutor before Start; any action scheduled without a registered
// executor fails immediately and trips that action's breaker.
func New(agentID string, logger *zap.Logger) *AutonomousDaemon {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutonomousDaemon{
		agentID:   agentID,
		executors: make(map[entity.ActionType]ActionExecutor),
		logger:    logger,
		pending:   make(map[string]entity.ScheduledTask),
		breakers:  make(map[entity.ActionType]*llm.CircuitBreaker),
	}
}

// RegisterExecutor binds an ActionType to the executor that runs it. Must be
// called before Start; it is not safe to call concurrently with scheduling.
func (d *AutonomousDaemon) RegisterExecutor(action entity.ActionType, executor ActionExecutor) {
	d.executors[action] = executor
	d.breakers[action] = llm.NewCircuitBreaker(failureThreshold, recoveryTimeout)
}

// Start begins the cron scheduler. Safe to call once; a second Start before
// Stop is a no-op.
func (d *AutonomousDaemon) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.shutdown {
		return fmt.Errorf("daemon: cannot start a shut down daemon")
	}
	if d.running {
		return nil
	}

	d.cronRunner = cron.New(cron.WithSeconds())
	d.cronRunner.Start()
	d.running = true
	d.logger.Info("autonomous daemon started", zap.String("agent_id", d.agentID))
	return nil
}

// Stop halts the scheduler and drops every pending task. After Stop, the
// daemon is shut down permanently; it cannot be restarted.
func (d *AutonomousDaemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cronRunner != nil {
		stopCtx := d.cronRunner.Stop()
		<-stopCtx.Done()
	}
	d.running = false
	d.shutdown = true
	d.pending = make(map[string]entity.ScheduledTask)
	d.logger.Info("autonomous daemon stopped", zap.String("agent_id", d.agentID))
}

// IsRunning reports whether Start has been called and Stop has not.
func (d *AutonomousDaemon) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// IsShutdown reports whether Stop has been called.
func (d *AutonomousDaemon) IsShutdown() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown
}

// PendingTaskCount returns the number of tasks scheduled but not yet run.
func (d *AutonomousDaemon) PendingTaskCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// ScheduleOnce registers a one-shot task to run at `at`. It is implemented
// as a self-removing cron entry: the cron spec pins every field (second
// through month) to the target instant, and the job removes its own entry
// once it has fired so it never repeats.
func (d *AutonomousDaemon) ScheduleOnce(description string, priority entity.TaskPriority, at time.Time, action entity.ActionType) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return "", fmt.Errorf("daemon: not running")
	}

	taskID := uuid.NewString()
	task := entity.ScheduledTask{
		ID:          taskID,
		Description: description,
		Priority:    priority,
		Action:      action,
		At:          at,
		CreatedAt:   time.Now(),
	}

	spec := fmt.Sprintf("%d %d %d %d %d *", at.Second(), at.Minute(), at.Hour(), at.Day(), int(at.Month()))

	var entryID cron.EntryID
	var err error
	entryID, err = d.cronRunner.AddFunc(spec, func() {
		d.runTask(task)
		d.mu.Lock()
		delete(d.pending, taskID)
		d.mu.Unlock()
		d.cronRunner.Remove(entryID)
	})
	if err != nil {
		return "", fmt.Errorf("daemon: schedule task: %w", err)
	}

	d.pending[taskID] = task
	d.logger.Info("scheduled autonomous task",
		zap.String("task_id", taskID),
		zap.String("description", description),
		zap.String("priority", priority.String()),
		zap.String("action", string(action)),
		zap.Time("at", at),
	)
	return taskID, nil
}

// runTask executes task's action through its registered executor, recording
// the outcome against that action's circuit breaker. Panics from a
// misbehaving executor are recovered so one bad action cannot kill the
// scheduler goroutine.
func (d *AutonomousDaemon) runTask(task entity.ScheduledTask) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("autonomous task panicked", zap.String("task_id", task.ID), zap.Any("recovered", r))
			d.recordOutcome(task.Action, fmt.Errorf("panic: %v", r))
		}
	}()

	d.mu.Lock()
	breaker := d.breakers[task.Action]
	executor := d.executors[task.Action]
	d.mu.Unlock()

	if breaker != nil && !breaker.Allow() {
		d.logger.Warn("skipping task, breaker open", zap.String("task_id", task.ID), zap.String("action", string(task.Action)))
		return
	}

	if executor == nil {
		d.logger.Error("no executor registered for action", zap.String("action", string(task.Action)))
		d.recordOutcome(task.Action, fmt.Errorf("no executor registered"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	err := executor.Execute(ctx, task)
	d.recordOutcome(task.Action, err)
	if err != nil {
		d.logger.Error("autonomous task failed", zap.String("task_id", task.ID), zap.Error(err))
	} else {
		d.logger.Info("autonomous task completed", zap.String("task_id", task.ID))
	}
}

func (d *AutonomousDaemon) recordOutcome(action entity.ActionType, err error) {
	d.mu.Lock()
	breaker := d.breakers[action]
	d.mu.Unlock()
	if breaker == nil {
		return
	}
	if err != nil {
		breaker.RecordFailure()
	} else {
		breaker.RecordSuccess()
	}
}

// FailsafeStatus returns every registered action's circuit breaker state.
func (d *AutonomousDaemon) FailsafeStatus() []entity.BreakerStatus {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]entity.BreakerStatus, 0, len(d.breakers))
	for action, breaker := range d.breakers {
		out = append(out, entity.BreakerStatus{
			Name:                string(action),
			State:               breakerStateOf(breaker.State()),
			ConsecutiveFailures: breaker.FailureCount(),
		})
	}
	return out
}

func breakerStateOf(state llm.CircuitState) entity.BreakerState {
	switch state {
	case llm.CircuitOpen:
		return entity.BreakerOpen
	case llm.CircuitHalfOpen:
		return entity.BreakerHalfOpen
	default:
		return entity.BreakerClosed
	}
}
