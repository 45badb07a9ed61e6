package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"campaign-automation/internal/models"
	"campaign-automation/internal/telemetry"
)

// ErrAutomationInactive is returned when execution is requested for an
// automation whose is_active gate is off. Inactive automations must never
// produce side effects or execution rows.
var ErrAutomationInactive = errors.New("automation is not active")

// Store is the slice of persistence the engine needs. store.Store satisfies it.
type Store interface {
	ListActiveAutomations(ctx context.Context) ([]models.Automation, error)
	GetAutomation(ctx context.Context, id string) (models.Automation, error)
	UpdateLastRun(ctx context.Context, id string, t time.Time) error
	IncrementRunCount(ctx context.Context, id string) error
	AppendExecution(ctx context.Context, e models.AutomationExecution) error
}

// Engine periodically evaluates active automations and runs their action
// pipelines. One instance is constructed and owned by the composition root;
// there is no package-level singleton.
type Engine struct {
	log      *logrus.Logger
	store    Store
	eval     *Evaluator
	actions  *Executor
	interval time.Duration
	// countPartial counts a run even when only part of the action list
	// succeeded.
	countPartial bool
	now          func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewEngine builds the engine. interval <= 0 defaults to 5 minutes.
func NewEngine(log *logrus.Logger, st Store, eval *Evaluator, actions *Executor, interval time.Duration, countPartial bool) *Engine {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Engine{
		log:          log,
		store:        st,
		eval:         eval,
		actions:      actions,
		interval:     interval,
		countPartial: countPartial,
		now:          time.Now,
	}
}

// Start launches the evaluation loop: one immediate cycle, then one per
// interval. Calling Start while running is a no-op.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		e.log.Info("automation engine already running")
		return
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	e.running = true
	e.cancel = cancel
	e.done = make(chan struct{})
	done := e.done
	e.mu.Unlock()

	e.log.WithField("interval", e.interval).Info("automation engine started")
	go e.run(ctx, loopCtx, done)
}

// run uses ctx for the work itself and loopCtx only to end the loop, so Stop
// lets an in-flight cycle finish.
func (e *Engine) run(ctx, loopCtx context.Context, done chan struct{}) {
	defer close(done)

	e.RunCycle(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-loopCtx.Done():
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.RunCycle(ctx)
		}
	}
}

// Stop cancels the interval and waits for the loop to exit. An in-flight
// cycle runs to completion first. Stopping a stopped engine is a no-op.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	cancel := e.cancel
	done := e.done
	e.running = false
	e.cancel = nil
	e.mu.Unlock()

	cancel()
	<-done
	e.log.Info("automation engine stopped")
}

// Running reports whether the loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// RunCycle evaluates every active automation once. A failure in one
// automation is recorded and does not abort the others.
func (e *Engine) RunCycle(ctx context.Context) {
	telemetry.AutomationCycles.Inc()

	automations, err := e.store.ListActiveAutomations(ctx)
	if err != nil {
		e.log.WithError(err).Error("list active automations")
		return
	}

	for _, a := range automations {
		e.evaluateOne(ctx, a, nil)
	}
}

// ExecResult is the outcome of one evaluation pass.
type ExecResult struct {
	Triggered bool   `json:"triggered"`
	Executed  bool   `json:"executed"`
	Message   string `json:"message"`
}

// ExecuteOne runs the single-automation path used by the manual trigger API
// and the execute_automation job type. Inactive automations are refused.
func (e *Engine) ExecuteOne(ctx context.Context, id string, triggerData json.RawMessage) (ExecResult, error) {
	a, err := e.store.GetAutomation(ctx, id)
	if err != nil {
		return ExecResult{}, err
	}
	if !a.IsActive {
		return ExecResult{}, ErrAutomationInactive
	}
	return e.evaluateOne(ctx, a, triggerData), nil
}

// evaluateOne performs one full evaluation pass for one automation: trigger,
// actions, execution row, run bookkeeping. Errors are swallowed into the
// execution row.
func (e *Engine) evaluateOne(ctx context.Context, a models.Automation, triggerData json.RawMessage) ExecResult {
	now := e.now().UTC()

	eval, err := e.eval.Evaluate(ctx, a, triggerData)
	if err != nil {
		res := ExecResult{Message: fmt.Sprintf("Trigger evaluation failed: %v", err)}
		e.record(ctx, a, res, triggerData, now)
		return res
	}

	if !eval.Fired {
		res := ExecResult{Message: "Trigger conditions not met"}
		e.record(ctx, a, res, triggerData, now)
		return res
	}
	telemetry.AutomationsTriggered.Inc()

	results := e.actions.Run(ctx, a, eval)
	succeeded := 0
	for _, r := range results {
		if r.Error == nil {
			succeeded++
		} else {
			telemetry.AutomationActionFailures.Inc()
		}
	}

	res := ExecResult{
		Triggered: true,
		Executed:  succeeded == len(results),
		Message:   fmt.Sprintf("Executed %d/%d actions successfully", succeeded, len(results)),
	}
	e.record(ctx, a, res, triggerData, now)

	if res.Executed || e.countPartial {
		if err := e.store.IncrementRunCount(ctx, a.ID); err != nil {
			e.log.WithError(err).WithField("automation", a.ID).Error("increment run count")
		}
	}
	return res
}

// record writes the execution row and stamps last_run. last_run updates on
// every evaluation pass, triggered or not.
func (e *Engine) record(ctx context.Context, a models.Automation, res ExecResult, triggerData json.RawMessage, now time.Time) {
	err := e.store.AppendExecution(ctx, models.AutomationExecution{
		AutomationID: a.ID,
		Triggered:    res.Triggered,
		Executed:     res.Executed,
		Message:      res.Message,
		TriggerData:  triggerData,
	})
	if err != nil {
		e.log.WithError(err).WithField("automation", a.ID).Error("append execution row")
	}
	if err := e.store.UpdateLastRun(ctx, a.ID, now); err != nil {
		e.log.WithError(err).WithField("automation", a.ID).Error("update last run")
	}
}
