// Package plan turns free-form user requests into structured plans and
// executes them step by step. The engine is a small state machine:
//
//	idle -> planning -> ready -> executing -> done
//
// with ready reachable from both planning (success or failure) and executing
// (cancellation or recoverable failure).
package plan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bosun-sh/bosun/internal/capability"
	"github.com/bosun-sh/bosun/internal/session"
	"github.com/bosun-sh/bosun/prompts"
)

// State is the engine's lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StatePlanning  State = "planning"
	StateReady     State = "ready"
	StateExecuting State = "executing"
	StateDone      State = "done"
)

// ErrBusy is returned when Plan or Act is called while another Plan or Act is
// in flight. The engine does not queue concurrent requests; callers must
// resolve or cancel the previous one first.
var ErrBusy = errors.New("plan engine busy")

// DefaultTimeout bounds each generation request. Hitting it follows the same
// cancellation path as an explicit user cancel.
const DefaultTimeout = 30 * time.Second

// StepFunc observes step progress during Act. It is called after each status
// change with the step index and its new state.
type StepFunc func(index int, step session.PlanStep)

// Engine drives plan creation and execution against an injected text
// generator. It holds only a transient reference to the in-progress plan;
// final state is handed back to the caller on completion or cancellation.
type Engine struct {
	mu       sync.Mutex
	state    State
	lastErr  error
	inFlight bool
	// cancel aborts the in-flight request. Each Plan/Act call derives a
	// fresh context, so a cancelled token never leaks into the next call.
	cancel context.CancelFunc

	gen     capability.TextGenerator
	timeout time.Duration
	logger  *zap.Logger
}

// NewEngine creates an idle engine.
func NewEngine(gen capability.TextGenerator, timeout time.Duration, logger *zap.Logger) *Engine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		state:   StateIdle,
		gen:     gen,
		timeout: timeout,
		logger:  logger,
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Err returns the last recorded error, cleared by Cancel and by any
// successful Plan or Act.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Plan decomposes query into ordered steps via the text generator. On success
// the engine is ready and the plan is returned; on failure the engine returns
// to ready, records the error, and rethrows it. Callers must not assume
// silent recovery.
func (e *Engine) Plan(ctx context.Context, query string) (*session.PendingPlan, error) {
	runCtx, err := e.begin(ctx, StatePlanning)
	if err != nil {
		return nil, err
	}

	output, err := e.collect(runCtx, prompts.BuildPlanPrompt(query))
	if err != nil {
		err = fmt.Errorf("generating plan: %w", err)
		e.finish(StateReady, err)
		return nil, err
	}

	steps, err := ParseSteps(output)
	if err != nil {
		err = fmt.Errorf("parsing plan: %w", err)
		e.finish(StateReady, err)
		return nil, err
	}

	e.logger.Debug("plan generated", zap.Int("steps", len(steps)))
	e.finish(StateReady, nil)
	return &session.PendingPlan{Query: query, Steps: steps}, nil
}

// Act executes p's steps sequentially from startIndex, respecting
// cancellation at every step boundary and stream chunk. Natural completion
// moves the engine to done. Cancellation (or a request timeout, which takes
// the same path) returns the engine to ready and reports nil to the caller:
// it is an expected outcome, not an error. Any other failure returns the
// engine to ready, records the error, and rethrows. p's step statuses and
// StartIndex cursor are updated in place so a retained plan resumes
// mid-flight.
func (e *Engine) Act(ctx context.Context, p *session.PendingPlan, startIndex int, onStep StepFunc) error {
	if p == nil {
		return errors.New("act: nil plan")
	}
	if startIndex < 0 || startIndex > len(p.Steps) {
		return fmt.Errorf("act: start index %d out of range", startIndex)
	}

	runCtx, err := e.begin(ctx, StateExecuting)
	if err != nil {
		return err
	}

	for i := startIndex; i < len(p.Steps); i++ {
		if runCtx.Err() != nil {
			p.Steps[i].Status = session.StepPending
			e.finish(StateReady, nil)
			return nil
		}

		p.Steps[i].Status = session.StepRunning
		notify(onStep, i, p.Steps[i])

		_, err := e.collect(runCtx, prompts.BuildStepPrompt(p.Query, p.Steps[i].Description, i+1, len(p.Steps)))
		if err != nil {
			if isCancellation(err) {
				p.Steps[i].Status = session.StepPending
				notify(onStep, i, p.Steps[i])
				e.logger.Debug("act cancelled", zap.Int("step", i))
				e.finish(StateReady, nil)
				return nil
			}
			p.Steps[i].Status = session.StepFailed
			notify(onStep, i, p.Steps[i])
			err = fmt.Errorf("executing step %d: %w", i+1, err)
			e.finish(StateReady, err)
			return err
		}

		p.Steps[i].Status = session.StepDone
		p.StartIndex = i + 1
		notify(onStep, i, p.Steps[i])
	}

	e.finish(StateDone, nil)
	return nil
}

// Cancel signals abort to the in-flight Plan or Act, clears the recorded
// error, and moves the engine to ready. The cancellation token is consumed
// here; the next Plan or Act mints its own, so it is never pre-cancelled.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.lastErr = nil
	if e.state == StatePlanning || e.state == StateExecuting {
		e.state = StateReady
	}
}

// begin transitions into an in-flight state and derives the run context
// carrying the current cancellation token. At most one Plan or Act runs at a
// time per engine. Any quiescent state (idle, ready, done) admits a new
// request and is treated as ready: a plan restored from a save point starts
// its Act from idle, and re-planning after a completed plan starts from done.
func (e *Engine) begin(ctx context.Context, next State) (context.Context, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight {
		return nil, ErrBusy
	}
	e.inFlight = true
	e.state = next

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	return runCtx, nil
}

// finish commits the terminal state of a Plan or Act call and releases the
// cancellation token.
func (e *Engine) finish(next State, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.inFlight = false
	e.state = next
	e.lastErr = err
}

// collect runs one bounded generation request and concatenates its streamed
// text. The per-request timeout triggers the cancellation path.
func (e *Engine) collect(ctx context.Context, prompt string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	stream, err := e.gen.Ask(reqCtx, prompt, nil)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for {
		select {
		case <-reqCtx.Done():
			return "", reqCtx.Err()
		case chunk, ok := <-stream:
			if !ok {
				return sb.String(), nil
			}
			sb.WriteString(chunk.TextDelta)
		}
	}
}

func notify(onStep StepFunc, i int, step session.PlanStep) {
	if onStep != nil {
		onStep(i, step)
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
