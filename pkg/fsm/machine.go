// Package fsm runs volume jobs as durable two-step state machines
// (dispatch, then settle) on the superfly/fsm manager. It implements the
// jobs.Executor contract: every run settles exactly once.
package fsm

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/roivol/roivol/pkg/errors"
	"github.com/roivol/roivol/pkg/jobs"
	"github.com/superfly/fsm"
)

const machineName = "volume-job"

// Executor issues jobs through the FSM manager.
type Executor struct {
	calc    jobs.Calculator
	manager *fsm.Manager
	start   fsm.Start[JobRequest, JobResponse]
	runs    *runs
}

// NewExecutor opens the FSM store at dbPath and registers the job machine.
func NewExecutor(ctx context.Context, dbPath string, calc jobs.Calculator) (*Executor, error) {
	slog.Info("fsm_executor_init", "db_path", dbPath)

	manager, err := fsm.New(fsm.Config{DBPath: dbPath})
	if err != nil {
		return nil, errors.Wrap(err, "FSM manager failed")
	}

	e := &Executor{calc: calc, manager: manager, runs: newRuns()}
	if err := e.register(ctx); err != nil {
		manager.Shutdown(time.Second)
		return nil, err
	}
	return e, nil
}

func (e *Executor) register(ctx context.Context) error {
	start, _, err := fsm.Register[JobRequest, JobResponse](e.manager, machineName).
		Start(StateDispatch, e.handleDispatch).
		To(StateSettle, e.handleSettle).
		End(StateFailed).
		Build(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to register FSM")
	}
	e.start = start
	return nil
}

// Execute implements jobs.Executor.
func (e *Executor) Execute(ctx context.Context, req jobs.Request, done func(jobs.Outcome)) error {
	runID := uuid.NewString()
	e.runs.add(runID, done)

	msg := &JobRequest{RunID: runID, FolderPath: req.FolderPath, ROIFile: req.ROIFile}
	version, err := e.start(ctx, runID, fsm.NewRequest(msg, &JobResponse{}))
	if err != nil {
		e.runs.finish(runID, jobs.Outcome{Err: errors.Wrap(err, "FSM start failed")})
		return nil
	}

	slog.Info("fsm_started", "run_id", runID, "version", version)

	go func() {
		err := e.manager.Wait(ctx, version)
		if err == nil {
			err = errors.New("job run ended without settling")
		} else {
			slog.Error("fsm_run_failed", "run_id", runID, "error", err)
			err = errors.Wrap(err, "FSM execution failed")
		}
		// No-op when settle already delivered the outcome.
		e.runs.finish(runID, jobs.Outcome{Err: err})
	}()
	return nil
}

// Close stops the manager, waiting up to timeout for running jobs.
func (e *Executor) Close(timeout time.Duration) {
	slog.Info("fsm_executor_shutdown", "timeout", timeout)
	e.manager.Shutdown(timeout)
}
