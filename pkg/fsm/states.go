package fsm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roivol/roivol/pkg/errors"
	"github.com/roivol/roivol/pkg/jobs"
	"github.com/roivol/roivol/pkg/remote"
	"github.com/roivol/roivol/pkg/store"
	"github.com/superfly/fsm"
)

const calculateOp = "/calculate_volume"

// runs holds the settle callback of every run that has not settled yet.
type runs struct {
	mu      sync.Mutex
	pending map[string]func(jobs.Outcome)
}

func newRuns() *runs {
	return &runs{pending: make(map[string]func(jobs.Outcome))}
}

func (r *runs) add(runID string, done func(jobs.Outcome)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[runID] = done
}

// finish delivers o to the run's callback once; later calls are ignored.
func (r *runs) finish(runID string, o jobs.Outcome) bool {
	r.mu.Lock()
	done, ok := r.pending[runID]
	delete(r.pending, runID)
	r.mu.Unlock()

	if !ok {
		return false
	}
	done(o)
	return true
}

// handleDispatch calls the volume service and records the outcome. Failures
// are recorded, not returned, so the manager never retries a job.
func (e *Executor) handleDispatch(ctx context.Context, req *fsm.Request[JobRequest, JobResponse]) (*fsm.Response[JobResponse], error) {
	slog.Info("fsm_state_dispatch", "run_id", req.Msg.RunID, "folder_path", req.Msg.FolderPath)

	resp := req.W.Msg
	if resp == nil {
		resp = &JobResponse{}
	}

	v, err := e.calc.CalculateVolume(ctx, req.Msg.FolderPath, req.Msg.ROIFile)
	recordOutcome(resp, v, err)

	slog.Info("fsm_dispatch_complete", "run_id", req.Msg.RunID, "status", resp.Status)
	return fsm.NewResponse(resp), nil
}

// handleSettle hands the recorded outcome to the coordinator.
func (e *Executor) handleSettle(ctx context.Context, req *fsm.Request[JobRequest, JobResponse]) (*fsm.Response[JobResponse], error) {
	slog.Info("fsm_state_settle", "run_id", req.Msg.RunID)

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	if !e.runs.finish(req.Msg.RunID, outcomeFrom(resp)) {
		// Resumed after a restart: nobody is waiting for this run any more.
		slog.Warn("fsm_settle_orphaned", "run_id", req.Msg.RunID)
	}

	return fsm.NewResponse(resp), nil
}

func recordOutcome(resp *JobResponse, v store.Volume, err error) {
	if err == nil {
		resp.Volume = &v
		resp.ErrorMessage = ""
		resp.ServiceError = false
		resp.Status = StatusCompleted
		return
	}

	resp.Volume = nil
	resp.Status = StatusFailed
	var serviceErr *remote.ServiceError
	if errors.As(err, &serviceErr) {
		resp.ErrorMessage = serviceErr.Message
		resp.ServiceError = true
		return
	}
	resp.ErrorMessage = err.Error()
	resp.ServiceError = false
}

func outcomeFrom(resp *JobResponse) jobs.Outcome {
	switch {
	case resp.Status == StatusCompleted && resp.Volume != nil:
		return jobs.Outcome{Volume: *resp.Volume}
	case resp.ServiceError:
		return jobs.Outcome{Err: &remote.ServiceError{Op: calculateOp, Message: resp.ErrorMessage}}
	case resp.ErrorMessage != "":
		return jobs.Outcome{Err: &remote.TransportError{Op: calculateOp, Err: errors.New(resp.ErrorMessage)}}
	default:
		return jobs.Outcome{Err: &remote.TransportError{Op: calculateOp, Err: errors.New("job settled without an outcome")}}
	}
}
