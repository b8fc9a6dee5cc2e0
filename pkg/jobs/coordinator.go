// Package jobs runs per-item volume computations. Each item has at most one
// job in flight; different items run independently and settle in any order.
package jobs

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roivol/roivol/pkg/errors"
	"github.com/roivol/roivol/pkg/remote"
	"github.com/roivol/roivol/pkg/store"
)

const (
	MsgSucceeded   = "体积计算成功"
	msgFailedLabel = "体积计算失败: "
)

// Request is the input of one job.
type Request struct {
	FolderPath string
	ROIFile    string
}

// Outcome is how a job settled: a volume, or an error.
type Outcome struct {
	Volume store.Volume
	Err    error
}

// Executor issues the remote computation for a request and calls done exactly
// once when it settles. Execute must not block on the computation itself.
type Executor interface {
	Execute(ctx context.Context, req Request, done func(Outcome)) error
}

// Notifier surfaces job outcomes to the user.
type Notifier interface {
	Success(message string)
	Error(message string)
}

// Coordinator starts jobs against the store and applies their outcomes.
type Coordinator struct {
	store    *store.Store
	exec     Executor
	notifier Notifier

	wg sync.WaitGroup
}

// NewCoordinator creates a coordinator.
func NewCoordinator(s *store.Store, exec Executor, notifier Notifier) *Coordinator {
	return &Coordinator{store: s, exec: exec, notifier: notifier}
}

// Compute starts a job for the item at index. It returns errors.ErrProcessing
// without issuing a request when the item already has a job in flight. The
// job is detached from ctx cancellation: once issued it runs until the
// transport settles.
func (c *Coordinator) Compute(ctx context.Context, index int) error {
	ref, item, err := c.store.Begin(index)
	if err != nil {
		slog.Warn("job_rejected", "index", index, "error", err)
		return err
	}

	slog.Info("job_dispatched", "index", index, "generation", ref.Generation, "folder_path", item.FolderPath)

	c.wg.Add(1)
	var once sync.Once
	done := func(o Outcome) {
		once.Do(func() {
			defer c.wg.Done()
			c.settle(ref, item, o)
		})
	}

	req := Request{FolderPath: item.FolderPath, ROIFile: item.ROIFile}
	if err := c.exec.Execute(context.WithoutCancel(ctx), req, done); err != nil {
		slog.Error("job_execute_failed", "index", index, "error", err)
		done(Outcome{Err: err})
	}
	return nil
}

// ComputeAll starts a job for every item that is not already processing and
// returns how many were started.
func (c *Coordinator) ComputeAll(ctx context.Context) int {
	started := 0
	for i := 0; i < c.store.Len(); i++ {
		if err := c.Compute(ctx, i); err != nil {
			continue
		}
		started++
	}
	slog.Info("jobs_dispatched", "count", started)
	return started
}

// Wait blocks until every started job has settled.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) settle(ref store.Ref, item store.Item, o Outcome) {
	if o.Err == nil {
		if _, err := c.store.Complete(ref, o.Volume); err != nil {
			slog.Warn("job_outcome_dropped", "index", ref.Index, "generation", ref.Generation, "error", err)
		} else {
			slog.Info("job_completed", "index", ref.Index, "folder_path", item.FolderPath, "volume", o.Volume.String())
		}
		c.notifier.Success(MsgSucceeded)
		return
	}

	reason := Reason(o.Err)
	if _, err := c.store.Revert(ref, reason); err != nil {
		slog.Warn("job_outcome_dropped", "index", ref.Index, "generation", ref.Generation, "error", err)
	} else {
		slog.Warn("job_failed", "index", ref.Index, "folder_path", item.FolderPath, "reason", reason)
	}
	c.notifier.Error(msgFailedLabel + reason)
}

// Reason is the user-facing failure reason of a job error: the service message
// for application errors, the transport error text otherwise.
func Reason(err error) string {
	var serviceErr *remote.ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Message
	}
	return err.Error()
}

// Calculator is the remote volume computation.
type Calculator interface {
	CalculateVolume(ctx context.Context, folderPath, roiFile string) (store.Volume, error)
}

// DirectExecutor runs every job on its own goroutine.
type DirectExecutor struct {
	calc Calculator
}

// NewDirectExecutor creates an in-process executor.
func NewDirectExecutor(calc Calculator) *DirectExecutor {
	return &DirectExecutor{calc: calc}
}

// Execute implements Executor.
func (e *DirectExecutor) Execute(ctx context.Context, req Request, done func(Outcome)) error {
	go func() {
		v, err := e.calc.CalculateVolume(ctx, req.FolderPath, req.ROIFile)
		done(Outcome{Volume: v, Err: err})
	}()
	return nil
}
