package fsm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/roivol/roivol/internal/testsupport"
	"github.com/roivol/roivol/pkg/errors"
	"github.com/roivol/roivol/pkg/jobs"
	"github.com/roivol/roivol/pkg/remote"
	"github.com/roivol/roivol/pkg/store"
)

type calcResult struct {
	volume store.Volume
	err    error
}

// fakeCalc answers per folder and counts every call.
type fakeCalc struct {
	mu      sync.Mutex
	results map[string]calcResult
	calls   map[string]int
}

func newFakeCalc() *fakeCalc {
	return &fakeCalc{results: make(map[string]calcResult), calls: make(map[string]int)}
}

func (c *fakeCalc) set(folder string, v store.Volume, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[folder] = calcResult{volume: v, err: err}
}

func (c *fakeCalc) CalculateVolume(ctx context.Context, folderPath, roiFile string) (store.Volume, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[folderPath]++
	r, ok := c.results[folderPath]
	if !ok {
		return store.Volume{}, &remote.ServiceError{Op: calculateOp, Message: "无效的文件夹路径"}
	}
	return r.volume, r.err
}

func (c *fakeCalc) callCount(folder string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[folder]
}

// countingExecutor counts how often each job's done callback fires.
type countingExecutor struct {
	inner jobs.Executor

	mu    sync.Mutex
	dones map[string]int
}

func (e *countingExecutor) Execute(ctx context.Context, req jobs.Request, done func(jobs.Outcome)) error {
	return e.inner.Execute(ctx, req, func(o jobs.Outcome) {
		e.mu.Lock()
		e.dones[req.FolderPath]++
		e.mu.Unlock()
		done(o)
	})
}

func (e *countingExecutor) doneCount(folder string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dones[folder]
}

func newTestExecutor(t *testing.T, calc jobs.Calculator) *Executor {
	t.Helper()
	exec, err := NewExecutor(context.Background(), t.TempDir(), calc)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	t.Cleanup(func() { exec.Close(5 * time.Second) })
	return exec
}

func TestExecutor_SettlesThroughCoordinator(t *testing.T) {
	calc := newFakeCalc()
	calc.set("/data/ok", store.NumberVolume(12.5), nil)
	calc.set("/data/service", store.Volume{}, &remote.ServiceError{Op: calculateOp, Message: "ROI文件不存在"})
	calc.set("/data/transport", store.Volume{}, &remote.TransportError{Op: calculateOp, Err: errors.New("connection refused")})

	exec := &countingExecutor{inner: newTestExecutor(t, calc), dones: make(map[string]int)}

	s := store.New()
	s.Replace([]store.Entry{
		{FolderPath: "/data/ok", ROIFile: "roi.nii"},
		{FolderPath: "/data/service", ROIFile: "roi.nii"},
		{FolderPath: "/data/transport", ROIFile: "roi.nii"},
	})
	notes := &testsupport.Notes{}
	coord := jobs.NewCoordinator(s, exec, notes)

	if started := coord.ComputeAll(context.Background()); started != 3 {
		t.Fatalf("ComputeAll started %d, want 3", started)
	}

	waited := make(chan struct{})
	go func() {
		coord.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(10 * time.Second):
		t.Fatal("jobs did not settle")
	}

	items := s.Snapshot().Items
	tests := []struct {
		folder      string
		wantStatus  store.Status
		wantVolume  string
		wantFailure string
	}{
		{"/data/ok", store.Completed, "12.5", ""},
		{"/data/service", store.Pending, "", "ROI文件不存在"},
		{"/data/transport", store.Pending, "", "connection refused"},
	}
	for i, tt := range tests {
		t.Run(tt.folder, func(t *testing.T) {
			item := items[i]
			if item.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", item.Status, tt.wantStatus)
			}
			gotVolume := ""
			if item.Volume != nil {
				gotVolume = item.Volume.String()
			}
			if gotVolume != tt.wantVolume {
				t.Errorf("volume = %q, want %q", gotVolume, tt.wantVolume)
			}
			if item.Failure != tt.wantFailure {
				t.Errorf("failure = %q, want %q", item.Failure, tt.wantFailure)
			}
			if n := calc.callCount(tt.folder); n != 1 {
				t.Errorf("calculator called %d times, want 1", n)
			}
			if n := exec.doneCount(tt.folder); n != 1 {
				t.Errorf("done called %d times, want 1", n)
			}
		})
	}

	if got := notes.Successes(); len(got) != 1 || got[0] != jobs.MsgSucceeded {
		t.Errorf("unexpected success notes: %v", got)
	}
	if got := notes.Errors(); len(got) != 2 {
		t.Errorf("expected 2 error notes, got %v", got)
	}
}

func TestExecutor_RetriggerAfterFailure(t *testing.T) {
	calc := newFakeCalc()
	calc.set("/data/a", store.Volume{}, &remote.ServiceError{Op: calculateOp, Message: "busy"})
	exec := newTestExecutor(t, calc)

	s := store.New()
	s.Replace([]store.Entry{{FolderPath: "/data/a", ROIFile: "roi.nii"}})
	coord := jobs.NewCoordinator(s, exec, &testsupport.Notes{})

	if err := coord.Compute(context.Background(), 0); err != nil {
		t.Fatalf("first Compute: %v", err)
	}
	coord.Wait()
	if item := s.Snapshot().Items[0]; item.Status != store.Pending || item.Failure != "busy" {
		t.Fatalf("after failure: %+v", item)
	}

	calc.set("/data/a", store.TextVolume("1.5, 2.5"), nil)
	if err := coord.Compute(context.Background(), 0); err != nil {
		t.Fatalf("second Compute: %v", err)
	}
	coord.Wait()

	item := s.Snapshot().Items[0]
	if item.Status != store.Completed || item.Volume == nil || item.Volume.String() != "1.5, 2.5" {
		t.Errorf("after retry: %+v", item)
	}
	// A failed run is never retried by the manager: one call per trigger.
	if n := calc.callCount("/data/a"); n != 2 {
		t.Errorf("calculator called %d times, want 2", n)
	}
}
