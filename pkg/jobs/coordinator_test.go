package jobs_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/roivol/roivol/internal/testsupport"
	"github.com/roivol/roivol/pkg/errors"
	"github.com/roivol/roivol/pkg/jobs"
	"github.com/roivol/roivol/pkg/remote"
	"github.com/roivol/roivol/pkg/store"
)

type fixture struct {
	svc   *testsupport.FakeService
	store *store.Store
	notes *testsupport.Notes
	coord *jobs.Coordinator
}

func setup(t *testing.T, folders ...string) *fixture {
	t.Helper()
	svc := testsupport.NewFakeService(t)
	client, err := remote.NewClient(svc.URL(), 0)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	s := store.New()
	entries := make([]store.Entry, 0, len(folders))
	for _, f := range folders {
		entries = append(entries, store.Entry{FolderPath: f, ROIFile: "roi.nii"})
	}
	s.Replace(entries)
	notes := &testsupport.Notes{}
	return &fixture{
		svc:   svc,
		store: s,
		notes: notes,
		coord: jobs.NewCoordinator(s, jobs.NewDirectExecutor(client), notes),
	}
}

func (f *fixture) item(t *testing.T, index int) store.Item {
	t.Helper()
	return f.store.Snapshot().Items[index]
}

func waitStarted(t *testing.T, svc *testsupport.FakeService, folder string) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case got := <-svc.Started():
			if got == folder {
				return
			}
		case <-timeout:
			t.Fatalf("request for %s never arrived", folder)
		}
	}
}

func TestCompute_Success(t *testing.T) {
	f := setup(t, "/data/a")
	f.svc.SetVolume("/data/a", 12.5)

	if err := f.coord.Compute(context.Background(), 0); err != nil {
		t.Fatalf("compute failed: %v", err)
	}
	f.coord.Wait()

	item := f.item(t, 0)
	if item.Status != store.Completed || item.Volume == nil {
		t.Fatalf("expected completed item, got %+v", item)
	}
	if v, ok := item.Volume.Float64(); !ok || v != 12.5 {
		t.Errorf("expected exact volume 12.5, got %v", item.Volume)
	}
	if got := f.notes.Successes(); len(got) != 1 || got[0] != jobs.MsgSucceeded {
		t.Errorf("unexpected success notes: %v", got)
	}
}

func TestCompute_FailureRevertsToPending(t *testing.T) {
	f := setup(t, "/data/a")
	f.svc.SetVolumeError("/data/a", "警告: 掩膜中没有非零标签!")

	if err := f.coord.Compute(context.Background(), 0); err != nil {
		t.Fatalf("compute failed: %v", err)
	}
	f.coord.Wait()

	item := f.item(t, 0)
	if item.Status != store.Pending || item.HasResult() {
		t.Errorf("expected pending without result, got %+v", item)
	}
	if got := f.notes.Errors(); len(got) != 1 || got[0] != "体积计算失败: 警告: 掩膜中没有非零标签!" {
		t.Errorf("unexpected error notes: %v", got)
	}

	// A failed item can be triggered again.
	f.svc.SetVolume("/data/a", "8.000")
	if err := f.coord.Compute(context.Background(), 0); err != nil {
		t.Fatalf("retry rejected: %v", err)
	}
	f.coord.Wait()
	if item := f.item(t, 0); item.Status != store.Completed || item.Failure != "" {
		t.Errorf("expected completed item after retry, got %+v", item)
	}
}

func TestCompute_TransportFailure(t *testing.T) {
	f := setup(t, "/data/a")
	f.svc.SetVolumeResponse("/data/a", testsupport.RawBody("Bad Gateway"))

	_ = f.coord.Compute(context.Background(), 0)
	f.coord.Wait()

	if item := f.item(t, 0); item.Status != store.Pending || item.Failure == "" {
		t.Errorf("expected pending with failure, got %+v", item)
	}
	if got := f.notes.Errors(); len(got) != 1 || !strings.HasPrefix(got[0], "体积计算失败: malformed response") {
		t.Errorf("unexpected error notes: %v", got)
	}
}

func TestCompute_GuardPreventsSecondRequest(t *testing.T) {
	f := setup(t, "/data/a", "/data/b")
	f.svc.SetVolume("/data/a", 1)
	f.svc.SetVolume("/data/b", 2)
	release := f.svc.Hold("/data/a")

	if err := f.coord.Compute(context.Background(), 0); err != nil {
		t.Fatalf("compute failed: %v", err)
	}
	waitStarted(t, f.svc, "/data/a")

	for i := 0; i < 3; i++ {
		if err := f.coord.Compute(context.Background(), 0); !errors.Is(err, errors.ErrProcessing) {
			t.Errorf("expected ErrProcessing, got %v", err)
		}
	}

	// The guard is per item.
	if err := f.coord.Compute(context.Background(), 1); err != nil {
		t.Errorf("other item must not be blocked: %v", err)
	}

	release()
	f.coord.Wait()

	if n := f.svc.VolumeCalls("/data/a"); n != 1 {
		t.Errorf("expected exactly 1 request for /data/a, got %d", n)
	}
	if f.item(t, 0).Status != store.Completed || f.item(t, 1).Status != store.Completed {
		t.Errorf("expected both items completed: %+v", f.store.Snapshot().Items)
	}
}

func TestCompute_IndependentCompletionOrder(t *testing.T) {
	f := setup(t, "/data/a", "/data/b")
	f.svc.SetVolume("/data/a", 1)
	f.svc.SetVolume("/data/b", 2)
	releaseA := f.svc.Hold("/data/a")
	releaseB := f.svc.Hold("/data/b")

	if started := f.coord.ComputeAll(context.Background()); started != 2 {
		t.Fatalf("expected 2 jobs, got %d", started)
	}
	waitStarted(t, f.svc, "/data/a")

	releaseB()
	deadline := time.Now().Add(5 * time.Second)
	for f.item(t, 1).Status != store.Completed {
		if time.Now().After(deadline) {
			t.Fatal("item b never completed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if f.item(t, 0).Status != store.Processing {
		t.Errorf("item a must still be processing, got %s", f.item(t, 0).Status)
	}

	releaseA()
	f.coord.Wait()
	if f.item(t, 0).Status != store.Completed {
		t.Errorf("item a must complete, got %s", f.item(t, 0).Status)
	}
}

func TestCompute_SurvivesCallerCancellation(t *testing.T) {
	f := setup(t, "/data/a")
	f.svc.SetVolume("/data/a", 5)
	release := f.svc.Hold("/data/a")

	ctx, cancel := context.WithCancel(context.Background())
	_ = f.coord.Compute(ctx, 0)
	waitStarted(t, f.svc, "/data/a")
	cancel()
	release()
	f.coord.Wait()

	if item := f.item(t, 0); item.Status != store.Completed {
		t.Errorf("job must run to completion after cancel, got %+v", item)
	}
}

func TestCompute_StaleOutcomeDoesNotTouchNewSequence(t *testing.T) {
	f := setup(t, "/data/a")
	f.svc.SetVolume("/data/a", 5)
	release := f.svc.Hold("/data/a")

	_ = f.coord.Compute(context.Background(), 0)
	waitStarted(t, f.svc, "/data/a")

	f.store.Replace([]store.Entry{{FolderPath: "/data/x", ROIFile: "roi.nii"}})
	release()
	f.coord.Wait()

	item := f.item(t, 0)
	if item.FolderPath != "/data/x" || item.Status != store.Pending || item.HasResult() {
		t.Errorf("new sequence was mutated: %+v", item)
	}
	if got := f.notes.Successes(); len(got) != 1 {
		t.Errorf("settlement must still be reported, got %v", got)
	}
}

func TestCompute_OutOfRange(t *testing.T) {
	f := setup(t, "/data/a")
	if err := f.coord.Compute(context.Background(), 3); !errors.Is(err, errors.ErrIndexRange) {
		t.Errorf("expected ErrIndexRange, got %v", err)
	}
}

type failingExecutor struct{}

func (failingExecutor) Execute(ctx context.Context, req jobs.Request, done func(jobs.Outcome)) error {
	return fmt.Errorf("executor closed")
}

func TestCompute_ExecutorErrorReverts(t *testing.T) {
	s := store.New()
	s.Replace([]store.Entry{{FolderPath: "/data/a", ROIFile: "roi.nii"}})
	notes := &testsupport.Notes{}
	coord := jobs.NewCoordinator(s, failingExecutor{}, notes)

	if err := coord.Compute(context.Background(), 0); err != nil {
		t.Fatalf("compute failed: %v", err)
	}
	coord.Wait()

	if item := s.Snapshot().Items[0]; item.Status != store.Pending || item.Failure != "executor closed" {
		t.Errorf("expected reverted item, got %+v", item)
	}
	if got := notes.Errors(); len(got) != 1 || got[0] != "体积计算失败: executor closed" {
		t.Errorf("unexpected error notes: %v", got)
	}
}
