package session_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/roivol/roivol/internal/testsupport"
	"github.com/roivol/roivol/pkg/errors"
	"github.com/roivol/roivol/pkg/export"
	"github.com/roivol/roivol/pkg/notify"
	"github.com/roivol/roivol/pkg/session"
	"github.com/roivol/roivol/pkg/store"
	"github.com/roivol/roivol/pkg/view"
)

type fakeUploader struct {
	mu    sync.Mutex
	names []string
	types []string
	err   error
}

func (u *fakeUploader) Upload(_ context.Context, fileName string, _ []byte, contentType string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return "", u.err
	}
	u.names = append(u.names, fileName)
	u.types = append(u.types, contentType)
	return "s3://bucket/exports/" + fileName, nil
}

func fixedNow() time.Time {
	return time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)
}

func newSession(t *testing.T, svc *testsupport.FakeService, mutate func(*session.Options)) *session.Session {
	t.Helper()
	opts := session.Options{
		ServerURL:      svc.URL(),
		NotifyDuration: time.Minute,
		ExportDir:      t.TempDir(),
		ExportEncoding: export.EncodingUTF8,
		Now:            fixedNow,
	}
	if mutate != nil {
		mutate(&opts)
	}
	s, err := session.New(opts)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestNew_InvalidURL(t *testing.T) {
	if _, err := session.New(session.Options{ServerURL: "ftp://example"}); err == nil {
		t.Fatal("expected error for non-http url")
	}
}

func TestSession_TraverseComputeExport(t *testing.T) {
	svc := testsupport.NewFakeService(t)
	svc.SetDirectories(
		store.Entry{FolderPath: "/data/p1", ROIFile: "roi.nii"},
		store.Entry{FolderPath: "/data/p2", ROIFile: "roi.nii"},
	)
	svc.SetVolume("/data/p1", 12.5)
	svc.SetVolumeError("/data/p2", "ROI文件不存在")

	var mu sync.Mutex
	var rows []view.Row
	s := newSession(t, svc, func(o *session.Options) {
		o.OnRow = func(r view.Row) {
			mu.Lock()
			rows = append(rows, r)
			mu.Unlock()
		}
	})
	ctx := context.Background()

	snap, err := s.Submit(ctx, " /data ", "roi.nii")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(snap.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(snap.Items))
	}
	if got := s.Notifications().Success; got != "成功遍历文件夹，找到 2 个DICOM目录" {
		t.Errorf("success = %q", got)
	}

	if started := s.ComputeAll(ctx); started != 2 {
		t.Fatalf("ComputeAll started %d, want 2", started)
	}
	s.Wait()

	items := s.Snapshot().Items
	if items[0].Status != store.Completed || items[0].Volume == nil || items[0].Volume.String() != "12.5" {
		t.Errorf("item 0 = %+v", items[0])
	}
	if items[1].Status != store.Pending || items[1].Failure != "ROI文件不存在" {
		t.Errorf("item 1 = %+v", items[1])
	}
	if got := s.Notifications().Error; got != "体积计算失败: ROI文件不存在" {
		t.Errorf("error = %q", got)
	}

	mu.Lock()
	if len(rows) == 0 {
		t.Error("expected per-row updates")
	}
	mu.Unlock()

	if out := s.Render(); !strings.Contains(out, "12.5") || !strings.Contains(out, view.ResultFailed) {
		t.Errorf("render missing results:\n%s", out)
	}

	res, err := s.Export(ctx)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if filepath.Base(res.Path) != "dicom_volume_results_2024-03-09.csv" {
		t.Errorf("path = %s", res.Path)
	}
	if res.Rows != 2 {
		t.Errorf("rows = %d", res.Rows)
	}
	data, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatal(err)
	}
	want := export.Header + "\n" +
		"/data/p1,roi.nii,12.5\n" +
		"/data/p2,roi.nii," + export.Placeholder + "\n"
	if string(data) != want {
		t.Errorf("csv =\n%q\nwant\n%q", data, want)
	}
	if got := s.Notifications().Success; got != session.MsgExported {
		t.Errorf("success = %q", got)
	}
}

func TestSession_ExportEmpty(t *testing.T) {
	svc := testsupport.NewFakeService(t)
	s := newSession(t, svc, nil)

	_, err := s.Export(context.Background())
	if !errors.Is(err, errors.ErrNoData) {
		t.Fatalf("err = %v, want ErrNoData", err)
	}
	if got := s.Notifications().Error; got != session.MsgNoData {
		t.Errorf("error = %q", got)
	}
}

func TestSession_ExportUpload(t *testing.T) {
	svc := testsupport.NewFakeService(t)
	svc.SetDirectories(store.Entry{FolderPath: "/data/p1", ROIFile: "roi.nii"})
	up := &fakeUploader{}
	s := newSession(t, svc, func(o *session.Options) {
		o.Uploader = up
		o.ExportEncoding = export.EncodingGB18030
	})
	ctx := context.Background()
	if _, err := s.Submit(ctx, "/data", "roi.nii"); err != nil {
		t.Fatal(err)
	}

	res, err := s.Export(ctx)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if res.Location != "s3://bucket/exports/dicom_volume_results_2024-03-09.csv" {
		t.Errorf("location = %s", res.Location)
	}
	if len(up.types) != 1 || up.types[0] != "text/csv;charset=gb18030" {
		t.Errorf("content types = %v", up.types)
	}
}

func TestSession_UploadFailureKeepsLocalFile(t *testing.T) {
	svc := testsupport.NewFakeService(t)
	svc.SetDirectories(store.Entry{FolderPath: "/data/p1", ROIFile: "roi.nii"})
	s := newSession(t, svc, func(o *session.Options) {
		o.Uploader = &fakeUploader{err: errors.New("access denied")}
	})
	ctx := context.Background()
	if _, err := s.Submit(ctx, "/data", "roi.nii"); err != nil {
		t.Fatal(err)
	}

	res, err := s.Export(ctx)
	if err == nil {
		t.Fatal("expected upload error")
	}
	if res == nil {
		t.Fatal("expected local result")
	}
	if _, statErr := os.Stat(res.Path); statErr != nil {
		t.Errorf("local export missing: %v", statErr)
	}
	if got := s.Notifications().Error; got != "access denied" {
		t.Errorf("error = %q", got)
	}
}

func TestSession_ComputeGuard(t *testing.T) {
	svc := testsupport.NewFakeService(t)
	svc.SetDirectories(store.Entry{FolderPath: "/data/p1", ROIFile: "roi.nii"})
	svc.SetVolume("/data/p1", 3)
	release := svc.Hold("/data/p1")
	s := newSession(t, svc, nil)
	ctx := context.Background()
	if _, err := s.Submit(ctx, "/data", "roi.nii"); err != nil {
		t.Fatal(err)
	}

	if err := s.Compute(ctx, 0); err != nil {
		t.Fatalf("Compute: %v", err)
	}
	<-svc.Started()
	if err := s.Compute(ctx, 0); !errors.Is(err, errors.ErrProcessing) {
		t.Errorf("second Compute err = %v, want ErrProcessing", err)
	}
	release()
	s.Wait()

	if n := svc.VolumeCalls("/data/p1"); n != 1 {
		t.Errorf("volume calls = %d, want 1", n)
	}
}

func TestSession_NotifySink(t *testing.T) {
	svc := testsupport.NewFakeService(t)
	var mu sync.Mutex
	var kinds []notify.Kind
	s := newSession(t, svc, func(o *session.Options) {
		o.NotifySink = func(kind notify.Kind, _ string) {
			mu.Lock()
			kinds = append(kinds, kind)
			mu.Unlock()
		}
	})

	if _, err := s.Submit(context.Background(), "", "roi.nii"); err == nil {
		t.Fatal("expected validation error")
	}
	if svc.Calls("/traverse_folder") != 0 {
		t.Error("validation failure must not reach the service")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(kinds) != 1 || kinds[0] != notify.KindError {
		t.Errorf("kinds = %v", kinds)
	}
}
