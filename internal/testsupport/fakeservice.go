// Package testsupport provides an in-process stand-in for the traversal and
// volume services used by package tests.
package testsupport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/roivol/roivol/pkg/store"
)

// RawBody is written to the response verbatim instead of being JSON encoded.
type RawBody string

// FakeService answers /traverse_folder and /calculate_volume from canned responses.
type FakeService struct {
	server *httptest.Server

	mu          sync.Mutex
	traverse    any
	volumes     map[string]any
	gates       map[string]chan struct{}
	calls       map[string]int
	volumeCalls map[string]int
	started     chan string
}

// NewFakeService starts a fake service that is closed when the test ends.
func NewFakeService(t *testing.T) *FakeService {
	t.Helper()
	f := &FakeService{
		traverse:    map[string]any{"status": "success", "dicom_directories": []store.Entry{}},
		volumes:     make(map[string]any),
		gates:       make(map[string]chan struct{}),
		calls:       make(map[string]int),
		volumeCalls: make(map[string]int),
		started:     make(chan string, 64),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/traverse_folder", f.handleTraverse)
	mux.HandleFunc("/calculate_volume", f.handleCalculate)
	f.server = httptest.NewServer(mux)
	t.Cleanup(func() {
		f.releaseAll()
		f.server.Close()
	})
	return f
}

// URL is the base url of the fake service.
func (f *FakeService) URL() string {
	return f.server.URL
}

// SetDirectories makes traversals succeed with the given entries.
func (f *FakeService) SetDirectories(entries ...store.Entry) {
	if entries == nil {
		entries = []store.Entry{}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.traverse = map[string]any{"status": "success", "message": "ok", "dicom_directories": entries}
}

// SetTraverseResponse overrides the traversal response body.
func (f *FakeService) SetTraverseResponse(body any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.traverse = body
}

// SetVolume makes the computation for folder succeed with v.
func (f *FakeService) SetVolume(folder string, v any) {
	f.SetVolumeResponse(folder, map[string]any{"status": "success", "message": "ok", "volume_result": v})
}

// SetVolumeError makes the computation for folder fail with message.
func (f *FakeService) SetVolumeError(folder, message string) {
	f.SetVolumeResponse(folder, map[string]any{"status": "error", "message": message})
}

// SetVolumeResponse overrides the computation response body for folder.
func (f *FakeService) SetVolumeResponse(folder string, body any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volumes[folder] = body
}

// Hold blocks computations for folder until the returned release is called.
func (f *FakeService) Hold(folder string) (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gates[folder] = gate
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			owned := f.gates[folder] == gate
			if owned {
				delete(f.gates, folder)
			}
			f.mu.Unlock()
			// releaseAll has closed it otherwise.
			if owned {
				close(gate)
			}
		})
	}
}

// Started delivers the folder of every computation request as it arrives.
func (f *FakeService) Started() <-chan string {
	return f.started
}

// Calls returns how many requests reached path.
func (f *FakeService) Calls(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

// VolumeCalls returns how many computation requests were issued for folder.
func (f *FakeService) VolumeCalls(folder string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volumeCalls[folder]
}

type fakeRequest struct {
	FolderPath string `json:"folder_path"`
	ROIFile    string `json:"roi_file"`
}

func (f *FakeService) handleTraverse(w http.ResponseWriter, r *http.Request) {
	var req fakeRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	f.calls[r.URL.Path]++
	body := f.traverse
	f.mu.Unlock()

	writeBody(w, body)
}

func (f *FakeService) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req fakeRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	f.calls[r.URL.Path]++
	f.volumeCalls[req.FolderPath]++
	gate := f.gates[req.FolderPath]
	f.mu.Unlock()

	select {
	case f.started <- req.FolderPath:
	default:
	}

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	f.mu.Lock()
	body, ok := f.volumes[req.FolderPath]
	f.mu.Unlock()
	if !ok {
		body = map[string]any{"status": "error", "message": "无效的文件夹路径"}
	}
	writeBody(w, body)
}

func (f *FakeService) releaseAll() {
	f.mu.Lock()
	gates := f.gates
	f.gates = make(map[string]chan struct{})
	f.mu.Unlock()
	for _, g := range gates {
		close(g)
	}
}

func writeBody(w http.ResponseWriter, body any) {
	if raw, ok := body.(RawBody); ok {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(raw))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}
