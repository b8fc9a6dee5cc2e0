// Package remote calls the folder-traversal and volume-computation services.
// Every call yields either a payload or one of two typed failures: a
// ServiceError when the service answered with status "error", or a
// TransportError when the call itself failed or the answer could not be read.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roivol/roivol/pkg/errors"
	"github.com/roivol/roivol/pkg/store"
)

const (
	traversePath  = "/traverse_folder"
	calculatePath = "/calculate_volume"

	statusSuccess = "success"
	statusError   = "error"

	maxResponseBytes = 16 << 20
)

// ServiceError is an application-level failure reported by the service.
type ServiceError struct {
	Op      string
	Message string
}

func (e *ServiceError) Error() string {
	return e.Message
}

// TransportError is a failure to reach the service or to decode its answer.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Client provides the two service calls over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the service at baseURL. A zero timeout
// leaves calls unbounded; they settle only when the transport does.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, errors.Wrap(err, "invalid server url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", baseURL)
	}

	slog.Info("remote_client_init", "server_url", u.String(), "timeout", timeout)

	return &Client{
		baseURL:    strings.TrimRight(u.String(), "/"),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type request struct {
	FolderPath string `json:"folder_path"`
	ROIFile    string `json:"roi_file"`
}

type envelope struct {
	Status           string        `json:"status"`
	Message          string        `json:"message"`
	DicomDirectories []store.Entry `json:"dicom_directories"`
	VolumeResult     *store.Volume `json:"volume_result"`
}

// TraverseFolder asks the service for the DICOM sub-directories of folderPath.
func (c *Client) TraverseFolder(ctx context.Context, folderPath, roiFile string) ([]store.Entry, error) {
	env, err := c.post(ctx, traversePath, request{FolderPath: folderPath, ROIFile: roiFile})
	if err != nil {
		return nil, err
	}

	entries := env.DicomDirectories
	if entries == nil {
		entries = []store.Entry{}
	}
	slog.Info("remote_traverse_complete", "folder_path", folderPath, "entry_count", len(entries))
	return entries, nil
}

// CalculateVolume asks the service for the ROI volume of one DICOM directory.
func (c *Client) CalculateVolume(ctx context.Context, folderPath, roiFile string) (store.Volume, error) {
	env, err := c.post(ctx, calculatePath, request{FolderPath: folderPath, ROIFile: roiFile})
	if err != nil {
		return store.Volume{}, err
	}
	if env.VolumeResult == nil {
		slog.Error("remote_volume_missing", "folder_path", folderPath)
		return store.Volume{}, &TransportError{Op: calculatePath, Err: fmt.Errorf("response has no volume_result")}
	}

	slog.Info("remote_calculate_complete", "folder_path", folderPath, "volume", env.VolumeResult.String())
	return *env.VolumeResult, nil
}

func (c *Client) post(ctx context.Context, op string, body request) (*envelope, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+op, bytes.NewReader(payload))
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	slog.Debug("remote_request", "op", op, "folder_path", body.FolderPath, "roi_file", body.ROIFile)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("remote_request_failed", "op", op, "error", err)
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		slog.Error("remote_read_failed", "op", op, "error", err)
		return nil, &TransportError{Op: op, Err: err}
	}

	// The body decides the outcome; the HTTP status only matters when the body is unreadable.
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		slog.Error("remote_decode_failed", "op", op, "http_status", resp.StatusCode, "error", err)
		return nil, &TransportError{Op: op, Err: fmt.Errorf("malformed response (HTTP %d): %w", resp.StatusCode, err)}
	}

	switch env.Status {
	case statusSuccess:
		return &env, nil
	case statusError:
		slog.Warn("remote_service_error", "op", op, "message", env.Message)
		return nil, &ServiceError{Op: op, Message: env.Message}
	default:
		slog.Error("remote_unknown_status", "op", op, "status", env.Status, "http_status", resp.StatusCode)
		return nil, &TransportError{Op: op, Err: fmt.Errorf("malformed response (HTTP %d): unknown status %q", resp.StatusCode, env.Status)}
	}
}
