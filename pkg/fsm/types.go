package fsm

import "github.com/roivol/roivol/pkg/store"

// JobRequest is the FSM input: one volume computation.
type JobRequest struct {
	RunID      string
	FolderPath string
	ROIFile    string
}

// JobResponse is the FSM output, filled by dispatch and read by settle.
type JobResponse struct {
	Volume       *store.Volume
	ErrorMessage string
	// ServiceError marks ErrorMessage as the service's own message rather than a transport failure.
	ServiceError bool
	Status       string
}

// State names
const (
	StateDispatch = "dispatch"
	StateSettle   = "settle"
	StateFailed   = "failed"
)

// Response statuses
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)
