package syncer

import "time"

// Status is the lifecycle state of a sync run.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Result is the outcome of one sync run. It is finalized once, before Sync
// returns, and is not mutated afterwards.
type Result struct {
	RunID           string     `json:"runId"`
	Query           string     `json:"jql"`
	Status          Status     `json:"status"`
	TotalFetched    int        `json:"totalTicketsFetched"`
	NewAdded        int        `json:"newTicketsAdded"`
	ExistingUpdated int        `json:"existingTicketsUpdated"`
	FailedCount     int        `json:"failedTickets"`
	FailedKeys      []string   `json:"failedTicketKeys"`
	StartTime       time.Time  `json:"syncStartTime"`
	EndTime         *time.Time `json:"syncEndTime,omitempty"`
	ErrorMessage    string     `json:"errorMessage,omitempty"`
}

// Duration is the wall time of the run, or zero while it is still running.
func (r Result) Duration() time.Duration {
	if r.EndTime == nil {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// Succeeded reports whether the run completed.
func (r Result) Succeeded() bool {
	return r.Status == StatusCompleted
}

func (r *Result) fail(msg string) {
	r.Status = StatusFailed
	r.ErrorMessage = msg
}

func (r *Result) finish(end time.Time) {
	if r.Status == StatusInProgress {
		r.Status = StatusCompleted
	}
	r.EndTime = &end
}
