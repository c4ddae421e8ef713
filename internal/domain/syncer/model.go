package syncer

import (
	"time"
)

// Status tracks a resource sync through its lifecycle.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusFetching  Status = "FETCHING"
	StatusWriting   Status = "WRITING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusPartial   Status = "PARTIAL"
	StatusFailed    Status = "FAILED"
)

// WriteFailure records one record that could not be persisted.
type WriteFailure struct {
	Index  int    `json:"index"`
	DocID  string `json:"doc_id,omitempty"`
	Reason string `json:"reason"`
}

// PageResult summarizes writing one page of records.
type PageResult struct {
	Written  int
	Failures []WriteFailure
}

// ResourceOutcome is the per-resource result of a sync cycle.
type ResourceOutcome struct {
	Resource  string        `json:"resource"`
	Status    Status        `json:"status"`
	Fetched   int           `json:"fetched"`
	Written   int           `json:"written"`
	Failed    int           `json:"failed"`
	Pages     int           `json:"pages"`
	Duration  time.Duration `json:"duration_ns"`
	Error     string        `json:"error,omitempty"`
	Retryable bool          `json:"retryable,omitempty"`
}

// CycleReport is the result of one full sync cycle.
type CycleReport struct {
	ID        string            `json:"id"`
	StartedAt time.Time         `json:"started_at"`
	Duration  time.Duration     `json:"duration_ns"`
	Cancelled bool              `json:"cancelled,omitempty"`
	Resources []ResourceOutcome `json:"resources"`
}

// TotalWritten sums written records across resources.
func (r *CycleReport) TotalWritten() int {
	total := 0
	for _, res := range r.Resources {
		total += res.Written
	}
	return total
}

// TotalFailed sums failed records across resources.
func (r *CycleReport) TotalFailed() int {
	total := 0
	for _, res := range r.Resources {
		total += res.Failed
	}
	return total
}

// Succeeded reports whether every resource finished SUCCEEDED.
func (r *CycleReport) Succeeded() bool {
	for _, res := range r.Resources {
		if res.Status != StatusSucceeded {
			return false
		}
	}
	return !r.Cancelled
}
