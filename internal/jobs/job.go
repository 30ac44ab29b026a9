// Package jobs runs long narration work in the background and keeps its
// status somewhere a polling client can find it.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/loqalabs/loqa-reader/internal/protocol"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Done reports whether the job can no longer change.
func (s Status) Done() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is the persisted status record. Results never live here.
type Job struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Status    Status    `json:"status"`
	Percent   int       `json:"percent"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (j Job) statusMessage() protocol.JobStatus {
	return protocol.JobStatus{
		JobID:     j.ID,
		Kind:      j.Kind,
		Status:    string(j.Status),
		Percent:   j.Percent,
		Message:   j.Message,
		Error:     j.Error,
		ErrorKind: j.ErrorKind,
		Timestamp: j.UpdatedAt,
	}
}

var (
	ErrNotFound = errors.New("job not found")
	// ErrNotReady is returned for results of jobs that are still pending or running.
	ErrNotReady = errors.New("job not finished")
	ErrClosed   = errors.New("job runner closed")
)

// Store persists job status records.
type Store interface {
	Save(ctx context.Context, job Job) error
	// Get returns ErrNotFound for unknown or expired jobs.
	Get(ctx context.Context, id string) (Job, error)
	// Prune drops records older than the store's TTL.
	Prune(ctx context.Context) error
	Close() error
}
