package protocol

import "time"

// JobStatus is broadcast on the bus after every job transition.
type JobStatus struct {
	JobID     string    `json:"job_id"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	Percent   int       `json:"percent"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PageNarrated is emitted when one page of a chapter job has been
// synthesized, successfully or not.
type PageNarrated struct {
	JobID      string `json:"job_id"`
	PageNumber int    `json:"page_number"`
	DurationMs int    `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

const (
	SubjectJobStatusPrefix    = "reader.jobs.status"
	SubjectPageNarratedPrefix = "reader.jobs.page"
)

// JobStatusSubject is the subject carrying status updates for one job.
func JobStatusSubject(jobID string) string {
	return SubjectJobStatusPrefix + "." + jobID
}

func PageNarratedSubject(jobID string) string {
	return SubjectPageNarratedPrefix + "." + jobID
}
