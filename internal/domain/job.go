package domain

import "time"

// JobStatus enumerates visualization job lifecycle states.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// Job tracks one asynchronous visualization generation request from creation
// until it succeeds, fails, or expires. Content and Metadata are set exactly
// once, on the transition into succeeded; Error is set on failure or while a
// retry is pending.
type Job struct {
	ID        string
	Status    JobStatus
	Type      string
	Content   string
	Metadata  map[string]any
	Error     string
	Attempts  int
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the job's TTL has elapsed at the given instant.
func (j *Job) Expired(now time.Time) bool {
	return now.After(j.ExpiresAt)
}

// Clone returns a deep copy so readers never alias the stored record.
func (j *Job) Clone() *Job {
	cp := *j
	if j.Metadata != nil {
		cp.Metadata = make(map[string]any, len(j.Metadata))
		for k, v := range j.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
