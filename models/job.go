// Package models defines data structures shared by the job client.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus is the backend-reported state of a scraping job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusInProgress JobStatus = "in_progress"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Valid reports whether s is one of the statuses the backend may return.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transitions can follow s.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// UnmarshalJSON rejects statuses outside the known set.
func (s *JobStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("job status: %w", err)
	}
	status := JobStatus(raw)
	if !status.Valid() {
		return fmt.Errorf("unknown job status %q", raw)
	}
	*s = status
	return nil
}

// JobID is the opaque identifier assigned by the backend. It accepts both
// JSON strings and numbers.
type JobID string

// UnmarshalJSON decodes a string or numeric identifier.
func (id *JobID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("job id is missing")
	}
	if data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("job id: %w", err)
		}
		*id = JobID(raw)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("job id: %w", err)
	}
	*id = JobID(num.String())
	return nil
}

// ResultItem is one scraped post.
type ResultItem struct {
	TweetID      string `csv:"tweet_id" json:"tweet_id"`
	TweetText    string `csv:"tweet_text" json:"tweet_text"`
	AuthorHandle string `csv:"author_handle" json:"author_handle"`
	Timestamp    string `csv:"timestamp" json:"timestamp"`
}

// SubmitRequest is the body of POST /api/jobs.
type SubmitRequest struct {
	Query string `json:"query"`
}

// SubmitResponse is returned by POST /api/jobs.
type SubmitResponse struct {
	JobID   JobID        `json:"jobId"`
	Cached  bool         `json:"cached"`
	Results []ResultItem `json:"results,omitempty"`
}

// JobStatusResponse is returned by GET /api/jobs/{jobId}.
type JobStatusResponse struct {
	Status  JobStatus    `json:"status"`
	Results []ResultItem `json:"results,omitempty"`
}

// HistoryResponse is returned by GET /api/search-history.
type HistoryResponse struct {
	History []string `json:"history"`
}

// Job is the client-side view of one submitted query.
type Job struct {
	ID          JobID
	Query       string
	Status      JobStatus
	Cached      bool
	Results     []ResultItem
	SubmittedAt time.Time
	CompletedAt time.Time
}

// Clone returns a copy that shares no slices with j.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	if j.Results != nil {
		out.Results = make([]ResultItem, len(j.Results))
		copy(out.Results, j.Results)
	}
	return &out
}

// Phase is the lifecycle state of the poller's active job.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSubmitting Phase = "submitting"
	PhasePolling    Phase = "polling"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
)

// Terminal reports whether p is an absorbing phase.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// Snapshot is an immutable view of the poller state handed to consumers.
type Snapshot struct {
	Phase   Phase
	Job     *Job
	Message string
}

// RunSummary holds the outcome of one CLI search run.
type RunSummary struct {
	Query        string
	JobID        JobID
	Phase        Phase
	Cached       bool
	StartTime    time.Time
	EndTime      time.Time
	ResultCount  int
	WrittenCount int
	Retries      int
	Message      string
}
