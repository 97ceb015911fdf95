package poller

import (
	"errors"
	"fmt"

	"github.com/aluiziolira/go-scrape-jobs/models"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("poller: closed")

// PollingFailure is an error raised while a polling session was active. It
// halts the session.
type PollingFailure struct {
	JobID models.JobID
	Err   error
}

func (e PollingFailure) Error() string {
	return fmt.Errorf("polling job %s: %w", e.JobID, e.Err).Error()
}

func (e PollingFailure) Unwrap() error {
	return e.Err
}

// User-facing messages stored in Snapshot.Message.
const (
	MessageSubmitFailed = "Failed to submit job. Please ensure the backend is running and try again."
	MessagePollFailed   = "Failed to fetch job status. Please check your connection."
	MessageJobFailed    = "The scraping job failed on the backend."
	MessageCancelled    = "Stopped tracking the job before it finished."
)
