package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-jobs/models"
)

// ValidateResult ensures a result item carries the fields we export.
func ValidateResult(item *models.ResultItem) error {
	if item == nil {
		return fmt.Errorf("result is nil")
	}
	if strings.TrimSpace(item.TweetID) == "" {
		return fmt.Errorf("result missing tweet_id")
	}
	if strings.TrimSpace(item.TweetText) == "" {
		return fmt.Errorf("result missing text for %s", item.TweetID)
	}
	if strings.TrimSpace(item.Timestamp) != "" {
		if _, err := ParseTimestamp(item.Timestamp); err != nil {
			return fmt.Errorf("result %s: %w", item.TweetID, err)
		}
	}
	return nil
}

// NormalizeText collapses runs of whitespace into single spaces.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// NormalizeHandle trims spacing and the leading @ from an author handle.
func NormalizeHandle(handle string) string {
	handle = strings.TrimSpace(handle)
	return strings.TrimPrefix(handle, "@")
}

// ParseTimestamp parses an ISO-8601 timestamp as emitted by the backend.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", value)
}

// NormalizeTimestamp rewrites value as RFC 3339 in UTC, leaving unparseable
// or empty input untouched.
func NormalizeTimestamp(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	ts, err := ParseTimestamp(value)
	if err != nil {
		return value
	}
	return ts.Format(time.RFC3339)
}
