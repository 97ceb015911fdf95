package parser

import (
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-jobs/models"
)

func TestValidateResult(t *testing.T) {
	tests := []struct {
		name    string
		item    *models.ResultItem
		wantErr bool
	}{
		{
			name: "valid result",
			item: &models.ResultItem{
				TweetID:      "t1",
				TweetText:    "hello",
				AuthorHandle: "@cat",
				Timestamp:    "2024-05-01T10:00:00Z",
			},
			wantErr: false,
		},
		{
			name:    "nil",
			item:    nil,
			wantErr: true,
		},
		{
			name: "missing id",
			item: &models.ResultItem{
				TweetText: "hello",
			},
			wantErr: true,
		},
		{
			name: "missing text",
			item: &models.ResultItem{
				TweetID:   "t1",
				TweetText: "   ",
			},
			wantErr: true,
		},
		{
			name: "bad timestamp",
			item: &models.ResultItem{
				TweetID:   "t1",
				TweetText: "hello",
				Timestamp: "yesterday",
			},
			wantErr: true,
		},
		{
			name: "no timestamp",
			item: &models.ResultItem{
				TweetID:   "t1",
				TweetText: "hello",
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateResult(tt.item)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateResult() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "surrounding whitespace", input: "  hello world  ", expected: "hello world"},
		{name: "newlines", input: "line one\n\nline two", expected: "line one line two"},
		{name: "already clean", input: "clean", expected: "clean"},
		{name: "empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeText(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizeText(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNormalizeHandle(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "@cat", expected: "cat"},
		{input: "  @cat ", expected: "cat"},
		{input: "cat", expected: "cat"},
		{input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeHandle(tt.input); got != tt.expected {
				t.Errorf("NormalizeHandle(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "utc", input: "2024-05-01T10:00:00Z"},
		{name: "offset", input: "2024-05-01T12:00:00+02:00"},
		{name: "fractional", input: "2024-05-01T10:00:00.000Z"},
		{name: "no zone", input: "2024-05-01T10:00:00"},
		{name: "garbage", input: "not a date", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTimestamp(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(want) {
				t.Fatalf("ParseTimestamp(%q) = %v, want %v", tt.input, got, want)
			}
		})
	}
}

func TestNormalizeTimestamp(t *testing.T) {
	if got := NormalizeTimestamp("2024-05-01T12:00:00+02:00"); got != "2024-05-01T10:00:00Z" {
		t.Fatalf("NormalizeTimestamp = %q", got)
	}
	if got := NormalizeTimestamp("garbage"); got != "garbage" {
		t.Fatalf("unparseable timestamps should pass through, got %q", got)
	}
}
