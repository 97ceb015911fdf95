package main

import (
	"fmt"
	"io"

	"github.com/aluiziolira/go-scrape-jobs/models"
)

func printSummary(w io.Writer, summary models.RunSummary, outputFile string) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintf(w, "Search %q %s\n", summary.Query, summary.Phase)

	if summary.JobID != "" {
		fmt.Fprintf(w, "  Job ID:        %s\n", summary.JobID)
	}
	fmt.Fprintf(w, "  Cached:        %t\n", summary.Cached)
	fmt.Fprintf(w, "  Results:       %d\n", summary.ResultCount)
	fmt.Fprintf(w, "  Retries:       %d\n", summary.Retries)
	if summary.Message != "" {
		fmt.Fprintf(w, "  Message:       %s\n", summary.Message)
	}
	if !summary.EndTime.IsZero() {
		fmt.Fprintf(w, "  Duration:      %v\n", summary.EndTime.Sub(summary.StartTime))
	}
	if summary.WrittenCount > 0 {
		fmt.Fprintf(w, "  Written:       %d\n", summary.WrittenCount)
		fmt.Fprintf(w, "  Output file:   %s\n", outputFile)
	}
	fmt.Fprintln(w, separator)
}
