package types

import (
	"fmt"
	"sync"
	"time"
)

// RunSummary reports the outcome of one sync run. It is returned even when
// part of the run failed.
type RunSummary struct {
	// Documentation decisions
	Generated int
	Refreshed int
	Preserved int
	Extracted int
	Failed    int
	Removed   int

	// Store operations
	UpsertsWritten int
	UpsertsSkipped int
	Deletes        int
	Unsynced       int

	// Parsing
	FilesParsed int
	ParseErrors int

	// Failures collected across the run
	ErrorMessages []string
	FailedFiles   []string

	Duration time.Duration

	mu sync.Mutex
}

// AddError records a per-file or per-element failure message
func (s *RunSummary) AddError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ErrorMessages = append(s.ErrorMessages, msg)
}

// AddFailedFile records a file whose elements must be retried next run
func (s *RunSummary) AddFailedFile(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.FailedFiles {
		if p == path {
			return
		}
	}
	s.FailedFiles = append(s.FailedFiles, path)
}

// CountDecision tallies one reconciler decision
func (s *RunSummary) CountDecision(a DocAction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch a {
	case ActionGenerate:
		s.Generated++
	case ActionRefresh:
		s.Refreshed++
	case ActionPreserve:
		s.Preserved++
	case ActionExtractOnly:
		s.Extracted++
	case ActionFailed:
		s.Failed++
	case ActionDelete:
		s.Removed++
	}
}

// HasFailures reports whether any part of the run did not complete
func (s *RunSummary) HasFailures() bool {
	return s.Failed > 0 || s.Unsynced > 0 || s.ParseErrors > 0
}

// String renders the counts in a single line
func (s *RunSummary) String() string {
	return fmt.Sprintf(
		"generated=%d refreshed=%d preserved=%d extracted=%d failed=%d removed=%d written=%d skipped=%d deleted=%d unsynced=%d parse_errors=%d",
		s.Generated, s.Refreshed, s.Preserved, s.Extracted, s.Failed, s.Removed,
		s.UpsertsWritten, s.UpsertsSkipped, s.Deletes, s.Unsynced, s.ParseErrors,
	)
}
