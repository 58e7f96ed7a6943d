package domain

import "time"

// CycleReport summarizes one poll-filter-dispatch run. Produced once per
// cycle and handed to the logging collaborator; never mutated afterwards.
type CycleReport struct {
	CycleID    string
	StartedAt  time.Time
	FinishedAt time.Time

	Candidates int
	NewPapers  int
	Sent       int
	Failed     int
	Duplicates int

	// Failures lists per-batch delivery failures with their cause.
	Failures []BatchFailure
}

// BatchFailure records one batch that exhausted retries or hit a terminal
// condition; the papers involved stay unrecorded in the ledger and are
// re-offered next cycle.
type BatchFailure struct {
	ChannelID string
	PaperIDs  []string
	Terminal  bool
	Cause     string
}
