package model

import "time"

// RunPhase names one stage of an ingestion run.
type RunPhase string

const (
	PhaseIdle       RunPhase = "idle"
	PhaseFetching   RunPhase = "fetching"
	PhaseProcessing RunPhase = "processing"
	PhaseCommitting RunPhase = "committing"
	PhaseAborted    RunPhase = "aborted"
)

// Run statuses recorded in the runs table.
const (
	RunStatusCompleted = "completed"
	RunStatusAborted   = "aborted"
)

// RunRecord summarizes one ingestion run. Completed runs are written
// to the runs table inside the same transaction as their auctions.
type RunRecord struct {
	RunID        string    `json:"run_id"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Pages        int       `json:"pages"`
	Fetched      int       `json:"fetched"`
	Admitted     int       `json:"admitted"`
	Duplicates   int       `json:"duplicates"`
	DecodeFailed int       `json:"decode_failed"`
	Filtered     int       `json:"filtered"`
	Status       string    `json:"status"`
}
