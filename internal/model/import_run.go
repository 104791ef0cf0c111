package model

import "time"

// ImportStatus represents the state of an ingestion run.
type ImportStatus string

const (
	ImportStatusRunning  ImportStatus = "running"
	ImportStatusComplete ImportStatus = "complete"
	ImportStatusFailed   ImportStatus = "failed"
)

// ImportRun is one recorded ingestion of an offer listing.
type ImportRun struct {
	ID            string       `json:"id"`
	Source        string       `json:"source"`
	Status        ImportStatus `json:"status"`
	StartedAt     time.Time    `json:"started_at"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
	RecordsParsed int64        `json:"records_parsed"`
	FactsWritten  int64        `json:"facts_written"`
	Error         string       `json:"error,omitempty"`
}
