// Package storage provides persistence for completed automation runs.
package storage

import (
	"errors"
	"time"
)

// ErrRunNotFound is returned when a run ID is unknown
var ErrRunNotFound = errors.New("run not found")

// RunSummary is the terminal snapshot of one automation run
type RunSummary struct {
	// ID of the run
	ID string `json:"id"`

	// Status is the terminal state of the run
	Status string `json:"status"` // "completed", "error"

	// StartedAt is when the run started
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the run reached a terminal state
	FinishedAt time.Time `json:"finished_at"`

	// LastError is the message of the failure that ended the run, if any
	LastError string `json:"last_error,omitempty"`

	// CandidatesDiscovered is how many list items discovery produced
	CandidatesDiscovered int `json:"candidates_discovered"`

	// CandidatesEvaluated is how many candidates were considered
	CandidatesEvaluated int `json:"candidates_evaluated"`

	// ConnectionsSent is how many connection requests succeeded
	ConnectionsSent int `json:"connections_sent"`

	// Skipped is how many candidates were skipped
	Skipped int `json:"skipped"`
}

// RunStore persists run summaries
type RunStore interface {
	// SaveRun stores the terminal snapshot of a run
	SaveRun(summary RunSummary) error

	// GetRun retrieves a run by ID
	GetRun(id string) (RunSummary, error)

	// ListRuns returns runs most-recent-first, up to limit (0 for all)
	ListRuns(limit int) ([]RunSummary, error)
}
