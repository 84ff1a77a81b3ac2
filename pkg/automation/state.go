// Package automation provides the controller that drives the browser
// workflow as a resumable state machine, plus the step executors it
// sequences.
package automation

import (
	"time"
)

// Step identifies a workflow state
type Step string

const (
	// StepIdle is the initial state before any run
	StepIdle Step = "idle"

	// StepLoggingIn is the authentication step
	StepLoggingIn Step = "logging_in"

	// StepNavigating is the drive to the target view
	StepNavigating Step = "navigating"

	// StepScanning is list discovery via scrolling
	StepScanning Step = "scanning"

	// StepConnecting is the per-candidate connection loop
	StepConnecting Step = "connecting"

	// StepCompleted is the successful terminal state
	StepCompleted Step = "completed"

	// StepError is the failed terminal state
	StepError Step = "error"
)

// Active reports whether the step is part of an in-flight run
func (s Step) Active() bool {
	switch s {
	case StepLoggingIn, StepNavigating, StepScanning, StepConnecting:
		return true
	default:
		return false
	}
}

// Terminal reports whether the step ends a run
func (s Step) Terminal() bool {
	return s == StepCompleted || s == StepError
}

// Progress holds the counters of one run. Partial progress is preserved
// and reported even when the run fails.
type Progress struct {
	// CandidatesDiscovered is how many list items discovery produced
	CandidatesDiscovered int `json:"candidates_discovered"`

	// CandidatesEvaluated is how many candidates were considered
	CandidatesEvaluated int `json:"candidates_evaluated"`

	// ConnectionsSent is how many connection requests succeeded
	ConnectionsSent int `json:"connections_sent"`

	// Skipped is how many candidates were skipped as ineligible or
	// unverifiable
	Skipped int `json:"skipped"`
}

// State is the snapshot of the automation owned by the Controller. All
// mutation happens on the Controller's single execution path; readers get
// copies.
type State struct {
	// RunID identifies the current or most recent run
	RunID string `json:"run_id,omitempty"`

	// CurrentStep is the workflow state
	CurrentStep Step `json:"current_step"`

	// IsRunning is true between start and a terminal state
	IsRunning bool `json:"is_running"`

	// StartedAt is when the run started
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt is when the run reached a terminal state
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// LastError is the message of the failure that ended the run, if any
	LastError string `json:"last_error,omitempty"`

	// Progress holds the run counters
	Progress Progress `json:"progress"`
}

// Candidate is one discovered list entry the connection step may act on
type Candidate struct {
	// ID uniquely identifies the candidate within a run
	ID string `json:"id"`

	// Name is the candidate's display name
	Name string `json:"name"`

	// MutualConnections is the shared-connection count shown in the list
	MutualConnections int `json:"mutual_connections"`

	// Index is the candidate's 1-based position in the list
	Index int `json:"index"`

	// ConnectSelector locates the candidate's connect button
	ConnectSelector string `json:"-"`
}

// Credentials are the login credentials for the target site. They come
// from the environment, never from the config file.
type Credentials struct {
	Email    string
	Password string
}
