package model

import "time"

// State is an orchestrator state.
type State string

const (
	StateCheckFreshness State = "CHECK_FRESHNESS"
	StateDiscover       State = "DISCOVER"
	StateDownload       State = "DOWNLOAD"
	StateParse          State = "PARSE"
	StateEnrich         State = "ENRICH"
	StateValidate       State = "VALIDATE"
	StatePromote        State = "PROMOTE"
	StateReject         State = "REJECT"
	StateSkipped        State = "SKIPPED"
	StateFailed         State = "FAILED"
)

// Terminal reports whether no further transitions leave s.
func (s State) Terminal() bool {
	switch s {
	case StatePromote, StateReject, StateSkipped, StateFailed:
		return true
	default:
		return false
	}
}

// Reason codes reported with a FAILED outcome.
const (
	ReasonNoCandidates    = "no candidates"
	ReasonDiscoveryFailed = "discovery failed"
	ReasonAllCandidates   = "no usable candidate"
	ReasonUnknownFund     = "unknown fund"
	ReasonGoldWrite       = "gold write failed"
	ReasonFresh           = "fresh snapshot reused"
	ReasonQAFailed        = "qa failed"
)

// CandidateAttempt records what happened to one discovered document.
type CandidateAttempt struct {
	URI          string    `json:"uri"`
	Published    time.Time `json:"published"`
	DocumentHash string    `json:"document_hash,omitempty"`
	FailedAt     State     `json:"failed_at,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// IngestOutcome is the terminal result of one orchestrator run.
type IngestOutcome struct {
	RunID        string             `json:"run_id,omitempty"`
	FundID       string             `json:"fund_id"`
	State        State              `json:"state"`
	Reason       string             `json:"reason,omitempty"`
	AsOf         time.Time          `json:"as_of,omitempty"`
	Version      int                `json:"version,omitempty"`
	DocumentHash string             `json:"document_hash,omitempty"`
	Report       *QAReport          `json:"qa_report,omitempty"`
	Visited      []State            `json:"visited"`
	Attempts     []CandidateAttempt `json:"attempts,omitempty"`
	StartedAt    time.Time          `json:"started_at"`
	FinishedAt   time.Time          `json:"finished_at"`
}
