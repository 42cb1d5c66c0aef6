package model

import (
	"fmt"
	"strings"
)

// DiscoveryError means the source was unreachable or did not recognise the fund.
type DiscoveryError struct {
	Source SourceKind
	FundID string
	Reason string
	Err    error
}

func (e *DiscoveryError) Error() string {
	msg := fmt.Sprintf("discovery %s for %s: %s", e.Source, e.FundID, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// DownloadError means a candidate document could not be fetched after retries,
// or failed permanently.
type DownloadError struct {
	URI        string
	StatusCode int
	Attempts   int
	Permanent  bool
	Err        error
}

func (e *DownloadError) Error() string {
	msg := fmt.Sprintf("download %s failed after %d attempt(s)", e.URI, e.Attempts)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DownloadError) Unwrap() error { return e.Err }

// ParseError means no recognizable holdings structure was found in a document.
type ParseError struct {
	DocumentHash string
	DocumentType DocumentType
	Reason       string
	Err          error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parse %s document %s: %s", e.DocumentType, shortHash(e.DocumentHash), e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// SourceAttempt records why one resolution source did not answer.
type SourceAttempt struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

// ResolutionExhausted means no configured source produced usable holdings.
type ResolutionExhausted struct {
	Ticker   string
	Attempts []SourceAttempt
}

func (e *ResolutionExhausted) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.Source+": "+a.Reason)
	}
	if len(parts) == 0 {
		return fmt.Sprintf("no holdings data available for %s: no sources configured", e.Ticker)
	}
	return fmt.Sprintf("no holdings data available for %s (%s)", e.Ticker, strings.Join(parts, "; "))
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
