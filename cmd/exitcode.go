package main

import (
	"errors"
	"fmt"

	"github.com/sells-group/holdings-cli/internal/model"
	"github.com/sells-group/holdings-cli/internal/resolve"
)

// Process exit codes. Non-zero success codes let schedulers tell a reuse
// apart from fresh work without parsing output.
const (
	exitPromoted      = 0
	exitFailure       = 1
	exitSkippedFresh  = 10
	exitReusedCache   = 11
	exitQARejected    = 20
	exitExhausted     = 30
	exitNotApplicable = 31
)

// exitError carries a process exit code out of a cobra RunE.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string {
	return fmt.Sprintf("%s (exit %d)", e.msg, e.code)
}

// exitWith returns nil for code 0 so cobra treats the command as a success.
func exitWith(code int, msg string) error {
	if code == exitPromoted {
		return nil
	}
	return &exitError{code: code, msg: msg}
}

// ingestExitCode folds a batch of outcomes into one code. A failure anywhere
// wins over a rejection, and the batch counts as skipped only when every
// fund was skipped.
func ingestExitCode(outcomes []*model.IngestOutcome) int {
	if len(outcomes) == 0 {
		return exitFailure
	}
	var failed, rejected, skipped int
	for _, o := range outcomes {
		switch {
		case o == nil, o.State == model.StateFailed:
			failed++
		case o.State == model.StateReject:
			rejected++
		case o.State == model.StateSkipped:
			skipped++
		}
	}
	switch {
	case failed > 0:
		return exitFailure
	case rejected > 0:
		return exitQARejected
	case skipped == len(outcomes):
		return exitSkippedFresh
	default:
		return exitPromoted
	}
}

// resolveExitCode folds resolution outcomes into one code with precedence
// failure, exhausted, not applicable, cache reuse.
func resolveExitCode(outcomes []resolve.Outcome) int {
	if len(outcomes) == 0 {
		return exitFailure
	}
	var failed, exhausted, notApplicable, cached int
	for _, o := range outcomes {
		var re *model.ResolutionExhausted
		switch {
		case errors.As(o.Err, &re):
			exhausted++
		case o.Err != nil, o.Result == nil:
			failed++
		case o.Result.Status == model.ResolutionNotApplicable:
			notApplicable++
		case o.Result.FromCache:
			cached++
		}
	}
	switch {
	case failed > 0:
		return exitFailure
	case exhausted > 0:
		return exitExhausted
	case notApplicable > 0:
		return exitNotApplicable
	case cached == len(outcomes):
		return exitReusedCache
	default:
		return exitPromoted
	}
}
