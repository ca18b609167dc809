// ABOUTME: Presentation-boundary results: expected conditions become codes, not errors.
// ABOUTME: Maps package sentinel errors onto stable codes and readable reasons.
package engine

import (
	"errors"
	"time"

	"github.com/harperreed/lift/internal/completion"
	"github.com/harperreed/lift/internal/events"
	"github.com/harperreed/lift/internal/plans"
	"github.com/harperreed/lift/internal/recovery"
	"github.com/harperreed/lift/internal/session"
)

// Code identifies an expected, non-exceptional outcome.
type Code string

const (
	CodeOK              Code = ""
	CodeDuplicateSet    Code = "duplicate-set"
	CodeOutOfRange      Code = "out-of-range"
	CodeInvalidPlan     Code = "invalid-plan"
	CodeInvalidState    Code = "invalid-state"
	CodePlanNotFound    Code = "plan-not-found"
	CodeNoActiveSession Code = "no-active-session"
	CodeSessionActive   Code = "session-active"
	CodeStaleSnapshot   Code = "stale-snapshot"
	CodePlanMismatch    Code = "plan-mismatch"
	CodeNoOffer         Code = "no-recovery-offer"
	CodeRecoveryPending Code = "recovery-pending"
	CodeNothingToRetry  Code = "nothing-to-retry"
	CodePartialFailure  Code = "partial-failure"
	CodeInternal        Code = "internal"
)

// Result is what every engine operation returns.
type Result struct {
	Code   Code
	Reason string
	State  session.View

	// RestSkipped is the rest that remained when SkipRest was called.
	RestSkipped time.Duration
	Offer       *OfferInfo
	Report      *completion.Report
	Pending     *completion.Pending
	Flush       *events.FlushResult
}

// OK reports whether the operation succeeded without an expected failure.
func (r Result) OK() bool {
	return r.Code == CodeOK
}

// OfferInfo summarizes a recovery offer for display.
type OfferInfo struct {
	Decision      recovery.Decision
	Reason        string
	SessionID     string
	PlanID        string
	SetsLogged    int
	RestRemaining time.Duration
	Age           time.Duration
}

func offerInfo(o recovery.Offer) *OfferInfo {
	info := &OfferInfo{
		Decision:      o.Decision,
		Reason:        o.Reason,
		RestRemaining: o.RestRemaining,
		Age:           o.Age,
	}
	if o.Snapshot != nil {
		info.SessionID = o.Snapshot.SessionID
		info.PlanID = o.Snapshot.PlanID
		info.SetsLogged = len(o.Snapshot.Executions)
	}
	return info
}

// codeFor maps an error to its code. Unknown errors map to CodeInternal.
func codeFor(err error) Code {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, session.ErrDuplicateSet):
		return CodeDuplicateSet
	case errors.Is(err, session.ErrOutOfRange):
		return CodeOutOfRange
	case errors.Is(err, session.ErrInvalidPlan):
		return CodeInvalidPlan
	case errors.Is(err, session.ErrInvalidState):
		return CodeInvalidState
	case errors.Is(err, plans.ErrNotFound):
		return CodePlanNotFound
	case errors.Is(err, completion.ErrNoActiveSession):
		return CodeNoActiveSession
	case errors.Is(err, completion.ErrNothingToRetry):
		return CodeNothingToRetry
	case errors.Is(err, recovery.ErrPlanMismatch):
		return CodePlanMismatch
	case errors.Is(err, recovery.ErrStaleSnapshot):
		return CodeStaleSnapshot
	default:
		return CodeInternal
	}
}

func failed(err error, state session.View) Result {
	return Result{Code: codeFor(err), Reason: err.Error(), State: state}
}
