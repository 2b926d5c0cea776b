package quarantine

import (
	"context"
	"errors"
	"time"

	"ingest-backend/internal/shared/telemetry"
)

// Policy decides what happens when the scanner is unavailable or times out.
type Policy string

const (
	// FailClosed rejects the upload when no verdict can be obtained.
	FailClosed Policy = "fail_closed"
	// FailOpen accepts the upload flagged for a later re-scan.
	FailOpen Policy = "fail_open"
)

// Outcome is the gate's decision for one payload.
type Outcome string

const (
	// OutcomePass admits the payload with a clean verdict.
	OutcomePass Outcome = "pass"
	// OutcomeThreat permanently rejects the payload.
	OutcomeThreat Outcome = "threat"
	// OutcomeDegradedPass admits the payload without a verdict; the caller
	// must flag the stored version for re-scanning.
	OutcomeDegradedPass Outcome = "degraded_pass"
	// OutcomeDegradedReject rejects the payload because no verdict could be
	// obtained under a fail-closed policy.
	OutcomeDegradedReject Outcome = "degraded_reject"
)

// ErrCancelled distinguishes caller cancellation from scanner degradation.
var ErrCancelled = errors.New("quarantine: scan cancelled")

// Gate runs payloads through a Scanner with a bounded timeout and applies the
// configured degradation policy.
type Gate struct {
	scanner Scanner
	timeout time.Duration
	policy  Policy
}

// NewGate constructs a Gate. A nil scanner means the capability is absent.
func NewGate(scanner Scanner, timeout time.Duration, policy Policy) *Gate {
	if scanner == nil {
		scanner = Disabled{}
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if policy != FailOpen {
		policy = FailClosed
	}
	return &Gate{scanner: scanner, timeout: timeout, policy: policy}
}

// Check scans the payload and maps verdict, timeout, and scanner failure onto
// an Outcome. A cancelled parent context returns ErrCancelled so the caller
// can abort the whole upload rather than record a degraded scan.
func (g *Gate) Check(ctx context.Context, data []byte) (Outcome, error) {
	scanCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	verdict, err := g.scanner.Scan(scanCtx, data)
	if ctx.Err() != nil {
		return OutcomeDegradedReject, ErrCancelled
	}
	if err != nil || verdict == VerdictUnknown {
		if err != nil {
			telemetry.Warn("quarantine.scan.degraded", map[string]any{
				"err":    err.Error(),
				"policy": string(g.policy),
			})
		}
		if g.policy == FailOpen {
			return OutcomeDegradedPass, nil
		}
		return OutcomeDegradedReject, nil
	}
	if verdict == VerdictInfected {
		return OutcomeThreat, nil
	}
	return OutcomePass, nil
}
