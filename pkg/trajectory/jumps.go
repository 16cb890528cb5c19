package trajectory

import "time"

// Default waypoint-jump thresholds. Gaps this large between consecutive
// waypoints usually come from an IK discontinuity such as angle wrap-around.
const (
	DefaultWarnTimeStep = 3 * time.Second
	DefaultMaxTimeStep  = 4 * time.Second
)

// Severity classifies a waypoint jump.
type Severity int

const (
	// SeverityWarn jumps are reported only.
	SeverityWarn Severity = iota + 1
	// SeverityError jumps force operator re-confirmation.
	SeverityError
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// JumpThresholds configures the waypoint-jump check.
type JumpThresholds struct {
	Warn  time.Duration
	Error time.Duration
}

// DefaultJumpThresholds returns the 3 s / 4 s thresholds.
func DefaultJumpThresholds() JumpThresholds {
	return JumpThresholds{
		Warn:  DefaultWarnTimeStep,
		Error: DefaultMaxTimeStep,
	}
}

// Jump is a time gap between waypoint Index and Index+1 that exceeded a threshold.
type Jump struct {
	Index    int
	From     time.Duration
	To       time.Duration
	Delta    time.Duration
	Severity Severity
}

// CheckWaypointJumps returns every adjacent waypoint pair whose
// time-from-start delta exceeds th.Warn. Deltas strictly greater than
// th.Error are SeverityError, the rest SeverityWarn.
func CheckWaypointJumps(t *JointTrajectory, th JumpThresholds) []Jump {
	if t.Len() < 2 {
		return nil
	}

	var jumps []Jump
	for i := 0; i < len(t.Points)-1; i++ {
		from := t.Points[i].TimeFromStart
		to := t.Points[i+1].TimeFromStart
		delta := to - from

		switch {
		case delta > th.Error:
			jumps = append(jumps, Jump{Index: i, From: from, To: to, Delta: delta, Severity: SeverityError})
		case delta > th.Warn:
			jumps = append(jumps, Jump{Index: i, From: from, To: to, Delta: delta, Severity: SeverityWarn})
		}
	}
	return jumps
}

// HasError reports whether any jump is error-severity.
func HasError(jumps []Jump) bool {
	for _, j := range jumps {
		if j.Severity == SeverityError {
			return true
		}
	}
	return false
}
