package admission

import "time"

// Record is the per-identifier admission state. Records are immutable once
// published to the table; every transition produces a new value that is
// swapped in atomically.
type Record struct {
	Identifier   string    `json:"identifier"`
	RequestCount int       `json:"request_count"`
	Blocked      bool      `json:"blocked"`
	BlockedUntil time.Time `json:"blocked_until,omitempty"` // zero when unset
	LastRequest  time.Time `json:"last_request"`
}

// coolingDown reports whether the record is inside an unexpired cooldown at now.
func (r *Record) coolingDown(now time.Time) bool {
	return r.Blocked && !now.After(r.BlockedUntil)
}

func newRecord(identifier string, now time.Time) *Record {
	return &Record{
		Identifier:   identifier,
		RequestCount: 1,
		LastRequest:  now,
	}
}

// Reason classifies the outcome of an admission check.
type Reason string

const (
	ReasonAllowed           Reason = "allowed"
	ReasonInvalidInput      Reason = "invalid_input"
	ReasonCapacityExceeded  Reason = "capacity_exceeded"
	ReasonRateLimitExceeded Reason = "rate_limit_exceeded"
	ReasonStillBlocked      Reason = "still_blocked"
)

// Decision is the result of a single admission check.
type Decision struct {
	Identifier string        `json:"identifier"`
	Allowed    bool          `json:"allowed"`
	Reason     Reason        `json:"reason"`
	Record     Record        `json:"record"`
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Stats is a point-in-time summary of the admission table.
type Stats struct {
	Tracked  int `json:"tracked"`
	Blocked  int `json:"blocked"`
	Capacity int `json:"capacity"`
	Limit    int `json:"limit"`
}
