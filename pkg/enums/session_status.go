package enums

// SessionStatus mirrors the lifecycle state of a Stripe checkout session.
// Sessions the provider reports without a status map to SessionStatusUnknown.
type SessionStatus string

const (
	SessionStatusExpired  SessionStatus = "expired"
	SessionStatusComplete SessionStatus = "complete"
	SessionStatusOpen     SessionStatus = "open"
	SessionStatusUnknown  SessionStatus = "unknown"
)

var validSessionStatuses = []SessionStatus{
	SessionStatusExpired,
	SessionStatusComplete,
	SessionStatusOpen,
	SessionStatusUnknown,
}

// String implements fmt.Stringer.
func (s SessionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SessionStatus.
func (s SessionStatus) IsValid() bool {
	for _, candidate := range validSessionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSessionStatus converts raw input into a SessionStatus, mapping anything
// unrecognized to SessionStatusUnknown rather than failing.
func ParseSessionStatus(value string) SessionStatus {
	for _, candidate := range validSessionStatuses {
		if string(candidate) == value {
			return candidate
		}
	}
	return SessionStatusUnknown
}
