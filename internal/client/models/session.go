package models

// SessionStatus is the tag of a SessionState.
type SessionStatus int

const (
	SessionNone SessionStatus = iota
	SessionAuthorizationRequired
	SessionAuthorized
)

func (s SessionStatus) String() string {
	switch s {
	case SessionNone:
		return "none"
	case SessionAuthorizationRequired:
		return "authorization_required"
	case SessionAuthorized:
		return "authorized"
	default:
		return "unknown"
	}
}

// SessionState is the authentication state published by the session
// layer. Account is the zero value when Status is SessionNone.
type SessionState struct {
	Status  SessionStatus
	Account Account
}

// NoSession returns the signed-out state.
func NoSession() SessionState {
	return SessionState{Status: SessionNone}
}

// AuthorizationRequired returns the locked state for a.
func AuthorizationRequired(a Account) SessionState {
	return SessionState{Status: SessionAuthorizationRequired, Account: a}
}

// Authorized returns the unlocked state for a.
func Authorized(a Account) SessionState {
	return SessionState{Status: SessionAuthorized, Account: a}
}
