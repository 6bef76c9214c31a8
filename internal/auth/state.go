// Package auth implements the client authorization lifecycle for the
// MapGrid platform: sign-in, stored-token reuse, expiry, sign-out, and
// error recovery. Operations that need an authorized session register a
// callback with the Manager and are drained exactly once when
// authorization succeeds.
package auth

// State is the authorization status of the client. Exactly one value
// holds at any time; transitions are the Manager's sole responsibility.
type State int

const (
	// NotAuthorized means no valid session exists.
	NotAuthorized State = iota
	// Authorizing means an interactive sign-in workflow is in flight.
	Authorizing
	// Authorized means the client holds a valid bearer token.
	Authorized
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case NotAuthorized:
		return "not_authorized"
	case Authorizing:
		return "authorizing"
	case Authorized:
		return "authorized"
	default:
		return "unknown"
	}
}

// EventKind discriminates the notifications emitted by the Manager.
type EventKind int

const (
	// EventStatusChanged fires on every accepted state transition.
	EventStatusChanged EventKind = iota
	// EventAuthorized fires once per successful authorization, after the
	// state transition and token configuration.
	EventAuthorized
	// EventAuthorizationFailed fires when the sign-in workflow reports an
	// error. The pending callback queue has been cleared by then.
	EventAuthorizationFailed
)

// Event is a single notification from the Manager's event stream.
type Event struct {
	Kind EventKind
	// State carries the new status for EventStatusChanged.
	State State
	// Message carries the failure description for EventAuthorizationFailed.
	Message string
}

// Prompter presents the interactive sign-in confirmation before a
// workflow is started. Returning false cancels the attempt.
type Prompter interface {
	ConfirmSignIn() bool
}
