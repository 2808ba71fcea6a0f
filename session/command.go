package session

// Command is an input to the machine.
type Command interface {
	command()
}

// Start begins a purchase of a fresh resource.
type Start struct{}

// SelectOption picks one of the candidate payment options by index.
type SelectOption struct {
	Index int
}

// SelectAmount sets the human decimal amount to pay, such as "0.2".
type SelectAmount struct {
	Amount string
}

// Cancel abandons the active session before any funds move.
type Cancel struct{}

func (Start) command()        {}
func (SelectOption) command() {}
func (SelectAmount) command() {}
func (Cancel) command()       {}

type EventKind string

const (
	// EventTransitioned reports that the session moved to State.
	EventTransitioned EventKind = "transitioned"
	// EventIgnored reports a command that did not change the session.
	EventIgnored EventKind = "ignored"
	// EventRejected reports a command refused outright, such as a start while another session is active.
	EventRejected EventKind = "rejected"
)

// Event is the machine's answer to a command. Session is a snapshot taken when the event was produced.
type Event struct {
	Kind      EventKind
	State     State
	SessionID string
	Message   string
	Err       error
	Session   *Session
}
