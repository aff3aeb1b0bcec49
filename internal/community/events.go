package community

import (
	"steamcommunity/internal/events"
)

// SessionExpiredEvent is published once per request that revealed the
// session is no longer authenticated.
type SessionExpiredEvent struct {
	Err    *Error
	Source string
	URL    string
}

// Flags records which classification check produced a request's error.
type Flags struct {
	HTTPError   bool
	SiteError   bool
	DomainError bool
	JSONError   bool
}

// PostRequestEvent is published after every request, successful or not.
// It is meant for monitoring only.
type PostRequestEvent struct {
	ID         uint64
	Source     string
	Descriptor RequestDescriptor
	Err        error
	// Response is nil when the transport failed.
	Response *Response
	Body     []byte
	Flags    Flags
}

type DebugEvent struct {
	Message string
}

// Events are the topics a Client publishes to.
type Events struct {
	SessionExpired events.Topic[SessionExpiredEvent]
	PostRequest    events.Topic[PostRequestEvent]
	Debug          events.Topic[DebugEvent]
}
