package community

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindTransport Kind = iota + 1
	KindNotAuthenticated
	KindAccessRestricted
	KindHTTPStatus
	KindSiteError
	KindDomainError
	KindMalformedPayload

	// login only
	KindNeedsEmailGuard
	KindNeedsMobileGuard
	KindNeedsCaptcha
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport failure"
	case KindNotAuthenticated:
		return "not authenticated"
	case KindAccessRestricted:
		return "access restricted"
	case KindHTTPStatus:
		return "http status"
	case KindSiteError:
		return "site error"
	case KindDomainError:
		return "domain error"
	case KindMalformedPayload:
		return "malformed payload"
	case KindNeedsEmailGuard:
		return "needs email guard"
	case KindNeedsMobileGuard:
		return "needs mobile guard"
	case KindNeedsCaptcha:
		return "needs captcha"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the single classified outcome of a failed request or login attempt.
type Error struct {
	Kind    Kind
	Message string
	// StatusCode is set for KindHTTPStatus.
	StatusCode int
	// Detail carries the email domain hint for KindNeedsEmailGuard and the
	// challenge id for KindNeedsCaptcha.
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Kind == KindHTTPStatus {
		msg = fmt.Sprintf("HTTP error %d", e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", msg, e.Err.Error())
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes every Error match the sentinel of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrTransport        = &Error{Kind: KindTransport}
	ErrNotAuthenticated = &Error{Kind: KindNotAuthenticated, Message: "Not Logged In"}
	ErrAccessRestricted = &Error{Kind: KindAccessRestricted}
	ErrHTTPStatus       = &Error{Kind: KindHTTPStatus}
	ErrSiteError        = &Error{Kind: KindSiteError}
	ErrDomainError      = &Error{Kind: KindDomainError}
	ErrMalformedPayload = &Error{Kind: KindMalformedPayload, Message: "Malformed JSON response"}
	ErrNeedsEmailGuard  = &Error{Kind: KindNeedsEmailGuard, Message: "SteamGuard"}
	ErrNeedsMobileGuard = &Error{Kind: KindNeedsMobileGuard, Message: "SteamGuardMobile"}
	ErrNeedsCaptcha     = &Error{Kind: KindNeedsCaptcha, Message: "CAPTCHA"}

	ErrMissingCredentials = errors.New("missing account name or password")
	ErrInvalidSteamGuard  = errors.New("steam guard token must look like <steamid>||<token>")
)

// NewError builds a classified error, used by packages layered on the client
// to report their own domain and payload failures.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError is NewError with an underlying cause.
func WrapError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func transportError(err error) *Error {
	return &Error{Kind: KindTransport, Message: KindTransport.String(), Err: err}
}

func notAuthenticated() *Error {
	return &Error{Kind: KindNotAuthenticated, Message: ErrNotAuthenticated.Message}
}

func malformedPayload(err error) *Error {
	return &Error{Kind: KindMalformedPayload, Message: ErrMalformedPayload.Message, Err: err}
}

// KindOf returns the Kind of the first classified error in err's chain, or 0.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return 0
}
