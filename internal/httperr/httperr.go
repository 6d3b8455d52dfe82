// Package httperr defines the categorized error taxonomy shared by the
// parser, dispatcher, and worker pool. Handlers and filters report failures
// through these kinds; the exception handler is the single place that
// converts a kind into a wire response.
package httperr

import "fmt"

// Kind categorizes a failure so the exception handler (see internal/dispatch)
// knows which canonical response to write, without needing to inspect error
// strings.
type Kind int

const (
	// KindInternal covers handler panics, filter contract violations, and
	// anything the core cannot otherwise classify.
	KindInternal Kind = iota
	KindProtocol
	KindIO
	KindNotFound
	KindMethodNotAllowed
	KindPayloadTooLarge
)

func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "ProtocolError"
	case KindIO:
		return "IOError"
	case KindNotFound:
		return "NotFound"
	case KindMethodNotAllowed:
		return "MethodNotAllowed"
	case KindPayloadTooLarge:
		return "PayloadTooLarge"
	default:
		return "InternalError"
	}
}

// Error is the categorized error type the core uses throughout. The
// message is safe to log in full; only a generic, kind-derived message is
// ever sent to the client (see dispatch.ExceptionHandler).
type Error struct {
	Kind    Kind
	Message string
	Cause   error

	// Allow, when Kind is KindMethodNotAllowed, lists the methods that do
	// have a mapping for the path that failed to match.
	Allow []string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Protocol(message string) *Error { return New(KindProtocol, message) }

func IO(message string, cause error) *Error {
	return &Error{Kind: KindIO, Message: message, Cause: cause}
}

func NotFound(message string) *Error { return New(KindNotFound, message) }

func MethodNotAllowed(allow []string) *Error {
	return &Error{Kind: KindMethodNotAllowed, Message: "method not allowed", Allow: allow}
}

func PayloadTooLarge(message string) *Error { return New(KindPayloadTooLarge, message) }

func Internal(message string) *Error { return New(KindInternal, message) }

// As extracts an *Error from err, classifying anything else as
// KindInternal so the exception handler always has something to work with.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return &Error{Kind: KindInternal, Message: "unclassified failure", Cause: err}
}
