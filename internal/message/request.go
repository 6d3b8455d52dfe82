package message

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"code.cloudfoundry.org/handy-httpd/internal/httperr"
)

// Request is the parsed HTTP/1.1 request. Header names are
// case-insensitive; PathParams is populated by the router and is
// read-only from the moment dispatch begins; Body is a lazy stream
// consumed at most once.
type Request struct {
	Method       Method
	RawMethod    string // the literal request-line token, even when Method == MethodUnknown
	Path         string
	RawQuery     string
	MinorVersion int // 0 or 1 (HTTP/1.0 or HTTP/1.1)
	Header       *Header
	Query        *Query
	PathParams   map[string]string
	Body         *Body

	// RemoteAddr is the peer address of the underlying connection, set by
	// the worker before dispatch.
	RemoteAddr string
}

// NewRequest constructs a Request with empty header/query/path-param maps
// and no body, for use by tests and by the router before it populates
// PathParams.
func NewRequest(method Method, rawMethod, path, rawQuery string, minorVersion int) *Request {
	return &Request{
		Method:       method,
		RawMethod:    rawMethod,
		Path:         path,
		RawQuery:     rawQuery,
		MinorVersion: minorVersion,
		Header:       NewHeader(),
		Query:        ParseQuery(rawQuery),
		PathParams:   map[string]string{},
		Body:         EmptyBody(),
	}
}

// PathParam returns the raw string captured for a named path-parameter
// segment, and whether the router captured one by that name.
func (r *Request) PathParam(name string) (string, bool) {
	v, ok := r.PathParams[name]
	return v, ok
}

// GetPathParamAs parses a routed path parameter into one of the typed
// forms this server supports: int, int64, uint64 (covers both "uint"
// and "ulong" capture types), string, and uuid.UUID. An unrecognized
// type parameter is a programming
// error, reported as httperr.KindInternal so it surfaces as a 500 rather
// than silently returning a zero value.
func GetPathParamAs[T any](r *Request, name string) (T, error) {
	var zero T

	raw, ok := r.PathParam(name)
	if !ok {
		return zero, httperr.NotFound(fmt.Sprintf("no path parameter named %q", name))
	}

	switch any(zero).(type) {
	case string:
		return any(raw).(T), nil
	case int:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return zero, httperr.Protocol(fmt.Sprintf("path parameter %q is not an int: %v", name, err))
		}
		return any(n).(T), nil
	case int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return zero, httperr.Protocol(fmt.Sprintf("path parameter %q is not an int64: %v", name, err))
		}
		return any(n).(T), nil
	case uint64:
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return zero, httperr.Protocol(fmt.Sprintf("path parameter %q is not a uint64: %v", name, err))
		}
		return any(n).(T), nil
	case uuid.UUID:
		id, err := uuid.Parse(raw)
		if err != nil {
			return zero, httperr.Protocol(fmt.Sprintf("path parameter %q is not a uuid: %v", name, err))
		}
		return any(id).(T), nil
	default:
		return zero, httperr.Internal(fmt.Sprintf("unsupported path parameter type for %q", name))
	}
}
