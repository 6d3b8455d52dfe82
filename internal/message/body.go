package message

import "io"

// Body is the lazy request-body byte stream. It is an io.Reader with a
// declared length: KnownLength returns (n, true) when Content-Length framed
// the request, (0, true) when the body is absent, or (0, false) when the
// body is chunked (length unknown until fully drained). The parser never buffers the whole body;
// Body.Read pulls straight from the connection through internal/ioadapter.
type Body struct {
	reader io.Reader
	length int64
	known  bool
	read   bool
}

// NewBody wraps r as a request body of unknown length (chunked framing).
func NewBody(r io.Reader) *Body {
	return &Body{reader: r}
}

// NewBodyWithLength wraps r as a request body of a known, fixed length
// (Content-Length framing).
func NewBodyWithLength(r io.Reader, length int64) *Body {
	return &Body{reader: r, length: length, known: true}
}

// EmptyBody returns a body with no bytes, used when neither
// Transfer-Encoding nor Content-Length is present.
func EmptyBody() *Body {
	return &Body{reader: io.LimitReader(nil, 0), length: 0, known: true}
}

// KnownLength reports the declared body size, if any.
func (b *Body) KnownLength() (int64, bool) {
	return b.length, b.known
}

// Read satisfies io.Reader. A body is consumed at most once;
// callers that need it twice must buffer it themselves.
func (b *Body) Read(p []byte) (int, error) {
	b.read = true
	if b.reader == nil {
		return 0, io.EOF
	}
	return b.reader.Read(p)
}

// Consumed reports whether Read has been called at least once.
func (b *Body) Consumed() bool {
	return b.read
}
