// Package ioadapter provides the framed read/write primitives the parser
// and response writer build on. A transport error here is
// always reported as a single httperr.KindIO; callers never see a
// distinction between "connection reset" and "deadline exceeded" beyond
// that one kind, since the exception handler treats both identically
// (terminate the connection).
package ioadapter

import (
	"io"
	"net"

	"code.cloudfoundry.org/handy-httpd/internal/httperr"
)

// Reader pulls bytes from a connection. Unlike io.Reader, a clean peer
// close is reported as (nil, nil, false) rather than io.EOF, so callers
// don't need to special-case io.EOF among transport errors; once Next has
// seen the peer's EOF, further calls keep returning ok=false.
type Reader struct {
	conn   net.Conn
	prefix []byte // bytes already read while scanning for a header terminator
	buf    []byte
	eof    bool
}

// NewReader wraps conn. prefix, if non-nil, is drained before any further
// socket reads. (The parser hands the body stream the bytes it already
// consumed past the header terminator through Prepend, not through this
// argument.)
func NewReader(conn net.Conn, prefix []byte) *Reader {
	return &Reader{conn: conn, prefix: prefix, buf: make([]byte, 32*1024)}
}

// Next returns the next chunk of bytes. ok is false once the peer has
// closed cleanly; err is non-nil only on a genuine transport failure.
func (r *Reader) Next() (data []byte, err error, ok bool) {
	if len(r.prefix) > 0 {
		data, r.prefix = r.prefix, nil
		return data, nil, true
	}
	if r.eof {
		return nil, nil, false
	}
	n, err := r.conn.Read(r.buf)
	if n > 0 {
		chunk := make([]byte, n)
		copy(chunk, r.buf[:n])
		if err == io.EOF {
			r.eof = true
		} else if err != nil {
			return nil, httperr.IO("read failed", err), false
		}
		return chunk, nil, true
	}
	if err == io.EOF || err == nil {
		return nil, nil, false
	}
	return nil, httperr.IO("read failed", err), false
}

// Prepend stashes data to be returned by the next call to Next/Read,
// ahead of any further socket reads. Used to hand the parser's
// already-consumed header overrun back to the body stream.
func (r *Reader) Prepend(data []byte) {
	if len(data) == 0 {
		return
	}
	r.prefix = append(append([]byte(nil), data...), r.prefix...)
}

// Read implements io.Reader on top of Next, so a Reader can back a
// message.Body directly.
func (r *Reader) Read(p []byte) (int, error) {
	data, err, ok := r.Next()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, io.EOF
	}
	n := copy(p, data)
	if n < len(data) {
		// Next() handed back more than p can hold; stash the remainder as
		// the new prefix so the next Read call picks it up.
		r.prefix = data[n:]
	}
	return n, nil
}

// Writer pushes bytes to a connection. Write either writes every byte of
// p or fails; there is no partial-write outcome visible to callers.
type Writer struct {
	conn net.Conn
}

// NewWriter wraps conn.
func NewWriter(conn net.Conn) *Writer {
	return &Writer{conn: conn}
}

// Write pushes exactly len(p) bytes or returns an httperr.KindIO error.
func (w *Writer) Write(p []byte) error {
	_, err := w.conn.Write(p)
	if err != nil {
		return httperr.IO("write failed", err)
	}
	return nil
}
