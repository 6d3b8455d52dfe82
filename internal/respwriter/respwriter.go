// Package respwriter serializes a message.Response onto the wire.
// Status, reason, and headers are held in memory until the first
// body write (or an explicit Flush), at which point the writer picks a
// framing policy: the caller's own Content-Length wins if set; otherwise
// a known body size is framed fixed; otherwise the writer falls back to
// chunked transfer-encoding.
package respwriter

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"code.cloudfoundry.org/handy-httpd/internal/httperr"
	"code.cloudfoundry.org/handy-httpd/internal/ioadapter"
	"code.cloudfoundry.org/handy-httpd/internal/message"
)

type framing int

const (
	framingNone framing = iota
	framingFixed
	framingChunked
)

// Writer drives one message.Response onto one connection.
type Writer struct {
	out     *ioadapter.Writer
	resp    *message.Response
	framing framing
	fixedN  int64
	written int64
	closed  bool

	// SuppressBody, when set, flushes headers (and so preserves
	// Content-Length) but discards body bytes instead of writing them to
	// the wire — used for HEAD responses, where the body is suppressed
	// but Content-Length must still reflect what a GET would have sent.
	SuppressBody bool
}

// New returns a Writer for resp, writing to out.
func New(out *ioadapter.Writer, resp *message.Response) *Writer {
	return &Writer{out: out, resp: resp}
}

// WriteString flushes resp with a fixed Content-Length body of s, setting
// Content-Type to contentType first.
func (w *Writer) WriteString(s, contentType string) error {
	if contentType != "" {
		w.resp.Header.Set("Content-Type", contentType)
	}
	return w.WriteStream(strings.NewReader(s), int64(len(s)))
}

// WriteStream flushes resp (if not already flushed) framed fixed at size,
// then copies src onto the wire.
func (w *Writer) WriteStream(src io.Reader, size int64) error {
	if err := w.flush(size); err != nil {
		return err
	}
	return w.copyBody(src)
}

// WriteStreamChunked flushes resp (if not already flushed) framed
// chunked, then copies src onto the wire as chunks.
func (w *Writer) WriteStreamChunked(src io.Reader) error {
	if err := w.flush(-1); err != nil {
		return err
	}
	return w.copyBody(src)
}

// Flush emits the status line and headers with a zero-length body, for
// status-only responses.
func (w *Writer) Flush() error {
	return w.flush(0)
}

// Write appends raw bytes to the wire in whatever framing flush chose,
// implicitly flushing on the first call if the response has not been
// flushed yet. Implicit flush uses fixed framing if the caller already
// set Content-Length, and chunked framing otherwise, since the total
// size is not known at this call site.
func (w *Writer) Write(p []byte) (int, error) {
	if !w.resp.Flushed {
		if err := w.flush(-1); err != nil {
			return 0, err
		}
	}
	before := w.written
	if err := w.writeFramed(p); err != nil {
		return int(w.written - before), err
	}
	return len(p), nil
}

// Close finalizes the wire framing: it terminates a chunked body with
// the zero-size chunk, or fails with httperr.KindProtocol if a fixed
// Content-Length was declared but not fully written. It is a no-op if
// the response was never flushed (nothing was ever written).
func (w *Writer) Close() error {
	if !w.resp.Flushed || w.closed {
		return nil
	}
	w.closed = true
	switch w.framing {
	case framingChunked:
		return w.out.Write([]byte("0\r\n\r\n"))
	case framingFixed:
		if w.written != w.fixedN {
			return httperr.Protocol(fmt.Sprintf("response declared Content-Length %d but wrote %d bytes", w.fixedN, w.written))
		}
	}
	return nil
}

func (w *Writer) flush(size int64) error {
	if w.resp.Flushed {
		return nil
	}

	switch {
	case w.resp.Header.Get("Content-Length") != "":
		n, err := strconv.ParseInt(w.resp.Header.Get("Content-Length"), 10, 64)
		if err != nil {
			return httperr.Protocol("invalid Content-Length set on response")
		}
		w.framing = framingFixed
		w.fixedN = n
	case size >= 0:
		w.framing = framingFixed
		w.fixedN = size
		w.resp.Header.Set("Content-Length", strconv.FormatInt(size, 10))
	default:
		w.framing = framingChunked
		w.resp.Header.Set("Transfer-Encoding", "chunked")
	}

	// A 101 handshake keeps the Connection: Upgrade header its caller set;
	// every other response advertises that the connection will close.
	if code, _ := w.resp.Status(); code != 101 {
		w.resp.Header.Set("Connection", "close")
	}

	if err := w.writeStatusLineAndHeaders(); err != nil {
		return err
	}
	w.resp.Flushed = true
	return nil
}

func (w *Writer) writeStatusLineAndHeaders() error {
	code, reason := w.resp.Status()
	statusLine := fmt.Sprintf("HTTP/1.1 %d %s\r\n", code, reason)
	if err := w.out.Write([]byte(statusLine)); err != nil {
		return err
	}
	for _, name := range w.resp.Header.Names() {
		for _, value := range w.resp.Header.Values(name) {
			line := wireHeaderLine(name, value)
			if err := w.out.Write([]byte(line)); err != nil {
				return err
			}
		}
	}
	return w.out.Write([]byte("\r\n"))
}

func (w *Writer) copyBody(src io.Reader) error {
	if w.SuppressBody {
		w.written = w.fixedN
		w.closed = w.framing == framingChunked
		return nil
	}

	buf := make([]byte, 32*1024)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if werr := w.writeFramed(buf[:n]); werr != nil {
				return werr
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return httperr.IO("failed reading response body source", rerr)
		}
	}
	if w.framing == framingChunked {
		w.closed = true
		return w.out.Write([]byte("0\r\n\r\n"))
	}
	if w.fixedN >= 0 && w.written != w.fixedN {
		return httperr.Protocol(fmt.Sprintf("response declared Content-Length %d but wrote %d bytes", w.fixedN, w.written))
	}
	return nil
}

func (w *Writer) writeFramed(p []byte) error {
	if w.SuppressBody {
		w.written += int64(len(p))
		return nil
	}
	switch w.framing {
	case framingFixed:
		if w.written+int64(len(p)) > w.fixedN {
			return httperr.Protocol("response body exceeds declared Content-Length")
		}
		w.written += int64(len(p))
		return w.out.Write(p)
	case framingChunked:
		header := fmt.Sprintf("%x\r\n", len(p))
		if err := w.out.Write([]byte(header)); err != nil {
			return err
		}
		if err := w.out.Write(p); err != nil {
			return err
		}
		w.written += int64(len(p))
		return w.out.Write([]byte("\r\n"))
	default:
		return httperr.Internal("write called before response framing was established")
	}
}

func wireHeaderLine(canonicalName, value string) string {
	return fmt.Sprintf("%s: %s\r\n", message.WireName(canonicalName), value)
}
