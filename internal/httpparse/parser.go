// Package httpparse implements the HTTP/1.1 request-line and header
// parser. It reads through internal/ioadapter until it finds
// the CRLF CRLF header terminator, then detects (but does not consume)
// the body framing: chunked, fixed Content-Length, or empty.
package httpparse

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"code.cloudfoundry.org/handy-httpd/internal/httperr"
	"code.cloudfoundry.org/handy-httpd/internal/ioadapter"
	"code.cloudfoundry.org/handy-httpd/internal/message"
)

const headerTerminator = "\r\n\r\n"

// Parse reads one HTTP/1.1 request from r. maxHeaderSize bounds the
// header section (tied to the configured receive buffer size); a header
// section longer than that fails with httperr.KindProtocol, whether or
// not its terminator arrived in the same read, as does any malformed
// request line or header line.
func Parse(r *ioadapter.Reader, maxHeaderSize int) (*message.Request, error) {
	head, leftover, err := readHeaderSection(r, maxHeaderSize)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(head, "\r\n")
	if len(lines) == 0 || lines[0] == "" {
		return nil, httperr.Protocol("empty request line")
	}

	method, rawMethod, path, rawQuery, minorVersion, err := parseRequestLine(lines[0])
	if err != nil {
		return nil, err
	}

	header := message.NewHeader()
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			return nil, httperr.Protocol("header folding is not accepted")
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, httperr.Protocol(fmt.Sprintf("malformed header line %q", line))
		}
		header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	req := message.NewRequest(method, rawMethod, path, rawQuery, minorVersion)
	req.Header = header
	req.Query = message.ParseQuery(rawQuery)

	// Bytes read past the header terminator belong to the body; hand them
	// back to the same reader as its new prefix so the body stream picks
	// up exactly where header scanning left off.
	r.Prepend(leftover)

	req.Body = bodyFor(header, r)

	return req, nil
}

// readHeaderSection pulls chunks from r until it finds CRLF CRLF,
// returning the header text (without the trailing CRLF CRLF) and any
// bytes read past the terminator.
func readHeaderSection(r *ioadapter.Reader, maxHeaderSize int) (head string, leftover []byte, err error) {
	var buf bytes.Buffer

	for {
		if idx := bytes.Index(buf.Bytes(), []byte(headerTerminator)); idx >= 0 {
			if idx > maxHeaderSize {
				return "", nil, httperr.Protocol("header section exceeds receive buffer size")
			}
			all := buf.Bytes()
			return string(all[:idx]), append([]byte(nil), all[idx+len(headerTerminator):]...), nil
		}

		if buf.Len() > maxHeaderSize {
			return "", nil, httperr.Protocol("header section exceeds receive buffer size")
		}

		chunk, rerr, ok := r.Next()
		if rerr != nil {
			return "", nil, rerr
		}
		if !ok {
			return "", nil, httperr.Protocol("connection closed before headers were complete")
		}
		buf.Write(chunk)
	}
}

func parseRequestLine(line string) (method message.Method, rawMethod, path, rawQuery string, minorVersion int, err error) {
	parts := strings.Split(line, " ")
	if len(parts) != 3 {
		return 0, "", "", "", 0, httperr.Protocol(fmt.Sprintf("malformed request line %q", line))
	}

	rawMethod = parts[0]
	method = message.ParseMethod(rawMethod)

	target := parts[1]
	path, rawQuery, _ = strings.Cut(target, "?")
	if path == "" || path[0] != '/' {
		return 0, "", "", "", 0, httperr.Protocol(fmt.Sprintf("malformed request target %q", target))
	}

	version := parts[2]
	switch version {
	case "HTTP/1.0":
		minorVersion = 0
	case "HTTP/1.1":
		minorVersion = 1
	default:
		return 0, "", "", "", 0, httperr.Protocol(fmt.Sprintf("unsupported HTTP version %q", version))
	}

	return method, rawMethod, path, rawQuery, minorVersion, nil
}

func bodyFor(header *message.Header, r *ioadapter.Reader) *message.Body {
	if strings.EqualFold(header.Get("Transfer-Encoding"), "chunked") {
		return message.NewBody(newChunkedReader(r))
	}
	if cl := header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n >= 0 {
			return message.NewBodyWithLength(&limitedReader{r: r, remaining: n}, n)
		}
	}
	return message.EmptyBody()
}

// limitedReader reads at most `remaining` bytes from an
// *ioadapter.Reader, which does not itself understand Content-Length
// framing.
type limitedReader struct {
	r         *ioadapter.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	return n, err
}
