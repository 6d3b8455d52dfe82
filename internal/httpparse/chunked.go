package httpparse

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"code.cloudfoundry.org/handy-httpd/internal/httperr"
)

// chunkedReader decodes an HTTP/1.1 chunked transfer-coding body. The
// parser never buffers an entire body; this decodes one chunk at a time
// straight from the connection.
type chunkedReader struct {
	src       *bufio.Reader
	remaining int64
	done      bool
}

func newChunkedReader(r io.Reader) *chunkedReader {
	return &chunkedReader{src: bufio.NewReader(r)}
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if c.done {
		return 0, io.EOF
	}

	if c.remaining == 0 {
		if err := c.nextChunkSize(); err != nil {
			return 0, err
		}
		if c.remaining == 0 {
			c.done = true
			return 0, io.EOF
		}
	}

	if int64(len(p)) > c.remaining {
		p = p[:c.remaining]
	}
	n, err := c.src.Read(p)
	c.remaining -= int64(n)
	if err != nil && err != io.EOF {
		return n, httperr.IO("chunked body read failed", err)
	}
	if c.remaining == 0 {
		// consume the trailing CRLF after this chunk's data
		if _, err := c.src.Discard(2); err != nil {
			return n, httperr.Protocol("malformed chunk terminator")
		}
	}
	return n, nil
}

func (c *chunkedReader) nextChunkSize() error {
	line, err := c.src.ReadString('\n')
	if err != nil {
		return httperr.IO("failed reading chunk size", err)
	}
	line = strings.TrimRight(line, "\r\n")
	// strip chunk extensions, if any
	if idx := strings.IndexByte(line, ';'); idx >= 0 {
		line = line[:idx]
	}
	size, err := strconv.ParseInt(strings.TrimSpace(line), 16, 64)
	if err != nil || size < 0 {
		return httperr.Protocol("malformed chunk size")
	}
	c.remaining = size
	if size == 0 {
		// consume the final CRLF terminating the zero chunk (trailers are
		// not supported)
		_, _ = c.src.ReadString('\n')
	}
	return nil
}
