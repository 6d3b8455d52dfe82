// Package dispatch implements the request dispatch chain: the handler
// capability, the filter chain, the path router, and the exception
// handler. The filter chain follows the same shape as negroni.Handler
// (ServeHTTP(rw, r, next)) — a continuation-passing middleware that may
// short-circuit instead of calling next.
package dispatch

import (
	"net"

	"code.cloudfoundry.org/handy-httpd/internal/message"
	"code.cloudfoundry.org/handy-httpd/internal/respwriter"
	"code.cloudfoundry.org/handy-httpd/logger"
)

// Controller is the slice of the server core a request context is
// allowed to reach back into: shutdown and the readiness check. Defined
// here (rather than depending on
// the server package directly) to keep dispatch free of an import cycle
// back to the package that owns the accept loop.
type Controller interface {
	Stop()
	IsReady() bool
}

// Context bundles one request/response exchange. Its
// lifetime is exactly one exchange: the server's per-connection handler
// (run on a workerpool worker) creates it, dispatch runs
// the handler against it, and it is discarded once the response is
// flushed and the connection is closed.
type Context struct {
	Request  *message.Request
	Response *message.Response
	Writer   *respwriter.Writer

	Conn   net.Conn
	Server Controller
	Logger logger.Logger

	// WorkerID identifies which worker in the pool is servicing this
	// exchange, useful for correlating log lines; each worker is a
	// shared-nothing unit of concurrency.
	WorkerID int

	// Hijacked marks that a handler has taken ownership of Conn past the
	// normal request/response exchange — the WebSocket upgrade path hands
	// the raw socket to the WebSocket manager. The worker that ran this
	// exchange must not close Conn or finalize Writer when this is set.
	Hijacked bool
}

// WriteString is a convenience wrapper that sets Content-Type and writes
// a fixed Content-Length body in one call.
func (c *Context) WriteString(body, contentType string) error {
	return c.Writer.WriteString(body, contentType)
}

// WriteStatus sets the status code/reason and flushes headers with no
// body.
func (c *Context) WriteStatus(code int, reason string) error {
	if err := c.Response.SetStatus(code, reason); err != nil {
		return err
	}
	return c.Writer.Flush()
}
