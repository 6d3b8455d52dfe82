package dispatch

import (
	"fmt"
	"strings"

	"github.com/uber-go/zap"

	"code.cloudfoundry.org/handy-httpd/internal/httperr"
	"code.cloudfoundry.org/handy-httpd/logger"
)

// ExceptionHandler is the single interception point that wraps a Chain,
// converts any returned or panicking error into the canonical response
// for its httperr.Kind, and always logs the full detail — the client
// only ever sees a generic body; full detail is surfaced only to the
// logging collaborator.
type ExceptionHandler struct {
	chain *Chain
	log   logger.Logger
}

// NewExceptionHandler wraps chain.
func NewExceptionHandler(chain *Chain, log logger.Logger) *ExceptionHandler {
	return &ExceptionHandler{chain: chain, log: log}
}

// Run executes the wrapped chain against ctx, recovering from panics the
// same way gorouter's panic-check middleware does, and writes a
// canonical error response for any failure that escapes the chain.
func (e *ExceptionHandler) Run(ctx *Context) (closeConn bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			recErr, ok := rec.(error)
			if !ok {
				recErr = fmt.Errorf("%v", rec)
			}
			closeConn, err = true, e.respond(ctx, httperr.Wrap(httperr.KindInternal, "handler panicked", recErr))
		}
	}()

	if runErr := e.chain.Run(ctx); runErr != nil {
		he := httperr.As(runErr)
		return he.Kind == httperr.KindProtocol || he.Kind == httperr.KindIO, e.respond(ctx, he)
	}

	return false, nil
}

func (e *ExceptionHandler) respond(ctx *Context, he *httperr.Error) error {
	e.log.Error("dispatch-error",
		zap.String("kind", he.Kind.String()),
		zap.String("message", he.Message),
		zap.Error(he),
	)

	if ctx.Response.Flushed {
		// headers are already on the wire; nothing more can be done but
		// close the connection, which the caller does after every
		// exchange.
		return nil
	}

	switch he.Kind {
	case httperr.KindProtocol:
		return e.writeGeneric(ctx, 400, "the request could not be parsed")
	case httperr.KindNotFound:
		return e.writeGeneric(ctx, 404, "not found")
	case httperr.KindMethodNotAllowed:
		ctx.Response.Header.Set("Allow", strings.Join(he.Allow, ", "))
		return e.writeGeneric(ctx, 405, "method not allowed")
	case httperr.KindPayloadTooLarge:
		return e.writeGeneric(ctx, 413, "payload too large")
	case httperr.KindIO:
		return e.writeGeneric(ctx, 500, "internal server error")
	default:
		return e.writeGeneric(ctx, 500, "internal server error")
	}
}

func (e *ExceptionHandler) writeGeneric(ctx *Context, code int, message string) error {
	if err := ctx.Response.SetStatus(code, ""); err != nil {
		return err
	}
	return ctx.WriteString(message, "text/plain; charset=utf-8")
}
