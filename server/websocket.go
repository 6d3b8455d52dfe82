package server

import (
	"fmt"

	"github.com/hashicorp/go-uuid"

	"code.cloudfoundry.org/handy-httpd/internal/dispatch"
	"code.cloudfoundry.org/handy-httpd/internal/message"
	"code.cloudfoundry.org/handy-httpd/internal/ws"
	"code.cloudfoundry.org/handy-httpd/internal/wsmanager"
)

// HandlerFactory builds a fresh MessageHandler for a newly upgraded
// connection, given the request context that carried the handshake.
type HandlerFactory func(ctx *dispatch.Context) wsmanager.MessageHandler

// HandleWebSocket registers a GET route at pattern that performs the
// upgrade handshake and, on success, hands the raw socket to the
// server's wsManager with a handler built by factory. It returns an
// error at registration time if EnableWebSockets is false, since
// registering a WebSocket route on a server that disabled the feature
// is a programming error the caller should fix before starting the
// server.
func (s *Server) HandleWebSocket(pattern string, factory HandlerFactory) error {
	if s.wsManager == nil {
		return fmt.Errorf("cannot register websocket route %q: EnableWebSockets is false", pattern)
	}
	return s.router.Handle(message.MethodGet, pattern, func(ctx *dispatch.Context) error {
		return s.upgrade(ctx, factory)
	})
}

func (s *Server) upgrade(ctx *dispatch.Context, factory HandlerFactory) error {
	if _, err := ws.Upgrade(ctx.Conn, ctx.Request, ctx.Response); err != nil {
		return err
	}

	id, err := uuid.GenerateUUID()
	if err != nil {
		id = ctx.Request.RemoteAddr
	}

	handler := factory(ctx)
	s.wsManager.Register(ctx.Conn, id, handler)
	ctx.Hijacked = true
	return nil
}
