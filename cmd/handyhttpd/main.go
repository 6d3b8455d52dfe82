// Command handyhttpd is a minimal bootstrap for the embeddable core in
// code.cloudfoundry.org/handy-httpd/server: build a config, register a
// couple of example routes, start the server, and stop it cleanly on
// SIGTERM/SIGINT — the same signal-driven shutdown shape gorouter's
// main.go uses, simplified since this core has no NATS registration or
// routing-api dependency to tear down first.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/uber-go/zap"

	"code.cloudfoundry.org/handy-httpd/config"
	"code.cloudfoundry.org/handy-httpd/internal/dispatch"
	"code.cloudfoundry.org/handy-httpd/internal/message"
	"code.cloudfoundry.org/handy-httpd/internal/wsmanager"
	"code.cloudfoundry.org/handy-httpd/logger"
	"code.cloudfoundry.org/handy-httpd/server"
)

func main() {
	host := flag.String("host", "0.0.0.0", "address to bind")
	port := flag.Uint("port", 8080, "port to bind")
	flag.Parse()

	log := logger.New("handyhttpd")

	cfg := config.DefaultConfig()
	cfg.Host = *host
	cfg.Port = uint16(*port)
	cfg.PreBindCallbacks = append(cfg.PreBindCallbacks, config.ReuseAddr)

	router := dispatch.NewRouter()
	registerExampleRoutes(router)

	filters := []dispatch.Filter{
		dispatch.FilterFunc(accessLogFilter(log)),
	}

	srv := server.New(cfg, router, filters, log)

	if cfg.EnableWebSockets {
		_ = srv.HandleWebSocket("/ws/echo", func(ctx *dispatch.Context) wsmanager.MessageHandler {
			return &echoHandler{log: ctx.Logger}
		})
	}

	go func() {
		if err := srv.Start(); err != nil {
			log.Error("server-start-failed", zap.Error(err))
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("received-shutdown-signal")
	srv.Stop()
}

// echoHandler answers every text message with the same payload; it's
// the example wiring for HandleWebSocket, not a protocol requirement.
type echoHandler struct {
	wsmanager.BaseHandler
	log logger.Logger
}

func (h *echoHandler) OnText(conn *wsmanager.Conn, payload string) {
	if err := conn.Send([]byte(payload), false); err != nil {
		h.log.Warn("websocket-echo-failed", zap.Error(err))
	}
}

func registerExampleRoutes(router *dispatch.Router) {
	_ = router.Handle(message.MethodGet, "/healthz", func(ctx *dispatch.Context) error {
		return ctx.WriteString("ok", "text/plain; charset=utf-8")
	})

	_ = router.Handle(message.MethodGet, "/echo/:text", func(ctx *dispatch.Context) error {
		text, _ := ctx.Request.PathParam("text")
		return ctx.WriteString(text, "text/plain; charset=utf-8")
	})
}

func accessLogFilter(log logger.Logger) func(ctx *dispatch.Context, next dispatch.Continuation) error {
	return func(ctx *dispatch.Context, next dispatch.Continuation) error {
		err := next(ctx)
		code, _ := ctx.Response.Status()
		log.Info("request",
			zap.String("method", ctx.Request.RawMethod),
			zap.String("path", ctx.Request.Path),
			zap.Int("status", code),
		)
		return err
	}
}
