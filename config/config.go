// Package config holds the server's immutable startup configuration.
// There is no environment-variable or on-disk loading here: the core is
// handed a fully built Config by its caller (a flag parser, a test
// builder, or hard-coded values in cmd/handyhttpd) — no environment
// variables, no on-disk state, no persisted state.
package config

import (
	"syscall"
	"time"

	"code.cloudfoundry.org/handy-httpd/internal/message"
)

// SocketOptionCallback is invoked on the raw listener socket before
// bind, the shape net.ListenConfig.Control expects. It is the hook used
// for SO_REUSEADDR and similar pre-bind options.
type SocketOptionCallback func(network, address string, conn syscall.RawConn) error

// Config is the immutable set of options the server core depends on.
type Config struct {
	Host string
	Port uint16

	ConnectionQueueSize int
	WorkerPoolSize      int
	ReceiveBufferSize   int

	DefaultHeaders *message.Header

	EnableWebSockets bool
	PreBindCallbacks []SocketOptionCallback

	// EnablePROXYProtocol wraps the bound listener so that each accepted
	// connection's real source address is read off a leading PROXY
	// protocol v1/v2 header, for deployments sitting behind a load
	// balancer that speaks it, rather than taken from the TCP socket
	// itself.
	EnablePROXYProtocol bool

	// ReadTimeout/WriteTimeout bound per-request socket I/O.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// WebSocket-specific tunables.
	WebSocketMaxMessageSize int64
	WebSocketIdleTimeout    time.Duration
}

var defaultConfig = Config{
	Host:                    "0.0.0.0",
	Port:                    8080,
	ConnectionQueueSize:     128,
	WorkerPoolSize:          16,
	ReceiveBufferSize:       8 * 1024,
	EnableWebSockets:        true,
	ReadTimeout:             30 * time.Second,
	WriteTimeout:            30 * time.Second,
	WebSocketMaxMessageSize: 1 << 20,
	WebSocketIdleTimeout:    60 * time.Second,
}

// DefaultConfig returns a copy of the built-in default configuration,
// ready for a caller to tweak before passing to server.New.
func DefaultConfig() *Config {
	c := defaultConfig
	c.DefaultHeaders = message.NewHeader()
	c.DefaultHeaders.Set("Server", "handy-httpd")
	return &c
}
