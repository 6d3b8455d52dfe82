// Package server is the core accept loop, lifecycle, and configuration
// glue. It binds a listener, runs pre-bind socket-option
// callbacks, spawns a worker pool, and accepts connections until told to
// stop — following the bind/stopListening/drain shape of gorouter's
// router.Router, adapted from an http.Server-backed reverse proxy to a
// raw net.Listener accept loop that hands connections to
// internal/workerpool.
package server

import (
	"context"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/armon/go-proxyproto"
	"github.com/uber-go/zap"

	"code.cloudfoundry.org/handy-httpd/config"
	"code.cloudfoundry.org/handy-httpd/internal/dispatch"
	"code.cloudfoundry.org/handy-httpd/internal/httperr"
	"code.cloudfoundry.org/handy-httpd/internal/httpparse"
	"code.cloudfoundry.org/handy-httpd/internal/ioadapter"
	"code.cloudfoundry.org/handy-httpd/internal/message"
	"code.cloudfoundry.org/handy-httpd/internal/respwriter"
	"code.cloudfoundry.org/handy-httpd/internal/workerpool"
	"code.cloudfoundry.org/handy-httpd/internal/wsmanager"
	"code.cloudfoundry.org/handy-httpd/logger"
)

// State is one of the server's lifecycle states.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateReady
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "STARTING"
	case StateReady:
		return "READY"
	case StateStopping:
		return "STOPPING"
	default:
		return "STOPPED"
	}
}

// Server is the embeddable HTTP/1.1 server core.
type Server struct {
	config *config.Config
	log    logger.Logger
	router *dispatch.Router
	chain  *dispatch.Chain

	wsManager *wsmanager.Manager

	mu       sync.Mutex
	state    State
	listener net.Listener
	pool     *workerpool.Pool
}

// New builds a Server bound to cfg and router, with the given filters
// run ahead of routing, in the order given.
func New(cfg *config.Config, router *dispatch.Router, filters []dispatch.Filter, log logger.Logger) *Server {
	terminal := dispatch.RouteHandler(router)
	s := &Server{
		config: cfg,
		log:    log,
		router: router,
		chain:  dispatch.NewChain(terminal, filters...),
		state:  StateStopped,
	}
	if cfg.EnableWebSockets {
		s.wsManager = wsmanager.New(cfg.WebSocketMaxMessageSize, cfg.WebSocketIdleTimeout, log.Session("wsmanager"))
	}
	return s
}

// WSManager returns the server's WebSocket manager, or nil if
// EnableWebSockets was false. Routes registered with HandleWebSocket
// hand each newly-upgraded connection to this manager.
func (s *Server) WSManager() *wsmanager.Manager {
	return s.wsManager
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsReady returns true only in StateReady.
func (s *Server) IsReady() bool {
	return s.State() == StateReady
}

func (s *Server) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Start binds the listener, applies pre-bind callbacks, spawns the
// worker pool, marks the server READY, and runs the accept loop until
// Stop is called. It blocks until the accept loop exits.
func (s *Server) Start() error {
	s.setState(StateStarting)

	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(int(s.config.Port)))

	listener, err := listenWithCallbacks(addr, s.config.PreBindCallbacks)
	if err != nil {
		s.setState(StateStopped)
		return httperr.IO("failed to bind listener", err)
	}
	if s.config.EnablePROXYProtocol {
		listener = &proxyproto.Listener{Listener: listener}
	}
	s.listener = listener

	if s.wsManager != nil {
		go s.wsManager.Run()
	}

	s.pool = workerpool.New(s.config.WorkerPoolSize, s.config.ConnectionQueueSize, s.handleConn)
	s.pool.Start()

	s.setState(StateReady)
	s.log.Info("server.started", zap.String("addr", addr))

	return s.acceptLoop()
}

func (s *Server) acceptLoop() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.State() == StateStopping || s.State() == StateStopped {
				return nil
			}
			s.log.Warn("server.accept-error", zap.Error(err))
			continue
		}
		s.pool.Push(conn)
	}
}

// Stop marks the server STOPPING, closes the listener to unblock the
// accept loop, drains the worker pool (every in-flight exchange is
// allowed to finish; no new request is started once a worker observes
// the stop sentinel), then marks STOPPED.
func (s *Server) Stop() {
	stoppingAt := time.Now()
	s.setState(StateStopping)
	s.log.Info("server.stopping")

	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.pool != nil {
		s.pool.Stop()
	}
	if s.wsManager != nil {
		s.wsManager.Stop()
	}

	s.setState(StateStopped)
	s.log.Info("server.stopped", zap.Duration("took", time.Since(stoppingAt)))
}

// handleConn is the ConnHandler passed to workerpool: parse one request,
// dispatch it, write the response, close the socket.
func (s *Server) handleConn(conn net.Conn, workerID int) {
	hijacked := false
	defer func() {
		if !hijacked {
			conn.Close()
		}
	}()

	if s.config.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	}

	reader := ioadapter.NewReader(conn, nil)
	req, err := httpparse.Parse(reader, s.config.ReceiveBufferSize)
	if err != nil {
		s.writeParseError(conn, err)
		return
	}

	if s.config.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}

	req.RemoteAddr = conn.RemoteAddr().String()

	resp := message.NewResponse()
	copyDefaultHeaders(s.config.DefaultHeaders, resp.Header)

	writer := respwriter.New(ioadapter.NewWriter(conn), resp)
	writer.SuppressBody = req.Method == message.MethodHead

	ctx := &dispatch.Context{
		Request:  req,
		Response: resp,
		Writer:   writer,
		Conn:     conn,
		Server:   s,
		Logger:   s.log.Session("worker").With(zap.Int("worker_id", workerID)),
		WorkerID: workerID,
	}

	eh := dispatch.NewExceptionHandler(s.chain, ctx.Logger)
	if _, runErr := eh.Run(ctx); runErr != nil {
		ctx.Logger.Error("handler-error", zap.Error(runErr))
		return
	}

	if ctx.Hijacked {
		hijacked = true
		return
	}

	_ = writer.Close()
}

func (s *Server) writeParseError(conn net.Conn, err error) {
	he := httperr.As(err)
	s.log.Warn("server.parse-error", zap.Error(he))

	resp := message.NewResponse()
	_ = resp.SetStatus(400, "")
	writer := respwriter.New(ioadapter.NewWriter(conn), resp)
	_ = writer.WriteString("the request could not be parsed", "text/plain; charset=utf-8")
}

// listenWithCallbacks binds a TCP listener on addr, running every
// pre-bind callback against the raw socket before bind/listen — the
// hook SO_REUSEADDR and similar socket options use, modeled on
// gorouter's proxy-protocol-aware listener construction, which runs its
// own Control callback ahead of accepting connections.
func listenWithCallbacks(addr string, callbacks []config.SocketOptionCallback) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, conn syscall.RawConn) error {
			for _, cb := range callbacks {
				if err := cb(network, address, conn); err != nil {
					return err
				}
			}
			return nil
		},
	}
	return lc.Listen(context.Background(), "tcp", addr)
}

func copyDefaultHeaders(defaults *message.Header, into *message.Header) {
	if defaults == nil {
		return
	}
	for _, name := range defaults.Names() {
		for _, v := range defaults.Values(name) {
			into.Add(name, v)
		}
	}
}
