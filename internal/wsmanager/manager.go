// Package wsmanager is the single-threaded connection multiplexer:
// exactly one goroutine (Run) ever invokes a
// MessageHandler callback or touches the connection table, so handlers
// never need to be safe for concurrent invocation across connections.
// Per-connection socket reads happen on dedicated reader goroutines —
// net.Conn gives no portable readiness-poll the way an actual event
// loop would use — but every decoded frame is handed to the manager
// goroutine as a mailbox event and processed there, one at a time,
// preserving the single-threaded-callback guarantee. This generalizes
// the register/broadcast mailbox shape internal/workerpool already uses
// for its connection queue to a richer event type.
package wsmanager

import (
	"net"
	"sync"
	"time"

	"github.com/uber-go/zap"

	"code.cloudfoundry.org/handy-httpd/internal/httperr"
	"code.cloudfoundry.org/handy-httpd/internal/ws"
	"code.cloudfoundry.org/handy-httpd/logger"
)

// MessageHandler receives application-level events for one connection:
// connection established, text/binary message, ping/pong, close message,
// and connection closed. All callbacks run on the manager goroutine.
type MessageHandler interface {
	OnConnectionEstablished(conn *Conn)
	OnText(conn *Conn, payload string)
	OnBinary(conn *Conn, payload []byte)
	OnPing(conn *Conn, payload []byte)
	OnPong(conn *Conn, payload []byte)
	OnCloseMessage(conn *Conn, code int, reason string)
	OnConnectionClosed(conn *Conn)
}

// Conn is one registered WebSocket connection. Everything but Send is
// only ever touched from the manager goroutine.
type Conn struct {
	ID      string
	netConn net.Conn
	handler MessageHandler

	fragment       []byte
	fragmentOpcode ws.Opcode

	writeMu sync.Mutex
	closed  bool
}

// Send writes an unmasked frame to the connection. Safe to call from
// any goroutine (including from inside a handler callback, which runs
// on the manager goroutine) since writes are serialized per connection
// by writeMu independent of the manager loop.
func (c *Conn) Send(payload []byte, binary bool) error {
	op := ws.OpcodeText
	if binary {
		op = ws.OpcodeBinary
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteFrame(c.netConn, true, op, payload)
}

// sendPong replies to a ping with an unmasked pong frame carrying the
// same payload (RFC 6455 §5.5.3).
func (c *Conn) sendPong(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteFrame(c.netConn, true, ws.OpcodePong, payload)
}

func (c *Conn) sendClose(code int, reason string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	payload := encodeCloseFrame(code, reason)
	_ = ws.WriteFrame(c.netConn, true, ws.OpcodeClose, payload)
	return c.netConn.Close()
}

func encodeCloseFrame(code int, reason string) []byte {
	payload := make([]byte, 2+len(reason))
	payload[0] = byte(code >> 8)
	payload[1] = byte(code)
	copy(payload[2:], reason)
	return payload
}

type eventKind int

const (
	eventFrame eventKind = iota
	eventReadError
)

type event struct {
	conn  *Conn
	kind  eventKind
	frame ws.Frame
	err   error
}

type registration struct {
	conn    net.Conn
	id      string
	handler MessageHandler
	result  chan *Conn
}

type broadcastMsg struct {
	payload []byte
	binary  bool
}

// Manager is the single-goroutine multiplexer described above.
type Manager struct {
	maxMessageSize int64
	idleTimeout    time.Duration
	log            logger.Logger

	register   chan registration
	events     chan event
	broadcasts chan broadcastMsg
	stop       chan struct{}
	stopped    chan struct{}

	conns map[string]*Conn
}

// New builds a Manager. Run must be started in its own goroutine before
// any connection is registered.
func New(maxMessageSize int64, idleTimeout time.Duration, log logger.Logger) *Manager {
	return &Manager{
		maxMessageSize: maxMessageSize,
		idleTimeout:    idleTimeout,
		log:            log,
		register:       make(chan registration),
		events:         make(chan event, 64),
		broadcasts:     make(chan broadcastMsg, 64),
		stop:           make(chan struct{}),
		stopped:        make(chan struct{}),
		conns:          make(map[string]*Conn),
	}
}

// Register hands an upgraded connection to the manager and blocks until
// OnConnectionEstablished has run. It spawns one reader goroutine per
// connection that decodes frames and posts them to the manager's event
// mailbox; the manager goroutine is the only thing that ever calls into
// handler.
func (m *Manager) Register(netConn net.Conn, id string, handler MessageHandler) *Conn {
	result := make(chan *Conn, 1)
	m.register <- registration{conn: netConn, id: id, handler: handler, result: result}
	return <-result
}

// Broadcast enqueues payload to be sent to every currently registered
// connection; delivery order per connection matches enqueue order,
// since the manager goroutine drains broadcasts in FIFO order and calls
// Conn.Send synchronously before moving to the next.
func (m *Manager) Broadcast(payload []byte, binary bool) {
	m.broadcasts <- broadcastMsg{payload: payload, binary: binary}
}

// Run is the manager goroutine: it owns the connection table and is the
// only goroutine that ever calls a MessageHandler method. It returns
// once Stop has drained every connection.
func (m *Manager) Run() {
	defer close(m.stopped)
	for {
		select {
		case reg := <-m.register:
			c := &Conn{ID: reg.id, netConn: reg.conn, handler: reg.handler}
			m.conns[reg.id] = c
			go m.readLoop(c)
			c.handler.OnConnectionEstablished(c)
			reg.result <- c

		case ev := <-m.events:
			m.handleEvent(ev)

		case b := <-m.broadcasts:
			for _, c := range m.conns {
				_ = c.Send(b.payload, b.binary)
			}

		case <-m.stop:
			for _, c := range m.conns {
				_ = c.sendClose(ws.CloseGoingAway, "server shutting down")
			}
			return
		}
	}
}

// Stop signals the manager goroutine to close every connection and
// return, and waits for it to do so.
func (m *Manager) Stop() {
	close(m.stop)
	<-m.stopped
}

func (m *Manager) handleEvent(ev event) {
	c := ev.conn
	if _, ok := m.conns[c.ID]; !ok {
		return
	}

	if ev.kind == eventReadError {
		he := httperr.As(ev.err)
		switch he.Kind {
		case httperr.KindPayloadTooLarge:
			_ = c.sendClose(ws.CloseMessageTooBig, "message too large")
		case httperr.KindProtocol:
			_ = c.sendClose(ws.CloseProtocolError, "protocol error")
		default:
			_ = c.sendClose(ws.CloseGoingAway, "connection lost")
		}
		delete(m.conns, c.ID)
		c.handler.OnConnectionClosed(c)
		return
	}

	frame := ev.frame
	switch frame.Opcode {
	case ws.OpcodePing:
		suppress := false
		if r, ok := c.handler.(PingResponder); ok {
			suppress = r.SuppressAutoPong(c, frame.Payload)
		}
		if !suppress {
			_ = c.sendPong(frame.Payload)
		}
		c.handler.OnPing(c, frame.Payload)
		return
	case ws.OpcodePong:
		c.handler.OnPong(c, frame.Payload)
		return
	case ws.OpcodeClose:
		code, reason := decodeCloseFrame(frame.Payload)
		_ = c.sendClose(code, "")
		delete(m.conns, c.ID)
		c.handler.OnCloseMessage(c, code, reason)
		c.handler.OnConnectionClosed(c)
		return
	case ws.OpcodeContinuation:
		c.fragment = append(c.fragment, frame.Payload...)
	default:
		c.fragment = append([]byte(nil), frame.Payload...)
		c.fragmentOpcode = frame.Opcode
	}

	if !frame.FIN {
		return
	}

	switch c.fragmentOpcode {
	case ws.OpcodeText:
		c.handler.OnText(c, string(c.fragment))
	case ws.OpcodeBinary:
		c.handler.OnBinary(c, c.fragment)
	}
	c.fragment = nil
}

func decodeCloseFrame(payload []byte) (int, string) {
	if len(payload) < 2 {
		return ws.CloseNormal, ""
	}
	code := int(payload[0])<<8 | int(payload[1])
	return code, string(payload[2:])
}

// readLoop only decodes frames off the wire and posts them to the
// manager's event mailbox; it never touches handler or the connection
// table directly, preserving single-threaded callback dispatch.
func (m *Manager) readLoop(c *Conn) {
	for {
		if m.idleTimeout > 0 {
			_ = c.netConn.SetReadDeadline(time.Now().Add(m.idleTimeout))
		}

		frame, err := ws.ReadFrame(c.netConn, m.maxMessageSize)
		if err != nil {
			m.log.Debug("wsmanager.read-error", zap.String("conn_id", c.ID), zap.Error(err))
			m.events <- event{conn: c, kind: eventReadError, err: err}
			return
		}

		closeFrame := frame.Opcode == ws.OpcodeClose
		m.events <- event{conn: c, kind: eventFrame, frame: frame}
		if closeFrame {
			return
		}
	}
}
