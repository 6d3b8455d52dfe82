package wsmanager

// PingResponder is an optional interface a MessageHandler can implement
// to take over a ping's reply instead of the manager's default
// auto-pong. SuppressAutoPong is consulted before OnPing is called; if
// it returns true, the manager sends no pong and leaves the reply
// entirely to the handler.
type PingResponder interface {
	SuppressAutoPong(conn *Conn, payload []byte) bool
}

// BaseHandler is embeddable in an application's MessageHandler
// implementation to pick up no-op defaults for callbacks it doesn't
// care to override. The close handshake itself is always driven by the
// manager regardless of what OnCloseMessage does, so a no-op default
// here is safe.
type BaseHandler struct{}

func (BaseHandler) OnConnectionEstablished(*Conn)     {}
func (BaseHandler) OnText(*Conn, string)               {}
func (BaseHandler) OnBinary(*Conn, []byte)             {}
func (BaseHandler) OnPing(*Conn, []byte)               {}
func (BaseHandler) OnPong(*Conn, []byte)               {}
func (BaseHandler) OnCloseMessage(*Conn, int, string)  {}
func (BaseHandler) OnConnectionClosed(*Conn)           {}
