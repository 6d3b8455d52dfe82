package ws

import (
	"crypto/sha1"
	"encoding/base64"
	"net"
	"strings"

	"code.cloudfoundry.org/handy-httpd/internal/httperr"
	"code.cloudfoundry.org/handy-httpd/internal/ioadapter"
	"code.cloudfoundry.org/handy-httpd/internal/message"
	"code.cloudfoundry.org/handy-httpd/internal/respwriter"
)

// acceptGUID is the fixed GUID RFC 6455 §1.3 defines for computing
// Sec-WebSocket-Accept from the client's Sec-WebSocket-Key.
const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// IsUpgradeRequest reports whether req is a well-formed WebSocket
// upgrade request: GET, Connection: Upgrade, Upgrade: websocket,
// Sec-WebSocket-Version: 13, and a present Sec-WebSocket-Key.
func IsUpgradeRequest(req *message.Request) bool {
	if req.Method != message.MethodGet {
		return false
	}
	if !headerTokenContains(req.Header.Get("Connection"), "upgrade") {
		return false
	}
	if !strings.EqualFold(strings.TrimSpace(req.Header.Get("Upgrade")), "websocket") {
		return false
	}
	if strings.TrimSpace(req.Header.Get("Sec-WebSocket-Version")) != "13" {
		return false
	}
	return req.Header.Get("Sec-WebSocket-Key") != ""
}

func headerTokenContains(header, token string) bool {
	for _, part := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}

// AcceptKey computes the Sec-WebSocket-Accept value for a client key
// (RFC 6455 §4.2.2): base64(SHA-1(key + acceptGUID)).
func AcceptKey(clientKey string) string {
	sum := sha1.Sum([]byte(clientKey + acceptGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Upgrade validates req as a WebSocket upgrade request and, on success,
// writes the 101 Switching Protocols response directly to conn and
// returns true. On a malformed upgrade request it returns false and the
// caller (the exception handler's 400 path) takes over.
func Upgrade(conn net.Conn, req *message.Request, resp *message.Response) (bool, error) {
	if !IsUpgradeRequest(req) {
		return false, httperr.Protocol("malformed websocket upgrade request")
	}

	key := req.Header.Get("Sec-WebSocket-Key")
	_ = resp.SetStatus(101, "Switching Protocols")
	resp.Header.Set("Upgrade", "websocket")
	resp.Header.Set("Connection", "Upgrade")
	resp.Header.Set("Sec-WebSocket-Accept", AcceptKey(key))

	w := respwriter.New(ioadapter.NewWriter(conn), resp)
	if err := w.Flush(); err != nil {
		return false, err
	}
	return true, nil
}
