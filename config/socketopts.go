package config

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// ReuseAddr is a SocketOptionCallback that sets SO_REUSEADDR on the
// listening socket before bind, so a restarted server can rebind a port
// still in TIME_WAIT. It's supplied as a ready-made PreBindCallbacks
// entry since this is the one pre-bind option almost every embedder
// wants.
func ReuseAddr(_, _ string, conn syscall.RawConn) error {
	var sockErr error
	err := conn.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
