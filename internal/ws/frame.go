// Package ws implements the WebSocket upgrade handshake and RFC 6455
// frame codec. Frame layout constants and the masking routine follow
// the bit-level framing a typical client-side WebSocket frame
// reader/writer uses; this side decodes masked client frames and
// encodes unmasked server frames, the reverse role from a client
// library.
package ws

import (
	"encoding/binary"
	"fmt"
	"io"

	"code.cloudfoundry.org/handy-httpd/internal/httperr"
)

// Opcode identifies a frame's payload interpretation (RFC 6455 §5.2, §11.8).
type Opcode byte

const (
	OpcodeContinuation Opcode = 0x0
	OpcodeText         Opcode = 0x1
	OpcodeBinary       Opcode = 0x2
	OpcodeClose        Opcode = 0x8
	OpcodePing         Opcode = 0x9
	OpcodePong         Opcode = 0xA
)

func (o Opcode) isControl() bool {
	return o >= OpcodeClose
}

func (o Opcode) isValid() bool {
	switch o {
	case OpcodeContinuation, OpcodeText, OpcodeBinary, OpcodeClose, OpcodePing, OpcodePong:
		return true
	default:
		return false
	}
}

const (
	bitFIN  = 0x80
	bitRSV1 = 0x40
	bitRSV2 = 0x20
	bitRSV3 = 0x10
	maskBit = 0x80

	len7  = 125
	len16 = 126
	len64 = 127

	maxControlPayload = 125
)

// Close codes used by the status close frame (RFC 6455 §7.4.1).
const (
	CloseNormal         = 1000
	CloseGoingAway      = 1001
	CloseProtocolError  = 1002
	CloseUnsupportedVal = 1003
	CloseMessageTooBig  = 1009
	CloseInternalError  = 1011
)

// Frame is one decoded WebSocket frame, payload already unmasked.
type Frame struct {
	FIN     bool
	Opcode  Opcode
	Payload []byte
}

// ReadFrame reads and decodes one frame from r, unmasking the payload in
// place. A client-to-server frame MUST be masked (RFC 6455 §5.1); an
// unmasked frame or a nonzero reserved bit is a protocol error.
func ReadFrame(r io.Reader, maxPayload int64) (Frame, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, httperr.IO("failed to read websocket frame header", err)
	}

	fin := hdr[0]&bitFIN != 0
	if hdr[0]&(bitRSV1|bitRSV2|bitRSV3) != 0 {
		return Frame{}, httperr.Protocol("websocket frame has a nonzero reserved bit")
	}
	opcode := Opcode(hdr[0] & 0x0f)
	if !opcode.isValid() {
		return Frame{}, httperr.Protocol(fmt.Sprintf("websocket frame has reserved opcode 0x%x", byte(opcode)))
	}

	masked := hdr[1]&maskBit != 0
	if !masked {
		return Frame{}, httperr.Protocol("client websocket frame was not masked")
	}

	length := uint64(hdr[1] &^ maskBit)
	switch length {
	case len16:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return Frame{}, httperr.IO("failed to read websocket extended length", err)
		}
		length = uint64(binary.BigEndian.Uint16(ext[:]))
	case len64:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return Frame{}, httperr.IO("failed to read websocket extended length", err)
		}
		length = binary.BigEndian.Uint64(ext[:])
	}

	if opcode.isControl() && length > maxControlPayload {
		return Frame{}, httperr.Protocol("websocket control frame payload too large")
	}
	if opcode.isControl() && !fin {
		return Frame{}, httperr.Protocol("websocket control frame must not be fragmented")
	}
	if maxPayload > 0 && int64(length) > maxPayload {
		return Frame{}, httperr.PayloadTooLarge(fmt.Sprintf("websocket message exceeds %d bytes", maxPayload))
	}

	var maskKey [4]byte
	if _, err := io.ReadFull(r, maskKey[:]); err != nil {
		return Frame{}, httperr.IO("failed to read websocket mask key", err)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, httperr.IO("failed to read websocket payload", err)
	}
	for i := range payload {
		payload[i] ^= maskKey[i&3]
	}

	return Frame{FIN: fin, Opcode: opcode, Payload: payload}, nil
}

// WriteFrame encodes and writes a single unmasked server-to-client
// frame (RFC 6455 §5.1: "a server MUST NOT mask any frames").
func WriteFrame(w io.Writer, fin bool, opcode Opcode, payload []byte) error {
	first := byte(opcode)
	if fin {
		first |= bitFIN
	}
	if _, err := w.Write([]byte{first}); err != nil {
		return httperr.IO("failed to write websocket frame header", err)
	}

	if err := writeLength(w, len(payload)); err != nil {
		return err
	}

	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return httperr.IO("failed to write websocket frame payload", err)
		}
	}
	return nil
}

func writeLength(w io.Writer, n int) error {
	switch {
	case n <= len7:
		_, err := w.Write([]byte{byte(n)})
		return wrapIOErr(err)
	case n <= 0xffff:
		var buf [3]byte
		buf[0] = len16
		binary.BigEndian.PutUint16(buf[1:], uint16(n))
		_, err := w.Write(buf[:])
		return wrapIOErr(err)
	default:
		var buf [9]byte
		buf[0] = len64
		binary.BigEndian.PutUint64(buf[1:], uint64(n))
		_, err := w.Write(buf[:])
		return wrapIOErr(err)
	}
}

func wrapIOErr(err error) error {
	if err == nil {
		return nil
	}
	return httperr.IO("failed to write websocket frame length", err)
}
