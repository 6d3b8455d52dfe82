package ws_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"code.cloudfoundry.org/handy-httpd/internal/message"
	"code.cloudfoundry.org/handy-httpd/internal/ws"
)

var _ = Describe("AcceptKey", func() {
	It("matches the RFC 6455 example vector", func() {
		Expect(ws.AcceptKey("dGhlIHNhbXBsZSBub25jZQ==")).To(Equal("s3pPLMBiTxaQ9kYGzzhZRbK+xOo="))
	})
})

var _ = Describe("IsUpgradeRequest", func() {
	makeRequest := func(method message.Method, upgrade, connection, version, key string) *message.Request {
		req := message.NewRequest(method, method.String(), "/ws", "", 1)
		req.Header.Set("Upgrade", upgrade)
		req.Header.Set("Connection", connection)
		req.Header.Set("Sec-WebSocket-Version", version)
		if key != "" {
			req.Header.Set("Sec-WebSocket-Key", key)
		}
		return req
	}

	It("accepts a well-formed upgrade request", func() {
		req := makeRequest(message.MethodGet, "websocket", "Upgrade", "13", "dGhlIHNhbXBsZSBub25jZQ==")
		Expect(ws.IsUpgradeRequest(req)).To(BeTrue())
	})

	It("accepts a Connection header with multiple tokens", func() {
		req := makeRequest(message.MethodGet, "websocket", "keep-alive, Upgrade", "13", "dGhlIHNhbXBsZSBub25jZQ==")
		Expect(ws.IsUpgradeRequest(req)).To(BeTrue())
	})

	It("rejects a non-GET method", func() {
		req := makeRequest(message.MethodPost, "websocket", "Upgrade", "13", "dGhlIHNhbXBsZSBub25jZQ==")
		Expect(ws.IsUpgradeRequest(req)).To(BeFalse())
	})

	It("rejects the wrong version", func() {
		req := makeRequest(message.MethodGet, "websocket", "Upgrade", "8", "dGhlIHNhbXBsZSBub25jZQ==")
		Expect(ws.IsUpgradeRequest(req)).To(BeFalse())
	})

	It("rejects a missing key", func() {
		req := makeRequest(message.MethodGet, "websocket", "Upgrade", "13", "")
		Expect(ws.IsUpgradeRequest(req)).To(BeFalse())
	})
})
