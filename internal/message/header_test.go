package message_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"code.cloudfoundry.org/handy-httpd/internal/message"
)

var _ = Describe("Header", func() {
	var h *message.Header

	BeforeEach(func() {
		h = message.NewHeader()
	})

	It("is case-insensitive", func() {
		h.Set("Content-Type", "text/plain")
		Expect(h.Get("content-type")).To(Equal("text/plain"))
		Expect(h.Get("CONTENT-TYPE")).To(Equal("text/plain"))
	})

	It("preserves insertion order across distinct keys", func() {
		h.Add("X-Second", "b")
		h.Add("X-First", "a")
		h.Add("X-Third", "c")
		Expect(h.Names()).To(Equal([]string{"x-second", "x-first", "x-third"}))
	})

	It("keeps a key's original position when Set is called again", func() {
		h.Set("X-One", "1")
		h.Set("X-Two", "2")
		h.Set("X-One", "1-updated")
		Expect(h.Names()).To(Equal([]string{"x-one", "x-two"}))
		Expect(h.Get("x-one")).To(Equal("1-updated"))
	})

	It("accumulates multiple values under Add", func() {
		h.Add("Set-Cookie", "a=1")
		h.Add("Set-Cookie", "b=2")
		Expect(h.Values("set-cookie")).To(Equal([]string{"a=1", "b=2"}))
	})

	It("removes a key from both the value map and the order slice", func() {
		h.Add("X-One", "1")
		h.Add("X-Two", "2")
		h.Del("X-One")
		Expect(h.Has("x-one")).To(BeFalse())
		Expect(h.Names()).To(Equal([]string{"x-two"}))
	})

	It("deep copies on Clone", func() {
		h.Add("X-One", "1")
		clone := h.Clone()
		clone.Add("X-One", "2")
		Expect(h.Values("x-one")).To(Equal([]string{"1"}))
		Expect(clone.Values("x-one")).To(Equal([]string{"1", "2"}))
	})

	Describe("WireName", func() {
		It("renders canonical keys in Title-Case", func() {
			Expect(message.WireName("content-length")).To(Equal("Content-Length"))
			Expect(message.WireName("x-request-id")).To(Equal("X-Request-Id"))
			Expect(message.WireName("server")).To(Equal("Server"))
		})
	})
})
