package dispatch_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"code.cloudfoundry.org/handy-httpd/internal/dispatch"
	"code.cloudfoundry.org/handy-httpd/internal/httperr"
	"code.cloudfoundry.org/handy-httpd/internal/message"
)

func handlerReturning(string) dispatch.Handler {
	return func(ctx *dispatch.Context) error {
		return nil
	}
}

var _ = Describe("Router", func() {
	var router *dispatch.Router

	BeforeEach(func() {
		router = dispatch.NewRouter()
	})

	It("prefers a literal segment over a capture at the same position", func() {
		var got string
		Expect(router.Handle(message.MethodGet, "/users/me", func(ctx *dispatch.Context) error {
			got = "literal"
			return nil
		})).To(Succeed())
		Expect(router.Handle(message.MethodGet, "/users/:id", func(ctx *dispatch.Context) error {
			got = "capture"
			return nil
		})).To(Succeed())

		h, _, err := router.Match(message.MethodGet, "/users/me")
		Expect(err).NotTo(HaveOccurred())
		Expect(h(nil)).To(Succeed())
		Expect(got).To(Equal("literal"))

		h, params, err := router.Match(message.MethodGet, "/users/123")
		Expect(err).NotTo(HaveOccurred())
		Expect(h(nil)).To(Succeed())
		Expect(got).To(Equal("capture"))
		Expect(params).To(Equal(map[string]string{"id": "123"}))
	})

	It("only matches a typed capture when the segment validates", func() {
		Expect(router.Handle(message.MethodGet, "/items/:id:int", handlerReturning("int"))).To(Succeed())

		_, params, err := router.Match(message.MethodGet, "/items/42")
		Expect(err).NotTo(HaveOccurred())
		Expect(params["id"]).To(Equal("42"))

		_, _, err = router.Match(message.MethodGet, "/items/not-an-int")
		Expect(httperr.As(err).Kind).To(Equal(httperr.KindNotFound))
	})

	It("matches a trailing ** against zero or more remaining segments", func() {
		Expect(router.Handle(message.MethodGet, "/static/**", handlerReturning("static"))).To(Succeed())

		_, _, err := router.Match(message.MethodGet, "/static/css/app.css")
		Expect(err).NotTo(HaveOccurred())

		_, _, err = router.Match(message.MethodGet, "/static")
		Expect(err).NotTo(HaveOccurred())
	})

	It("does not let ** swallow a path that never reaches its prefix", func() {
		Expect(router.Handle(message.MethodGet, "/static/**", handlerReturning("static"))).To(Succeed())
		_, _, err := router.Match(message.MethodGet, "/other/path")
		Expect(httperr.As(err).Kind).To(Equal(httperr.KindNotFound))
	})

	It("rejects a pattern with ** in a non-trailing position", func() {
		err := router.Handle(message.MethodGet, "/a/**/b", handlerReturning("x"))
		Expect(httperr.As(err).Kind).To(Equal(httperr.KindInternal))
	})

	It("returns KindNotFound when no pattern matches the path", func() {
		Expect(router.Handle(message.MethodGet, "/known", handlerReturning("x"))).To(Succeed())
		_, _, err := router.Match(message.MethodGet, "/unknown")
		Expect(httperr.As(err).Kind).To(Equal(httperr.KindNotFound))
	})

	It("returns KindMethodNotAllowed with the registered methods when the path matches but the method doesn't", func() {
		Expect(router.Handle(message.MethodGet, "/a", handlerReturning("get"))).To(Succeed())
		Expect(router.Handle(message.MethodPost, "/a", handlerReturning("post"))).To(Succeed())

		_, _, err := router.Match(message.MethodDelete, "/a")
		he := httperr.As(err)
		Expect(he.Kind).To(Equal(httperr.KindMethodNotAllowed))
		Expect(he.Allow).To(ConsistOf("GET", "POST"))
	})

	It("backtracks past a more specific path match that doesn't serve the method", func() {
		Expect(router.Handle(message.MethodPost, "/a/b", handlerReturning("post-literal"))).To(Succeed())
		Expect(router.Handle(message.MethodGet, "/a/:x", handlerReturning("get-capture"))).To(Succeed())

		h, params, err := router.Match(message.MethodGet, "/a/b")
		Expect(err).NotTo(HaveOccurred())
		Expect(h(nil)).To(Succeed())
		Expect(params).To(Equal(map[string]string{"x": "b"}))
	})

	It("aggregates allowed methods across every pattern that matched the path when none serve the method", func() {
		Expect(router.Handle(message.MethodPost, "/a/b", handlerReturning("post-literal"))).To(Succeed())
		Expect(router.Handle(message.MethodPut, "/a/:x", handlerReturning("put-capture"))).To(Succeed())

		_, _, err := router.Match(message.MethodGet, "/a/b")
		he := httperr.As(err)
		Expect(he.Kind).To(Equal(httperr.KindMethodNotAllowed))
		Expect(he.Allow).To(ConsistOf("POST", "PUT"))
	})

	It("falls back to a GET handler for HEAD requests with no explicit HEAD route", func() {
		called := false
		Expect(router.Handle(message.MethodGet, "/a", func(ctx *dispatch.Context) error {
			called = true
			return nil
		})).To(Succeed())

		h, _, err := router.Match(message.MethodHead, "/a")
		Expect(err).NotTo(HaveOccurred())
		Expect(h(nil)).To(Succeed())
		Expect(called).To(BeTrue())
	})
})
