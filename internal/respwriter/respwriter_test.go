package respwriter_test

import (
	"bytes"
	"io"
	"net"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"code.cloudfoundry.org/handy-httpd/internal/httperr"
	"code.cloudfoundry.org/handy-httpd/internal/ioadapter"
	"code.cloudfoundry.org/handy-httpd/internal/message"
	"code.cloudfoundry.org/handy-httpd/internal/respwriter"
)

// drainingPipe returns a server-side net.Conn to hand to ioadapter.NewWriter
// and a function that closes the pipe and returns everything written to it.
// A background goroutine drains the client side continuously, since
// net.Pipe is synchronous and would otherwise deadlock Writer.Write calls
// against an unread buffer.
func drainingPipe() (net.Conn, func() string) {
	server, client := net.Pipe()
	var buf bytes.Buffer
	var mu sync.Mutex
	done := make(chan struct{})
	go func() {
		defer close(done)
		b := make([]byte, 4096)
		for {
			n, err := client.Read(b)
			if n > 0 {
				mu.Lock()
				buf.Write(b[:n])
				mu.Unlock()
			}
			if err != nil {
				return
			}
		}
	}()
	return server, func() string {
		server.Close()
		client.Close()
		<-done
		mu.Lock()
		defer mu.Unlock()
		return buf.String()
	}
}

var _ = Describe("Writer", func() {
	It("frames a body fixed when the caller sets Content-Length explicitly", func() {
		conn, collect := drainingPipe()
		resp := message.NewResponse()
		resp.Header.Set("Content-Length", "5")
		w := respwriter.New(ioadapter.NewWriter(conn), resp)

		_, err := w.Write([]byte("hello"))
		Expect(err).NotTo(HaveOccurred())
		Expect(w.Close()).To(Succeed())

		out := collect()
		Expect(out).To(ContainSubstring("Content-Length: 5\r\n"))
		Expect(out).NotTo(ContainSubstring("Transfer-Encoding"))
		Expect(out).To(HaveSuffix("hello"))
	})

	It("frames a body fixed when WriteStream is given a known size", func() {
		conn, collect := drainingPipe()
		resp := message.NewResponse()
		w := respwriter.New(ioadapter.NewWriter(conn), resp)

		Expect(w.WriteStream(strings.NewReader("payload"), 7)).To(Succeed())
		Expect(w.Close()).To(Succeed())

		out := collect()
		Expect(out).To(ContainSubstring("Content-Length: 7\r\n"))
		Expect(out).To(HaveSuffix("payload"))
	})

	It("falls back to chunked framing when no size is known", func() {
		conn, collect := drainingPipe()
		resp := message.NewResponse()
		w := respwriter.New(ioadapter.NewWriter(conn), resp)

		n, err := w.Write([]byte("chunk-one"))
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(len("chunk-one")))
		Expect(w.Close()).To(Succeed())

		out := collect()
		Expect(out).To(ContainSubstring("Transfer-Encoding: chunked\r\n"))
		Expect(out).To(ContainSubstring("9\r\nchunk-one\r\n"))
		Expect(out).To(HaveSuffix("0\r\n\r\n"))
	})

	It("reports a protocol error when fewer bytes are written than the declared Content-Length", func() {
		conn, collect := drainingPipe()
		defer collect()
		resp := message.NewResponse()
		resp.Header.Set("Content-Length", "10")
		w := respwriter.New(ioadapter.NewWriter(conn), resp)

		n, err := w.Write([]byte("short"))
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(len("short")))

		err = w.Close()
		Expect(httperr.As(err).Kind).To(Equal(httperr.KindProtocol))
	})

	It("rejects a body write that exceeds the declared Content-Length", func() {
		conn, collect := drainingPipe()
		defer collect()
		resp := message.NewResponse()
		resp.Header.Set("Content-Length", "3")
		w := respwriter.New(ioadapter.NewWriter(conn), resp)

		n, err := w.Write([]byte("toolong"))
		Expect(httperr.As(err).Kind).To(Equal(httperr.KindProtocol))
		Expect(n).To(Equal(0))
	})

	It("preserves Content-Length but discards body bytes for a HEAD response", func() {
		conn, collect := drainingPipe()
		resp := message.NewResponse()
		w := respwriter.New(ioadapter.NewWriter(conn), resp)
		w.SuppressBody = true

		Expect(w.WriteStream(strings.NewReader("body-not-sent"), 13)).To(Succeed())
		Expect(w.Close()).To(Succeed())

		out := collect()
		Expect(out).To(ContainSubstring("Content-Length: 13\r\n"))
		Expect(out).NotTo(ContainSubstring("body-not-sent"))
	})

	It("is a no-op to Close twice", func() {
		conn, collect := drainingPipe()
		defer collect()
		resp := message.NewResponse()
		w := respwriter.New(ioadapter.NewWriter(conn), resp)

		_, err := w.Write([]byte("x"))
		Expect(err).NotTo(HaveOccurred())
		Expect(w.Close()).To(Succeed())
		Expect(w.Close()).To(Succeed())
	})

	It("is a no-op to Close a response that was never flushed", func() {
		conn, collect := drainingPipe()
		defer collect()
		resp := message.NewResponse()
		w := respwriter.New(ioadapter.NewWriter(conn), resp)
		Expect(w.Close()).To(Succeed())
	})

	It("Flush emits a status-only response with a zero-length body", func() {
		conn, collect := drainingPipe()
		resp := message.NewResponse()
		Expect(resp.SetStatus(204, "")).To(Succeed())
		w := respwriter.New(ioadapter.NewWriter(conn), resp)

		Expect(w.Flush()).To(Succeed())
		Expect(w.Close()).To(Succeed())

		out := collect()
		Expect(out).To(HavePrefix("HTTP/1.1 204 No Content\r\n"))
		Expect(out).To(ContainSubstring("Content-Length: 0\r\n"))
	})
})

var _ = Describe("copyBody read errors", func() {
	It("wraps a source read failure as httperr.KindIO", func() {
		conn, collect := drainingPipe()
		defer collect()
		resp := message.NewResponse()
		w := respwriter.New(ioadapter.NewWriter(conn), resp)

		err := w.WriteStreamChunked(&failingReader{})
		Expect(httperr.As(err).Kind).To(Equal(httperr.KindIO))
	})
})

type failingReader struct{}

func (f *failingReader) Read(p []byte) (int, error) {
	return 0, io.ErrClosedPipe
}
