package sse

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Write", func() {
	var buf *bytes.Buffer

	BeforeEach(func() {
		buf = &bytes.Buffer{}
	})

	It("frames a data payload", func() {
		Expect(WriteData(buf, "[DONE]")).To(Succeed())
		Expect(buf.String()).To(Equal("data: [DONE]\n\n"))
	})

	It("frames multi-line data so the reader reassembles it", func() {
		ev := Event{Type: "chunk", ID: "7", Data: "first\nsecond"}
		Expect(Write(buf, ev)).To(Succeed())
		Expect(buf.String()).To(Equal("id: 7\nevent: chunk\ndata: first\ndata: second\n\n"))

		got, err := NewReader(buf).Next()
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(ev))
	})

	It("writes comments the reader skips", func() {
		Expect(WriteComment(buf, "ping")).To(Succeed())
		Expect(WriteData(buf, "x")).To(Succeed())

		got, err := NewReader(buf).Next()
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Data).To(Equal("x"))
	})
})
