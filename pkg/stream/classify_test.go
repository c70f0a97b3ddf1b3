package stream_test

import (
	"errors"
	"fmt"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatstream/pkg/stream"
)

var _ = Describe("Classify", func() {
	It("returns nil for a nil error", func() {
		Expect(stream.Classify(nil)).To(BeNil())
	})

	It("passes classified errors through", func() {
		serr := stream.NewStreamError(stream.KindQuotaExceeded, "no quota")
		Expect(stream.Classify(fmt.Errorf("wrapped: %w", serr))).To(BeIdenticalTo(serr))
	})

	It("classifies plain transport errors as retryable connection failures", func() {
		cause := errors.New("connection reset by peer")
		serr := stream.Classify(cause)
		Expect(serr.Kind).To(Equal(stream.KindConnection))
		Expect(serr.Retryable).To(BeTrue())
		Expect(serr.ShouldFallback).To(BeTrue())
		Expect(errors.Is(serr, cause)).To(BeTrue())
	})

	It("classifies validation errors as malformed payloads", func() {
		serr := stream.Classify(&stream.ValidationError{Field: "content", Reason: "expected string"})
		Expect(serr.Kind).To(Equal(stream.KindMalformedPayload))
		Expect(serr.Retryable).To(BeFalse())
		Expect(serr.ShouldFallback).To(BeTrue())
	})

	It("classifies missing credentials as configuration errors", func() {
		serr := stream.Classify(fmt.Errorf("no gateway token: %w", stream.ErrConfiguration))
		Expect(serr.Kind).To(Equal(stream.KindConfiguration))
		Expect(serr.ShouldFallback).To(BeFalse())
	})

	DescribeTable("gateway refusals",
		func(status int, message string, kind stream.Kind) {
			serr := stream.Classify(&stream.OpenError{StatusCode: status, Message: message})
			Expect(serr.Kind).To(Equal(kind))
		},
		Entry("unauthorized", http.StatusUnauthorized, "bad token", stream.KindConfiguration),
		Entry("forbidden", http.StatusForbidden, "", stream.KindConfiguration),
		Entry("payment required", http.StatusPaymentRequired, "", stream.KindQuotaExceeded),
		Entry("quota rate limit", http.StatusTooManyRequests, "Quota exceeded", stream.KindQuotaExceeded),
		Entry("plain rate limit", http.StatusTooManyRequests, "slow down", stream.KindConnection),
		Entry("unavailable", http.StatusServiceUnavailable, "", stream.KindConnection),
	)

	Describe("backend errors", func() {
		DescribeTable("classification",
			func(errType, message string, kind stream.Kind) {
				serr := stream.Classify(&stream.BackendError{Type: errType, Message: message})
				Expect(serr.Kind).To(Equal(kind))
				Expect(serr.Retryable).To(BeFalse())
				Expect(serr.ShouldFallback).To(BeFalse())
			},
			Entry("quota type", "quota_exceeded", "limit reached", stream.KindQuotaExceeded),
			Entry("quota message", "", "Your quota is exhausted", stream.KindQuotaExceeded),
			Entry("api key", "provider_error", "Invalid API key supplied", stream.KindConfiguration),
			Entry("unauthorized", "Unauthorized", "", stream.KindConfiguration),
			Entry("uncategorized", "provider_error", "model overloaded", stream.KindServer),
		)

		It("supplies a default message", func() {
			Expect(stream.ClassifyBackend("", "").Message).NotTo(BeEmpty())
		})
	})

	It("never lets quota or configuration errors fall back", func() {
		for _, kind := range stream.Kinds() {
			serr := stream.NewStreamError(kind, "x")
			switch kind {
			case stream.KindQuotaExceeded, stream.KindConfiguration:
				Expect(serr.ShouldFallback).To(BeFalse(), string(kind))
			default:
				Expect(serr.ShouldFallback).To(BeTrue(), string(kind))
			}
		}
	})

	It("makes fallback failures terminal", func() {
		cause := errors.New("502 bad gateway")
		serr := stream.FallbackFailed(cause)
		Expect(serr.Kind).To(Equal(stream.KindServer))
		Expect(serr.Retryable).To(BeFalse())
		Expect(serr.ShouldFallback).To(BeFalse())
		Expect(errors.Is(serr, cause)).To(BeTrue())
	})
})
