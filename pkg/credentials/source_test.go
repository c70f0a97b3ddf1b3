package credentials_test

import (
	"context"
	"errors"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatstream/pkg/credentials"
)

type failingSource struct{}

func (failingSource) Token(context.Context) (string, error) {
	return "", errors.New("keychain locked")
}

var _ = Describe("TokenSource", func() {
	ctx := context.Background()

	Describe("StaticToken", func() {
		It("returns the token", func() {
			token, err := credentials.StaticToken("abc").Token(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(token).To(Equal("abc"))
		})

		It("reports an empty token", func() {
			_, err := credentials.StaticToken("").Token(ctx)
			Expect(err).To(MatchError(credentials.ErrNoToken))
		})
	})

	Describe("EnvToken", func() {
		It("reads the variable on every call", func() {
			GinkgoT().Setenv("CHATSTREAM_TEST_TOKEN", "first")
			src := credentials.EnvToken("CHATSTREAM_TEST_TOKEN")

			token, err := src.Token(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(token).To(Equal("first"))

			GinkgoT().Setenv("CHATSTREAM_TEST_TOKEN", "second")
			token, err = src.Token(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(token).To(Equal("second"))
		})
	})

	Describe("Chain", func() {
		It("returns the first available token", func() {
			src := credentials.Chain(credentials.StaticToken(""), credentials.StaticToken("b"), credentials.StaticToken("c"))

			token, err := src.Token(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(token).To(Equal("b"))
		})

		It("reports ErrNoToken when every source is empty", func() {
			_, err := credentials.Chain(credentials.StaticToken("")).Token(ctx)
			Expect(err).To(MatchError(credentials.ErrNoToken))
		})

		It("stops on a real failure", func() {
			_, err := credentials.Chain(failingSource{}, credentials.StaticToken("b")).Token(ctx)
			Expect(err).To(MatchError("keychain locked"))
		})
	})

	Describe("FileTokenSource", func() {
		var (
			tmpDir string
			mgr    *credentials.Manager
		)

		BeforeEach(func() {
			var err error
			tmpDir, err = os.MkdirTemp("", "token-source-test-*")
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(os.RemoveAll, tmpDir)

			mgr, err = credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())
		})

		It("serves the stored token", func() {
			Expect(mgr.SetToken(gateway, "tok-1")).To(Succeed())

			src, err := credentials.NewFileTokenSource(mgr, gateway, nil)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(src.Close)

			token, err := src.Token(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(token).To(Equal("tok-1"))
		})

		It("picks up a rotated token", func() {
			src, err := credentials.NewFileTokenSource(mgr, gateway, nil)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(src.Close)

			_, err = src.Token(ctx)
			Expect(err).To(MatchError(credentials.ErrNoToken))

			Expect(mgr.SetToken(gateway, "tok-2")).To(Succeed())
			Eventually(func() (string, error) {
				return src.Token(ctx)
			}).Should(Equal("tok-2"))
		})

		It("forgets a removed token", func() {
			Expect(mgr.SetToken(gateway, "tok-1")).To(Succeed())

			src, err := credentials.NewFileTokenSource(mgr, gateway, nil)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(src.Close)

			Expect(os.Remove(mgr.GetTarget())).To(Succeed())
			Eventually(func() error {
				_, err := src.Token(ctx)
				return err
			}).Should(MatchError(credentials.ErrNoToken))
		})
	})
})
