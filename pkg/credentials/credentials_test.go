package credentials_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatstream/pkg/credentials"
)

const gateway = "http://localhost:8000"

var _ = Describe("Manager", func() {
	var (
		tmpDir string
		mgr    *credentials.Manager
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "credentials-test-*")
		Expect(err).NotTo(HaveOccurred())

		mgr, err = credentials.NewManager(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("NewManager", func() {
		It("targets credentials.toml in the override directory", func() {
			Expect(mgr.GetTarget()).To(HaveSuffix(filepath.Join(filepath.Base(tmpDir), "credentials.toml")))
		})
	})

	Describe("Load", func() {
		It("returns empty credentials when no file exists", func() {
			creds, err := mgr.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(creds).NotTo(BeNil())
			Expect(creds.Gateways).To(BeEmpty())
		})

		It("loads existing credentials", func() {
			data := `version = 0

[gateways."http://localhost:8000"]
token = "tok-test"
`
			Expect(os.WriteFile(mgr.GetTarget(), []byte(data), 0o600)).To(Succeed())

			creds, err := mgr.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(creds.Gateways).To(HaveKey(gateway))
			Expect(creds.Gateways[gateway].Token).To(Equal("tok-test"))
		})

		It("returns error for malformed TOML", func() {
			Expect(os.WriteFile(mgr.GetTarget(), []byte("not valid [[["), 0o600)).To(Succeed())

			creds, err := mgr.Load()
			Expect(err).To(HaveOccurred())
			Expect(creds).To(BeNil())
		})
	})

	Describe("Save", func() {
		It("persists credentials to disk with restricted permissions", func() {
			creds := &credentials.Credentials{
				Gateways: map[string]credentials.GatewayCredential{
					gateway: {Token: "tok"},
				},
			}
			Expect(mgr.Save(creds)).To(Succeed())

			info, err := os.Stat(mgr.GetTarget())
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o600)))
		})

		It("returns error for nil credentials", func() {
			Expect(mgr.Save(nil)).To(HaveOccurred())
		})
	})

	Describe("tokens", func() {
		It("stores and reads a token, ignoring a trailing slash", func() {
			Expect(mgr.SetToken(gateway+"/", "tok-new")).To(Succeed())

			token, err := mgr.GetToken(gateway)
			Expect(err).NotTo(HaveOccurred())
			Expect(token).To(Equal("tok-new"))
		})

		It("overwrites an existing token and preserves other gateways", func() {
			Expect(mgr.SetToken(gateway, "tok-old")).To(Succeed())
			Expect(mgr.SetToken("https://chat.example.com", "tok-remote")).To(Succeed())
			Expect(mgr.SetToken(gateway, "tok-new")).To(Succeed())

			token, err := mgr.GetToken(gateway)
			Expect(err).NotTo(HaveOccurred())
			Expect(token).To(Equal("tok-new"))

			token, err = mgr.GetToken("https://chat.example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(token).To(Equal("tok-remote"))
		})

		It("returns empty string for an unknown gateway", func() {
			token, err := mgr.GetToken("http://nowhere")
			Expect(err).NotTo(HaveOccurred())
			Expect(token).To(BeEmpty())
		})

		It("removes a token", func() {
			Expect(mgr.SetToken(gateway, "tok")).To(Succeed())
			Expect(mgr.RemoveToken(gateway)).To(Succeed())

			token, err := mgr.GetToken(gateway)
			Expect(err).NotTo(HaveOccurred())
			Expect(token).To(BeEmpty())
		})

		It("lists gateways in sorted order", func() {
			Expect(mgr.SetToken("https://b.example.com", "b")).To(Succeed())
			Expect(mgr.SetToken("https://a.example.com", "a")).To(Succeed())

			gateways, err := mgr.ListGateways()
			Expect(err).NotTo(HaveOccurred())
			Expect(gateways).To(Equal([]string{"https://a.example.com", "https://b.example.com"}))
		})
	})

	Describe("MaskToken", func() {
		It("keeps only the last four characters", func() {
			Expect(credentials.MaskToken("abcdefgh")).To(Equal("****efgh"))
			Expect(credentials.MaskToken("abc")).To(Equal("***"))
		})
	})
})
