package authcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/chatstream/cmd/chatstream/auth"
	"github.com/papercomputeco/chatstream/pkg/credentials"
)

var _ = Describe("Auth Command", func() {
	var (
		tmpDir string
		out    *bytes.Buffer
	)

	newCmd := func(stdin string, args ...string) *cobra.Command {
		cmd := authcmder.NewAuthCmd()
		cmd.PersistentFlags().String("config-dir", "", "Override path to .chatstream/ config directory")
		cmd.SetIn(bytes.NewBufferString(stdin))
		cmd.SetOut(out)
		cmd.SetErr(out)
		cmd.SetArgs(append(args, "--config-dir", tmpDir))
		return cmd
	}

	storedToken := func(gateway string) string {
		mgr, err := credentials.NewManager(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		token, err := mgr.GetToken(gateway)
		Expect(err).NotTo(HaveOccurred())
		return token
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		out = &bytes.Buffer{}
		GinkgoT().Setenv(credentials.TokenEnvVar, "")
	})

	Describe("NewAuthCmd", func() {
		It("creates a command with expected properties", func() {
			cmd := authcmder.NewAuthCmd()
			Expect(cmd.Use).To(Equal("auth [gateway]"))
			Expect(cmd.Short).NotTo(BeEmpty())
			Expect(cmd.Flags().Lookup("list")).NotTo(BeNil())
			Expect(cmd.Flags().Lookup("remove")).NotTo(BeNil())
		})
	})

	Describe("storing a token", func() {
		It("stores a piped token for the given gateway", func() {
			Expect(newCmd("tok-123456\n", "https://chat.example.com/").Execute()).To(Succeed())

			Expect(storedToken("https://chat.example.com")).To(Equal("tok-123456"))
			Expect(out.String()).To(ContainSubstring("3456"))
			Expect(out.String()).NotTo(ContainSubstring("tok-123456"))
		})

		It("defaults to the configured gateway", func() {
			cfg := "[gateway]\nurl = \"https://configured.example.com\"\n"
			Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(cfg), 0o600)).To(Succeed())

			Expect(newCmd("secret\n").Execute()).To(Succeed())
			Expect(storedToken("https://configured.example.com")).To(Equal("secret"))
		})

		It("rejects an empty token", func() {
			err := newCmd("   \n", "https://chat.example.com").Execute()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("cannot be empty"))
		})

		It("rejects missing input", func() {
			Expect(newCmd("", "https://chat.example.com").Execute()).To(HaveOccurred())
		})

		It("rejects more than one gateway", func() {
			Expect(newCmd("x\n", "a", "b").Execute()).To(HaveOccurred())
		})
	})

	Describe("--list flag", func() {
		It("shows no tokens when none stored", func() {
			Expect(newCmd("", "--list").Execute()).To(Succeed())
			Expect(out.String()).To(ContainSubstring("No stored tokens"))
		})

		It("lists stored gateways with masked tokens", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(mgr.SetToken("https://a.example.com", "secret-aaaa")).To(Succeed())

			Expect(newCmd("", "--list").Execute()).To(Succeed())
			Expect(out.String()).To(ContainSubstring("https://a.example.com"))
			Expect(out.String()).To(ContainSubstring("aaaa"))
			Expect(out.String()).NotTo(ContainSubstring("secret-aaaa"))
		})
	})

	Describe("--remove flag", func() {
		It("removes the stored token", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(mgr.SetToken("https://a.example.com", "secret")).To(Succeed())

			Expect(newCmd("", "--remove", "https://a.example.com/").Execute()).To(Succeed())
			Expect(storedToken("https://a.example.com")).To(BeEmpty())
		})
	})
})
