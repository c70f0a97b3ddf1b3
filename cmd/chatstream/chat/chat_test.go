package chatcmder_test

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/chatstream/cmd/chatstream/chat"
	"github.com/papercomputeco/chatstream/devserver"
	"github.com/papercomputeco/chatstream/pkg/credentials"
)

var _ = Describe("NewChatCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := chatcmder.NewChatCmd()
		Expect(cmd.Use).To(Equal("chat [prompt]"))
	})

	It("registers the gateway flag with its default", func() {
		cmd := chatcmder.NewChatCmd()
		flag := cmd.Flags().Lookup("gateway")
		Expect(flag).NotTo(BeNil())
		Expect(flag.Shorthand).To(Equal("g"))
		Expect(flag.DefValue).To(Equal("http://localhost:8000"))
	})

	It("has the fallback and streaming switches", func() {
		cmd := chatcmder.NewChatCmd()
		for _, name := range []string{"no-fallback", "no-stream", "trace", "log-file", "markdown", "model", "config-id"} {
			Expect(cmd.Flags().Lookup(name)).NotTo(BeNil(), name)
		}
	})
})

var _ = Describe("Chat command against the development gateway", func() {
	var (
		configDir string
		gateway   string
		stdout    *bytes.Buffer
		stderr    *bytes.Buffer
	)

	startGateway := func(cfg devserver.Config) {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())

		srv := devserver.New(cfg, nil)
		go func() { _ = srv.RunWithListener(listener) }()
		DeferCleanup(srv.Close)

		gateway = "http://" + listener.Addr().String()
	}

	storeToken := func(token string) {
		mgr, err := credentials.NewManager(configDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(mgr.SetToken(gateway, token)).To(Succeed())
	}

	newCmd := func(args ...string) *cobra.Command {
		cmd := chatcmder.NewChatCmd()
		cmd.PersistentFlags().String("config-dir", "", "Override path to .chatstream/ config directory")
		cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
		cmd.SetOut(stdout)
		cmd.SetErr(stderr)
		cmd.SetArgs(append([]string{"--config-dir", configDir, "--gateway", gateway}, args...))
		return cmd
	}

	BeforeEach(func() {
		configDir = GinkgoT().TempDir()
		stdout = &bytes.Buffer{}
		stderr = &bytes.Buffer{}
	})

	It("streams a one-shot answer", func() {
		startGateway(devserver.Config{Token: "secret"})
		storeToken("secret")

		Expect(newCmd("Hello", "there").Execute()).To(Succeed())
		Expect(stdout.String()).To(ContainSubstring("You said: Hello there"))
		Expect(stdout.String()).To(ContainSubstring(devserver.DefaultModel))
		Expect(stdout.String()).NotTo(ContainSubstring("non-streaming"))
	})

	It("falls back when the gateway refuses to stream", func() {
		startGateway(devserver.Config{FailStreaming: true})
		storeToken("secret")

		Expect(newCmd("--simulated-delay-ms", "1", "ok").Execute()).To(Succeed())
		Expect(stdout.String()).To(ContainSubstring("You said: ok"))
		Expect(stdout.String()).To(ContainSubstring("non-streaming"))
	})

	It("shows the replacement notice when a live stream breaks part way", func() {
		startGateway(devserver.Config{AbortAfter: 2})
		storeToken("secret")

		Expect(newCmd("--simulated-delay-ms", "1", "one two three four").Execute()).To(Succeed())
		Expect(stdout.String()).To(ContainSubstring("Stream interrupted"))
		Expect(stdout.String()).To(ContainSubstring("You said: one two three four"))
	})

	It("prints the fallback answer when simulated streaming is turned off", func() {
		GinkgoT().Setenv("CHATSTREAM_STREAM_SIMULATE_FALLBACK", "false")
		startGateway(devserver.Config{FailStreaming: true})
		storeToken("secret")

		Expect(newCmd("ok").Execute()).To(Succeed())
		Expect(stdout.String()).To(ContainSubstring("You said: ok"))
		Expect(stdout.String()).To(ContainSubstring("non-streaming"))
	})

	It("replaces a broken live answer when simulated streaming is turned off", func() {
		GinkgoT().Setenv("CHATSTREAM_STREAM_SIMULATE_FALLBACK", "false")
		startGateway(devserver.Config{AbortAfter: 2})
		storeToken("secret")

		Expect(newCmd("one two three four").Execute()).To(Succeed())
		Expect(stdout.String()).To(ContainSubstring("Stream interrupted"))
		Expect(stdout.String()).To(ContainSubstring("You said: one two three four"))
	})

	It("reports the failure when fallback is disabled", func() {
		startGateway(devserver.Config{FailStreaming: true})
		storeToken("secret")

		Expect(newCmd("--no-fallback", "ok").Execute()).To(HaveOccurred())
		Expect(stderr.String()).To(ContainSubstring("Could not reach the chat gateway"))
		Expect(stdout.String()).NotTo(ContainSubstring("You said"))
	})

	It("points at auth when the token is rejected", func() {
		startGateway(devserver.Config{Token: "secret"})
		storeToken("wrong")

		Expect(newCmd("ok").Execute()).To(HaveOccurred())
		Expect(stderr.String()).To(ContainSubstring("chatstream auth"))
	})

	It("uses only the send endpoint with --no-stream", func() {
		startGateway(devserver.Config{FailStreaming: true})
		storeToken("secret")

		Expect(newCmd("--no-stream", "quiet").Execute()).To(Succeed())
		Expect(stdout.String()).To(ContainSubstring("You said: quiet"))
	})

	It("writes debug logs to --log-file without cluttering stderr", func() {
		startGateway(devserver.Config{})
		storeToken("secret")
		logPath := filepath.Join(GinkgoT().TempDir(), "chat.log")

		Expect(newCmd("--log-file", logPath, "logged").Execute()).To(Succeed())

		data, err := os.ReadFile(logPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(ContainSubstring(`"msg":"opening stream"`))
		Expect(stderr.String()).NotTo(ContainSubstring("opening stream"))
	})

	It("renders the answer as markdown", func() {
		startGateway(devserver.Config{})
		storeToken("secret")

		Expect(newCmd("--markdown", "rendered").Execute()).To(Succeed())
		Expect(stdout.String()).To(ContainSubstring("rendered"))
		Expect(stdout.String()).NotTo(ContainSubstring("assistant> "))
	})

	It("runs an interactive session until /exit", func() {
		startGateway(devserver.Config{})
		storeToken("secret")

		cmd := newCmd()
		cmd.SetIn(strings.NewReader("first\n/reset\n\nsecond\n/exit\nnever\n"))

		Expect(cmd.Execute()).To(Succeed())
		out := stdout.String()
		Expect(out).To(ContainSubstring("You said: first"))
		Expect(out).To(ContainSubstring("History cleared."))
		Expect(out).To(ContainSubstring("You said: second"))
		Expect(out).NotTo(ContainSubstring("You said: never"))
	})

	It("keeps the session going after a failed turn", func() {
		startGateway(devserver.Config{Token: "secret"})
		storeToken("wrong")

		cmd := newCmd()
		cmd.SetIn(strings.NewReader("one\ntwo\n"))

		Expect(cmd.Execute()).To(Succeed())
		Expect(strings.Count(stderr.String(), "chatstream auth")).To(Equal(2))
	})
})
