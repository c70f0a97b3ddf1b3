package main

import (
	"os"

	chatstreamcmder "github.com/papercomputeco/chatstream/cmd/chatstream"
)

func main() {
	cmd := chatstreamcmder.NewChatstreamCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
