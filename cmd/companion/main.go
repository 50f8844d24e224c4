package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	username  string
	outDir    string
	width     int
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "companion",
	Short: "Talk to Yui from the terminal",
	Long: `companion is a terminal client for the Yui companion backend.

Each line typed on stdin is sent as a chat message. The reply is split into
sentences, synthesized through the backend, and written to --out-dir in
playback order while the avatar state is printed to stderr.

Commands inside the session:
  /listen   toggle dictation (not available in the terminal)
  /quit     leave the session`,
	SilenceUsage: true,
	RunE:         runSession,
}

func init() {
	rootCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "companion backend base URL")
	rootCmd.Flags().StringVar(&username, "username", "", "how the companion addresses you")
	rootCmd.Flags().StringVar(&outDir, "out-dir", "", "directory for synthesized audio (default: a temp dir)")
	rootCmd.Flags().IntVar(&width, "width", 0, "number of sentences synthesized concurrently (default 5)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
