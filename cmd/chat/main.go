// Chat is the interactive client for chatd. Lines typed on stdin are sent to
// the server; every message the server broadcasts is printed.
//
// Usage:
//
//	chat [host] [port]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ledzpl/fchat/internal/client"
	"github.com/ledzpl/fchat/internal/logging"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var (
	logLevel    string
	dialTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "chat [host] [port]",
	Short: "Connect to a chat server",
	Long: `Connect to a chatd server and chat interactively.

Type a message and press Enter to send it. Type 'quit' or 'exit' to leave.`,
	Example: `  chat
  chat 10.0.0.5 9000`,
	Args:          cobra.MaximumNArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runClient,
}

func init() {
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); silent if unset")
	rootCmd.Flags().DurationVar(&dialTimeout, "timeout", 5*time.Second, "Connection timeout")
}

func runClient(cmd *cobra.Command, args []string) error {
	if err := logging.Initialize(logLevel); err != nil {
		return err
	}
	defer logging.Sync()

	host, port := client.DefaultHost, client.DefaultPort
	if len(args) > 0 {
		host = args[0]
	}
	if len(args) > 1 {
		port = args[1]
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dialCtx, cancelDial := context.WithTimeout(ctx, dialTimeout)
	c, err := client.Dial(dialCtx, host, port)
	cancelDial()
	if err != nil {
		return err
	}

	console := client.NewConsole(os.Stdout, term.IsTerminal(int(os.Stdout.Fd())))
	_ = console.Notice("=== Connected to Chat Server ===")
	_ = console.Notice("Type your messages and press Enter. Type 'quit' to exit.")
	_ = console.Notice("=================================")

	return client.Run(ctx, c, os.Stdin, console)
}
