// Chatd is the broadcast chat server. Every framed line a client sends is
// stamped and relayed to all connected clients, and newcomers are replayed
// the most recent messages.
//
// Usage:
//
//	chatd [port] [flags]
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
