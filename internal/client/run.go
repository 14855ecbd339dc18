package client

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	"github.com/ledzpl/fchat/internal/frame"
)

const flushTimeout = 2 * time.Second

// Run relays lines from in to the server and server messages to console
// until the user quits, in runs dry, ctx ends, or the server goes away.
func Run(ctx context.Context, c *Client, in io.Reader, console *Console) error {
	readDone := make(chan error, 1)
	go func() {
		readDone <- c.ReadLoop(func(msg frame.Message) {
			_ = console.Message(msg.String())
		})
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	_ = console.Prompt()
	for {
		select {
		case <-ctx.Done():
			return closeClient(c)

		case err := <-readDone:
			_ = console.Notice("Disconnected from server. Exiting...")
			return err

		case line, ok := <-lines:
			if !ok {
				return closeClient(c)
			}
			line = strings.TrimRight(line, "\r")
			switch line {
			case "quit", "exit":
				return closeClient(c)
			case "":
				_ = console.Prompt()
				continue
			}
			if err := c.Send(line); err != nil {
				_ = console.Notice("Disconnected from server. Exiting...")
				return nil
			}
			_ = console.Prompt()
		}
	}
}

func closeClient(c *Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	return c.Close(ctx)
}
