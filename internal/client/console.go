package client

import (
	"io"
	"sync"
)

const (
	seqClearLine = "\r\033[K"
	promptText   = "> "
)

// Console renders incoming messages without trampling the line the user is
// typing. Without ANSI support it falls back to plain lines.
type Console struct {
	mu   sync.Mutex
	w    io.Writer
	ansi bool
}

// NewConsole writes to w; ansi enables prompt redrawing.
func NewConsole(w io.Writer, ansi bool) *Console {
	return &Console{w: w, ansi: ansi}
}

// Message prints a chat message above the prompt.
func (c *Console) Message(text string) error {
	if c.ansi {
		return c.writeString(seqClearLine + text + "\r\n" + promptText)
	}
	return c.writeString(text + "\n")
}

// Notice prints a client-side status line.
func (c *Console) Notice(text string) error {
	if c.ansi {
		return c.writeString(seqClearLine + text + "\r\n")
	}
	return c.writeString(text + "\n")
}

// Prompt draws the input prompt.
func (c *Console) Prompt() error {
	if !c.ansi {
		return nil
	}
	return c.writeString(promptText)
}

func (c *Console) writeString(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := io.WriteString(c.w, s)
	return err
}
