package chat

import "github.com/ledzpl/fchat/internal/frame"

// backlog is a fixed-capacity ring of the most recent messages.
type backlog struct {
	buf   []frame.Message
	start int
	size  int
}

func newBacklog(capacity int) *backlog {
	return &backlog{buf: make([]frame.Message, capacity)}
}

// push appends msg, evicting the oldest entry when full.
func (b *backlog) push(msg frame.Message) {
	if len(b.buf) == 0 {
		return
	}
	if b.size < len(b.buf) {
		b.buf[(b.start+b.size)%len(b.buf)] = msg
		b.size++
		return
	}
	b.buf[b.start] = msg
	b.start = (b.start + 1) % len(b.buf)
}

// each visits the entries oldest-first.
func (b *backlog) each(fn func(frame.Message)) {
	for i := 0; i < b.size; i++ {
		fn(b.buf[(b.start+i)%len(b.buf)])
	}
}

func (b *backlog) snapshot() []frame.Message {
	out := make([]frame.Message, 0, b.size)
	b.each(func(m frame.Message) { out = append(out, m) })
	return out
}

func (b *backlog) len() int {
	return b.size
}
