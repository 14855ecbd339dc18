package frame

import "io"

// State is the position of a Reader within the current frame.
type State int

const (
	AwaitingHeader State = iota
	AwaitingBody
)

func (s State) String() string {
	switch s {
	case AwaitingHeader:
		return "awaiting-header"
	case AwaitingBody:
		return "awaiting-body"
	default:
		return "unknown"
	}
}

// Reader pulls complete frames off a byte stream, one read at a time.
// After the first error every call to Next returns that error.
type Reader struct {
	r     io.Reader
	state State
	err   error

	header  [HeaderSize]byte
	body    [MaxBodySize]byte
	bodyLen int
}

// NewReader returns a Reader positioned at the start of a header.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// State reports which part of the frame the next read will fill.
func (fr *Reader) State() State {
	return fr.state
}

// Next blocks until a complete frame has arrived. Header problems are
// reported wrapped in ErrFraming; transport errors are returned as-is, with
// io.EOF only when the stream ends on a frame boundary.
func (fr *Reader) Next() (Message, error) {
	if fr.err != nil {
		return Message{}, fr.err
	}

	for {
		switch fr.state {
		case AwaitingHeader:
			if _, err := io.ReadFull(fr.r, fr.header[:]); err != nil {
				return Message{}, fr.fail(err)
			}
			n, err := DecodeHeader(fr.header[:])
			if err != nil {
				return Message{}, fr.fail(err)
			}
			fr.bodyLen = n
			fr.state = AwaitingBody

		case AwaitingBody:
			if _, err := io.ReadFull(fr.r, fr.body[:fr.bodyLen]); err != nil {
				if err == io.EOF {
					err = io.ErrUnexpectedEOF
				}
				return Message{}, fr.fail(err)
			}
			fr.state = AwaitingHeader
			return NewMessage(fr.body[:fr.bodyLen]), nil
		}
	}
}

func (fr *Reader) fail(err error) error {
	fr.err = err
	return err
}
