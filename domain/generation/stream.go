package generation

import (
	"io"
	"strings"
)

// TextStream is a lazy, single-pass, non-restartable sequence of text
// fragments. Recv returns fragments in emission order, io.EOF once the
// stream completed normally, or the terminal error if it aborted
// mid-stream. Consumers may stop pulling at any point; Close releases
// the underlying connection and is safe to call more than once.
type TextStream struct {
	next   func() (string, error)
	closer io.Closer

	err    error
	closed bool
}

// NewTextStream wraps a pull function and an optional closer. The pull
// function must return io.EOF on normal exhaustion.
func NewTextStream(next func() (string, error), closer io.Closer) *TextStream {
	return &TextStream{next: next, closer: closer}
}

func (s *TextStream) Recv() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	fragment, err := s.next()
	if err != nil {
		s.err = err
		s.Close()
		return "", err
	}
	return fragment, nil
}

func (s *TextStream) Close() error {
	if s.closed || s.closer == nil {
		return nil
	}
	s.closed = true
	return s.closer.Close()
}

// Collect drains the stream and concatenates every fragment in order.
// The stream is closed regardless of outcome.
func (s *TextStream) Collect() (string, error) {
	defer s.Close()
	var sb strings.Builder
	for {
		fragment, err := s.Recv()
		if err == io.EOF {
			return sb.String(), nil
		}
		if err != nil {
			return "", err
		}
		sb.WriteString(fragment)
	}
}
