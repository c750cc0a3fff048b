package generation

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCloser struct {
	closed int
}

func (c *recordingCloser) Close() error {
	c.closed++
	return nil
}

func fragmentStream(fragments []string, terminal error, closer io.Closer) *TextStream {
	i := 0
	return NewTextStream(func() (string, error) {
		if i >= len(fragments) {
			return "", terminal
		}
		f := fragments[i]
		i++
		return f, nil
	}, closer)
}

func TestTextStream_RecvInOrder(t *testing.T) {
	s := fragmentStream([]string{"<!doctype html>", "<html>", "</html>"}, io.EOF, nil)

	var got []string
	for {
		f, err := s.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, f)
	}
	assert.Equal(t, []string{"<!doctype html>", "<html>", "</html>"}, got)

	// Exhausted stream keeps returning its terminal state.
	_, err := s.Recv()
	assert.Equal(t, io.EOF, err)
}

func TestTextStream_Collect(t *testing.T) {
	closer := &recordingCloser{}
	s := fragmentStream([]string{"a", "b", "c"}, io.EOF, closer)

	text, err := s.Collect()

	require.NoError(t, err)
	assert.Equal(t, "abc", text)
	assert.Equal(t, 1, closer.closed)
}

func TestTextStream_MidStreamError(t *testing.T) {
	terminal := errors.New("stream aborted by server")
	closer := &recordingCloser{}
	s := fragmentStream([]string{"partial"}, terminal, closer)

	f, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, "partial", f)

	_, err = s.Recv()
	assert.Equal(t, terminal, err)
	assert.Equal(t, 1, closer.closed)

	// The error is sticky.
	_, err = s.Recv()
	assert.Equal(t, terminal, err)
}

func TestTextStream_EarlyClose(t *testing.T) {
	closer := &recordingCloser{}
	s := fragmentStream([]string{"a", "b"}, io.EOF, closer)

	_, err := s.Recv()
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, closer.closed)
}
