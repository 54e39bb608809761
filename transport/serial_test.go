package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeStream 读端来自 io.Pipe，写入记录在缓冲区
type pipeStream struct {
	r  *io.PipeReader
	mu sync.Mutex
	w  bytes.Buffer
}

func (s *pipeStream) Read(p []byte) (int, error) { return s.r.Read(p) }

func (s *pipeStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *pipeStream) Close() error { return s.r.Close() }
func (s *pipeStream) Flush() error { return nil }

func (s *pipeStream) written() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.String()
}

func TestRunDeliversChunks(t *testing.T) {
	r, w := io.Pipe()
	s := &pipeStream{r: r}
	p := New("tty0", s)

	got := make(chan []byte, 4)
	done := make(chan struct{})
	go func() {
		p.Run(context.Background(), func(b []byte) { got <- b }, nil)
		close(done)
	}()

	_, err := w.Write([]byte("OK\r\n"))
	require.NoError(t, err)
	assert.Equal(t, []byte("OK\r\n"), <-got)

	require.NoError(t, p.Close())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("read loop did not stop after close")
	}
	assert.False(t, p.IsOpen())
	assert.NoError(t, p.Close())
}

func TestRunReportsReadError(t *testing.T) {
	r, w := io.Pipe()
	p := New("tty1", &pipeStream{r: r})

	failed := make(chan error, 1)
	go p.Run(context.Background(), func([]byte) {}, func(err error) { failed <- err })

	boom := errors.New("device unplugged")
	w.CloseWithError(boom)

	select {
	case err := <-failed:
		assert.ErrorIs(t, err, boom)
	case <-time.After(time.Second):
		t.Fatal("read error not reported")
	}
}

func TestWriteAfterClose(t *testing.T) {
	r, _ := io.Pipe()
	s := &pipeStream{r: r}
	p := New("tty2", s)

	n, err := p.Write([]byte("AT\r"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "AT\r", s.written())

	require.NoError(t, p.Close())
	_, err = p.Write([]byte("AT\r"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCandidatesExplicit(t *testing.T) {
	dir := t.TempDir()
	assert.Empty(t, Candidates(dir+"/ttyNONE*"))
}
