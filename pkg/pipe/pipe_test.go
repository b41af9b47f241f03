package pipe

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadReturnsCommittedBytes(t *testing.T) {
	p := New(DefaultOptions())
	w := p.Writer()

	span := w.Alloc(5)
	require.GreaterOrEqual(t, len(span), 5)
	copy(span, "hello")
	w.Advance(5)
	w.Commit()

	res, err := p.Reader().Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), res.Buffer)
	assert.False(t, res.Completed)
}

func TestAdvanceMarksRemainderExamined(t *testing.T) {
	p := New(DefaultOptions())
	r, w := p.Reader(), p.Writer()

	_, err := w.Write([]byte("abcdef"))
	require.NoError(t, err)

	res, err := r.Read(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Buffer, 6)
	r.Advance(2)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = r.Read(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = w.Write([]byte("g"))
	require.NoError(t, err)

	res, err = r.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("cdefg"), res.Buffer)
}

func TestAdvanceToLeavesRemainderUnexamined(t *testing.T) {
	p := New(DefaultOptions())
	r, w := p.Reader(), p.Writer()

	_, err := w.Write([]byte("abcdef"))
	require.NoError(t, err)

	_, err = r.Read(context.Background())
	require.NoError(t, err)
	r.AdvanceTo(3, 3)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, err := r.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("def"), res.Buffer)
}

func TestUncommittedBytesAreInvisible(t *testing.T) {
	p := New(DefaultOptions())
	w := p.Writer()

	copy(w.Alloc(3), "xyz")
	w.Advance(3)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Reader().Read(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, p.Len())

	w.Commit()
	assert.Equal(t, 3, p.Len())
}

func TestWriterCompleteWakesReader(t *testing.T) {
	p := New(DefaultOptions())
	r, w := p.Reader(), p.Writer()

	done := make(chan ReadResult, 1)
	go func() {
		res, _ := r.Read(context.Background())
		done <- res
	}()

	time.Sleep(10 * time.Millisecond)
	w.Complete(nil)

	select {
	case res := <-done:
		assert.True(t, res.Completed)
		assert.Empty(t, res.Buffer)
	case <-time.After(time.Second):
		t.Fatal("reader not woken by Complete")
	}
}

func TestWriterCompleteWithError(t *testing.T) {
	p := New(DefaultOptions())
	boom := errors.New("boom")

	_, err := p.Writer().Write([]byte("tail"))
	require.NoError(t, err)
	p.Writer().Complete(boom)

	res, err := p.Reader().Read(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.True(t, res.Completed)
	assert.Equal(t, []byte("tail"), res.Buffer)

	_, err = p.Writer().Write([]byte("more"))
	assert.ErrorIs(t, err, ErrWriterCompleted)
}

func TestReaderCompleteFailsFlush(t *testing.T) {
	p := New(DefaultOptions())
	p.Reader().Complete()

	_, err := p.Writer().Write([]byte("x"))
	assert.ErrorIs(t, err, ErrReaderCompleted)

	_, err = p.Reader().Read(context.Background())
	assert.ErrorIs(t, err, ErrReaderCompleted)
}

func TestWaitReaderCompleted(t *testing.T) {
	p := New(DefaultOptions())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Writer().WaitReaderCompleted(ctx), context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- p.Writer().WaitReaderCompleted(context.Background()) }()
	p.Reader().Complete()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitReaderCompleted did not return")
	}
}

func TestFlushBackpressure(t *testing.T) {
	p := New(Options{PauseThreshold: 8, ResumeThreshold: 4})
	r, w := p.Reader(), p.Writer()

	flushed := make(chan error, 1)
	go func() {
		_, err := w.Write(bytes.Repeat([]byte{'a'}, 10))
		flushed <- err
	}()

	select {
	case <-flushed:
		t.Fatal("Flush returned above pause threshold")
	case <-time.After(30 * time.Millisecond):
	}

	res, err := r.Read(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Buffer, 10)

	// 10 -> 5 is still not below the resume threshold.
	r.Advance(5)
	select {
	case <-flushed:
		t.Fatal("Flush resumed above resume threshold")
	case <-time.After(30 * time.Millisecond):
	}

	r.Advance(2)
	select {
	case err := <-flushed:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Flush did not resume")
	}
}

func TestFlushCancelled(t *testing.T) {
	p := New(Options{PauseThreshold: 1, ResumeThreshold: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Writer().WriteContext(ctx, []byte("xy"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDuplexPair(t *testing.T) {
	a, b := NewDuplexPair(DefaultOptions())

	_, err := a.Output().Write([]byte("ping"))
	require.NoError(t, err)
	res, err := b.Input().Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), res.Buffer)
	b.Input().Advance(len(res.Buffer))

	_, err = b.Output().Write([]byte("pong"))
	require.NoError(t, err)
	res, err = a.Input().Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("pong"), res.Buffer)
}

func TestStream(t *testing.T) {
	a, b := NewDuplexPair(DefaultOptions())
	sa, sb := NewStream(a), NewStream(b)

	go func() {
		_, _ = sa.Write([]byte("hello world"))
		_ = sa.CloseWrite()
	}()

	small := make([]byte, 4)
	n, err := sb.Read(small)
	require.NoError(t, err)
	assert.Equal(t, "hell", string(small[:n]))

	rest, err := io.ReadAll(sb)
	require.NoError(t, err)
	assert.Equal(t, "o world", string(rest))

	require.NoError(t, sb.Close())
	_, err = sb.Read(small)
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}
