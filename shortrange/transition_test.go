package shortrange

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// confirmAfter 模拟模块在 d 之后确认切换
func confirmAfter(d time.Duration) func(context.Context, Mode, Mode) error {
	return func(ctx context.Context, _, _ Mode) error {
		select {
		case <-time.After(d):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// neverConfirm 模拟模块一直不响应
func neverConfirm(ctx context.Context, _, _ Mode) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestDataModeDelivery(t *testing.T) {
	r := newTestRegistry(t, time.Second)
	ch := &fakeChannel{switchFn: confirmAfter(10 * time.Millisecond)}

	h, err := r.Create(moduleTypeX, Stream{Handle: 1}, ch)
	require.NoError(t, err)

	var got [][]byte
	require.NoError(t, r.SetDataCallback(h, func(hh Handle, data []byte) {
		assert.Equal(t, h, hh)
		got = append(got, data)
	}))

	require.NoError(t, r.SetMode(context.Background(), h, ModeData))
	mode, err := r.Mode(h)
	require.NoError(t, err)
	assert.Equal(t, ModeData, mode)

	require.NoError(t, r.Deliver(h, []byte("hello")))
	require.Len(t, got, 1)
	assert.Equal(t, []byte("hello"), got[0])
	assert.Empty(t, ch.feeds(), "data mode bytes never reach the command channel")
}

func TestCommandModeFeedsChannel(t *testing.T) {
	r := newTestRegistry(t, time.Second)
	ch := &fakeChannel{}
	h, err := r.Create(moduleTypeX, Stream{}, ch)
	require.NoError(t, err)

	dataCalls := 0
	require.NoError(t, r.SetDataCallback(h, func(Handle, []byte) { dataCalls++ }))

	require.NoError(t, r.Deliver(h, []byte("OK\r\n")))
	assert.Equal(t, [][]byte{[]byte("OK\r\n")}, ch.feeds())
	assert.Zero(t, dataCalls)
}

func TestDeliveredChunkIsCopied(t *testing.T) {
	r := newTestRegistry(t, time.Second)
	h, err := r.Create(moduleTypeX, Stream{}, &fakeChannel{})
	require.NoError(t, err)
	require.NoError(t, r.SetMode(context.Background(), h, ModeData))

	var got []byte
	require.NoError(t, r.SetDataCallback(h, func(_ Handle, data []byte) { got = data }))

	buf := []byte("abc")
	require.NoError(t, r.Deliver(h, buf))
	buf[0] = 'x'
	assert.Equal(t, []byte("abc"), got)
}

func TestSetModeTimeout(t *testing.T) {
	r := newTestRegistry(t, 50*time.Millisecond)
	h, err := r.Create(moduleTypeX, Stream{}, &fakeChannel{switchFn: neverConfirm})
	require.NoError(t, err)

	start := time.Now()
	err = r.SetMode(context.Background(), h, ModeBinaryFraming)
	assert.ErrorIs(t, err, ErrTransitionTimeout)
	assert.Less(t, time.Since(start), time.Second)

	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, ModeCommand, te.From)
	assert.Equal(t, ModeBinaryFraming, te.To)

	mode, _ := r.Mode(h)
	assert.Equal(t, ModeCommand, mode)
}

func TestSetModeSameModeIsNoop(t *testing.T) {
	r := newTestRegistry(t, time.Second)
	called := false
	h, err := r.Create(moduleTypeX, Stream{}, &fakeChannel{switchFn: func(context.Context, Mode, Mode) error {
		called = true
		return nil
	}})
	require.NoError(t, err)

	require.NoError(t, r.SetMode(context.Background(), h, ModeCommand))
	assert.False(t, called)
}

func TestSetModeInvalid(t *testing.T) {
	r := newTestRegistry(t, time.Second)
	h, err := r.Create(moduleTypeX, Stream{}, &fakeChannel{})
	require.NoError(t, err)

	assert.Error(t, r.SetMode(context.Background(), h, Mode(9)))
	assert.ErrorIs(t, r.SetMode(context.Background(), Handle(12345), ModeData), ErrNotFound)
}

func TestSetModeInProgress(t *testing.T) {
	r := newTestRegistry(t, time.Second)
	release := make(chan struct{})
	entered := make(chan struct{})
	h, err := r.Create(moduleTypeX, Stream{}, &fakeChannel{switchFn: func(ctx context.Context, _, _ Mode) error {
		close(entered)
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var first error
	wg.Add(1)
	go func() {
		defer wg.Done()
		first = r.SetMode(context.Background(), h, ModeData)
	}()

	<-entered
	err = r.SetMode(context.Background(), h, ModeBinaryFraming)
	assert.ErrorIs(t, err, ErrTransitionInProgress)

	close(release)
	wg.Wait()
	require.NoError(t, first)

	mode, _ := r.Mode(h)
	assert.Equal(t, ModeData, mode)
}

func TestSetModeStreamError(t *testing.T) {
	r := newTestRegistry(t, 5*time.Second)
	entered := make(chan struct{})
	h, err := r.Create(moduleTypeX, Stream{}, &fakeChannel{switchFn: func(ctx context.Context, _, _ Mode) error {
		close(entered)
		<-ctx.Done()
		return ctx.Err()
	}})
	require.NoError(t, err)

	var statuses []ConnectionStatus
	require.NoError(t, r.SetConnectionStatusCallback(h, func(_ Handle, st ConnectionStatus) {
		statuses = append(statuses, st)
	}))

	done := make(chan error, 1)
	go func() { done <- r.SetMode(context.Background(), h, ModeData) }()

	<-entered
	require.NoError(t, r.NotifyStreamError(h, errors.New("uart overrun")))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrStream)
	case <-time.After(time.Second):
		t.Fatal("transition did not fail on stream error")
	}

	mode, _ := r.Mode(h)
	assert.Equal(t, ModeCommand, mode)
	require.Len(t, statuses, 1)
	assert.Equal(t, StatusStreamError, statuses[0].Code)
}

func TestSetModeChannelError(t *testing.T) {
	r := newTestRegistry(t, time.Second)
	h, err := r.Create(moduleTypeX, Stream{}, &fakeChannel{switchFn: func(context.Context, Mode, Mode) error {
		return errors.New("ERROR")
	}})
	require.NoError(t, err)

	err = r.SetMode(context.Background(), h, ModeData)
	assert.ErrorIs(t, err, ErrStream)
	mode, _ := r.Mode(h)
	assert.Equal(t, ModeCommand, mode)
}

func TestRestartDuringHandshakeNotCommitted(t *testing.T) {
	r := newTestRegistry(t, time.Second)
	var h Handle
	// 模块先确认切换随即重启，确认与重启同时到达
	h, err := r.Create(moduleTypeX, Stream{}, &fakeChannel{switchFn: func(context.Context, Mode, Mode) error {
		assert.NoError(t, r.MarkRestart(h, RestartCommanded))
		return nil
	}})
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		err = r.SetMode(context.Background(), h, ModeData)
		assert.ErrorIs(t, err, ErrStream)
		mode, _ := r.Mode(h)
		require.Equal(t, ModeCommand, mode)
	}
}

func TestCloseDuringTransition(t *testing.T) {
	r := newTestRegistry(t, 5*time.Second)
	entered := make(chan struct{})
	h, err := r.Create(moduleTypeX, Stream{}, &fakeChannel{switchFn: func(ctx context.Context, _, _ Mode) error {
		close(entered)
		<-ctx.Done()
		return ctx.Err()
	}})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- r.SetMode(context.Background(), h, ModeBinaryFraming) }()

	<-entered
	require.NoError(t, r.Close(h))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrNotFound)
	case <-time.After(time.Second):
		t.Fatal("transition did not end on close")
	}
}

func TestSetModeCallerCancel(t *testing.T) {
	r := newTestRegistry(t, 5*time.Second)
	h, err := r.Create(moduleTypeX, Stream{}, &fakeChannel{switchFn: neverConfirm})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = r.SetMode(ctx, h, ModeData)
	assert.ErrorIs(t, err, ErrTransitionTimeout)
	mode, _ := r.Mode(h)
	assert.Equal(t, ModeCommand, mode)
}

func TestModeRoundTrip(t *testing.T) {
	r := newTestRegistry(t, time.Second)
	var seen [][2]Mode
	h, err := r.Create(moduleTypeX, Stream{}, &fakeChannel{switchFn: func(_ context.Context, from, to Mode) error {
		seen = append(seen, [2]Mode{from, to})
		return nil
	}})
	require.NoError(t, err)

	ctx := context.Background()
	for _, m := range []Mode{ModeData, ModeBinaryFraming, ModeCommand, ModeBinaryFraming, ModeData} {
		require.NoError(t, r.SetMode(ctx, h, m))
		got, _ := r.Mode(h)
		assert.Equal(t, m, got)
	}
	assert.Equal(t, [][2]Mode{
		{ModeCommand, ModeData},
		{ModeData, ModeBinaryFraming},
		{ModeBinaryFraming, ModeCommand},
		{ModeCommand, ModeBinaryFraming},
		{ModeBinaryFraming, ModeData},
	}, seen)
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{
		"command": ModeCommand, "CMD": ModeCommand,
		"data": ModeData, "edm": ModeBinaryFraming, "binary-framing": ModeBinaryFraming,
	} {
		m, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, m, in)
	}
	_, err := ParseMode("ppp")
	assert.Error(t, err)
}
