package service

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

	"github.com/rehiy/web-shortrange/config"
	"github.com/rehiy/web-shortrange/edm"
	"github.com/rehiy/web-shortrange/events"
	"github.com/rehiy/web-shortrange/shortrange"
	"github.com/rehiy/web-shortrange/transport"
)

type pipeStream struct {
	r  *io.PipeReader
	mu sync.Mutex
	w  bytes.Buffer
}

func (s *pipeStream) Read(p []byte) (int, error) { return s.r.Read(p) }
func (s *pipeStream) Close() error               { return s.r.Close() }
func (s *pipeStream) Flush() error               { return nil }

func (s *pipeStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *pipeStream) written() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Clone(s.w.Bytes())
}

type fakeRadio struct {
	mu       sync.Mutex
	switches [][2]shortrange.Mode
	cmds     []string
	status   func(shortrange.ConnectionStatus)
	testErr  error
	closed   bool
}

func (f *fakeRadio) Feed([]byte) {}

func (f *fakeRadio) SwitchMode(_ context.Context, from, to shortrange.Mode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.switches = append(f.switches, [2]shortrange.Mode{from, to})
	return nil
}

func (f *fakeRadio) OnStatus(fn func(shortrange.ConnectionStatus)) {
	f.mu.Lock()
	f.status = fn
	f.mu.Unlock()
}

func (f *fakeRadio) Command(_ context.Context, cmd string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, cmd)
	return []string{"OK"}, nil
}

func (f *fakeRadio) Test(context.Context) error { return f.testErr }

func (f *fakeRadio) Reboot(ctx context.Context) error {
	_, err := f.Command(ctx, "AT+CPWROFF")
	return err
}

func (f *fakeRadio) Info(context.Context) map[string]string {
	return map[string]string{"model": "NINA-B3"}
}

func (f *fakeRadio) Reset() {}

func (f *fakeRadio) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeRadio) notify(st shortrange.ConnectionStatus) {
	f.mu.Lock()
	fn := f.status
	f.mu.Unlock()
	fn(st)
}

type rig struct {
	svc    *RadioService
	hub    *events.EventListener
	radio  *fakeRadio
	stream *pipeStream
	wire   *io.PipeWriter
	events <-chan events.Event
}

func newRig(t *testing.T) *rig {
	t.Helper()
	r, w := io.Pipe()
	rg := &rig{
		hub:    events.NewEventListener(),
		radio:  &fakeRadio{},
		stream: &pipeStream{r: r},
		wire:   w,
	}
	_, ch, cancel := rg.hub.Subscribe(64)
	t.Cleanup(cancel)
	rg.events = ch

	dial := func(port string, _ int, _ *shortrange.Module, _ func(string, map[int]string)) (*transport.Port, RadioChannel, error) {
		return transport.New(port, rg.stream), rg.radio, nil
	}
	rg.svc = NewRadioService(rg.hub, WithDialer(dial), WithSink(func(events.Event) {}))
	t.Cleanup(rg.svc.Shutdown)
	return rg
}

func (rg *rig) open(t *testing.T) *RadioConn {
	t.Helper()
	conn, err := rg.svc.Open(context.Background(), config.RadioConfig{Port: "/dev/ttyUSB0", Module: "NINA-B3"})
	require.NoError(t, err)
	return conn
}

func (rg *rig) next(t *testing.T, kind string) events.Event {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case ev := <-rg.events:
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", kind)
		}
	}
}

func TestOpenListClose(t *testing.T) {
	rg := newRig(t)
	conn := rg.open(t)
	assert.Equal(t, "ttyUSB0", conn.Name)
	assert.Equal(t, "NINA-B3", conn.Module)
	assert.Equal(t, "opened", rg.next(t, events.KindRadio).Status)

	list := rg.svc.List()
	require.Len(t, list, 1)
	assert.Equal(t, "command", list[0].Mode)
	assert.True(t, list[0].Ready)

	again, err := rg.svc.Open(context.Background(), config.RadioConfig{Port: "/dev/ttyUSB0", Module: "NINA-B3"})
	require.NoError(t, err)
	assert.Same(t, conn, again)

	info, err := rg.svc.Info(context.Background(), "ttyUSB0")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"model": "NINA-B3"}, info["device"])

	require.NoError(t, rg.svc.Close("ttyUSB0"))
	assert.Equal(t, "closed", rg.next(t, events.KindRadio).Status)
	assert.ErrorIs(t, rg.svc.Close("ttyUSB0"), ErrNotOpen)
	assert.True(t, rg.radio.closed)
	assert.Empty(t, rg.svc.List())
}

func TestOpenFailsWhenATTestFails(t *testing.T) {
	rg := newRig(t)
	rg.radio.testErr = errors.New("no answer")

	_, err := rg.svc.Open(context.Background(), config.RadioConfig{Port: "/dev/ttyUSB0", Module: "NINA-B3"})
	assert.Error(t, err)
	assert.Empty(t, rg.svc.List())
	assert.Zero(t, rg.svc.registry.Len())
}

func TestOpenUnknownModule(t *testing.T) {
	rg := newRig(t)
	_, err := rg.svc.Open(context.Background(), config.RadioConfig{Port: "/dev/ttyUSB0", Module: "SARA-R5"})
	assert.ErrorIs(t, err, shortrange.ErrUnknownModuleType)
}

func TestDataReachesHub(t *testing.T) {
	rg := newRig(t)
	rg.open(t)
	require.NoError(t, rg.svc.SetMode(context.Background(), "ttyUSB0", shortrange.ModeData))
	assert.Equal(t, "data", rg.next(t, events.KindMode).Status)

	_, err := rg.wire.Write([]byte("hello"))
	require.NoError(t, err)

	ev := rg.next(t, events.KindData)
	assert.Equal(t, 5, ev.Size)
	assert.Equal(t, "68656c6c6f", ev.Detail["hex"])
}

func TestSetModeStepsThroughCommand(t *testing.T) {
	rg := newRig(t)
	rg.open(t)
	ctx := context.Background()

	require.NoError(t, rg.svc.SetMode(ctx, "ttyUSB0", shortrange.ModeData))
	require.NoError(t, rg.svc.SetMode(ctx, "ttyUSB0", shortrange.ModeBinaryFraming))

	assert.Equal(t, [][2]shortrange.Mode{
		{shortrange.ModeCommand, shortrange.ModeData},
		{shortrange.ModeData, shortrange.ModeCommand},
		{shortrange.ModeCommand, shortrange.ModeBinaryFraming},
	}, rg.radio.switches)
}

func TestSendData(t *testing.T) {
	rg := newRig(t)
	rg.open(t)
	ctx := context.Background()

	assert.Error(t, rg.svc.SendData("ttyUSB0", 0, []byte("x")))

	require.NoError(t, rg.svc.SetMode(ctx, "ttyUSB0", shortrange.ModeData))
	require.NoError(t, rg.svc.SendData("ttyUSB0", 0, []byte("raw")))
	assert.Equal(t, []byte("raw"), rg.stream.written())

	require.NoError(t, rg.svc.SetMode(ctx, "ttyUSB0", shortrange.ModeBinaryFraming))
	require.NoError(t, rg.svc.SendData("ttyUSB0", 2, []byte("framed")))
	require.NoError(t, rg.svc.ResendConnections("ttyUSB0"))

	frame, err := edm.DataCommand(2, []byte("framed"))
	require.NoError(t, err)
	want := append(append([]byte("raw"), frame...), edm.ResendConnectEvents()...)
	assert.Equal(t, want, rg.stream.written())
}

func TestFramingConnectionReachesHub(t *testing.T) {
	rg := newRig(t)
	rg.open(t)
	require.NoError(t, rg.svc.SetMode(context.Background(), "ttyUSB0", shortrange.ModeBinaryFraming))

	pkt, err := edm.Encode(edm.IDConnectEvent, []byte{1, 0x01, 1, 0xD4, 0xCA, 0x6E, 0, 0, 1, 0x01, 0x00})
	require.NoError(t, err)
	_, err = rg.wire.Write(pkt)
	require.NoError(t, err)

	ev := rg.next(t, events.KindFraming)
	assert.Equal(t, "connected", ev.Status)
	assert.Equal(t, "D4CA6E000001", ev.Address)
	assert.Equal(t, 1, ev.Channel)
}

func TestRestartWaitsForReadiness(t *testing.T) {
	rg := newRig(t)
	rg.open(t)
	ctx := context.Background()

	require.NoError(t, rg.svc.SetMode(ctx, "ttyUSB0", shortrange.ModeData))
	require.NoError(t, rg.svc.Restart(ctx, "ttyUSB0"))

	st, err := rg.svc.Status("ttyUSB0")
	require.NoError(t, err)
	assert.Equal(t, "command", st.Mode)
	assert.False(t, st.Ready)
	assert.Contains(t, rg.radio.cmds, "AT+CPWROFF")

	_, err = rg.svc.SendCommand(ctx, "ttyUSB0", "AT")
	assert.ErrorIs(t, err, ErrNotReady)

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, rg.svc.WaitReady(short, "ttyUSB0"), ErrNotReady)
}

func TestURCStatusReachesHub(t *testing.T) {
	rg := newRig(t)
	rg.open(t)

	rg.radio.notify(shortrange.ConnectionStatus{Code: shortrange.StatusConnected, Peer: "D4CA6EA0D3FBp"})
	ev := rg.next(t, events.KindStatus)
	assert.Equal(t, "connected", ev.Status)
	assert.Equal(t, "D4CA6EA0D3FBp", ev.Address)

	st, err := rg.svc.Status("ttyUSB0")
	require.NoError(t, err)
	assert.True(t, st.Connected)
}

func TestStreamErrorReachesHub(t *testing.T) {
	rg := newRig(t)
	rg.open(t)

	rg.wire.CloseWithError(errors.New("unplugged"))
	ev := rg.next(t, events.KindStatus)
	assert.Equal(t, "stream-error", ev.Status)
	assert.Equal(t, "unplugged", ev.Detail["error"])
}
