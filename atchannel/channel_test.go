package atchannel

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rehiy/web-shortrange/edm"
	"github.com/rehiy/web-shortrange/shortrange"
)

type fakePort struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.Write(b)
}

func (p *fakePort) bytes() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return bytes.Clone(p.buf.Bytes())
}

type fakeDevice struct {
	mu    sync.Mutex
	cmds  []string
	reply func(cmd string) ([]string, error)
}

func (d *fakeDevice) SendCommand(cmd string) ([]string, error) {
	d.mu.Lock()
	d.cmds = append(d.cmds, cmd)
	reply := d.reply
	d.mu.Unlock()
	if reply != nil {
		return reply(cmd)
	}
	return []string{"OK"}, nil
}

func (d *fakeDevice) sent() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.cmds...)
}

var testModule = &shortrange.Module{
	Name:           "X",
	CommandTimeout: 200 * time.Millisecond,
	CommandDelay:   time.Millisecond,
}

func newTestChannel(t *testing.T, m *shortrange.Module) (*Channel, *fakeDevice, *fakePort) {
	t.Helper()
	port := &fakePort{}
	dev := &fakeDevice{}
	c := newChannel("tty0", port, m, WithPrintf(t.Logf), WithGuardTime(time.Millisecond))
	c.dev = dev
	t.Cleanup(c.Close)
	return c, dev, port
}

func TestSwitchModeCommands(t *testing.T) {
	c, dev, port := newTestChannel(t, testModule)
	ctx := context.Background()

	require.NoError(t, c.SwitchMode(ctx, shortrange.ModeCommand, shortrange.ModeData))
	assert.Equal(t, shortrange.ModeData, c.Mode())

	require.NoError(t, c.SwitchMode(ctx, shortrange.ModeData, shortrange.ModeCommand))
	assert.Equal(t, "+++", string(port.bytes()))
	assert.Equal(t, shortrange.ModeCommand, c.Mode())

	require.NoError(t, c.SwitchMode(ctx, shortrange.ModeCommand, shortrange.ModeBinaryFraming))
	require.NoError(t, c.SwitchMode(ctx, shortrange.ModeBinaryFraming, shortrange.ModeCommand))

	assert.Equal(t, []string{"ATO1", "ATO2", "ATO0"}, dev.sent())
}

func TestSwitchModeIndirect(t *testing.T) {
	c, dev, _ := newTestChannel(t, testModule)
	c.mode.Store(int32(shortrange.ModeData))

	err := c.SwitchMode(context.Background(), shortrange.ModeData, shortrange.ModeBinaryFraming)
	assert.ErrorIs(t, err, ErrIndirect)
	assert.Empty(t, dev.sent())
	assert.Equal(t, shortrange.ModeData, c.Mode())
}

func TestSwitchModeRejected(t *testing.T) {
	c, dev, _ := newTestChannel(t, testModule)
	dev.reply = func(string) ([]string, error) { return []string{"ERROR"}, errors.New("ERROR") }

	err := c.SwitchMode(context.Background(), shortrange.ModeCommand, shortrange.ModeData)
	assert.Error(t, err)
	assert.Equal(t, shortrange.ModeCommand, c.Mode())
}

func TestCommandRejectedInDataMode(t *testing.T) {
	c, dev, _ := newTestChannel(t, testModule)
	c.mode.Store(int32(shortrange.ModeData))

	_, err := c.Command(context.Background(), "AT")
	assert.ErrorIs(t, err, ErrDataMode)
	assert.Empty(t, dev.sent())
}

func TestExchangeTimeout(t *testing.T) {
	m := *testModule
	m.CommandTimeout = 20 * time.Millisecond
	c, dev, _ := newTestChannel(t, &m)

	release := make(chan struct{})
	defer close(release)
	dev.reply = func(string) ([]string, error) {
		<-release
		return nil, nil
	}

	start := time.Now()
	_, err := c.Command(context.Background(), "AT")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestCheckBoundedByResponseMaxWait(t *testing.T) {
	m := *testModule
	m.CommandTimeout = 5 * time.Second
	m.ResponseMaxWait = 20 * time.Millisecond
	c, dev, _ := newTestChannel(t, &m)

	release := make(chan struct{})
	defer close(release)
	dev.reply = func(string) ([]string, error) {
		<-release
		return nil, nil
	}

	start := time.Now()
	err := c.Test(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.NotContains(t, dev.sent(), "ATE0")
}

func TestCheckSendsEchoOff(t *testing.T) {
	c, dev, _ := newTestChannel(t, testModule)
	require.NoError(t, c.Test(context.Background()))
	assert.Equal(t, []string{"AT", "ATE0"}, dev.sent())

	c.mode.Store(int32(shortrange.ModeData))
	assert.ErrorIs(t, c.Test(context.Background()), ErrDataMode)
}

func TestCommandDelay(t *testing.T) {
	m := *testModule
	m.CommandDelay = 30 * time.Millisecond
	c, _, _ := newTestChannel(t, &m)
	ctx := context.Background()

	_, err := c.Command(ctx, "AT")
	require.NoError(t, err)
	start := time.Now()
	_, err = c.Command(ctx, "AT")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestInfo(t *testing.T) {
	c, dev, _ := newTestChannel(t, testModule)
	dev.reply = func(cmd string) ([]string, error) {
		switch cmd {
		case cmdManufacturer:
			return []string{"u-blox", "OK"}, nil
		case cmdModel:
			return []string{`"NINA-B3"`, "OK"}, nil
		case cmdSerialNumber:
			return []string{"+CGSN:1234", "OK"}, nil
		}
		return nil, errors.New("ERROR")
	}

	info := c.Info(context.Background())
	assert.Equal(t, "u-blox", info["manufacturer"])
	assert.Equal(t, "NINA-B3", info["model"])
	assert.Equal(t, "1234", info["serial"])
	assert.NotContains(t, info, "firmware")
}

func TestLinePortWrapsInBinaryFraming(t *testing.T) {
	c, _, port := newTestChannel(t, testModule)
	lp := c.pipe()

	n, err := lp.Write([]byte("AT\r\n"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "AT\r\n", string(port.bytes()))

	c.mode.Store(int32(shortrange.ModeBinaryFraming))
	_, err = lp.Write([]byte("ATO0\r\n"))
	require.NoError(t, err)

	want, err := edm.ATRequest([]byte("ATO0\r\n"))
	require.NoError(t, err)
	assert.Equal(t, append([]byte("AT\r\n"), want...), port.bytes())
}

func TestFeedReachesDevice(t *testing.T) {
	c, _, _ := newTestChannel(t, testModule)
	lp := c.pipe()

	c.Feed([]byte("\r\nOK\r\n"))
	buf := make([]byte, 16)
	n, err := lp.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "\r\nOK\r\n", string(buf[:n]))
}

func TestFeedAfterCloseIsDropped(t *testing.T) {
	c, _, _ := newTestChannel(t, testModule)
	c.Close()
	assert.NotPanics(t, func() { c.Feed([]byte("x")) })
	_, err := c.Command(context.Background(), "AT")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestURCStatus(t *testing.T) {
	c, _, _ := newTestChannel(t, testModule)

	var got []shortrange.ConnectionStatus
	var urcs []string
	c.onURC = func(e string, _ map[int]string) { urcs = append(urcs, e) }
	c.OnStatus(func(st shortrange.ConnectionStatus) { got = append(got, st) })

	c.handleURC("+UUBTACLC", map[int]string{0: "0", 1: "0", 2: "D4CA6EA0D3FBp"})
	c.handleURC("+UUBTACLD", map[int]string{0: "0"})
	c.handleURC("+STARTUP", nil)

	require.Len(t, got, 2)
	assert.Equal(t, shortrange.StatusConnected, got[0].Code)
	assert.Equal(t, "D4CA6EA0D3FBp", got[0].Peer)
	assert.Equal(t, shortrange.StatusDisconnected, got[1].Code)
	assert.Equal(t, "0", got[1].Peer)
	assert.Equal(t, []string{"+UUBTACLC", "+UUBTACLD", "+STARTUP"}, urcs)
}
