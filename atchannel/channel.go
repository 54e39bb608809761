package atchannel

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rehiy/modem/at"
	"go.uber.org/atomic"

	"github.com/rehiy/web-shortrange/shortrange"
)

// commander 命令交换的最小接口，由 at.Device 实现
type commander interface {
	SendCommand(cmd string) ([]string, error)
}

// Option 命令通道选项
type Option func(*Channel)

// WithPrintf 设置日志函数
func WithPrintf(pf func(string, ...any)) Option {
	return func(c *Channel) { c.printf = pf }
}

// WithGuardTime 设置 +++ 前后的静默时间
func WithGuardTime(d time.Duration) Option {
	return func(c *Channel) { c.guard = d }
}

// WithURC 订阅全部 URC
func WithURC(fn func(event string, params map[int]string)) Option {
	return func(c *Channel) { c.onURC = fn }
}

// Channel 基于 AT 设备的命令通道
type Channel struct {
	name   string
	port   Port
	module *shortrange.Module
	guard  time.Duration
	printf func(string, ...any)
	onURC  func(string, map[int]string)

	dev      commander
	closeDev func()

	mode   *atomic.Int32
	closed *atomic.Bool

	// 入站字节经 inbox 泵入管道，Feed 不会阻塞核心
	inbox chan []byte
	pw    *io.PipeWriter
	done  chan struct{}

	// xmu 串行化命令交换，last 为上次交换结束的时间
	xmu  sync.Mutex
	last time.Time

	smu      sync.Mutex
	onStatus func(shortrange.ConnectionStatus)
}

// New 创建命令通道，port 用于写出，入站字节由核心经 Feed 交付
func New(name string, port Port, m *shortrange.Module, opts ...Option) *Channel {
	c := newChannel(name, port, m, opts...)
	lp := c.pipe()

	dev := at.New(lp, c.handleURC, &at.Config{Printf: c.printf})
	c.dev = dev
	c.closeDev = func() { dev.Close() }
	return c
}

func newChannel(name string, port Port, m *shortrange.Module, opts ...Option) *Channel {
	c := &Channel{
		name:   name,
		port:   port,
		module: m,
		guard:  defaultGuardTime,
		mode:   atomic.NewInt32(int32(shortrange.ModeCommand)),
		closed: atomic.NewBool(false),
		inbox:  make(chan []byte, inboxSize),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.printf == nil {
		c.printf = func(string, ...any) {}
	}
	return c
}

// pipe 建立虚拟串口并启动泵
func (c *Channel) pipe() *linePort {
	pr, pw := io.Pipe()
	c.pw = pw
	go c.pump()
	return &linePort{c: c, r: pr}
}

func (c *Channel) pump() {
	for {
		select {
		case p := <-c.inbox:
			if _, err := c.pw.Write(p); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// OnStatus 设置连接状态的上报目标
func (c *Channel) OnStatus(fn func(shortrange.ConnectionStatus)) {
	c.smu.Lock()
	c.onStatus = fn
	c.smu.Unlock()
}

// Mode 通道当前认定的模块模式
func (c *Channel) Mode() shortrange.Mode {
	return shortrange.Mode(c.mode.Load())
}

// Reset 模块重启后回到命令模式
func (c *Channel) Reset() {
	c.mode.Store(int32(shortrange.ModeCommand))
}

// Feed 接收核心路由来的命令字节，缓冲满时丢弃
func (c *Channel) Feed(p []byte) {
	if c.closed.Load() {
		return
	}
	select {
	case c.inbox <- append([]byte(nil), p...):
	default:
		c.printf("inbox full, %d bytes dropped", len(p))
	}
}

// SwitchMode 发出模式切换命令并等待模块确认
func (c *Channel) SwitchMode(ctx context.Context, from, to shortrange.Mode) error {
	if c.closed.Load() {
		return ErrClosed
	}

	var err error
	switch {
	case from == to:
		return nil
	case from == shortrange.ModeCommand && to == shortrange.ModeData:
		_, err = c.exchange(ctx, cmdDataMode, c.module.CommandTimeout)
	case from == shortrange.ModeCommand && to == shortrange.ModeBinaryFraming:
		_, err = c.exchange(ctx, cmdEDMMode, c.module.CommandTimeout)
	case from == shortrange.ModeBinaryFraming && to == shortrange.ModeCommand:
		_, err = c.exchange(ctx, cmdCommandMode, c.module.CommandTimeout)
	case from == shortrange.ModeData && to == shortrange.ModeCommand:
		err = c.escape(ctx)
	default:
		return fmt.Errorf("%s -> %s: %w", from, to, ErrIndirect)
	}
	if err != nil {
		return err
	}

	c.mode.Store(int32(to))
	c.printf("mode confirmed: %s", to)
	return nil
}

// escape 在数据模式下发送 +++ 回到命令模式
// 模块的确认混在数据流中，保护时间结束即视为完成
func (c *Channel) escape(ctx context.Context) error {
	c.xmu.Lock()
	defer c.xmu.Unlock()

	if err := sleep(ctx, c.guard); err != nil {
		return err
	}
	if _, err := c.port.Write([]byte(escapeSequence)); err != nil {
		return err
	}
	if err := sleep(ctx, c.guard); err != nil {
		return err
	}
	c.last = time.Now()
	return nil
}

// Command 发送一条 AT 命令并返回响应行
func (c *Channel) Command(ctx context.Context, cmd string) ([]string, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if c.Mode() == shortrange.ModeData {
		return nil, ErrDataMode
	}
	return c.exchange(ctx, cmd, c.module.CommandTimeout)
}

// exchange 遵守命令间隔并以 timeout 限定一次交换
func (c *Channel) exchange(ctx context.Context, cmd string, timeout time.Duration) ([]string, error) {
	c.xmu.Lock()
	defer c.xmu.Unlock()

	if wait := c.module.CommandDelay - time.Since(c.last); wait > 0 {
		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		lines []string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		lines, err := c.dev.SendCommand(cmd)
		done <- result{lines, err}
	}()

	defer func() { c.last = time.Now() }()
	select {
	case r := <-done:
		if r.err != nil {
			return r.lines, fmt.Errorf("%s: %w", cmd, r.err)
		}
		return r.lines, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", cmd, ctx.Err())
	}
}

// Test 发送 AT 并关闭回显
// 两条都是即时应答的命令，以 ResponseMaxWait 为限，模块不在时无需等满 CommandTimeout
func (c *Channel) Test(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if c.Mode() == shortrange.ModeData {
		return ErrDataMode
	}

	wait := c.module.ResponseMaxWait
	if wait <= 0 {
		wait = c.module.CommandTimeout
	}
	for _, cmd := range []string{cmdCheck, cmdEchoOff} {
		if _, err := c.exchange(ctx, cmd, wait); err != nil {
			return err
		}
	}
	return nil
}

// Reboot 发出重启命令
func (c *Channel) Reboot(ctx context.Context) error {
	_, err := c.Command(ctx, cmdReboot)
	return err
}

// Info 查询模块标识，单项失败不影响其余
func (c *Channel) Info(ctx context.Context) map[string]string {
	info := map[string]string{}
	for key, cmd := range map[string]string{
		"manufacturer": cmdManufacturer,
		"model":        cmdModel,
		"firmware":     cmdFirmware,
		"serial":       cmdSerialNumber,
	} {
		if lines, err := c.Command(ctx, cmd); err == nil {
			info[key] = firstValue(lines, cmd)
		}
	}
	return info
}

// Close 停止泵并关闭 AT 设备
func (c *Channel) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	close(c.done)
	if c.pw != nil {
		c.pw.Close()
	}
	if c.closeDev != nil {
		c.closeDev()
	}
}

// firstValue 取第一行有效内容，去掉命令回显与结果码
func firstValue(lines []string, cmd string) string {
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || line == "OK" || strings.EqualFold(line, cmd) {
			continue
		}
		if prefix := strings.TrimPrefix(cmd, "AT") + ":"; strings.HasPrefix(line, prefix) {
			line = strings.TrimSpace(strings.TrimPrefix(line, prefix))
		}
		return strings.Trim(line, `"`)
	}
	return ""
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
