package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/tarm/serial"
	"go.uber.org/atomic"
)

const (
	readTimeout = 100 * time.Millisecond
	errorSleep  = 100 * time.Millisecond
	bufferSize  = 256
)

var ErrClosed = errors.New("port closed")

// Stream 串口的最小读写面，便于替换为测试桩
type Stream interface {
	io.ReadWriteCloser
	Flush() error
}

// Port 封装单个串口的读取循环与串行写入
type Port struct {
	name   string
	stream Stream
	closed *atomic.Bool

	// 写入互斥，同一时刻只有一条命令或一段数据在发送
	wmu sync.Mutex
}

// Open 以指定波特率打开串口
func Open(name string, baud int) (*Port, error) {
	sp, err := serial.OpenPort(&serial.Config{
		Name: name, Baud: baud, ReadTimeout: readTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] open: %w", name, err)
	}
	return New(name, sp), nil
}

// New 包装已打开的串流
func New(name string, s Stream) *Port {
	return &Port{name: name, stream: s, closed: atomic.NewBool(false)}
}

// Name 端口名称
func (p *Port) Name() string { return p.name }

// Run 持续读取直到 ctx 取消或端口关闭
// 读到的字节交给 sink，超时以外的读错误交给 fail 后退出
func (p *Port) Run(ctx context.Context, sink func([]byte), fail func(error)) {
	buf := make([]byte, bufferSize)
	for ctx.Err() == nil && !p.closed.Load() {
		n, err := p.stream.Read(buf)
		if n > 0 {
			sink(append([]byte(nil), buf[:n]...))
		}
		if err == nil || errors.Is(err, io.EOF) {
			// 读超时在 tarm/serial 中表现为零字节或 EOF
			continue
		}
		if p.closed.Load() {
			return
		}

		log.Printf("[%s] read error: %v", p.name, err)
		if fail != nil {
			fail(err)
		}
		select {
		case <-ctx.Done():
		case <-time.After(errorSleep):
		}
		return
	}
}

// Write 串行写入原始字节
func (p *Port) Write(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}

	p.wmu.Lock()
	defer p.wmu.Unlock()
	return p.stream.Write(b)
}

// Flush 丢弃串口缓冲区中未读的数据
func (p *Port) Flush() error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	return p.stream.Flush()
}

// Close 关闭串口，重复调用无副作用
func (p *Port) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	log.Printf("[%s] closing", p.name)
	return p.stream.Close()
}

// IsOpen 端口是否仍可用
func (p *Port) IsOpen() bool {
	return !p.closed.Load()
}
