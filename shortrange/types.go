package shortrange

import (
	"context"
	"fmt"
)

// Handle 调用方可见的实例句柄
type Handle int32

// StreamType 底层串流类型
type StreamType int

const (
	StreamUART StreamType = iota
	StreamEDM
)

// Stream 实例绑定的底层串流
type Stream struct {
	Handle int        `json:"handle"`
	Type   StreamType `json:"type"`
}

// CommandChannel 外部 AT 命令通道，核心不解析命令语法
type CommandChannel interface {
	// Feed 交付命令模式下收到的字节
	Feed(p []byte)
	// SwitchMode 发出模式切换命令并等待确认，须遵守 ctx 的截止时间
	SwitchMode(ctx context.Context, from, to Mode) error
}

// FrameKind EDM 解复用后的帧类别
type FrameKind int

const (
	FrameCommand FrameKind = iota
	FrameData
	FrameConnection
)

// Frame 二进制分帧解码结果
type Frame struct {
	Kind       FrameKind
	Channel    int
	Payload    []byte
	Connection FramingConnection
}

// FramingDecoder 二进制分帧解码器，持有跨分片的重组缓冲
type FramingDecoder interface {
	Decode(p []byte) []Frame
	Reset()
}

// ConnectionType 分帧连接类型
type ConnectionType int

const (
	ConnectionBluetooth ConnectionType = 1
	ConnectionIPv4      ConnectionType = 2
	ConnectionIPv6      ConnectionType = 3
)

func (t ConnectionType) String() string {
	switch t {
	case ConnectionBluetooth:
		return "bluetooth"
	case ConnectionIPv4:
		return "ipv4"
	case ConnectionIPv6:
		return "ipv6"
	}
	return fmt.Sprintf("ConnectionType(%d)", int(t))
}

// FramingConnection 分帧连接事件，表示电平而非边沿
type FramingConnection struct {
	Address   string         `json:"address"`
	Type      ConnectionType `json:"type"`
	Profile   int            `json:"profile"`
	Channel   int            `json:"channel"`
	FrameSize int            `json:"frameSize,omitempty"`
	Connected bool           `json:"connected"`
}

// StatusCode 连接状态码
type StatusCode int

const (
	StatusDisconnected StatusCode = iota
	StatusConnected
	StatusStreamError
)

func (c StatusCode) String() string {
	switch c {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnected:
		return "connected"
	case StatusStreamError:
		return "stream-error"
	}
	return fmt.Sprintf("StatusCode(%d)", int(c))
}

// ConnectionStatus 连接状态事件
type ConnectionStatus struct {
	Code StatusCode `json:"code"`
	Peer string     `json:"peer"`
	Err  error      `json:"-"`
}

// 回调以闭包形式携带各自的上下文
type (
	ConnectionStatusFunc  func(h Handle, status ConnectionStatus)
	FramingConnectionFunc func(h Handle, conn FramingConnection)
	DataFunc              func(h Handle, data []byte)
)
