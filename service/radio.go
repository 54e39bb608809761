package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/rehiy/web-shortrange/atchannel"
	"github.com/rehiy/web-shortrange/config"
	"github.com/rehiy/web-shortrange/edm"
	"github.com/rehiy/web-shortrange/events"
	"github.com/rehiy/web-shortrange/logging"
	"github.com/rehiy/web-shortrange/shortrange"
	"github.com/rehiy/web-shortrange/transport"
)

var (
	radioOnce     sync.Once
	radioInstance *RadioService

	ErrNotOpen   = errors.New("radio not open")
	ErrNotReady  = errors.New("radio not ready")
	ErrWrongMode = errors.New("wrong mode")
)

// RadioChannel 服务对命令通道的需求，由 atchannel.Channel 实现
type RadioChannel interface {
	shortrange.CommandChannel
	OnStatus(fn func(shortrange.ConnectionStatus))
	Command(ctx context.Context, cmd string) ([]string, error)
	Test(ctx context.Context) error
	Reboot(ctx context.Context) error
	Info(ctx context.Context) map[string]string
	Reset()
	Close()
}

// Dialer 打开串口并建立命令通道
type Dialer func(port string, baud int, m *shortrange.Module, onURC func(string, map[int]string)) (*transport.Port, RadioChannel, error)

// RadioConn 一个已打开的短距模块
type RadioConn struct {
	Name     string            `json:"name"`
	Port     string            `json:"port"`
	Module   string            `json:"module"`
	Baud     int               `json:"baud"`
	Handle   shortrange.Handle `json:"handle"`
	OpenedAt time.Time         `json:"opened_at"`

	port    *transport.Port
	channel RadioChannel
	cancel  context.CancelFunc
}

// RadioStatus 模块的运行状态
type RadioStatus struct {
	*RadioConn
	Mode      string `json:"mode"`
	Ready     bool   `json:"ready"`
	Connected bool   `json:"connected"`
}

// RadioService 管理多个短距模块
type RadioService struct {
	registry *shortrange.Registry
	hub      *events.EventListener
	dial     Dialer
	sink     func(events.Event)

	pool    map[string]*RadioConn
	streams int
	mu      sync.Mutex
}

// ServiceOption 服务选项
type ServiceOption func(*RadioService)

// WithDialer 替换串口与命令通道的创建方式
func WithDialer(d Dialer) ServiceOption {
	return func(s *RadioService) { s.dial = d }
}

// WithRegistry 替换实例注册表
func WithRegistry(r *shortrange.Registry) ServiceOption {
	return func(s *RadioService) { s.registry = r }
}

// WithSink 事件除推送到事件中心外的去向，默认写事件日志并触发 webhook
func WithSink(fn func(events.Event)) ServiceOption {
	return func(s *RadioService) { s.sink = fn }
}

// GetRadioService 返回单例实例
func GetRadioService() *RadioService {
	radioOnce.Do(func() {
		radioInstance = NewRadioService(events.GetEventListener())
	})
	return radioInstance
}

// NewRadioService 创建独立的服务实例
func NewRadioService(hub *events.EventListener, opts ...ServiceOption) *RadioService {
	s := &RadioService{
		hub:  hub,
		dial: dialSerial,
		pool: map[string]*RadioConn{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = shortrange.NewRegistry(shortrange.WithDecoder(func() shortrange.FramingDecoder {
			return edm.NewDecoder(logging.Printf("edm"))
		}))
	}
	if s.sink == nil {
		eventlog, webhook := NewEventlogService(), NewWebhookService()
		s.sink = func(ev events.Event) {
			eventlog.HandleEvent(ev)
			webhook.HandleEvent(ev)
		}
	}
	return s
}

func dialSerial(port string, baud int, m *shortrange.Module, onURC func(string, map[int]string)) (*transport.Port, RadioChannel, error) {
	p, err := transport.Open(port, baud)
	if err != nil {
		return nil, nil, err
	}
	name := path.Base(port)
	ch := atchannel.New(name, p, m, atchannel.WithPrintf(logging.Printf(name)), atchannel.WithURC(onURC))
	return p, ch, nil
}

// ScanRadios 打开配置中的模块，未配置时探测常见串口
func (s *RadioService) ScanRadios(ctx context.Context, cfg *config.Config) {
	radios := cfg.Radios
	if len(radios) == 0 {
		for _, dev := range transport.Candidates(cfg.Scan...) {
			radios = append(radios, config.RadioConfig{Port: dev, Module: cfg.ScanModule, Baud: 115200})
		}
	}

	for _, rc := range radios {
		if _, err := s.Open(ctx, rc); err != nil {
			log.Printf("[%s] open failed: %v", path.Base(rc.Port), err)
		}
	}
}

// Open 打开串口、登记实例并验证 AT 通道
func (s *RadioService) Open(ctx context.Context, rc config.RadioConfig) (*RadioConn, error) {
	mt, err := shortrange.ParseModuleType(rc.Module)
	if err != nil {
		return nil, err
	}
	m, ok := shortrange.Lookup(mt)
	if !ok {
		return nil, fmt.Errorf("%w: %s", shortrange.ErrUnknownModuleType, rc.Module)
	}
	if rc.Baud <= 0 {
		rc.Baud = 115200
	}

	name := path.Base(rc.Port)
	pf := logging.Printf(name)

	// 检查是否已连接
	if conn, err := s.get(name); err == nil {
		if conn.port.IsOpen() {
			pf("already connected")
			return conn, nil
		}
		_ = s.Close(name)
	}

	pf("connecting as %s", m.Name)
	port, ch, err := s.dial(rc.Port, rc.Baud, m, func(e string, p map[int]string) {
		s.publish(events.Event{Radio: name, Kind: events.KindURC, Status: e, Detail: urcDetail(p)})
	})
	if err != nil {
		pf("connect failed: %v", err)
		return nil, err
	}

	s.mu.Lock()
	s.streams++
	stream := shortrange.Stream{Handle: s.streams, Type: shortrange.StreamUART}
	s.mu.Unlock()

	h, err := s.registry.Create(mt, stream, ch)
	if err != nil {
		ch.Close()
		port.Close()
		return nil, err
	}

	conn := &RadioConn{
		Name: name, Port: rc.Port, Module: m.Name, Baud: rc.Baud,
		Handle: h, OpenedAt: time.Now(),
		port: port, channel: ch,
	}
	s.bind(conn)

	if err := ch.Test(ctx); err != nil {
		pf("at test failed: %v", err)
		s.teardown(conn)
		return nil, err
	}

	s.mu.Lock()
	if old, ok := s.pool[name]; ok {
		s.mu.Unlock()
		s.teardown(conn)
		return old, nil
	}
	s.pool[name] = conn
	s.mu.Unlock()

	pf("connected")
	s.publish(events.Event{Radio: name, Handle: int32(h), Kind: events.KindRadio, Status: "opened"})

	if rc.Mode != "" {
		mode, err := shortrange.ParseMode(rc.Mode)
		if err == nil {
			err = s.SetMode(ctx, name, mode)
		}
		if err != nil {
			pf("initial mode %s failed: %v", rc.Mode, err)
		}
	}
	return conn, nil
}

// bind 注册回调并启动读取循环
func (s *RadioService) bind(conn *RadioConn) {
	h, name := conn.Handle, conn.Name

	conn.channel.OnStatus(func(st shortrange.ConnectionStatus) {
		_ = s.registry.NotifyConnectionStatus(h, st)
	})
	_ = s.registry.SetConnectionStatusCallback(h, s.onStatus(name))
	_ = s.registry.SetFramingConnectionCallback(h, s.onFraming(name))
	_ = s.registry.SetDataCallback(h, s.onData(name))

	ctx, cancel := context.WithCancel(context.Background())
	conn.cancel = cancel
	go conn.port.Run(ctx,
		func(b []byte) { _ = s.registry.Deliver(h, b) },
		func(err error) { _ = s.registry.NotifyStreamError(h, err) },
	)
}

// teardown 释放模块占用的全部资源
func (s *RadioService) teardown(conn *RadioConn) {
	if conn.cancel != nil {
		conn.cancel()
	}
	_ = s.registry.Close(conn.Handle)
	conn.channel.Close()
	_ = conn.port.Close()
}

// Close 关闭指定模块
func (s *RadioService) Close(name string) error {
	s.mu.Lock()
	conn, ok := s.pool[name]
	delete(s.pool, name)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("[%s] %w", name, ErrNotOpen)
	}
	s.teardown(conn)
	s.publish(events.Event{Radio: name, Handle: int32(conn.Handle), Kind: events.KindRadio, Status: "closed"})
	return nil
}

// Shutdown 关闭全部模块
func (s *RadioService) Shutdown() {
	for _, st := range s.List() {
		_ = s.Close(st.Name)
	}
}

func (s *RadioService) get(name string) (*RadioConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.pool[path.Base(name)]
	if !ok {
		return nil, fmt.Errorf("[%s] %w", name, ErrNotOpen)
	}
	return conn, nil
}

// Status 返回模块的运行状态
func (s *RadioService) Status(name string) (*RadioStatus, error) {
	conn, err := s.get(name)
	if err != nil {
		return nil, err
	}
	return s.status(conn), nil
}

func (s *RadioService) status(conn *RadioConn) *RadioStatus {
	st := &RadioStatus{RadioConn: conn}
	if mode, err := s.registry.Mode(conn.Handle); err == nil {
		st.Mode = mode.String()
	}
	st.Ready, _ = s.registry.Ready(conn.Handle)
	st.Connected, _ = s.registry.IsConnected(conn.Handle)
	return st
}

// List 返回全部已打开模块，按名称排序
func (s *RadioService) List() []*RadioStatus {
	s.mu.Lock()
	conns := make([]*RadioConn, 0, len(s.pool))
	for _, conn := range s.pool {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	sort.Slice(conns, func(i, j int) bool { return conns[i].Name < conns[j].Name })
	list := make([]*RadioStatus, 0, len(conns))
	for _, conn := range conns {
		list = append(list, s.status(conn))
	}
	return list
}

// Info 运行状态、模块参数与设备标识
func (s *RadioService) Info(ctx context.Context, name string) (map[string]any, error) {
	conn, err := s.get(name)
	if err != nil {
		return nil, err
	}
	st := s.status(conn)
	m, err := s.registry.CharacteristicsOf(conn.Handle)
	if err != nil {
		return nil, err
	}

	info := map[string]any{"status": st, "module": m}
	if st.Ready && st.Mode != shortrange.ModeData.String() {
		info["device"] = conn.channel.Info(ctx)
	}
	return info, nil
}

// SetMode 切换模块模式，数据模式与二进制分帧之间经由命令模式
func (s *RadioService) SetMode(ctx context.Context, name string, to shortrange.Mode) error {
	conn, err := s.get(name)
	if err != nil {
		return err
	}
	from, err := s.registry.Mode(conn.Handle)
	if err != nil {
		return err
	}

	if from != shortrange.ModeCommand && to != shortrange.ModeCommand && from != to {
		if err := s.registry.SetMode(ctx, conn.Handle, shortrange.ModeCommand); err != nil {
			return err
		}
	}
	if err := s.registry.SetMode(ctx, conn.Handle, to); err != nil {
		return err
	}

	s.publish(events.Event{
		Radio: conn.Name, Handle: int32(conn.Handle), Kind: events.KindMode, Status: to.String(),
	})
	return nil
}

// Restart 发出重启命令，之后按模块参数表等待就绪
func (s *RadioService) Restart(ctx context.Context, name string) error {
	conn, err := s.get(name)
	if err != nil {
		return err
	}
	if mode, _ := s.registry.Mode(conn.Handle); mode == shortrange.ModeData {
		if err := s.SetMode(ctx, name, shortrange.ModeCommand); err != nil {
			return err
		}
	}
	if err := conn.channel.Reboot(ctx); err != nil {
		return err
	}

	conn.channel.Reset()
	if err := s.registry.MarkRestart(conn.Handle, shortrange.RestartCommanded); err != nil {
		return err
	}
	s.publish(events.Event{Radio: conn.Name, Handle: int32(conn.Handle), Kind: events.KindRadio, Status: "restarting"})
	return nil
}

// WaitReady 轮询直到模块就绪或 ctx 结束
func (s *RadioService) WaitReady(ctx context.Context, name string) error {
	conn, err := s.get(name)
	if err != nil {
		return err
	}
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		ready, err := s.registry.Ready(conn.Handle)
		if err != nil {
			return err
		}
		if ready {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("[%s] %w: %v", name, ErrNotReady, ctx.Err())
		case <-ticker.C:
		}
	}
}

// SendCommand 发送 AT 命令
func (s *RadioService) SendCommand(ctx context.Context, name, cmd string) ([]string, error) {
	conn, err := s.get(name)
	if err != nil {
		return nil, err
	}
	if ready, _ := s.registry.Ready(conn.Handle); !ready {
		return nil, fmt.Errorf("[%s] %w", name, ErrNotReady)
	}
	return conn.channel.Command(ctx, cmd)
}

// SendData 数据模式下直接写出，二进制分帧模式下封装到指定通道
func (s *RadioService) SendData(name string, channel int, data []byte) error {
	conn, err := s.get(name)
	if err != nil {
		return err
	}
	mode, err := s.registry.Mode(conn.Handle)
	if err != nil {
		return err
	}

	switch mode {
	case shortrange.ModeData:
		_, err = conn.port.Write(data)
	case shortrange.ModeBinaryFraming:
		var frame []byte
		if frame, err = edm.DataCommand(channel, data); err == nil {
			_, err = conn.port.Write(frame)
		}
	default:
		err = fmt.Errorf("[%s] %w: cannot send data in %s mode", name, ErrWrongMode, mode)
	}
	return err
}

// ResendConnections 要求模块重发活动连接，仅二进制分帧模式可用
func (s *RadioService) ResendConnections(name string) error {
	conn, err := s.get(name)
	if err != nil {
		return err
	}
	if mode, _ := s.registry.Mode(conn.Handle); mode != shortrange.ModeBinaryFraming {
		return fmt.Errorf("[%s] %w: not in %s mode", name, ErrWrongMode, shortrange.ModeBinaryFraming)
	}
	_, err = conn.port.Write(edm.ResendConnectEvents())
	return err
}
