package shortrange

import (
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"
)

// Option 注册表选项
type Option func(*Registry)

// WithTable 替换内置的模块参数表
func WithTable(tb Table) Option {
	return func(r *Registry) { r.table = tb }
}

// WithClock 替换时钟，用于就绪判断
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithDecoder 为每个实例创建二进制分帧解码器
func WithDecoder(factory func() FramingDecoder) Option {
	return func(r *Registry) { r.newDecoder = factory }
}

// Registry 管理全部存活实例，成员变动与查找都在 mu 下进行
type Registry struct {
	mu        sync.Mutex
	instances map[Handle]*Instance
	next      Handle

	table      Table
	now        func() time.Time
	newDecoder func() FramingDecoder
}

// NewRegistry 创建空注册表
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		instances: make(map[Handle]*Instance),
		table:     modules,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create 查表并创建实例，初始为命令模式
func (r *Registry) Create(t ModuleType, s Stream, ch CommandChannel) (Handle, error) {
	m, ok := r.table.Lookup(t)
	if !ok {
		return -1, fmt.Errorf("%w: %s", ErrUnknownModuleType, t)
	}

	var dec FramingDecoder
	if r.newDecoder != nil {
		dec = r.newDecoder()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.mint()
	r.instances[h] = newInstance(h, m, s, ch, dec)
	log.Printf("[%d] created %s on stream %d", h, m.Name, s.Handle)
	return h, nil
}

// mint 生成未被占用的句柄，调用方持有 mu
func (r *Registry) mint() Handle {
	for {
		h := r.next
		if r.next == math.MaxInt32 {
			r.next = 0
		} else {
			r.next++
		}
		if _, live := r.instances[h]; !live {
			return h
		}
	}
}

// Find 按句柄查找存活实例
func (r *Registry) Find(h Handle) (*Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	in, ok := r.instances[h]
	return in, ok
}

func (r *Registry) get(h Handle) (*Instance, error) {
	in, ok := r.Find(h)
	if !ok {
		return nil, fmt.Errorf("[%d] %w", h, ErrNotFound)
	}
	return in, nil
}

// Close 移除实例，句柄立即失效
func (r *Registry) Close(h Handle) error {
	r.mu.Lock()
	in, ok := r.instances[h]
	if ok {
		delete(r.instances, h)
		in.closed.Store(true)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("[%d] %w", h, ErrNotFound)
	}

	in.abortTransition(ErrNotFound)
	log.Printf("[%d] closed", h)
	return nil
}

// CharacteristicsOf 返回实例的模块参数
func (r *Registry) CharacteristicsOf(h Handle) (*Module, error) {
	in, err := r.get(h)
	if err != nil {
		return nil, err
	}
	return in.module, nil
}

// Mode 返回实例当前模式
func (r *Registry) Mode(h Handle) (Mode, error) {
	in, err := r.get(h)
	if err != nil {
		return ModeCommand, err
	}
	return in.Mode(), nil
}

// MarkRestart 标记重启开始，之后按参数表计算就绪时间
// 重启后的模块处于命令模式
func (r *Registry) MarkRestart(h Handle, kind RestartKind) error {
	in, err := r.get(h)
	if err != nil {
		return err
	}
	in.markRestart(kind, r.now())
	if kind != RestartNone {
		in.resetToCommand()
	}
	return nil
}

// Ready 实例是否已度过启动或重启等待期
func (r *Registry) Ready(h Handle) (bool, error) {
	in, err := r.get(h)
	if err != nil {
		return false, err
	}
	return in.ready(r.now()), nil
}

// IsConnected 最近一次连接状态是否为已连接
func (r *Registry) IsConnected(h Handle) (bool, error) {
	in, err := r.get(h)
	if err != nil {
		return false, err
	}
	return in.isConnected(), nil
}

// Handles 返回全部存活句柄，升序
func (r *Registry) Handles() []Handle {
	r.mu.Lock()
	list := make([]Handle, 0, len(r.instances))
	for h := range r.instances {
		list = append(list, h)
	}
	r.mu.Unlock()

	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
	return list
}

// Len 存活实例数
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.instances)
}
