package shortrange

import (
	"bytes"
	"fmt"
	"log"
	"runtime"
	"strconv"
)

type eventKind int

const (
	eventStatus eventKind = iota
	eventFraming
	eventData

	eventKinds
)

// event 待派发的回调事件，回调在派发时才读取
type event struct {
	kind   eventKind
	status ConnectionStatus
	conn   FramingConnection
	data   []byte
}

// SetConnectionStatusCallback 设置连接状态回调，nil 表示清除
// 返回时被替换的回调已不在其他 goroutine 上运行
func (r *Registry) SetConnectionStatusCallback(h Handle, cb ConnectionStatusFunc) error {
	in, err := r.get(h)
	if err != nil {
		return err
	}

	in.cbMu.Lock()
	defer in.cbMu.Unlock()
	if in.closed.Load() {
		return fmt.Errorf("[%d] %w", h, ErrNotFound)
	}
	in.onStatus = cb
	in.drain(eventStatus)
	return nil
}

// SetDataCallback 设置数据回调，nil 表示清除
// 返回时被替换的回调已不在其他 goroutine 上运行
func (r *Registry) SetDataCallback(h Handle, cb DataFunc) error {
	in, err := r.get(h)
	if err != nil {
		return err
	}

	in.cbMu.Lock()
	defer in.cbMu.Unlock()
	if in.closed.Load() {
		return fmt.Errorf("[%d] %w", h, ErrNotFound)
	}
	in.onData = cb
	in.drain(eventData)
	return nil
}

// SetFramingConnectionCallback 设置分帧连接回调，nil 表示清除
// 若已有缓存的事件，则在返回前同步投递给新回调并清空缓存
func (r *Registry) SetFramingConnectionCallback(h Handle, cb FramingConnectionFunc) error {
	in, err := r.get(h)
	if err != nil {
		return err
	}

	in.cbMu.Lock()
	defer in.cbMu.Unlock()
	if in.closed.Load() {
		return fmt.Errorf("[%d] %w", h, ErrNotFound)
	}

	// 先摘下旧回调，缓存投递完毕后才挂上新回调
	// 投递期间到达的事件继续进入缓存，保证新回调最后看到的是最新电平
	in.onFraming = nil
	gen := in.drain(eventFraming)
	if cb == nil {
		return nil
	}
	for in.cbGen[eventFraming] == gen && !in.closed.Load() {
		pending := in.pending
		if pending == nil {
			in.onFraming = cb
			return nil
		}
		in.pending = nil
		inv := in.enter(eventFraming)
		in.cbMu.Unlock()
		safeCall(h, "framing", func() { cb(h, *pending) })
		in.cbMu.Lock()
		in.leave(inv)
	}
	// 投递期间已被替换或实例已关闭
	return nil
}

// ClearConnectionStatusCallback 清除连接状态回调
func (r *Registry) ClearConnectionStatusCallback(h Handle) error {
	return r.SetConnectionStatusCallback(h, nil)
}

// ClearFramingConnectionCallback 清除分帧连接回调
func (r *Registry) ClearFramingConnectionCallback(h Handle) error {
	return r.SetFramingConnectionCallback(h, nil)
}

// ClearDataCallback 清除数据回调
func (r *Registry) ClearDataCallback(h Handle) error {
	return r.SetDataCallback(h, nil)
}

// NotifyConnectionStatus 由命令通道上报连接状态
func (r *Registry) NotifyConnectionStatus(h Handle, st ConnectionStatus) error {
	in, err := r.get(h)
	if err != nil {
		return err
	}
	switch st.Code {
	case StatusConnected:
		in.setConnected(true)
	case StatusDisconnected, StatusStreamError:
		in.setConnected(false)
	}
	in.dispatch(event{kind: eventStatus, status: st})
	return nil
}

// NotifyStreamError 串流故障：使进行中的切换失败，并上报连接状态
func (r *Registry) NotifyStreamError(h Handle, cause error) error {
	in, err := r.get(h)
	if err != nil {
		return err
	}
	log.Printf("[%d] stream error: %v", h, cause)
	in.abortTransition(fmt.Errorf("%w: %v", ErrStream, cause))
	in.setConnected(false)
	in.dispatch(event{kind: eventStatus, status: ConnectionStatus{Code: StatusStreamError, Err: cause}})
	return nil
}

// dispatch 在锁外调用回调；调用方不得持有任何实例锁
func (in *Instance) dispatch(ev event) {
	if in.closed.Load() {
		return
	}

	h := in.handle
	var kind string
	var fn func()

	in.cbMu.Lock()
	switch ev.kind {
	case eventStatus:
		if cb := in.onStatus; cb != nil {
			kind, fn = "status", func() { cb(h, ev.status) }
		}
	case eventData:
		if cb := in.onData; cb != nil {
			kind, fn = "data", func() { cb(h, ev.data) }
		}
	case eventFraming:
		if cb := in.onFraming; cb != nil {
			kind, fn = "framing", func() { cb(h, ev.conn) }
		} else {
			// 只保留最后一个事件
			conn := ev.conn
			in.pending = &conn
		}
	}
	if fn == nil {
		in.cbMu.Unlock()
		return
	}
	inv := in.enter(ev.kind)
	in.cbMu.Unlock()

	defer func() {
		in.cbMu.Lock()
		in.leave(inv)
		in.cbMu.Unlock()
	}()
	safeCall(h, kind, fn)
}

// invocation 一次进行中的回调调用
type invocation struct {
	kind eventKind
	gen  uint64
	gid  uint64
}

// enter 登记一次回调调用，须持有 cbMu
func (in *Instance) enter(kind eventKind) *invocation {
	inv := &invocation{kind: kind, gen: in.cbGen[kind], gid: goid()}
	in.calls[inv] = struct{}{}
	return inv
}

// leave 注销回调调用并唤醒等待者，须持有 cbMu
func (in *Instance) leave(inv *invocation) {
	delete(in.calls, inv)
	in.cbIdle.Broadcast()
}

// drain 使该槽位进入新一代，并等待旧代的调用全部返回，须持有 cbMu
// 当前 goroutine 上的调用（即回调内重入）不等待，否则必然死锁
func (in *Instance) drain(kind eventKind) uint64 {
	in.cbGen[kind]++
	gen := in.cbGen[kind]
	if len(in.calls) == 0 {
		return gen
	}

	self := goid()
	for in.busy(kind, gen, self) {
		in.cbIdle.Wait()
	}
	return gen
}

func (in *Instance) busy(kind eventKind, gen, self uint64) bool {
	for inv := range in.calls {
		if inv.kind == kind && inv.gen < gen && inv.gid != self {
			return true
		}
	}
	return false
}

// goid 当前 goroutine 的编号，只用于识别回调内的重入
func goid() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}

// safeCall 回调自身的故障不回传到核心
func safeCall(h Handle, kind string, fn func()) {
	defer func() {
		if v := recover(); v != nil {
			log.Printf("[%d] %s callback panic recovered: %v", h, kind, v)
		}
	}()
	fn()
}
