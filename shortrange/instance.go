package shortrange

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/atomic"
)

// RestartKind 当前所处的重启路径
type RestartKind int

const (
	RestartNone RestartKind = iota
	RestartBoot
	RestartCommanded
)

// Instance 一个受管理的短距模块
type Instance struct {
	handle  Handle
	module  *Module
	channel CommandChannel
	stream  Stream

	// routeMu 串行化入站分片路由与模式提交
	routeMu sync.Mutex
	machine *fsm.FSM
	decoder FramingDecoder
	epoch   uint64 // 每次重启复位加一

	transitioning *atomic.Bool
	closed        *atomic.Bool

	// stateMu 保护重启时间、连接电平与进行中切换的取消函数
	stateMu    sync.Mutex
	startTime  time.Time
	restart    RestartKind
	connected  bool
	cancelSwap context.CancelCauseFunc

	// cbMu 保护三个回调、待投递的分帧连接事件与进行中的回调调用
	cbMu      sync.Mutex
	cbIdle    *sync.Cond
	onStatus  ConnectionStatusFunc
	onFraming FramingConnectionFunc
	onData    DataFunc
	pending   *FramingConnection
	cbGen     [eventKinds]uint64
	calls     map[*invocation]struct{}
}

func newInstance(h Handle, m *Module, s Stream, ch CommandChannel, dec FramingDecoder) *Instance {
	in := &Instance{
		handle:        h,
		module:        m,
		channel:       ch,
		stream:        s,
		machine:       newModeMachine(h),
		decoder:       dec,
		transitioning: atomic.NewBool(false),
		closed:        atomic.NewBool(false),
		calls:         map[*invocation]struct{}{},
	}
	in.cbIdle = sync.NewCond(&in.cbMu)
	return in
}

// Handle 实例句柄
func (in *Instance) Handle() Handle { return in.handle }

// Module 实例的模块参数
func (in *Instance) Module() *Module { return in.module }

// Stream 实例绑定的串流
func (in *Instance) Stream() Stream { return in.stream }

// Mode 当前通信模式
func (in *Instance) Mode() Mode {
	return modeOf(in.machine.Current())
}

// markRestart 记录一次重启的开始时间
func (in *Instance) markRestart(kind RestartKind, now time.Time) {
	in.stateMu.Lock()
	in.restart = kind
	in.startTime = now
	in.stateMu.Unlock()
}

// ready 纯函数：由开始时间与参数表决定
func (in *Instance) ready(now time.Time) bool {
	in.stateMu.Lock()
	kind, start := in.restart, in.startTime
	in.stateMu.Unlock()

	var wait time.Duration
	switch kind {
	case RestartBoot:
		wait = in.module.BootWait
	case RestartCommanded:
		wait = in.module.RebootCommandWait
	default:
		return true
	}
	return now.Sub(start) >= wait
}

func (in *Instance) setConnected(v bool) {
	in.stateMu.Lock()
	in.connected = v
	in.stateMu.Unlock()
}

func (in *Instance) isConnected() bool {
	in.stateMu.Lock()
	defer in.stateMu.Unlock()
	return in.connected
}

// abortTransition 取消进行中的模式切换
func (in *Instance) abortTransition(cause error) {
	in.stateMu.Lock()
	cancel := in.cancelSwap
	in.stateMu.Unlock()
	if cancel != nil {
		cancel(cause)
	}
}

// resetToCommand 模块重启后回到命令模式，进行中的切换一并取消
func (in *Instance) resetToCommand() {
	in.abortTransition(fmt.Errorf("%w: module restarted", ErrStream))
	in.setConnected(false)

	in.routeMu.Lock()
	defer in.routeMu.Unlock()
	in.epoch++
	if in.Mode() == ModeCommand {
		return
	}
	in.machine.SetState(stateCommand)
	if in.decoder != nil {
		in.decoder.Reset()
	}
	log.Printf("[%d] mode reset to %s", in.handle, ModeCommand)
}
