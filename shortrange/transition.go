package shortrange

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// SetMode 切换实例的通信模式
// 握手在 CommandTimeout 内完成后才提交新模式，失败时模式保持不变
func (r *Registry) SetMode(ctx context.Context, h Handle, to Mode) error {
	if !to.Valid() {
		return fmt.Errorf("[%d] invalid mode %d", h, int(to))
	}

	in, err := r.get(h)
	if err != nil {
		return err
	}
	if !in.transitioning.CompareAndSwap(false, true) {
		return &TransitionError{Handle: h, From: in.Mode(), To: to, Err: ErrTransitionInProgress}
	}
	defer in.transitioning.Store(false)

	from := in.Mode()
	if from == to {
		return nil
	}

	in.routeMu.Lock()
	epoch := in.epoch
	in.routeMu.Unlock()

	if err := in.handshake(ctx, from, to); err != nil {
		log.Printf("[%d] switch %s -> %s failed: %v", h, from, to, err)
		return &TransitionError{Handle: h, From: from, To: to, Err: err}
	}

	in.routeMu.Lock()
	defer in.routeMu.Unlock()

	if in.closed.Load() {
		return &TransitionError{Handle: h, From: from, To: to, Err: ErrNotFound}
	}
	// 握手成功后模块又重启了，已复位为命令模式，不能再提交旧目标
	if in.epoch != epoch {
		log.Printf("[%d] switch %s -> %s discarded: module restarted", h, from, to)
		return &TransitionError{Handle: h, From: from, To: to, Err: fmt.Errorf("%w: module restarted", ErrStream)}
	}
	if err := in.machine.Event(context.Background(), eventFor(to)); err != nil {
		return &TransitionError{Handle: h, From: from, To: to, Err: err}
	}
	if in.decoder != nil && (from == ModeBinaryFraming || to == ModeBinaryFraming) {
		in.decoder.Reset()
	}
	return nil
}

// handshake 等待命令通道确认，超时、串流故障或关闭都会提前结束
func (in *Instance) handshake(parent context.Context, from, to Mode) error {
	ctx, cancelTimeout := context.WithTimeout(parent, in.module.CommandTimeout)
	defer cancelTimeout()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	in.stateMu.Lock()
	in.cancelSwap = cancel
	in.stateMu.Unlock()
	defer func() {
		in.stateMu.Lock()
		in.cancelSwap = nil
		in.stateMu.Unlock()
	}()

	if in.closed.Load() {
		return ErrNotFound
	}

	done := make(chan error, 1)
	go func() { done <- in.channel.SwitchMode(ctx, from, to) }()

	select {
	case err := <-done:
		if err == nil {
			return nil
		}
		if cause := context.Cause(ctx); cause != nil {
			return causeError(cause)
		}
		return fmt.Errorf("%w: %v", ErrStream, err)
	case <-ctx.Done():
		return causeError(context.Cause(ctx))
	}
}

func causeError(cause error) error {
	if errors.Is(cause, context.DeadlineExceeded) {
		return ErrTransitionTimeout
	}
	return cause
}
