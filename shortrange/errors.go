package shortrange

import (
	"errors"
	"fmt"
)

var (
	// 配置错误，Create 直接失败
	ErrUnknownModuleType = errors.New("unknown module type")
	// 句柄不存在或已关闭
	ErrNotFound = errors.New("instance not found")
	// 同一实例上已有模式切换在进行
	ErrTransitionInProgress = errors.New("mode transition in progress")
	// 在 CommandTimeout 内未收到确认
	ErrTransitionTimeout = errors.New("mode transition timeout")
	// 底层串流故障
	ErrStream = errors.New("stream error")
)

// TransitionError 模式切换失败，Unwrap 返回上面的哨兵错误之一
type TransitionError struct {
	Handle Handle
	From   Mode
	To     Mode
	Err    error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("[%d] %s -> %s: %v", e.Handle, e.From, e.To, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}
