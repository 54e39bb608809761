package atchannel

import (
	"io"

	"github.com/rehiy/web-shortrange/edm"
	"github.com/rehiy/web-shortrange/shortrange"
)

// Port 命令通道写出字节的目标，通常是 transport.Port
type Port interface {
	Write(p []byte) (int, error)
}

// linePort 交给 AT 设备的虚拟串口
// 读端是核心按命令模式路由过来的字节，写端按当前模式决定是否封装为 EDM
type linePort struct {
	c *Channel
	r *io.PipeReader
}

func (lp *linePort) Read(p []byte) (int, error) {
	return lp.r.Read(p)
}

func (lp *linePort) Write(p []byte) (int, error) {
	if lp.c.Mode() != shortrange.ModeBinaryFraming {
		return lp.c.port.Write(p)
	}

	frame, err := edm.ATRequest(p)
	if err != nil {
		return 0, err
	}
	if _, err := lp.c.port.Write(frame); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (lp *linePort) Close() error {
	return lp.r.Close()
}

func (lp *linePort) Flush() error {
	return nil
}
