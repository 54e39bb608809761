package edm

import (
	"encoding/binary"
	"fmt"
)

// Encode 按 EDM 格式封装一个数据包
func Encode(id uint16, payload []byte) ([]byte, error) {
	n := idSize + len(payload)
	if n > maxPacket {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLong, len(payload))
	}

	out := make([]byte, 0, overhead+n)
	out = append(out, startByte)
	out = binary.BigEndian.AppendUint16(out, uint16(n))
	out = binary.BigEndian.AppendUint16(out, id)
	out = append(out, payload...)
	return append(out, stopByte), nil
}

// ATRequest 封装一条 AT 命令，命令须自带行结束符
func ATRequest(cmd []byte) ([]byte, error) {
	return Encode(IDATRequest, cmd)
}

// DataCommand 向指定通道发送数据
func DataCommand(channel int, data []byte) ([]byte, error) {
	if channel < 0 || channel > 0xFF {
		return nil, fmt.Errorf("%w: %d", ErrChannel, channel)
	}
	return Encode(IDDataCommand, append([]byte{byte(channel)}, data...))
}

// ResendConnectEvents 要求模块重发全部活动连接的连接事件
func ResendConnectEvents() []byte {
	b, _ := Encode(IDResendConnectEvent, nil)
	return b
}
