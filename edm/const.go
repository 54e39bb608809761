package edm

import "errors"

const (
	startByte = 0xAA
	stopByte  = 0x55

	// 起始字节 + 两字节长度 + 结束字节
	overhead = 4
	// 长度字段只有低 12 位有效
	maxPacket = 0x0FFF
	idSize    = 2
)

// 事件与命令标识，高 12 位为 ID，低 4 位为类型
const (
	IDConnectEvent       uint16 = 0x0011
	IDDisconnectEvent    uint16 = 0x0021
	IDDataEvent          uint16 = 0x0031
	IDDataCommand        uint16 = 0x0036
	IDATEvent            uint16 = 0x0041
	IDATRequest          uint16 = 0x0044
	IDATResponse         uint16 = 0x0045
	IDResendConnectEvent uint16 = 0x0056
	IDStartEvent         uint16 = 0x0071
)

// 连接事件中的连接类型
const (
	connectBluetooth = 0x01
	connectIPv4      = 0x02
	connectIPv6      = 0x03
)

// IP 连接的传输协议
const (
	ProtocolTCP = 0x00
	ProtocolUDP = 0x01
)

var (
	ErrTooLong = errors.New("edm: payload too long")
	ErrChannel = errors.New("edm: channel out of range")
)
