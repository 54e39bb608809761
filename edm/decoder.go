package edm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/rehiy/web-shortrange/shortrange"
)

// Decoder 从字节流中重组 EDM 数据包并转换为帧
// 非并发安全，由调用方串行化
type Decoder struct {
	buf    bytes.Buffer
	peers  map[int]shortrange.FramingConnection
	printf func(string, ...any)
}

// NewDecoder 创建解码器，printf 为空时不输出日志
func NewDecoder(printf func(string, ...any)) *Decoder {
	if printf == nil {
		printf = func(string, ...any) {}
	}
	return &Decoder{
		peers:  map[int]shortrange.FramingConnection{},
		printf: printf,
	}
}

// Reset 丢弃未完成的数据与连接表
func (d *Decoder) Reset() {
	d.buf.Reset()
	clear(d.peers)
}

// Buffered 尚未组成完整数据包的字节数
func (d *Decoder) Buffered() int {
	return d.buf.Len()
}

// Decode 追加一段字节，返回其中已完整的帧
func (d *Decoder) Decode(p []byte) []shortrange.Frame {
	d.buf.Write(p)

	var frames []shortrange.Frame
	for {
		id, payload, ok := d.next()
		if !ok {
			break
		}
		if f, ok := d.convert(id, payload); ok {
			frames = append(frames, f)
		}
	}
	return frames
}

// next 取出下一个完整数据包，遇到干扰字节时重新同步
func (d *Decoder) next() (uint16, []byte, bool) {
	for {
		b := d.buf.Bytes()
		i := bytes.IndexByte(b, startByte)
		if i < 0 {
			if len(b) > 0 {
				d.printf("edm: %d bytes of noise dropped", len(b))
			}
			d.buf.Reset()
			return 0, nil, false
		}
		if i > 0 {
			d.printf("edm: %d bytes of noise dropped", i)
			d.buf.Next(i)
			b = b[i:]
		}
		if len(b) < 3 {
			return 0, nil, false
		}

		if b[1]&0xF0 != 0 {
			d.buf.Next(1)
			continue
		}
		n := int(binary.BigEndian.Uint16(b[1:3]))
		total := n + overhead
		if len(b) < total {
			return 0, nil, false
		}
		if b[total-1] != stopByte || n < idSize {
			d.buf.Next(1)
			continue
		}

		id := binary.BigEndian.Uint16(b[3:5])
		payload := bytes.Clone(b[3+idSize : total-1])
		d.buf.Next(total)
		return id, payload, true
	}
}

func (d *Decoder) convert(id uint16, payload []byte) (shortrange.Frame, bool) {
	switch id {
	case IDATResponse, IDATEvent:
		return shortrange.Frame{Kind: shortrange.FrameCommand, Payload: payload}, true

	case IDDataEvent:
		if len(payload) < 1 {
			return shortrange.Frame{}, false
		}
		return shortrange.Frame{
			Kind:    shortrange.FrameData,
			Channel: int(payload[0]),
			Payload: payload[1:],
		}, true

	case IDConnectEvent:
		conn, err := parseConnect(payload)
		if err != nil {
			d.printf("edm: %v", err)
			return shortrange.Frame{}, false
		}
		d.peers[conn.Channel] = conn
		return shortrange.Frame{Kind: shortrange.FrameConnection, Channel: conn.Channel, Connection: conn}, true

	case IDDisconnectEvent:
		if len(payload) < 1 {
			return shortrange.Frame{}, false
		}
		ch := int(payload[0])
		conn, ok := d.peers[ch]
		if !ok {
			conn = shortrange.FramingConnection{Channel: ch}
		}
		delete(d.peers, ch)
		conn.Connected = false
		return shortrange.Frame{Kind: shortrange.FrameConnection, Channel: ch, Connection: conn}, true

	case IDStartEvent:
		d.printf("edm: start event")
		return shortrange.Frame{}, false
	}

	d.printf("edm: unhandled packet 0x%04x, %d bytes", id, len(payload))
	return shortrange.Frame{}, false
}

// parseConnect 解析连接事件：通道、类型及类型相关字段
func parseConnect(p []byte) (shortrange.FramingConnection, error) {
	if len(p) < 2 {
		return shortrange.FramingConnection{}, fmt.Errorf("short connect event: %d bytes", len(p))
	}

	conn := shortrange.FramingConnection{Channel: int(p[0]), Connected: true}
	body := p[2:]

	switch p[1] {
	case connectBluetooth:
		// profile(1) address(6) frame size(2)
		if len(body) < 9 {
			return conn, fmt.Errorf("short bluetooth connect event: %d bytes", len(p))
		}
		conn.Type = shortrange.ConnectionBluetooth
		conn.Profile = int(body[0])
		conn.Address = strings.ToUpper(fmt.Sprintf("%x", body[1:7]))
		conn.FrameSize = int(binary.BigEndian.Uint16(body[7:9]))

	case connectIPv4, connectIPv6:
		size := net.IPv4len
		conn.Type = shortrange.ConnectionIPv4
		if p[1] == connectIPv6 {
			size = net.IPv6len
			conn.Type = shortrange.ConnectionIPv6
		}
		// protocol(1) remote ip port local ip port
		if len(body) < 1+2*(size+2) {
			return conn, fmt.Errorf("short %s connect event: %d bytes", conn.Type, len(p))
		}
		conn.Profile = int(body[0])
		ip := net.IP(body[1 : 1+size])
		port := binary.BigEndian.Uint16(body[1+size : 3+size])
		conn.Address = net.JoinHostPort(ip.String(), strconv.Itoa(int(port)))

	default:
		return conn, fmt.Errorf("unknown connect type 0x%02x", p[1])
	}
	return conn, nil
}
