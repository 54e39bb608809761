package atchannel

import (
	"strings"

	"github.com/rehiy/web-shortrange/shortrange"
)

// urcStatus 连接类 URC 对应的状态与地址参数位置
var urcStatus = map[string]struct {
	code shortrange.StatusCode
	addr int
}{
	// +UUBTACLC:<peer handle>,<type>,<bd_addr>
	urcACLConnected: {shortrange.StatusConnected, 2},
	// +UUBTACLD:<peer handle>
	urcACLDisconnected: {shortrange.StatusDisconnected, 0},
	// +UUDPC:<peer handle>,<type>,<profile>,<address>,...
	urcPeerConnected: {shortrange.StatusConnected, 3},
	// +UUDPD:<peer handle>
	urcPeerDisconnect: {shortrange.StatusDisconnected, 0},
}

// handleURC 由 AT 设备在收到非请求结果码时调用
func (c *Channel) handleURC(event string, params map[int]string) {
	c.printf("urc %s %v", event, params)
	if c.onURC != nil {
		c.onURC(event, params)
	}

	st, ok := urcStatus[strings.TrimSpace(event)]
	if !ok {
		return
	}
	peer := strings.Trim(params[st.addr], `" `)
	if peer == "" {
		peer = strings.TrimSpace(params[0])
	}

	c.smu.Lock()
	fn := c.onStatus
	c.smu.Unlock()
	if fn != nil {
		fn(shortrange.ConnectionStatus{Code: st.code, Peer: peer})
	}
}
