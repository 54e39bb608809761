package atchannel

import (
	"errors"
	"time"
)

const (
	// AT 命令
	cmdCheck        = "AT"
	cmdEchoOff      = "ATE0"
	cmdCommandMode  = "ATO0"
	cmdDataMode     = "ATO1"
	cmdEDMMode      = "ATO2"
	cmdReboot       = "AT+CPWROFF"
	cmdManufacturer = "AT+CGMI"
	cmdModel        = "AT+CGMM"
	cmdFirmware     = "AT+CGMR"
	cmdSerialNumber = "AT+CGSN"

	// 数据模式下的转义序列，前后须各静默一个保护时间
	escapeSequence = "+++"

	// 延迟
	defaultGuardTime = time.Second
	inboxSize        = 64
)

// 连接相关的 URC
const (
	urcACLConnected    = "+UUBTACLC"
	urcACLDisconnected = "+UUBTACLD"
	urcPeerConnected   = "+UUDPC"
	urcPeerDisconnect  = "+UUDPD"
)

var (
	ErrDataMode = errors.New("command channel unavailable in data mode")
	ErrIndirect = errors.New("mode change must pass through command mode")
	ErrClosed   = errors.New("command channel closed")
)
