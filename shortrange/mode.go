package shortrange

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/looplab/fsm"
)

// Mode 通信模式
type Mode int

const (
	ModeCommand Mode = iota
	ModeData
	ModeBinaryFraming
)

const (
	stateCommand       = "command"
	stateData          = "data"
	stateBinaryFraming = "binary-framing"
)

var modeStates = map[Mode]string{
	ModeCommand:       stateCommand,
	ModeData:          stateData,
	ModeBinaryFraming: stateBinaryFraming,
}

func (m Mode) String() string {
	if s, ok := modeStates[m]; ok {
		return s
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Valid 是否为三种已定义模式之一
func (m Mode) Valid() bool {
	_, ok := modeStates[m]
	return ok
}

// ParseMode 按名称解析模式，edm 视为 binary-framing
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case stateCommand, "cmd":
		return ModeCommand, nil
	case stateData:
		return ModeData, nil
	case stateBinaryFraming, "edm", "binary":
		return ModeBinaryFraming, nil
	}
	return ModeCommand, fmt.Errorf("unknown mode %q", s)
}

func modeOf(state string) Mode {
	for m, s := range modeStates {
		if s == state {
			return m
		}
	}
	return ModeCommand
}

func eventFor(m Mode) string {
	return "to-" + m.String()
}

// newModeMachine 三个状态两两可达
func newModeMachine(h Handle) *fsm.FSM {
	all := []string{stateCommand, stateData, stateBinaryFraming}
	events := make(fsm.Events, 0, len(modeStates))
	for m, s := range modeStates {
		src := make([]string, 0, len(all)-1)
		for _, a := range all {
			if a != s {
				src = append(src, a)
			}
		}
		events = append(events, fsm.EventDesc{Name: eventFor(m), Src: src, Dst: s})
	}

	return fsm.NewFSM(stateCommand, events, fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) {
			log.Printf("[%d] mode %s -> %s", h, e.Src, e.Dst)
		},
	})
}
