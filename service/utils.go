package service

import (
	"encoding/hex"
	"log"
	"time"

	"github.com/rehiy/web-shortrange/events"
	"github.com/rehiy/web-shortrange/shortrange"
)

// 数据事件中携带的预览长度
const dataPreview = 64

// publish 推送到事件中心，并交给日志与 webhook
func (s *RadioService) publish(ev events.Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	s.hub.Broadcast(ev)
	if s.sink != nil {
		s.sink(ev)
	}
}

func (s *RadioService) onStatus(name string) shortrange.ConnectionStatusFunc {
	return func(h shortrange.Handle, st shortrange.ConnectionStatus) {
		ev := events.Event{
			Radio: name, Handle: int32(h), Kind: events.KindStatus,
			Status: st.Code.String(), Address: st.Peer,
		}
		if st.Err != nil {
			ev.Detail = map[string]any{"error": st.Err.Error()}
		}
		log.Printf("[%s] %s %s", name, ev.Status, st.Peer)
		s.publish(ev)
	}
}

func (s *RadioService) onFraming(name string) shortrange.FramingConnectionFunc {
	return func(h shortrange.Handle, c shortrange.FramingConnection) {
		status := shortrange.StatusDisconnected
		if c.Connected {
			status = shortrange.StatusConnected
		}
		s.publish(events.Event{
			Radio: name, Handle: int32(h), Kind: events.KindFraming,
			Status: status.String(), Address: c.Address, Channel: c.Channel,
			Detail: map[string]any{
				"type":      c.Type.String(),
				"profile":   c.Profile,
				"frameSize": c.FrameSize,
			},
		})
	}
}

func (s *RadioService) onData(name string) shortrange.DataFunc {
	return func(h shortrange.Handle, data []byte) {
		preview := data
		if len(preview) > dataPreview {
			preview = preview[:dataPreview]
		}
		s.publish(events.Event{
			Radio: name, Handle: int32(h), Kind: events.KindData, Size: len(data),
			Detail: map[string]any{"hex": hex.EncodeToString(preview)},
		})
	}
}

func urcDetail(p map[int]string) map[string]any {
	if len(p) == 0 {
		return nil
	}
	params := make([]string, 0, len(p))
	for i := 0; i < len(p); i++ {
		v, ok := p[i]
		if !ok {
			break
		}
		params = append(params, v)
	}
	return map[string]any{"params": params}
}
