package shortrange

import "log"

// Deliver 交付一段入站字节，整段按同一模式路由
func (r *Registry) Deliver(h Handle, chunk []byte) error {
	in, err := r.get(h)
	if err != nil {
		return err
	}
	if len(chunk) == 0 {
		return nil
	}

	in.routeMu.Lock()
	events := in.route(chunk)
	in.routeMu.Unlock()

	for _, ev := range events {
		in.dispatch(ev)
	}
	return nil
}

// route 调用方持有 routeMu，返回需在锁外派发的事件
func (in *Instance) route(chunk []byte) []event {
	switch in.Mode() {
	case ModeCommand:
		in.channel.Feed(chunk)
		return nil

	case ModeData:
		return []event{{kind: eventData, data: clone(chunk)}}

	case ModeBinaryFraming:
		if in.decoder == nil {
			log.Printf("[%d] no framing decoder, %d bytes dropped", in.handle, len(chunk))
			return nil
		}
		var events []event
		for _, f := range in.decoder.Decode(chunk) {
			switch f.Kind {
			case FrameCommand:
				in.channel.Feed(f.Payload)
			case FrameData:
				events = append(events, event{kind: eventData, data: f.Payload})
			case FrameConnection:
				events = append(events, event{kind: eventFraming, conn: f.Connection})
			}
		}
		return events
	}
	return nil
}

func clone(p []byte) []byte {
	return append([]byte(nil), p...)
}
