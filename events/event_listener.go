package events

import (
	"sync"
	"time"

	random "github.com/mazen160/go-random"
)

var (
	listenerOnce     sync.Once
	listenerInstance *EventListener
)

// 事件类别
const (
	KindStatus  = "status"
	KindFraming = "framing"
	KindData    = "data"
	KindMode    = "mode"
	KindURC     = "urc"
	KindRadio   = "radio"
)

// Event 推送给订阅者的模块事件
type Event struct {
	Radio   string         `json:"radio"`
	Handle  int32          `json:"handle"`
	Kind    string         `json:"kind"`
	Status  string         `json:"status,omitempty"`
	Address string         `json:"address,omitempty"`
	Channel int            `json:"channel,omitempty"`
	Size    int            `json:"size,omitempty"`
	Detail  map[string]any `json:"detail,omitempty"`
	Time    time.Time      `json:"time"`
}

type subscriber struct {
	ch    chan Event
	kinds map[string]bool
}

// EventListener 管理事件订阅和广播
type EventListener struct {
	pool map[string]*subscriber
	sync.RWMutex
}

// GetEventListener 返回 EventListener 的单例实例
func GetEventListener() *EventListener {
	listenerOnce.Do(func() {
		listenerInstance = NewEventListener()
	})
	return listenerInstance
}

// NewEventListener 创建独立的事件中心
func NewEventListener() *EventListener {
	return &EventListener{pool: make(map[string]*subscriber)}
}

// Broadcast 非阻塞地向所有订阅者发送事件
// 如果订阅者的通道已满，则跳过该订阅者
func (el *EventListener) Broadcast(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	el.RLock()
	defer el.RUnlock()

	for _, sub := range el.pool {
		if len(sub.kinds) > 0 && !sub.kinds[ev.Kind] {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// Subscribe 创建一个新的订阅，kinds 为空表示接收全部类别
// 返回订阅 ID、接收通道和取消订阅的函数
func (el *EventListener) Subscribe(buffer int, kinds ...string) (string, <-chan Event, func()) {
	if buffer <= 0 {
		buffer = 100
	}
	sub := &subscriber{ch: make(chan Event, buffer)}
	if len(kinds) > 0 {
		sub.kinds = make(map[string]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}

	el.Lock()
	id := el.newID()
	el.pool[id] = sub
	el.Unlock()

	return id, sub.ch, func() {
		el.Lock()
		defer el.Unlock()
		if s, ok := el.pool[id]; ok {
			delete(el.pool, id)
			close(s.ch)
		}
	}
}

// Count 当前订阅者数量
func (el *EventListener) Count() int {
	el.RLock()
	defer el.RUnlock()
	return len(el.pool)
}

// newID 生成未占用的订阅 ID，调用方持有写锁
func (el *EventListener) newID() string {
	for {
		id, err := random.String(16)
		if err != nil {
			id = time.Now().Format("150405.000000000")
		}
		if _, taken := el.pool[id]; !taken {
			return id
		}
	}
}
