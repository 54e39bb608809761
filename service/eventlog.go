package service

import (
	"context"
	"log"
	"time"

	"github.com/rehiy/web-shortrange/database"
	"github.com/rehiy/web-shortrange/events"
	"github.com/rehiy/web-shortrange/models"
)

// EventlogService 事件日志服务
type EventlogService struct{}

// NewEventlogService 创建事件日志服务
func NewEventlogService() *EventlogService {
	return &EventlogService{}
}

// HandleEvent 异步保存事件，URC 与模式事件只推送不落库
func (e *EventlogService) HandleEvent(ev events.Event) {
	switch ev.Kind {
	case events.KindURC, events.KindMode:
		return
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[Eventlog] Panic recovered: %v", r)
			}
		}()
		if database.IsEventlogEnabled() {
			if err := database.CreateEvent(ToModel(ev)); err != nil {
				log.Printf("[Eventlog] Failed to save event: %v", err)
			}
		}
	}()
}

// ToModel 将推送事件转换为数据库模型
func ToModel(ev events.Event) *models.Event {
	return &models.Event{
		Radio:     ev.Radio,
		Kind:      ev.Kind,
		Status:    ev.Status,
		Address:   ev.Address,
		Channel:   ev.Channel,
		Size:      ev.Size,
		CreatedAt: ev.Time,
	}
}

// RunPrune 每小时删除超过保留期的事件，直到 ctx 结束
func (e *EventlogService) RunPrune(ctx context.Context, retention time.Duration) {
	if retention <= 0 {
		return
	}

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		e.prune(time.Now().Add(-retention))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (e *EventlogService) prune(before time.Time) {
	n, err := database.PruneEvents(before)
	if err != nil {
		log.Printf("[Eventlog] Failed to prune events: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[Eventlog] Pruned %d events before %s", n, before.Format(time.RFC3339))
	}
}
