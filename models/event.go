package models

import "time"

// Event 持久化的模块事件
type Event struct {
	ID        int       `gorm:"primaryKey;autoIncrement" json:"id"`
	Radio     string    `gorm:"index;size:64" json:"radio"`
	Kind      string    `gorm:"index;size:16" json:"kind"`
	Status    string    `gorm:"size:32" json:"status"`
	Address   string    `gorm:"size:64" json:"address"`
	Channel   int       `json:"channel"`
	Size      int       `json:"size"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// EventFilter 事件查询条件
type EventFilter struct {
	Radio     string
	Kind      string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
	Offset    int
}
