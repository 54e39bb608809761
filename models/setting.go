package models

import "time"

// 设置键
const (
	SettingEventlogEnabled = "eventlog_enabled"
	SettingWebhookEnabled  = "webhook_enabled"
)

// Setting 键值设置
type Setting struct {
	Key       string    `gorm:"primaryKey;size:64" json:"key"`
	Value     string    `gorm:"size:255" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
