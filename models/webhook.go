package models

import "time"

// Webhook 事件转发目标
// Kinds 为逗号分隔的事件类别，为空表示全部
type Webhook struct {
	ID        int       `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"size:64;not null" json:"name"`
	URL       string    `gorm:"size:512;not null" json:"url"`
	Template  string    `gorm:"type:text" json:"template"`
	Kinds     string    `gorm:"size:128" json:"kinds"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
