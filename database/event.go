package database

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/rehiy/web-shortrange/models"
)

// CreateEvent 保存事件
func CreateEvent(ev *models.Event) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	if err := db.Create(ev).Error; err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

// BatchDeleteEvents 批量删除事件
func BatchDeleteEvents(ids []int) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ret := db.Where("id IN ?", ids).Delete(&models.Event{})
	if ret.Error != nil {
		return 0, fmt.Errorf("failed to batch delete events: %w", ret.Error)
	}
	return ret.RowsAffected, nil
}

// PruneEvents 删除早于 before 的事件
func PruneEvents(before time.Time) (int64, error) {
	ret := db.Where("created_at < ?", before).Delete(&models.Event{})
	if ret.Error != nil {
		return 0, fmt.Errorf("failed to prune events: %w", ret.Error)
	}
	return ret.RowsAffected, nil
}

// GetEventList 查询事件列表，按时间倒序
func GetEventList(filter *models.EventFilter) ([]models.Event, int, error) {
	query := db.Model(&models.Event{})

	if filter.Radio != "" {
		query = query.Where("radio = ?", filter.Radio)
	}
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	if !filter.StartTime.IsZero() {
		query = query.Where("created_at >= ?", filter.StartTime)
	}
	if !filter.EndTime.IsZero() {
		query = query.Where("created_at <= ?", filter.EndTime)
	}

	// 查询总数
	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count events: %w", err)
	}

	// 查询列表，Limit 为 0 时不分页
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	var list []models.Event
	err := query.Order("created_at DESC, id DESC").Limit(limit).Offset(filter.Offset).Find(&list).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query events: %w", err)
	}

	return list, int(total), nil
}
