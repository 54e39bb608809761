package database

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/rehiy/web-shortrange/models"
)

var ErrWebhookNotFound = errors.New("webhook not found")

// CreateWebhook 创建webhook，类别列表先规范化
func CreateWebhook(webhook *models.Webhook) error {
	webhook.Kinds = NormalizeKinds(webhook.Kinds)
	if err := db.Create(webhook).Error; err != nil {
		return fmt.Errorf("failed to create webhook: %w", err)
	}
	return nil
}

// UpdateWebhook 更新webhook，不存在时返回 ErrWebhookNotFound
func UpdateWebhook(webhook *models.Webhook) error {
	if webhook.ID == 0 {
		return ErrWebhookNotFound
	}
	webhook.Kinds = NormalizeKinds(webhook.Kinds)
	result := db.Model(&models.Webhook{ID: webhook.ID}).
		Select("name", "url", "template", "kinds", "enabled", "updated_at").
		Updates(webhook)
	if result.Error != nil {
		return fmt.Errorf("failed to update webhook %d: %w", webhook.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrWebhookNotFound
	}
	return nil
}

// DeleteWebhook 删除webhook
func DeleteWebhook(id int) error {
	result := db.Delete(&models.Webhook{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete webhook %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrWebhookNotFound
	}
	return nil
}

// GetWebhook 根据ID获取webhook
func GetWebhook(id int) (*models.Webhook, error) {
	var webhook models.Webhook
	err := db.First(&webhook, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWebhookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook %d: %w", id, err)
	}
	return &webhook, nil
}

// GetWebhookList 获取全部webhook，新建的在前
func GetWebhookList() ([]models.Webhook, error) {
	return findWebhooks(db)
}

// GetEnabledWebhooksForKind 获取启用且关注该类事件的webhook
// kinds 为空的webhook接收全部类别
func GetEnabledWebhooksForKind(kind string) ([]models.Webhook, error) {
	q := db.Where("enabled = ?", true).
		Where("kinds = '' OR (',' || kinds || ',') LIKE ?", "%,"+kind+",%")
	return findWebhooks(q)
}

func findWebhooks(q *gorm.DB) ([]models.Webhook, error) {
	var webhooks []models.Webhook
	if err := q.Order("created_at DESC").Find(&webhooks).Error; err != nil {
		return nil, fmt.Errorf("failed to query webhooks: %w", err)
	}
	return webhooks, nil
}

// NormalizeKinds 去掉空白与重复项，保存为 a,b,c 形式
func NormalizeKinds(kinds string) string {
	var list []string
	seen := map[string]bool{}
	for _, k := range strings.Split(kinds, ",") {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		list = append(list, k)
	}
	return strings.Join(list, ",")
}
