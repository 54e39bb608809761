package database

import (
	"fmt"
	"strconv"

	"github.com/rehiy/web-shortrange/models"
)

var defaultSettings = map[string]string{
	models.SettingEventlogEnabled: "true",
	models.SettingWebhookEnabled:  "false",
}

// GetSettings 获取所有设置
func GetSettings() (map[string]string, error) {
	var settings []models.Setting
	if err := db.Find(&settings).Error; err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	result := make(map[string]string)
	for _, setting := range settings {
		result[setting.Key] = setting.Value
	}
	return result, nil
}

// GetBool 读取布尔设置，不存在或无法解析时返回 false
func GetBool(key string) bool {
	if db == nil {
		return false
	}
	var setting models.Setting
	if err := db.Where("key = ?", key).First(&setting).Error; err != nil {
		return false
	}
	v, _ := strconv.ParseBool(setting.Value)
	return v
}

// SetBool 写入布尔设置
func SetBool(key string, enabled bool) error {
	if _, ok := defaultSettings[key]; !ok {
		return fmt.Errorf("unknown setting %q", key)
	}

	setting := models.Setting{Key: key, Value: strconv.FormatBool(enabled)}
	err := db.Where(models.Setting{Key: key}).Assign(setting).FirstOrCreate(&setting).Error
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// IsEventlogEnabled 检查事件日志是否启用
func IsEventlogEnabled() bool {
	return GetBool(models.SettingEventlogEnabled)
}

// IsWebhookEnabled 检查webhook功能是否启用
func IsWebhookEnabled() bool {
	return GetBool(models.SettingWebhookEnabled)
}

// InitDefaultSettings 初始化默认设置
func InitDefaultSettings() error {
	for key, value := range defaultSettings {
		setting := models.Setting{Key: key, Value: value}
		result := db.FirstOrCreate(&setting, models.Setting{Key: key})
		if result.Error != nil {
			return fmt.Errorf("failed to insert default setting: %w", result.Error)
		}
	}
	return nil
}
