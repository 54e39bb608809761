package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rehiy/web-shortrange/database"
	"github.com/rehiy/web-shortrange/models"
)

// SettingHandler 设置处理器
type SettingHandler struct{}

// NewSettingHandler 创建新的设置处理器
func NewSettingHandler() *SettingHandler {
	return &SettingHandler{}
}

// GetSettings 获取所有设置
func (h *SettingHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := database.GetSettings()
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, H{"error": err.Error()})
		return
	}

	respondJSON(w, http.StatusOK, settings)
}

// UpdateEventlogSettings 更新事件日志设置
func (h *SettingHandler) UpdateEventlogSettings(w http.ResponseWriter, r *http.Request) {
	h.updateBool(w, r, models.SettingEventlogEnabled)
}

// UpdateWebhookSettings 更新 Webhook 设置
func (h *SettingHandler) UpdateWebhookSettings(w http.ResponseWriter, r *http.Request) {
	h.updateBool(w, r, models.SettingWebhookEnabled)
}

// updateBool 请求体形如 {"<key>": true}
func (h *SettingHandler) updateBool(w http.ResponseWriter, r *http.Request, key string) {
	var req map[string]bool
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, H{"error": err.Error()})
		return
	}

	enabled, ok := req[key]
	if !ok {
		respondJSON(w, http.StatusBadRequest, H{"error": key + " is required"})
		return
	}

	if err := database.SetBool(key, enabled); err != nil {
		respondJSON(w, http.StatusInternalServerError, H{"error": err.Error()})
		return
	}

	respondJSON(w, http.StatusOK, H{
		"status": "updated",
		key:      enabled,
	})
}
