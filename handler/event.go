package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rehiy/web-shortrange/database"
	"github.com/rehiy/web-shortrange/models"
)

// EventHandler 事件日志处理器
type EventHandler struct{}

// NewEventHandler 创建新的事件日志处理器
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// ListEvents 获取数据库中的事件列表
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := &models.EventFilter{
		Radio: q.Get("radio"),
		Kind:  q.Get("kind"),
		Limit: 50, // 默认每页50条
	}

	if startTime := q.Get("start_time"); startTime != "" {
		if t, err := time.Parse(time.RFC3339, startTime); err == nil {
			filter.StartTime = t
		}
	}
	if endTime := q.Get("end_time"); endTime != "" {
		if t, err := time.Parse(time.RFC3339, endTime); err == nil {
			filter.EndTime = t
		}
	}

	// 分页参数
	if limit := q.Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil && l > 0 && l <= 200 {
			filter.Limit = l
		}
	}
	if offset := q.Get("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil && o >= 0 {
			filter.Offset = o
		}
	}

	list, total, err := database.GetEventList(filter)
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, H{"error": err.Error()})
		return
	}

	respondJSON(w, http.StatusOK, H{
		"data":   list,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// DeleteEvents 批量删除事件
func (h *EventHandler) DeleteEvents(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []int `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, H{"error": err.Error()})
		return
	}
	if len(req.IDs) == 0 {
		respondJSON(w, http.StatusBadRequest, H{"error": "no IDs provided"})
		return
	}

	n, err := database.BatchDeleteEvents(req.IDs)
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, H{"error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, H{"status": "deleted", "count": n})
}
