package handler

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rehiy/web-shortrange/config"
	"github.com/rehiy/web-shortrange/service"
	"github.com/rehiy/web-shortrange/shortrange"
)

// RadioHandler 短距模块处理器
type RadioHandler struct {
	rs *service.RadioService
}

// NewRadioHandler 创建新的短距模块处理器
func NewRadioHandler(rs *service.RadioService) *RadioHandler {
	return &RadioHandler{rs: rs}
}

// ListRadios 返回已打开模块的列表
func (h *RadioHandler) ListRadios(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.rs.List())
}

// ListModules 返回支持的模块型号及其时序参数
func (h *RadioHandler) ListModules(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, shortrange.Modules())
}

// OpenRadio 打开串口上的模块
func (h *RadioHandler) OpenRadio(w http.ResponseWriter, r *http.Request) {
	var req config.RadioConfig
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, H{"error": err.Error()})
		return
	}
	if req.Port == "" || req.Module == "" {
		respondJSON(w, http.StatusBadRequest, H{"error": "port and module are required"})
		return
	}

	conn, err := h.rs.Open(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, conn)
}

// CloseRadio 关闭模块
func (h *RadioHandler) CloseRadio(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, H{"error": err.Error()})
		return
	}

	if err := h.rs.Close(req.Name); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, H{"status": "closed", "name": req.Name})
}

// GetRadioInfo 获取模块的详细信息
func (h *RadioHandler) GetRadioInfo(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		respondJSON(w, http.StatusBadRequest, H{"error": "name is empty"})
		return
	}

	info, err := h.rs.Info(r.Context(), name)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

// SetRadioMode 切换模块模式
func (h *RadioHandler) SetRadioMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, H{"error": err.Error()})
		return
	}

	mode, err := shortrange.ParseMode(req.Mode)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, H{"error": err.Error()})
		return
	}
	if err := h.rs.SetMode(r.Context(), req.Name, mode); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, H{"name": req.Name, "mode": mode.String()})
}

// RestartRadio 重启模块，wait 为真时等待就绪
func (h *RadioHandler) RestartRadio(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		Wait bool   `json:"wait"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, H{"error": err.Error()})
		return
	}

	if err := h.rs.Restart(r.Context(), req.Name); err != nil {
		respondError(w, err)
		return
	}
	if req.Wait {
		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()
		if err := h.rs.WaitReady(ctx, req.Name); err != nil {
			respondError(w, err)
			return
		}
	}

	st, err := h.rs.Status(req.Name)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// SendCommand 向模块发送原始 AT 命令
func (h *RadioHandler) SendCommand(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string `json:"name"`
		Command string `json:"command"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, H{"error": err.Error()})
		return
	}

	responses, err := h.rs.SendCommand(r.Context(), req.Name, req.Command)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, H{
		"name":     req.Name,
		"command":  req.Command,
		"response": strings.Join(responses, "\n"),
	})
}

// WriteData 在数据或二进制分帧模式下发送数据
func (h *RadioHandler) WriteData(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string `json:"name"`
		Channel int    `json:"channel"`
		Data    string `json:"data"`
		Hex     bool   `json:"hex"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, H{"error": err.Error()})
		return
	}

	data := []byte(req.Data)
	if req.Hex {
		var err error
		if data, err = hex.DecodeString(req.Data); err != nil {
			respondJSON(w, http.StatusBadRequest, H{"error": err.Error()})
			return
		}
	}

	if err := h.rs.SendData(req.Name, req.Channel, data); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, H{"status": "sent", "size": len(data)})
}

// ResendConnections 要求模块重发活动连接事件
func (h *RadioHandler) ResendConnections(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, H{"error": err.Error()})
		return
	}

	if err := h.rs.ResendConnections(req.Name); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, H{"status": "requested"})
}
