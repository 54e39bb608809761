package handler

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rehiy/web-shortrange/events"
)

// 每个连接的事件缓冲
const wsBuffer = 64

// WebSocketHandler WebSocket处理器
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	hub      *events.EventListener
	ping     time.Duration
}

// NewWebSocketHandler 创建新的WebSocket处理器
func NewWebSocketHandler(hub *events.EventListener) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		hub:  hub,
		ping: 30 * time.Second,
	}
}

// HandleWebSocket 推送模块事件，?kinds=status,data 可过滤类别
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	var kinds []string
	if v := r.URL.Query().Get("kinds"); v != "" {
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				kinds = append(kinds, k)
			}
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	id, ch, cancel := h.hub.Subscribe(wsBuffer, kinds...)
	defer cancel()

	log.Printf("WebSocket client connected: %s (%s)", r.RemoteAddr, id)

	// 读循环只用于感知断开
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.ping)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				log.Printf("WebSocket client disconnected: %v(%s)", r.RemoteAddr, err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("WebSocket client disconnected: %v(%s)", r.RemoteAddr, err)
				return
			}
		case <-gone:
			log.Printf("WebSocket client closed: %s", r.RemoteAddr)
			return
		}
	}
}
