package router

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/rehiy/web-shortrange/events"
	"github.com/rehiy/web-shortrange/handler"
	"github.com/rehiy/web-shortrange/service"
)

// Apply 注册全部路由，static 为空时不提供静态文件
func Apply(rs *service.RadioService, hub *events.EventListener, static string) *mux.Router {
	r := mux.NewRouter()

	// API 路由
	api := r.PathPrefix("/api").Subrouter()
	RadioRegister(api, rs)
	EventRegister(api)
	WebhookRegister(api)
	SettingRegister(api)

	// WebSocket
	WebSocketRegister(r, hub)

	// 静态文件服务
	if static != "" {
		StaticServer(r, static)
	}

	return r
}

func RadioRegister(r *mux.Router, rs *service.RadioService) {
	rh := handler.NewRadioHandler(rs)

	// 模块列表
	r.HandleFunc("/radio/list", rh.ListRadios).Methods("GET")
	r.HandleFunc("/radio/modules", rh.ListModules).Methods("GET")

	// 模块生命周期
	r.HandleFunc("/radio/open", rh.OpenRadio).Methods("POST")
	r.HandleFunc("/radio/close", rh.CloseRadio).Methods("POST")
	r.HandleFunc("/radio/restart", rh.RestartRadio).Methods("POST")

	// 模块操作
	r.HandleFunc("/radio/info", rh.GetRadioInfo).Methods("GET")
	r.HandleFunc("/radio/mode", rh.SetRadioMode).Methods("POST")
	r.HandleFunc("/radio/send", rh.SendCommand).Methods("POST")
	r.HandleFunc("/radio/write", rh.WriteData).Methods("POST")
	r.HandleFunc("/radio/resend", rh.ResendConnections).Methods("POST")
}

func EventRegister(r *mux.Router) {
	eh := handler.NewEventHandler()

	// 事件日志
	r.HandleFunc("/events/list", eh.ListEvents).Methods("GET")
	r.HandleFunc("/events/delete", eh.DeleteEvents).Methods("POST")
}

func WebhookRegister(r *mux.Router) {
	wh := handler.NewWebhookHandler()

	// Webhook配置管理
	r.HandleFunc("/webhook", wh.CreateWebhook).Methods("POST")
	r.HandleFunc("/webhook/list", wh.ListWebhooks).Methods("GET")
	r.HandleFunc("/webhook/get", wh.GetWebhook).Methods("GET")
	r.HandleFunc("/webhook/update", wh.UpdateWebhook).Methods("PUT")
	r.HandleFunc("/webhook/delete", wh.DeleteWebhook).Methods("DELETE")
	r.HandleFunc("/webhook/test", wh.TestWebhook).Methods("POST")
}

func SettingRegister(r *mux.Router) {
	sh := handler.NewSettingHandler()

	// 设置管理
	r.HandleFunc("/settings", sh.GetSettings).Methods("GET")
	r.HandleFunc("/settings/eventlog", sh.UpdateEventlogSettings).Methods("PUT")
	r.HandleFunc("/settings/webhook", sh.UpdateWebhookSettings).Methods("PUT")
}

func WebSocketRegister(r *mux.Router, hub *events.EventListener) {
	ws := handler.NewWebSocketHandler(hub)

	r.HandleFunc("/ws/radio", ws.HandleWebSocket)
}

func StaticServer(r *mux.Router, dir string) {
	fs := http.FileServer(http.Dir(dir))
	r.PathPrefix("/").Handler(fs)
}
