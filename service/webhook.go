package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rehiy/web-shortrange/database"
	"github.com/rehiy/web-shortrange/events"
	"github.com/rehiy/web-shortrange/models"
)

// WebhookService webhook服务
type WebhookService struct {
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
}

// cachedWebhooks 某一事件类别的webhook列表
type cachedWebhooks struct {
	list []models.Webhook
	at   time.Time
}

var (
	webhookCache    = map[string]cachedWebhooks{}
	webhookCacheMux sync.RWMutex
	cacheTTL        = 30 * time.Second // 缓存30秒
)

// NewWebhookService 创建webhook服务
func NewWebhookService() *WebhookService {
	return &WebhookService{
		client:     &http.Client{Timeout: 30 * time.Second},
		maxRetries: 3,
		retryDelay: 2 * time.Second,
	}
}

// InvalidateWebhookCache 配置变更后清空缓存
func InvalidateWebhookCache() {
	webhookCacheMux.Lock()
	webhookCache = map[string]cachedWebhooks{}
	webhookCacheMux.Unlock()
}

// getCachedWebhooks 获取关注该类事件的webhook，按类别缓存
func (w *WebhookService) getCachedWebhooks(kind string) ([]models.Webhook, error) {
	webhookCacheMux.RLock()
	c, ok := webhookCache[kind]
	webhookCacheMux.RUnlock()
	if ok && time.Since(c.at) < cacheTTL {
		return c.list, nil
	}

	// 缓存过期或为空，重新查询
	webhooks, err := database.GetEnabledWebhooksForKind(kind)
	if err != nil {
		return nil, err
	}

	webhookCacheMux.Lock()
	webhookCache[kind] = cachedWebhooks{list: webhooks, at: time.Now()}
	webhookCacheMux.Unlock()

	return webhooks, nil
}

// HandleEvent 异步触发关注该类事件的webhook，数据事件不转发
func (w *WebhookService) HandleEvent(ev events.Event) {
	switch ev.Kind {
	case events.KindStatus, events.KindFraming, events.KindRadio:
	default:
		return
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[Webhook] Panic recovered: %v", r)
			}
		}()
		if !database.IsWebhookEnabled() {
			return
		}
		if err := w.TriggerWebhooks(ev); err != nil {
			log.Printf("[Webhook] Failed to trigger webhooks: %v", err)
		}
	}()
}

// TriggerWebhooks 触发所有启用且关注该事件的webhook
func (w *WebhookService) TriggerWebhooks(ev events.Event) error {
	webhooks, err := w.getCachedWebhooks(ev.Kind)
	if err != nil {
		return fmt.Errorf("failed to get enabled webhooks: %w", err)
	}

	// 使用并发控制触发webhook
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, 5) // 限制并发数为5

	for _, webhook := range webhooks {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(wh models.Webhook) {
			defer wg.Done()
			defer func() { <-semaphore }()
			_ = w.triggerWebhook(&wh, ev)
		}(webhook)
	}

	wg.Wait()
	if len(webhooks) > 0 {
		log.Printf("[Webhook] Triggered %d webhooks for %s event of %s", len(webhooks), ev.Kind, ev.Radio)
	}
	return nil
}

// triggerWebhook 触发单个webhook，支持重试机制
func (w *WebhookService) triggerWebhook(webhook *models.Webhook, ev events.Event) error {
	payload, err := w.preparePayload(webhook, ev)
	if err != nil {
		log.Printf("[Webhook] Failed to prepare payload for %s: %v", webhook.Name, err)
		return err // 模板错误不重试
	}

	retryDelay := w.retryDelay
	for attempt := 0; attempt < w.maxRetries; attempt++ {
		if attempt > 0 {
			log.Printf("[Webhook] Retry attempt %d for webhook %s", attempt, webhook.Name)
			time.Sleep(retryDelay)
			retryDelay *= 2 // 指数退避
		}

		retry, err := w.post(webhook, payload)
		if err == nil {
			return nil
		}
		log.Printf("[Webhook] %s (attempt %d): %v", webhook.Name, attempt+1, err)
		if !retry {
			return err
		}
	}

	return fmt.Errorf("failed to trigger webhook %s after %d attempts", webhook.Name, w.maxRetries)
}

// post 发送一次请求，返回是否值得重试
func (w *WebhookService) post(webhook *models.Webhook, payload []byte) (bool, error) {
	req, err := http.NewRequest(http.MethodPost, webhook.URL, bytes.NewReader(payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Web-Shortrange/1.0")

	start := time.Now()
	resp, err := w.client.Do(req)
	if err != nil {
		return true, err // 网络错误重试
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		log.Printf("[Webhook] Successfully triggered %s (status: %d, duration: %v)",
			webhook.Name, resp.StatusCode, time.Since(start))
		return false, nil
	}
	// 服务器错误重试，客户端错误不重试
	return resp.StatusCode >= 500, fmt.Errorf("status %d", resp.StatusCode)
}

// preparePayload 准备webhook payload
func (w *WebhookService) preparePayload(webhook *models.Webhook, ev events.Event) ([]byte, error) {
	if webhook.Template == "" || webhook.Template == "{}" {
		return w.getDefaultPayload(ev)
	}

	var template map[string]any
	if err := json.Unmarshal([]byte(webhook.Template), &template); err != nil {
		log.Printf("[Webhook] Invalid template for %s, using default: %v", webhook.Name, err)
		return w.getDefaultPayload(ev)
	}

	return json.Marshal(w.replaceTemplateVariables(template, ev))
}

// getDefaultPayload 获取默认payload
func (w *WebhookService) getDefaultPayload(ev events.Event) ([]byte, error) {
	return json.Marshal(map[string]any{
		"event":     "radio_" + ev.Kind,
		"data":      ev,
		"timestamp": time.Now().Unix(),
	})
}

// replaceTemplateVariables 替换模板中的变量
func (w *WebhookService) replaceTemplateVariables(template map[string]any, ev events.Event) map[string]any {
	result := make(map[string]any)

	for key, value := range template {
		switch v := value.(type) {
		case string:
			result[key] = w.replaceStringVariables(v, ev)
		case map[string]any:
			result[key] = w.replaceTemplateVariables(v, ev)
		default:
			result[key] = value
		}
	}

	return result
}

// replaceStringVariables 替换字符串中的变量
func (w *WebhookService) replaceStringVariables(s string, ev events.Event) string {
	replacements := map[string]string{
		"{{radio}}":   ev.Radio,
		"{{kind}}":    ev.Kind,
		"{{status}}":  ev.Status,
		"{{address}}": ev.Address,
		"{{channel}}": strconv.Itoa(ev.Channel),
		"{{time}}":    ev.Time.Format(time.RFC3339),
	}

	for old, new := range replacements {
		s = strings.ReplaceAll(s, old, new)
	}

	return s
}

// Test 测试webhook
func (w *WebhookService) Test(webhook *models.Webhook) error {
	return w.triggerWebhook(webhook, events.Event{
		Radio:   "test",
		Kind:    events.KindStatus,
		Status:  "connected",
		Address: "D4CA6EA0D3FBp",
		Time:    time.Now(),
	})
}
