package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// webhookBodyLimit はWebhookペイロードの最大サイズ。
const webhookBodyLimit = 1 << 20 // 1MB

// WebhookHandler はClickUpからのWebhook通知を受け付ける。
// 通知は受理してログに残すのみで、データ反映は次回の同期に委ねる。
type WebhookHandler struct {
	logger *slog.Logger
}

// NewWebhookHandler はWebhookHandlerを生成する。
func NewWebhookHandler(logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{logger: logger}
}

// clickUpWebhookEvent はClickUp Webhookペイロードのうち関心のあるフィールド。
type clickUpWebhookEvent struct {
	Event     string `json:"event"`
	TaskID    string `json:"task_id"`
	WebhookID string `json:"webhook_id"`
}

// Receive はWebhook通知を受理する。
// ペイロードが不正でも202相当の受理として扱い、常に200を返す。
// 送信元のリトライストームを避けるため、エラーをClickUpに返さない。
// POST /api/webhooks/clickup
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	// 受信ごとに配送IDを採番してログを突合可能にする
	deliveryID := uuid.NewString()

	body, err := io.ReadAll(io.LimitReader(r.Body, webhookBodyLimit))
	if err != nil {
		h.logger.Warn("failed to read webhook body",
			slog.String("delivery_id", deliveryID),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	var event clickUpWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Warn("failed to parse webhook payload",
			slog.String("delivery_id", deliveryID),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	h.logger.Info("Webhookを受信しました",
		slog.String("delivery_id", deliveryID),
		slog.String("event", event.Event),
		slog.String("task_id", event.TaskID),
		slog.String("webhook_id", event.WebhookID),
	)

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
