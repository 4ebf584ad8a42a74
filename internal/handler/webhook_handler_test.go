package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebhookReceive_AcknowledgesValidPayload(t *testing.T) {
	h := NewWebhookHandler(nil)

	payload := `{"event":"taskUpdated","task_id":"t1","webhook_id":"wh1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/clickup", strings.NewReader(payload))
	w := httptest.NewRecorder()

	h.Receive(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := decodeJSONBody(t, w)
	if body["received"] != true {
		t.Errorf("received = %v, want true", body["received"])
	}
}

func TestWebhookReceive_AcknowledgesMalformedPayload(t *testing.T) {
	h := NewWebhookHandler(nil)

	// 不正なペイロードでも200で受理する（送信元のリトライを誘発しない）
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/clickup", strings.NewReader("not json"))
	w := httptest.NewRecorder()

	h.Receive(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := decodeJSONBody(t, w)
	if body["received"] != true {
		t.Errorf("received = %v, want true", body["received"])
	}
}

func TestWebhookReceive_AcknowledgesEmptyBody(t *testing.T) {
	h := NewWebhookHandler(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/clickup", nil)
	w := httptest.NewRecorder()

	h.Receive(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
