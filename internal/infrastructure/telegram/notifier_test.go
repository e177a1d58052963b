package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"FuelPriceMonitor/internal/config"
	"FuelPriceMonitor/internal/domain"
)

type fakeBotAPI struct {
	mu    sync.Mutex
	calls []string
	form  map[string]string
}

func (f *fakeBotAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]

		f.mu.Lock()
		f.calls = append(f.calls, method)
		if method == "sendMessage" {
			f.form = map[string]string{
				"chat_id":    r.PostForm.Get("chat_id"),
				"text":       r.PostForm.Get("text"),
				"parse_mode": r.PostForm.Get("parse_mode"),
			}
		}
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch method {
		case "getMe":
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"fuel","username":"fuelbot"}}`))
		case "sendMessage":
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`))
		default:
			_, _ = w.Write([]byte(`{"ok":false,"error_code":404,"description":"Not Found"}`))
		}
	}
}

func TestNotifierDeliver(t *testing.T) {
	t.Parallel()

	fake := &fakeBotAPI{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	n := NewNotifier(config.TelegramConfig{BotToken: "123:abc", ChatID: "42", Endpoint: srv.URL + "/bot%s/%s"})

	summary := domain.RunReportSummary{RunDate: "2024-06-14", Status: domain.StatusSuccess, Accepted: 4}
	for i := 0; i < 2; i++ {
		if err := n.Deliver(context.Background(), summary); err != nil {
			t.Fatalf("deliver: %v", err)
		}
	}

	if len(fake.calls) != 3 || fake.calls[0] != "getMe" {
		t.Fatalf("expected one getMe and two sends, got %v", fake.calls)
	}
	if fake.form["chat_id"] != "42" || fake.form["parse_mode"] != "Markdown" {
		t.Fatalf("unexpected form %v", fake.form)
	}
	if !strings.Contains(fake.form["text"], "accepted 4") {
		t.Fatalf("expected rendered summary, got %q", fake.form["text"])
	}
}

func TestNotifierMisconfigured(t *testing.T) {
	t.Parallel()

	if err := NewNotifier(config.TelegramConfig{}).Deliver(context.Background(), domain.RunReportSummary{}); err == nil {
		t.Fatalf("expected misconfiguration error")
	}
}

func TestNotifierRejectsBadChatID(t *testing.T) {
	t.Parallel()

	fake := &fakeBotAPI{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	n := NewNotifier(config.TelegramConfig{BotToken: "t", ChatID: "not-a-number", Endpoint: srv.URL + "/bot%s/%s"})
	if err := n.Deliver(context.Background(), domain.RunReportSummary{}); err == nil {
		t.Fatalf("expected chat id error")
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := truncate("abcdef", 4); got != "abc…" {
		t.Fatalf("unexpected truncation %q", got)
	}
	if got := truncate("abc", 4); got != "abc" {
		t.Fatalf("short text must be unchanged, got %q", got)
	}
}
