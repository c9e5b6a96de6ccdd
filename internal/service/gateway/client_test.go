package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	phttp "github.com/paeltech/savannaFx-sub000/pkg/http"
	"github.com/paeltech/savannaFx-sub000/pkg/logger"
)

func TestClient_Send(t *testing.T) {
	var got sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		switch got.Target {
		case "blocked":
			_, _ = w.Write([]byte(`{"delivered":false,"error":"user blocked the bot"}`))
		case "down":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "secret", phttp.WithTimeout(2*time.Second))
	ctx := context.Background()

	if err := c.Send(ctx, "+255700000001", "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.Message != "hello" {
		t.Fatalf("message = %q", got.Message)
	}
	if err := c.Send(ctx, "blocked", "hello"); err == nil || !strings.Contains(err.Error(), "user blocked the bot") {
		t.Fatalf("blocked err = %v", err)
	}
	if err := c.Send(ctx, "down", "hello"); err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("down err = %v", err)
	}
}

func TestClient_ProvisionChannel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req provisionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Name == "empty" {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		_, _ = w.Write([]byte(`{"channel_id":"ch-` + strings.ReplaceAll(req.Name, " ", "-") + `"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	id, err := c.ProvisionChannel(context.Background(), "Signals 2026-10 #1")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if id != "ch-Signals-2026-10-#1" {
		t.Fatalf("channel id = %q", id)
	}
	if _, err := c.ProvisionChannel(context.Background(), "empty"); err == nil {
		t.Fatalf("expected error for empty channel_id")
	}
}

func TestLoopback(t *testing.T) {
	l := NewLoopback(logger.NewNop())
	a, _ := l.ProvisionChannel(context.Background(), "a")
	b, _ := l.ProvisionChannel(context.Background(), "b")
	if a == b {
		t.Fatalf("loopback reused channel id %q", a)
	}
	if err := l.Send(context.Background(), "x", "y"); err != nil {
		t.Fatalf("send: %v", err)
	}
}
