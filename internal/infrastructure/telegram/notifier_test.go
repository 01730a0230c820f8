package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestPublishDigest(t *testing.T) {
	t.Parallel()

	type request struct {
		path, chatID, text string
	}
	got := make(chan request, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		got <- request{path: r.URL.Path, chatID: r.PostForm.Get("chat_id"), text: r.PostForm.Get("text")}
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	n := NewNotifier(server.URL+"/", "TOKEN", "42")
	if err := n.PublishDigest(context.Background(), "adopted: 2101"); err != nil {
		t.Fatalf("publish: %v", err)
	}

	req := <-got
	if req.path != "/botTOKEN/sendMessage" {
		t.Fatalf("unexpected path %s", req.path)
	}
	if req.chatID != "42" || req.text != "adopted: 2101" {
		t.Fatalf("unexpected form %+v", req)
	}
}

func TestPublishDigestAPIError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok": false, "description": "chat not found"}`))
	}))
	defer server.Close()

	err := NewNotifier(server.URL, "TOKEN", "42").PublishDigest(context.Background(), "hi")
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("expected api error, got %v", err)
	}
}

func TestPublishDigestMisconfigured(t *testing.T) {
	t.Parallel()

	if err := NewNotifier("", "", "42").PublishDigest(context.Background(), "hi"); err == nil {
		t.Fatalf("expected error without token")
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("é", maxMessageLen+10)
	out := truncate(long, maxMessageLen)
	if utf8.RuneCountInString(out) != maxMessageLen {
		t.Fatalf("expected %d runes, got %d", maxMessageLen, utf8.RuneCountInString(out))
	}
	if truncate("short", maxMessageLen) != "short" {
		t.Fatalf("short message changed")
	}
}
