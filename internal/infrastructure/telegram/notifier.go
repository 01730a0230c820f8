package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"ShelterSync/internal/ports"
)

const (
	// DefaultAPIBase is the public Bot API root.
	DefaultAPIBase = "https://api.telegram.org"
	maxMessageLen  = 4096
)

// Notifier sends run reports to a Telegram chat via bot API.
type Notifier struct {
	apiBase  string
	botToken string
	chatID   string
	client   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier. An empty apiBase uses DefaultAPIBase.
func NewNotifier(apiBase, botToken, chatID string) *Notifier {
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	return &Notifier{
		apiBase:  strings.TrimSuffix(apiBase, "/"),
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Configured reports whether both the token and the chat are set.
func (n *Notifier) Configured() bool {
	return n.botToken != "" && n.chatID != ""
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// PublishDigest posts a plain-text message, truncated to Telegram's message limit.
func (n *Notifier) PublishDigest(ctx context.Context, digest string) error {
	if !n.Configured() || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", truncate(digest, maxMessageLen))
	form.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var parsed apiResponse
	_ = json.Unmarshal(body, &parsed)

	if resp.StatusCode != http.StatusOK || !parsed.OK {
		if parsed.Description != "" {
			return fmt.Errorf("telegram error: %s: %s", resp.Status, parsed.Description)
		}
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}
