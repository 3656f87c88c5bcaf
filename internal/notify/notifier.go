// Package notify keeps dismissible user-facing notices and forwards them to Telegram.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Notifier delivers a notice to an outside channel.
type Notifier interface {
	Notify(ctx context.Context, notice Notice) error
}

// TelegramNotifier pushes notices through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier builds a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "notify_telegram").Logger(),
	}
}

// Notify calls sendMessage with the rendered notice.
func (n *TelegramNotifier) Notify(ctx context.Context, notice Notice) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(notice),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return fmt.Errorf("telegram 返回 ok=false")
	}

	n.logger.Info().Str("notice_id", notice.ID).
		Str("kind", string(notice.Kind)).
		Str("target", notice.TargetKey).
		Msg("notice forwarded (Telegram)")
	return nil
}

func renderMessage(n Notice) string {
	builder := strings.Builder{}
	builder.WriteString("[Pharmacy Forecast]\n")
	builder.WriteString(fmt.Sprintf("Time: %s UTC\n", n.CreatedAt.UTC().Format(time.RFC3339)))
	builder.WriteString(fmt.Sprintf("Kind: %s\n", n.Kind))
	if n.TargetKey != "" {
		builder.WriteString(fmt.Sprintf("Target: %s\n", n.TargetKey))
	}
	builder.WriteString(n.Message)
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
