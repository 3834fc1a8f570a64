package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// TelegramNotifier delivers trade-signal alerts via the Telegram Bot API,
// rendered as MarkdownV2 with bold field labels.
type TelegramNotifier struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

// NewTelegramNotifier creates a Telegram notifier.
// botToken: Bot API token from @BotFather
// chatID: Target chat/group/channel ID
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  "https://api.telegram.org",
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	body, _ := json.Marshal(map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       renderMarkdown(alert),
		"parse_mode": "MarkdownV2",
	})

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	// The Bot API reports failures in the body, with the HTTP status
	// mirroring it. Prefer the description when one is present.
	var apiResp struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err == nil && !apiResp.OK && apiResp.Description != "" {
		return fmt.Errorf("telegram: api error: %s", apiResp.Description)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: unexpected status %d", resp.StatusCode)
	}

	log.Printf("[telegram] sent %s alert: %s", alert.Level, alert.Title)
	return nil
}

// renderMarkdown formats an alert the way trade signals read in chat:
// a severity emoji, bold title, bold "Label:" prefixes for each
// "Label: value" line of the message, and remaining lines (the risk
// reminder) in italics.
func renderMarkdown(alert Alert) string {
	var b strings.Builder
	b.WriteString(levelEmoji(alert.Level))
	b.WriteString(" *")
	b.WriteString(escapeMarkdown(alert.Title))
	b.WriteString("*\n")
	for _, line := range strings.Split(alert.Message, "\n") {
		b.WriteByte('\n')
		label, value, ok := strings.Cut(line, ": ")
		switch {
		case ok:
			b.WriteString("*" + escapeMarkdown(label) + ":* " + escapeMarkdown(value))
		case line != "":
			b.WriteString("_" + escapeMarkdown(line) + "_")
		}
	}
	return b.String()
}

func levelEmoji(level AlertLevel) string {
	switch level {
	case AlertWarning:
		return "⚠️"
	case AlertCritical:
		return "🚨"
	}
	return "📢"
}

// escapeMarkdown escapes special characters for Telegram MarkdownV2.
func escapeMarkdown(s string) string {
	specials := []byte{'_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!'}
	var buf bytes.Buffer
	for i := 0; i < len(s); i++ {
		for _, sp := range specials {
			if s[i] == sp {
				buf.WriteByte('\\')
				break
			}
		}
		buf.WriteByte(s[i])
	}
	return buf.String()
}
