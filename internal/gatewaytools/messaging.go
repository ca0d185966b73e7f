package gatewaytools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// DiscordSender sends discord_send messages through an already-logged-in
// discordgo session (the session is owned by the bot process; this tool
// only reuses it to post).
type DiscordSender struct {
	Session *discordgo.Session
}

func (d *DiscordSender) Send(ctx context.Context, channel, text string) error {
	if d.Session == nil {
		return fmt.Errorf("discord session not configured")
	}
	_, err := d.Session.ChannelMessageSend(channel, text)
	return err
}

// TelegramSender sends telegram_send messages via telego's bot API client.
type TelegramSender struct {
	Bot *telego.Bot
}

func (t *TelegramSender) Send(ctx context.Context, channel, text string) error {
	if t.Bot == nil {
		return fmt.Errorf("telegram bot not configured")
	}
	var chatID int64
	if _, err := fmt.Sscanf(channel, "%d", &chatID); err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", channel, err)
	}
	_, err := t.Bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text))
	return err
}

// SlackSender posts slack_send messages to an incoming webhook URL. The
// example corpus carries no Slack SDK, so this is a thin stdlib HTTP
// client against Slack's documented webhook contract.
type SlackSender struct {
	WebhookURL string
	http       *http.Client
}

// NewSlackSender builds a SlackSender posting to webhookURL.
func NewSlackSender(webhookURL string) *SlackSender {
	return &SlackSender{WebhookURL: webhookURL, http: &http.Client{Timeout: 10 * time.Second}}
}

func (s *SlackSender) Send(ctx context.Context, channel, text string) error {
	if s.WebhookURL == "" {
		return fmt.Errorf("slack webhook not configured")
	}
	payload := map[string]string{"text": text}
	if channel != "" {
		payload["channel"] = channel
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("post to slack: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}
