package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// discordEmbed is the subset of the webhook embed object we send.
type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
}

type discordPayload struct {
	Username string         `json:"username,omitempty"`
	Embeds   []discordEmbed `json:"embeds"`
}

// DiscordSender delivers notifications via a Discord webhook. Webhooks are
// limited to roughly 30 messages a minute; sends beyond the local limiter's
// budget fail with ErrThrottled instead of being rejected by Discord.
type DiscordSender struct {
	webhookURL string
	username   string
	client     *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

// NewDiscordSender creates a DiscordSender allowing perMinute messages with
// the given burst.
func NewDiscordSender(webhookURL, username string, perMinute float64, burst int) *DiscordSender {
	if perMinute <= 0 {
		perMinute = 20
	}
	if burst < 1 {
		burst = 5
	}
	return &DiscordSender{
		webhookURL: webhookURL,
		username:   username,
		client:     &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(perMinute/60), burst),
		now:        time.Now,
	}
}

// Send posts the message as a single embed.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	if !d.limiter.Allow() {
		return fmt.Errorf("discord: %w", ErrThrottled)
	}

	body, err := json.Marshal(discordPayload{
		Username: d.username,
		Embeds: []discordEmbed{{
			Title:       title,
			Description: message,
			Color:       colorFor(title),
			Timestamp:   d.now().UTC().Format(time.RFC3339),
		}},
	})
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()

	// Discord returns 204 No Content on success.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}

// colorFor picks an embed colour from the title prefix set by Notifier.
func colorFor(title string) int {
	switch {
	case hasPrefix(title, titleAlert):
		return 0xE74C3C
	case hasPrefix(title, titleTrade):
		return 0x2ECC71
	default:
		return 0x3498DB
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
