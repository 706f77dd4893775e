package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Embed colours keyed by the title verb FormatOrderEvent writes.
const (
	colorFilled    = 0x2ECC71
	colorCancelled = 0x3498DB
	colorDefault   = 0x95A5A6
)

type discordMessage struct {
	Embeds []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Color       int           `json:"color"`
	Footer      discordFooter `json:"footer"`
	Timestamp   string        `json:"timestamp"`
}

type discordFooter struct {
	Text string `json:"text"`
}

// DiscordSender posts each notification to a Discord webhook as one embed.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
	now        func() time.Time
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: sendTimeout},
		now:        time.Now,
	}
}

// Send posts the title and message as an embed coloured by the order action.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	msg := discordMessage{Embeds: []discordEmbed{{
		Title:       title,
		Description: "```\n" + message + "\n```",
		Color:       embedColor(title),
		Footer:      discordFooter{Text: "papertrade"},
		Timestamp:   d.now().UTC().Format(time.RFC3339),
	}}}

	body, err := json.Marshal(msg)
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

	// 204 No Content on success.
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

func embedColor(title string) int {
	switch {
	case strings.HasPrefix(title, "Filled"):
		return colorFilled
	case strings.HasPrefix(title, "Cancelled"):
		return colorCancelled
	default:
		return colorDefault
	}
}
