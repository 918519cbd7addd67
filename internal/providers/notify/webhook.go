package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// WebhookNotifier posts Slack-compatible incoming-webhook payloads.
type WebhookNotifier struct {
	url     string
	channel string
	client  *http.Client
}

func NewWebhookNotifier(url, channel string, client *http.Client) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookNotifier{url: url, channel: channel, client: client}
}

type webhookPayload struct {
	Channel string `json:"channel,omitempty"`
	Text    string `json:"text"`
}

func (n *WebhookNotifier) Notify(ctx context.Context, msg Message) error {
	body, err := json.Marshal(webhookPayload{Channel: n.channel, Text: formatText(msg)})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func formatText(msg Message) string {
	var b strings.Builder
	switch msg.Level {
	case LevelError:
		b.WriteString(":red_circle: ")
	case LevelWarning:
		b.WriteString(":warning: ")
	}
	b.WriteString("*" + msg.Title + "*")
	if msg.Body != "" {
		b.WriteString("\n" + msg.Body)
	}
	keys := make([]string, 0, len(msg.Fields))
	for k := range msg.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(fmt.Sprintf("\n• %s: %s", k, msg.Fields[k]))
	}
	return b.String()
}
