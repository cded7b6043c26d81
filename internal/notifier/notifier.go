package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"livecast/internal/models"
)

// Config holds the outbound notification targets. Empty URLs disable the
// corresponding channel.
type Config struct {
	WebhookURL        string
	DiscordWebhookURL string
}

// Notifier pushes stream lifecycle notifications to external channels.
// Deliveries are best-effort; the coordinator fires them asynchronously and
// only logs failures.
type Notifier struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) *Notifier {
	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Enabled reports whether at least one channel is configured.
func (n *Notifier) Enabled() bool {
	return n.cfg.WebhookURL != "" || n.cfg.DiscordWebhookURL != ""
}

func (n *Notifier) StreamStarted(ctx context.Context, stream *models.PublicStream) error {
	return n.send(ctx, "stream_started", stream)
}

func (n *Notifier) StreamEnded(ctx context.Context, stream *models.PublicStream) error {
	return n.send(ctx, "stream_ended", stream)
}

func (n *Notifier) send(ctx context.Context, event string, stream *models.PublicStream) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []string

	type target struct {
		name string
		send func(context.Context, string, *models.PublicStream) error
	}
	var targets []target
	if n.cfg.WebhookURL != "" {
		targets = append(targets, target{"webhook", n.sendWebhook})
	}
	if n.cfg.DiscordWebhookURL != "" {
		targets = append(targets, target{"discord", n.sendDiscord})
	}

	for _, tg := range targets {
		wg.Add(1)
		go func(tg target) {
			defer wg.Done()
			if err := tg.send(ctx, event, stream); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Sprintf("%s: %v", tg.name, err))
				mu.Unlock()
			}
		}(tg)
	}
	wg.Wait()

	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (n *Notifier) sendWebhook(ctx context.Context, event string, stream *models.PublicStream) error {
	payload := map[string]any{
		"event":      event,
		"session_id": stream.SessionID,
		"title":      stream.Title,
		"started_at": stream.StartedAt.Format(time.RFC3339),
	}
	return n.postJSON(ctx, n.cfg.WebhookURL, payload)
}

func (n *Notifier) sendDiscord(ctx context.Context, event string, stream *models.PublicStream) error {
	title := stream.Title
	if title == "" {
		title = stream.SessionID
	}
	verb := "started"
	color := 0x2ECC71
	if event == "stream_ended" {
		verb = "ended"
		color = 0x95A5A6
	}
	payload := map[string]any{
		"embeds": []map[string]any{
			{
				"title":       fmt.Sprintf("Stream %s: %s", verb, title),
				"color":       color,
				"description": stream.Description,
				"timestamp":   time.Now().UTC().Format(time.RFC3339),
				"footer":      map[string]string{"text": "Livecast"},
			},
		},
	}
	return n.postJSON(ctx, n.cfg.DiscordWebhookURL, payload)
}

func (n *Notifier) postJSON(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
