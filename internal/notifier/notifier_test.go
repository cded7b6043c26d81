package notifier

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livecast/internal/models"
)

type capture struct {
	mu     sync.Mutex
	bodies [][]byte
}

func (c *capture) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.bodies = append(c.bodies, body)
		c.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
}

func testStream() *models.PublicStream {
	return &models.PublicStream{
		SessionID: "s1",
		Title:     "My Stream",
		StartedAt: time.Now().UTC(),
	}
}

func TestDisabledNotifierSendsNothing(t *testing.T) {
	n := New(Config{})
	assert.False(t, n.Enabled())
	require.NoError(t, n.StreamStarted(context.Background(), testStream()))
}

func TestWebhookPayload(t *testing.T) {
	var c capture
	srv := httptest.NewServer(c.handler())
	defer srv.Close()

	n := New(Config{WebhookURL: srv.URL})
	require.True(t, n.Enabled())
	require.NoError(t, n.StreamStarted(context.Background(), testStream()))

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.bodies, 1)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(c.bodies[0], &payload))
	assert.Equal(t, "stream_started", payload["event"])
	assert.Equal(t, "s1", payload["session_id"])
	assert.Equal(t, "My Stream", payload["title"])
}

func TestDiscordEmbed(t *testing.T) {
	var c capture
	srv := httptest.NewServer(c.handler())
	defer srv.Close()

	n := New(Config{DiscordWebhookURL: srv.URL})
	require.NoError(t, n.StreamEnded(context.Background(), testStream()))

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.bodies, 1)

	var payload struct {
		Embeds []struct {
			Title string `json:"title"`
		} `json:"embeds"`
	}
	require.NoError(t, json.Unmarshal(c.bodies[0], &payload))
	require.Len(t, payload.Embeds, 1)
	assert.Equal(t, "Stream ended: My Stream", payload.Embeds[0].Title)
}

func TestBothChannelsAndFailureReporting(t *testing.T) {
	var c capture
	good := httptest.NewServer(c.handler())
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	n := New(Config{WebhookURL: good.URL, DiscordWebhookURL: bad.URL})
	err := n.StreamStarted(context.Background(), testStream())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord")

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Len(t, c.bodies, 1, "healthy channel still delivered")
}
