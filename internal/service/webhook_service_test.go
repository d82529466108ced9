package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusworks/dept-admin-api/internal/models"
)

func TestWebhookDeliversPublishEvent(t *testing.T) {
	var mu sync.Mutex
	var received []publishEvent
	done := make(chan struct{}, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var event publishEvent
		require.NoError(t, json.NewDecoder(r.Body).Decode(&event))
		assert.Equal(t, "post.published", r.Header.Get("X-Webhook-Event"))
		mu.Lock()
		received = append(received, event)
		mu.Unlock()
		done <- struct{}{}
	}))
	defer server.Close()

	svc := NewWebhookService(WebhookConfig{Enabled: true, Endpoint: server.URL, Workers: 1}, zap.NewNop())
	svc.Start(context.Background())
	defer svc.Stop()

	published := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.PostPublished(&models.Post{ID: "p1", Slug: "open-house", Title: "Open House", PublishedAt: &published})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("webhook was not delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "post.published", received[0].Event)
	assert.Equal(t, "p1", received[0].PostID)
	assert.Equal(t, "open-house", received[0].Slug)
}

func TestWebhookDisabledDropsEvents(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	svc := NewWebhookService(WebhookConfig{Enabled: false, Endpoint: server.URL}, zap.NewNop())
	svc.Start(context.Background())
	defer svc.Stop()

	svc.PostPublished(&models.Post{ID: "p1"})
	time.Sleep(50 * time.Millisecond)
	assert.False(t, called)
}

func TestWebhookRetriesFailedDelivery(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	done := make(chan struct{}, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		current := attempts
		mu.Unlock()
		if current == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		done <- struct{}{}
	}))
	defer server.Close()

	svc := NewWebhookService(WebhookConfig{
		Enabled:    true,
		Endpoint:   server.URL,
		Workers:    1,
		MaxRetries: 2,
		RetryDelay: 10 * time.Millisecond,
	}, zap.NewNop())
	svc.Start(context.Background())
	defer svc.Stop()

	svc.PostPublished(&models.Post{ID: "p1", Slug: "s", Title: "t"})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("webhook retry never succeeded")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, attempts, 2)
}
