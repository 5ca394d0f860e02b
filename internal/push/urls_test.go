package push

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/authnotify/internal/model"
)

func TestCandidateURLs(t *testing.T) {
	cfg := model.PushConfig{
		DirectURL: "ws://localhost:8000/api/notifications/ws",
		Path:      "/api/notifications/ws",
		ProxyPath: "/api/ws-proxy",
	}

	got := CandidateURLs(cfg, "http://localhost:8000", "t/k")
	assert.Equal(t, []string{
		"ws://localhost:8000/api/notifications/ws?token=t%2Fk",
		"ws://localhost:8000/api/ws-proxy?token=t%2Fk",
		"ws://127.0.0.1:8000/api/notifications/ws?token=t%2Fk",
	}, got)

	got = CandidateURLs(cfg, "https://app.example.com", "x")
	assert.Equal(t, []string{
		"ws://localhost:8000/api/notifications/ws?token=x",
		"wss://app.example.com/api/notifications/ws?token=x",
		"wss://app.example.com/api/ws-proxy?token=x",
		"ws://127.0.0.1:8000/api/notifications/ws?token=x",
	}, got)
}

func TestCandidateURLs_NoBaseURL(t *testing.T) {
	got := CandidateURLs(model.PushConfig{}, "", "x")
	assert.Equal(t, []string{"ws://127.0.0.1:8000/api/notifications/ws?token=x"}, got)
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "ws://h/ws", redact("ws://h/ws?token=secret"))
	assert.Equal(t, "ws://h/ws", redact("ws://h/ws"))
}

func TestRetryPolicy(t *testing.T) {
	fixed := NewRetryPolicy(model.RetryConfig{Policy: "fixed"})
	for i := 0; i < 5; i++ {
		d, ok := fixed.Delay(i)
		assert.True(t, ok)
		assert.Equal(t, 5*time.Second, d)
	}

	exp := NewRetryPolicy(model.RetryConfig{
		Policy:      "exponential",
		DelayMs:     1000,
		MaxDelayMs:  5000,
		MaxAttempts: 5,
	})
	var delays []time.Duration
	for i := 0; ; i++ {
		d, ok := exp.Delay(i)
		if !ok {
			break
		}
		delays = append(delays, d)
	}
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second,
	}, delays)
}
