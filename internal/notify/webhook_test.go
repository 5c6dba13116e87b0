package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"laserops/internal/testutil"
	"laserops/pkg/cloudevent"
)

func TestWebhook_Delivers(t *testing.T) {
	t.Parallel()
	var received atomic.Int64
	var gotType, gotSig atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var event cloudevent.CloudEvent
		_ = json.NewDecoder(r.Body).Decode(&event)
		gotType.Store(event.Type)
		gotSig.Store(r.Header.Get("X-Signature-256"))
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	w := NewWebhook(Config{URL: server.URL, SigningKey: "secret"}, nil)
	defer w.Close(context.Background())

	w.Publish("job.sent", "job-1", map[string]any{"jobId": "job-1", "status": "QUEUED"})

	testutil.MustWaitForCount(t, &received, 1, testutil.WithTimeout(5*time.Second))

	if gotType.Load() != "job.sent" {
		t.Errorf("event type = %v, want job.sent", gotType.Load())
	}
	if sig, _ := gotSig.Load().(string); sig == "" {
		t.Error("expected signature header with signing key configured")
	}

	testutil.MustWaitFor(t, func() bool {
		return w.Stats().Delivered == 1
	}, testutil.WithTimeout(5*time.Second))
}

func TestWebhook_RetriesServerErrors(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	w := NewWebhook(Config{URL: server.URL}, nil)
	defer w.Close(context.Background())

	w.Publish("job.completed", "job-1", nil)

	testutil.MustWaitFor(t, func() bool {
		return w.Stats().Delivered == 1
	}, testutil.WithTimeout(10*time.Second))

	if got := attempts.Load(); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
	if w.Stats().RetriesTotal < 1 {
		t.Error("expected at least one recorded retry")
	}
}

func TestWebhook_ClientErrorNotRetried(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	w := NewWebhook(Config{URL: server.URL}, nil)
	defer w.Close(context.Background())

	w.Publish("job.cancelled", "job-1", nil)

	testutil.MustWaitFor(t, func() bool {
		return w.Stats().Failed == 1
	}, testutil.WithTimeout(5*time.Second))

	if got := attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1 (4xx must not retry)", got)
	}
}

func TestWebhook_CloseDrainsQueue(t *testing.T) {
	t.Parallel()
	var received atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	w := NewWebhook(Config{URL: server.URL, Workers: 1}, nil)
	for i := 0; i < 5; i++ {
		w.Publish("job.created", "job-1", nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := received.Load(); got != 5 {
		t.Errorf("received %d events after drain, want 5", got)
	}
}

func TestWebhook_PublishAfterClose(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	w := NewWebhook(Config{URL: server.URL}, nil)
	if err := w.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Must not panic or block
	w.Publish("job.created", "job-1", nil)

	if w.Stats().Queued != 0 {
		t.Errorf("queued = %d, want 0 after close", w.Stats().Queued)
	}
}

func TestNop(t *testing.T) {
	t.Parallel()
	var n Nop
	n.Publish("job.created", "job-1", nil)
	if n.Stats() != (Stats{}) {
		t.Error("nop stats should be zero")
	}
	if err := n.Close(context.Background()); err != nil {
		t.Errorf("close: %v", err)
	}
}
