package partner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestNotifier(url string) *Notifier {
	n := NewNotifier(url, 1000, 1000)
	n.RetryDelay = time.Millisecond
	return n
}

func TestNotifySendsMembershipCode(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != savePath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(200)
		_, _ = w.Write([]byte(`{"result":"ok"}`))
	}))
	defer srv.Close()

	body, err := newTestNotifier(srv.URL).Notify(context.Background(), "A12345678")
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got["membership_code"] != "A12345678" {
		t.Fatalf("partner received %+v", got)
	}
	if len(body) == 0 {
		t.Fatal("expected raw response body")
	}
}

func TestNotifyRetriesOn5xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(502)
			return
		}
		w.WriteHeader(200)
	}))
	defer srv.Close()

	if _, err := newTestNotifier(srv.URL).Notify(context.Background(), "A12345678"); err != nil {
		t.Fatalf("notify should succeed on third attempt: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestNotifyNoRetryOn4xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(400)
	}))
	defer srv.Close()

	if _, err := newTestNotifier(srv.URL).Notify(context.Background(), "A12345678"); err == nil {
		t.Fatal("expected error on 400")
	}
	if calls.Load() != 1 {
		t.Fatalf("4xx must not be retried, got %d attempts", calls.Load())
	}
}

func TestNotifyExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(500)
	}))
	defer srv.Close()

	if _, err := newTestNotifier(srv.URL).Notify(context.Background(), "A12345678"); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}
