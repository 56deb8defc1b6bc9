package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestClientSendTextSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/messages/send" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"ext-1"}`))
	}))
	defer server.Close()

	client := New(Config{
		BaseURL:     server.URL,
		BearerToken: "test-token",
		Timeout:     2 * time.Second,
		MaxAttempts: 2,
	})

	id, err := client.SendText(context.Background(), "5511999999999", "oi")
	if err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if id != "ext-1" {
		t.Fatalf("expected external id ext-1, got %q", id)
	}
}

func TestClientSendTextRetriesOn5xxThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := atomic.AddInt32(&calls, 1)
		if current == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"boom"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"ext-2"}`))
	}))
	defer server.Close()

	client := New(Config{
		BaseURL:     server.URL,
		BearerToken: "test-token",
		Timeout:     2 * time.Second,
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
		BackoffCap:  5 * time.Millisecond,
	})

	id, err := client.SendText(context.Background(), "5511999999999", "oi")
	if err != nil {
		t.Fatalf("expected success after retry, got err=%v", err)
	}
	if id != "ext-2" {
		t.Fatalf("expected external id ext-2, got %q", id)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected exactly 2 calls, got %d", calls)
	}
}

func TestClientDoesNotRetry4xx(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid number"}`))
	}))
	defer server.Close()

	client := New(Config{
		BaseURL:     server.URL,
		BearerToken: "test-token",
		Timeout:     2 * time.Second,
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
		BackoffCap:  5 * time.Millisecond,
	})

	_, err := client.SendText(context.Background(), "5511999999999", "oi")
	if err == nil {
		t.Fatalf("expected error for 400 response")
	}
	gatewayErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *gateway.Error, got %T", err)
	}
	if gatewayErr.Retryable {
		t.Fatalf("expected 4xx to be classified non-retryable")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly 1 call for a non-retryable failure, got %d", calls)
	}
}

func TestClient401IsNonRetryableAndInvalidatesCachedToken(t *testing.T) {
	var calls int32
	var loginCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/auth/login" {
			atomic.AddInt32(&loginCalls, 1)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"token":"jwt-1","expires_in":3600}`))
			return
		}
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
	}))
	defer server.Close()

	client := New(Config{
		BaseURL:       server.URL,
		LoginEmail:    "bot@tenant.local",
		LoginPassword: "secret",
		Timeout:       2 * time.Second,
		MaxAttempts:   3,
		BackoffBase:   time.Millisecond,
		BackoffCap:    5 * time.Millisecond,
	})

	_, err := client.SendText(context.Background(), "5511999999999", "oi")
	if err == nil {
		t.Fatalf("expected error for 401 response")
	}
	gatewayErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *gateway.Error, got %T", err)
	}
	if gatewayErr.Retryable {
		t.Fatalf("expected 401 to be classified non-retryable")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly 1 send attempt, got %d", calls)
	}

	if client.cachedToken != "" {
		t.Fatalf("expected cached token to be cleared after a 401")
	}

	if _, err := client.SendText(context.Background(), "5511999999999", "oi again"); err == nil {
		t.Fatalf("expected second send to fail again with 401")
	}
	if atomic.LoadInt32(&loginCalls) != 2 {
		t.Fatalf("expected login to be called once per cleared-token send, got %d", loginCalls)
	}
}
