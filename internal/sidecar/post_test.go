package sidecar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestPostWithRetrySucceedsOnFirstAttempt(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := postWithRetry(context.Background(), srv.Client(), srv.URL, statusPayload{State: "idle"})
	if err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("got %d calls, want 1", got)
	}
}

func TestPostWithRetryDoesNotRetryOn4xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := postWithRetry(context.Background(), srv.Client(), srv.URL, statusPayload{State: "idle"})
	if err == nil {
		t.Fatal("expected an error for a 403 response")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("got %d calls, want exactly 1 (no retry on 4xx)", got)
	}
}

func TestPostWithRetryRetriesOnServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	start := time.Now()
	err := postWithRetry(context.Background(), srv.Client(), srv.URL, statusPayload{State: "working"})
	if err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("got %d calls, want 3", got)
	}
	// Two retries means at least 200ms + 400ms of backoff elapsed.
	if elapsed := time.Since(start); elapsed < 600*time.Millisecond {
		t.Fatalf("expected backoff delay, elapsed only %v", elapsed)
	}
}

func TestPostWithRetryExhaustsBudgetAndReturnsError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := postWithRetry(context.Background(), srv.Client(), srv.URL, statusPayload{State: "error"})
	if err == nil {
		t.Fatal("expected error after exhausting retry budget")
	}
	if got := atomic.LoadInt32(&calls); got != int32(len(backoffSchedule)+1) {
		t.Fatalf("got %d calls, want %d", got, len(backoffSchedule)+1)
	}
}
