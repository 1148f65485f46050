package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestClientSend(t *testing.T) {
	var gotBody chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(chatResponse{
			Response:        "You have 12kg of rice",
			ActionPerformed: false,
		})
	}))
	defer srv.Close()

	client, err := NewClient(DefaultConfig(srv.URL))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	history := []Message{
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "hi there"},
	}
	reply, err := client.Send(context.Background(), "how much rice do we have", history, "en")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if reply.Text != "You have 12kg of rice" {
		t.Errorf("unexpected reply text: %q", reply.Text)
	}
	if reply.ActionPerformed {
		t.Error("expected action_performed=false")
	}
	if gotBody.Message != "how much rice do we have" {
		t.Errorf("unexpected message sent: %q", gotBody.Message)
	}
	if len(gotBody.History) != 2 {
		t.Errorf("expected 2 history entries, got %d", len(gotBody.History))
	}
	if gotBody.Language != "en" {
		t.Errorf("unexpected language: %q", gotBody.Language)
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(chatResponse{Response: "ok"})
	}))
	defer srv.Close()

	cfg := DefaultConfig(srv.URL)
	cfg.RetryDelay = 5 * time.Millisecond
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	reply, err := client.Send(context.Background(), "ping", nil, "en")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reply.Text != "ok" {
		t.Errorf("unexpected reply: %q", reply.Text)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	cfg := DefaultConfig(srv.URL)
	cfg.RetryDelay = 5 * time.Millisecond
	client, _ := NewClient(cfg)

	_, err := client.Send(context.Background(), "ping", nil, "en")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("unexpected status: %d", apiErr.StatusCode)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("expected 1 attempt, got %d", n)
	}
}

func TestClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server notices the client disconnect and
		// cancels the request context; otherwise srv.Close deadlocks.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	cfg := DefaultConfig(srv.URL)
	cfg.Timeout = 50 * time.Millisecond
	cfg.MaxRetries = 0
	client, _ := NewClient(cfg)

	start := time.Now()
	_, err := client.Send(context.Background(), "ping", nil, "en")
	if !IsTimeout(err) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took too long: %v", elapsed)
	}
}

func TestClientEmptyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{Response: "   "})
	}))
	defer srv.Close()

	client, _ := NewClient(DefaultConfig(srv.URL))
	_, err := client.Send(context.Background(), "ping", nil, "en")
	if !errors.Is(err, ErrEmptyReply) {
		t.Fatalf("expected ErrEmptyReply, got %v", err)
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Config{}); !errors.Is(err, ErrMissingBaseURL) {
		t.Fatalf("expected ErrMissingBaseURL, got %v", err)
	}
}
