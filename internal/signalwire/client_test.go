package signalwire

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient("proj", "token", "space", nil)
	c.SetBaseURL(srv.URL)
	return c, srv
}

func TestClient_SendsBasicAuth(t *testing.T) {
	var gotUser, gotPass string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, _ = r.BasicAuth()
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	}))

	if _, err := c.Subscribers(context.Background()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if gotUser != "proj" || gotPass != "token" {
		t.Fatalf("expected basic auth proj/token, got %q/%q", gotUser, gotPass)
	}
}

func TestClient_RetriesRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	}))

	if _, err := c.Subscribers(context.Background()); err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestClient_NonRetryableStatusFailsImmediately(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "bad credentials"})
	}))

	_, err := c.Subscribers(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized || apiErr.Retryable {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
	if apiErr.Message != "bad credentials" {
		t.Fatalf("expected upstream message, got %q", apiErr.Message)
	}
	if calls.Load() != 1 {
		t.Fatalf("401 must not be retried, got %d attempts", calls.Load())
	}
}

func TestAddressList_AudioDestinationTrimsQuery(t *testing.T) {
	l := AddressList{Data: []Address{{
		ID:       "addr-1",
		Channels: map[string]string{"audio": "/external/handler?channel=audio"},
	}}}
	if got := l.AudioDestination(); got != "/external/handler" {
		t.Fatalf("expected trimmed destination, got %q", got)
	}
}

func TestAddressList_AudioDestinationLegacyChannelKey(t *testing.T) {
	l := AddressList{Data: []Address{{
		ID:      "addr-1",
		Channel: map[string]string{"audio": "/legacy/audio"},
	}}}
	if got := l.AudioDestination(); got != "/legacy/audio" {
		t.Fatalf("expected legacy channel to resolve, got %q", got)
	}
}

func TestAddressList_AudioDestinationEmpty(t *testing.T) {
	if got := (AddressList{}).AudioDestination(); got != "" {
		t.Fatalf("expected empty destination, got %q", got)
	}
	l := AddressList{Data: []Address{{ID: "a", Channels: map[string]string{"video": "/v"}}}}
	if got := l.AudioDestination(); got != "" {
		t.Fatalf("expected empty when no audio channel, got %q", got)
	}
}

func TestClient_SubscriberByEmailCaseInsensitive(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(subscriberList{Data: []SubscriberRecord{
			{ID: "sub-1", Subscriber: Subscriber{Email: "Agent@Example.com"}},
		}})
	}))

	rec := c.SubscriberByEmail(context.Background(), "agent@example.com")
	if rec == nil || rec.ID != "sub-1" {
		t.Fatalf("expected case-insensitive match, got %+v", rec)
	}
	if c.SubscriberByEmail(context.Background(), "other@example.com") != nil {
		t.Fatalf("expected no match for unknown email")
	}
}

func TestClient_NotifyNewMemberSendsMessageThenUnhold(t *testing.T) {
	var commands []string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var cmd callCommand
		_ = json.NewDecoder(r.Body).Decode(&cmd)
		commands = append(commands, cmd.Command)
		w.WriteHeader(http.StatusOK)
	}))

	if err := c.NotifyNewMember(context.Background(), "call1", "new member M123456"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(commands) != 2 || commands[0] != "calling.ai_message" || commands[1] != "calling.ai_unhold" {
		t.Fatalf("unexpected command sequence: %v", commands)
	}
}
