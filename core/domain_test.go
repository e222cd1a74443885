package core

import (
	"testing"
	"time"
)

func TestCredentialInfoIsExpired(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	cases := []struct {
		name       string
		credential CredentialInfo
		expected   bool
	}{
		{
			name:       "past expiry",
			credential: CredentialInfo{ExpiresAt: &past},
			expected:   true,
		},
		{
			name:       "future expiry",
			credential: CredentialInfo{ExpiresAt: &future},
			expected:   false,
		},
		{
			name:       "no expiry with refresh token",
			credential: CredentialInfo{RefreshToken: "rt"},
			expected:   true,
		},
		{
			name:       "no expiry without refresh token",
			credential: CredentialInfo{AccessToken: "at"},
			expected:   false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.credential.IsExpired(now); got != tc.expected {
				t.Fatalf("expected IsExpired=%v, got %v", tc.expected, got)
			}
		})
	}
}

func TestEventLogFinalizesExactlyOnce(t *testing.T) {
	now := time.Now().UTC()
	log := EventLog{ID: "log_1", Status: EventLogStatusReceived}

	if err := log.MarkSuccess(now); err != nil {
		t.Fatalf("mark success: %v", err)
	}
	if log.Status != EventLogStatusSuccess {
		t.Fatalf("expected success status, got %s", log.Status)
	}
	if log.ProcessedAt == nil {
		t.Fatalf("expected processed_at to be set")
	}

	if err := log.MarkFailed("late failure", now); err == nil {
		t.Fatalf("expected terminal log to reject a second transition")
	}
	if log.Status != EventLogStatusSuccess {
		t.Fatalf("terminal status must not change, got %s", log.Status)
	}
}

func TestEventLogMarkFailedRecordsReason(t *testing.T) {
	now := time.Now().UTC()
	log := EventLog{ID: "log_2", Status: EventLogStatusReceived}

	if err := log.MarkFailed("signature verification failed", now); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if log.Status != EventLogStatusFailed {
		t.Fatalf("expected failed status, got %s", log.Status)
	}
	if log.ErrorMessage != "signature verification failed" {
		t.Fatalf("unexpected error message %q", log.ErrorMessage)
	}
	if err := log.MarkSuccess(now); err == nil {
		t.Fatalf("expected failed log to stay failed")
	}
}

func TestSubscriptionMatches(t *testing.T) {
	cases := []struct {
		name         string
		subscription Subscription
		eventType    string
		connectionID string
		expected     bool
	}{
		{
			name:         "wildcard subscription matches everything",
			subscription: Subscription{Enabled: true},
			eventType:    "message.created",
			connectionID: "conn_1",
			expected:     true,
		},
		{
			name:         "event type equality",
			subscription: Subscription{Enabled: true, EventType: "message.created"},
			eventType:    "message.created",
			connectionID: "conn_1",
			expected:     true,
		},
		{
			name:         "event type mismatch",
			subscription: Subscription{Enabled: true, EventType: "issue.updated"},
			eventType:    "message.created",
			connectionID: "conn_1",
			expected:     false,
		},
		{
			name:         "connection mismatch",
			subscription: Subscription{Enabled: true, ConnectionID: "conn_2"},
			eventType:    "message.created",
			connectionID: "conn_1",
			expected:     false,
		},
		{
			name:         "disabled never matches",
			subscription: Subscription{Enabled: false},
			eventType:    "message.created",
			connectionID: "conn_1",
			expected:     false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.subscription.Matches(tc.eventType, tc.connectionID); got != tc.expected {
				t.Fatalf("expected %v, got %v", tc.expected, got)
			}
		})
	}
}

func TestEventIsProcessable(t *testing.T) {
	for _, eventType := range []string{"url_verification", "ping", "endpoint.url_validation"} {
		if (Event{EventType: eventType}).IsProcessable() {
			t.Fatalf("expected %s to be excluded from dispatch", eventType)
		}
	}
	if !(Event{EventType: "message.created"}).IsProcessable() {
		t.Fatalf("expected regular events to be processable")
	}
}

func TestEventWithConnection(t *testing.T) {
	event := Event{PluginID: "acme", EventType: "message.created"}
	conn := Connection{ID: "conn_1", CompanyID: "co_1", ExternalID: "T100"}

	enriched := event.WithConnection(conn)
	if enriched.ConnectionID != "conn_1" || enriched.CompanyID != "co_1" {
		t.Fatalf("expected connection fields to be copied, got %+v", enriched)
	}
	if enriched.ExternalID != "T100" {
		t.Fatalf("expected empty external id to be backfilled, got %q", enriched.ExternalID)
	}
}

func TestConnectionStatusTransitions(t *testing.T) {
	if !ConnectionStatusActive.CanTransitionTo(ConnectionStatusRevoked) {
		t.Fatalf("active must be revocable")
	}
	if !ConnectionStatusRevoked.CanTransitionTo(ConnectionStatusActive) {
		t.Fatalf("revoked must reactivate on re-install")
	}
}
