package webhooks

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-gateway/core"
)

func TestMatcher_NullOrEqualSemantics(t *testing.T) {
	source := &fakeSubscriptionSource{subscriptions: []core.Subscription{
		{ID: "sub_all", PluginID: "acme", Enabled: true},
		{ID: "sub_typed", PluginID: "acme", EventType: "message.created", Enabled: true},
		{ID: "sub_scoped", PluginID: "acme", EventType: "message.created", ConnectionID: "conn_1", Enabled: true},
		{ID: "sub_other_conn", PluginID: "acme", ConnectionID: "conn_2", Enabled: true},
		{ID: "sub_disabled", PluginID: "acme", Enabled: false},
		{ID: "sub_other_plugin", PluginID: "globex", Enabled: true},
	}}
	matcher, err := NewMatcher(source)
	if err != nil {
		t.Fatalf("new matcher: %v", err)
	}

	matched, err := matcher.FindMatching(context.Background(), "acme", "message.created", "conn_1")
	if err != nil {
		t.Fatalf("find matching: %v", err)
	}

	got := map[string]bool{}
	for _, subscription := range matched {
		got[subscription.ID] = true
	}
	for _, want := range []string{"sub_all", "sub_typed", "sub_scoped"} {
		if !got[want] {
			t.Fatalf("expected %s in matches, got %v", want, got)
		}
	}
	if len(matched) != 3 {
		t.Fatalf("expected 3 matches, got %d (%v)", len(matched), got)
	}
}

func TestMatcher_RequiresPluginID(t *testing.T) {
	matcher, err := NewMatcher(&fakeSubscriptionSource{})
	if err != nil {
		t.Fatalf("new matcher: %v", err)
	}
	if _, err := matcher.FindMatching(context.Background(), "  ", "x", ""); err == nil {
		t.Fatal("expected error for empty plugin id")
	}
}

func TestMatcher_PropagatesSourceErrors(t *testing.T) {
	boom := errors.New("subscription lookup failed")
	matcher, err := NewMatcher(&fakeSubscriptionSource{err: boom})
	if err != nil {
		t.Fatalf("new matcher: %v", err)
	}
	if _, err := matcher.FindMatching(context.Background(), "acme", "x", ""); !errors.Is(err, boom) {
		t.Fatalf("expected source error, got %v", err)
	}
}

func TestMatcher_GuardsAgainstOverbroadSources(t *testing.T) {
	// A source that ignores the query and returns everything it has.
	source := &fakeSubscriptionSource{returnAll: true, subscriptions: []core.Subscription{
		{ID: "sub_match", PluginID: "acme", Enabled: true},
		{ID: "sub_wrong_type", PluginID: "acme", EventType: "other.event", Enabled: true},
		{ID: "sub_wrong_plugin", PluginID: "globex", Enabled: true},
	}}
	matcher, err := NewMatcher(source)
	if err != nil {
		t.Fatalf("new matcher: %v", err)
	}

	matched, err := matcher.FindMatching(context.Background(), "acme", "message.created", "")
	if err != nil {
		t.Fatalf("find matching: %v", err)
	}
	if len(matched) != 1 || matched[0].ID != "sub_match" {
		t.Fatalf("matcher must re-filter the source results, got %v", matched)
	}
}
