package pubsub

import (
	"context"
	"testing"

	"github.com/angelmondragon/tablepos-backend/pkg/config"
)

func TestSubscriptionNamesSkipsBlank(t *testing.T) {
	names := subscriptionNames(config.PubSubConfig{
		AnalyticsSubscription:  " tp-analytics ",
		AuditSubscription:      "",
		StaffAlertSubscription: "tp-staff-alerts-sub",
	})
	if len(names) != 2 || names[0] != "tp-analytics" || names[1] != "tp-staff-alerts-sub" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestResourceNames(t *testing.T) {
	c := &Client{projectID: "pos-prod"}

	cases := []struct {
		kind, name, want string
	}{
		{"subscriptions", "tp-audit", "projects/pos-prod/subscriptions/tp-audit"},
		{"subscriptions", "projects/other/subscriptions/x", "projects/other/subscriptions/x"},
		{"topics", "tp-domain-events", "projects/pos-prod/topics/tp-domain-events"},
		{"topics", "projects/other/subscriptions/x", "projects/pos-prod/topics/projects/other/subscriptions/x"},
		{"topics", "  ", ""},
	}
	for _, tc := range cases {
		if got := c.resourceName(tc.kind, tc.name); got != tc.want {
			t.Fatalf("%s %q: expected %q got %q", tc.kind, tc.name, tc.want, got)
		}
	}

	if got := (&Client{}).resourceName("topics", "x"); got != "" {
		t.Fatalf("missing project should resolve empty, got %q", got)
	}
}

func TestNilClientHandles(t *testing.T) {
	var c *Client
	if c.Publisher("x") != nil || c.Subscription("x") != nil {
		t.Fatalf("nil client should return nil handles")
	}
	if c.Ordered() {
		t.Fatalf("nil client is not ordered")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close on nil client: %v", err)
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping error on nil client")
	}
}
