package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNew(t *testing.T) {
	m := New()
	if m == nil {
		t.Fatal("New() returned nil")
	}
	if m.Registry() == nil {
		t.Error("Registry() returned nil")
	}

	if m.EmailsSentTotal == nil {
		t.Error("EmailsSentTotal is nil")
	}
	if m.EmailsFailedTotal == nil {
		t.Error("EmailsFailedTotal is nil")
	}
	if m.SubscribersCapturedTotal == nil {
		t.Error("SubscribersCapturedTotal is nil")
	}
	if m.QueuePending == nil {
		t.Error("QueuePending is nil")
	}
	if m.APIRequestsTotal == nil {
		t.Error("APIRequestsTotal is nil")
	}
	if m.APIRequestDurationSeconds == nil {
		t.Error("APIRequestDurationSeconds is nil")
	}
}

func TestGlobalHelpers(t *testing.T) {
	m := New()
	SetGlobal(m)
	t.Cleanup(func() { SetGlobal(nil) })

	IncEmailsSent("sendgrid")
	IncEmailsSent("sendgrid")
	IncEmailsFailed("brevo")
	IncSubscribersCaptured("blog-sidebar")
	IncSubscribersCaptured("")
	IncUnsubscribes()
	IncProviderErrors("sendgrid", "add_subscriber")

	if got := counterValue(t, m.EmailsSentTotal.WithLabelValues("sendgrid")); got != 2 {
		t.Errorf("sent = %v, want 2", got)
	}
	if got := counterValue(t, m.EmailsFailedTotal.WithLabelValues("brevo")); got != 1 {
		t.Errorf("failed = %v, want 1", got)
	}
	// Empty source falls back to a stable label.
	if got := counterValue(t, m.SubscribersCapturedTotal.WithLabelValues("unknown")); got != 1 {
		t.Errorf("captured(unknown) = %v, want 1", got)
	}
}

func TestHelpersNilGlobal(t *testing.T) {
	SetGlobal(nil)

	// Must not panic without a global instance.
	IncEmailsSent("sendgrid")
	IncEmailsFailed("sendgrid")
	IncSubscribersCaptured("x")
	IncUnsubscribes()
	IncProviderErrors("sendgrid", "send")
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}
