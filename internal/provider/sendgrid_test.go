package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSendGridTestConnectionKeyShape(t *testing.T) {
	sg := NewSendGrid()

	sg.Configure(Config{})
	if res := sg.TestConnection(context.Background()); res.Success {
		t.Error("expected failure for empty key")
	}

	// A wrong-shaped key fails locally, no server needed.
	sg.Configure(Config{APIKey: "not-a-sendgrid-key"})
	res := sg.TestConnection(context.Background())
	if res.Success {
		t.Error("expected failure for key without SG. prefix")
	}
	if !strings.Contains(res.Message, "SG.") {
		t.Errorf("message should mention the expected prefix, got %q", res.Message)
	}
}

func TestSendGridAddSubscriber(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/v3/marketing/contacts" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer SG.test" {
			t.Errorf("auth header = %q", auth)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"job_id": "job-1"})
	}))
	defer srv.Close()

	sg := NewSendGrid()
	sg.Configure(Config{APIKey: "SG.test", BaseURL: srv.URL, ListID: "list-1"})

	res := sg.AddSubscriber(context.Background(), Contact{Email: "jane@example.com", Name: "Jane Doe"}, "")
	if !res.Success {
		t.Fatalf("AddSubscriber failed: %s", res.Error)
	}
	if res.SubscriberID != "job-1" {
		t.Errorf("SubscriberID = %q, want job-1", res.SubscriberID)
	}

	contacts := gotBody["contacts"].([]any)
	c := contacts[0].(map[string]any)
	if c["first_name"] != "Jane" || c["last_name"] != "Doe" {
		t.Errorf("name was not split: %v", c)
	}
	lists := gotBody["list_ids"].([]any)
	if lists[0] != "list-1" {
		t.Errorf("default list not applied: %v", lists)
	}
}

// Adding the same contact twice succeeds both times; the endpoint is an
// upsert.
func TestSendGridAddSubscriberTwice(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"job_id": "job"})
	}))
	defer srv.Close()

	sg := NewSendGrid()
	sg.Configure(Config{APIKey: "SG.test", BaseURL: srv.URL})

	contact := Contact{Email: "jane@example.com"}
	for i := 0; i < 2; i++ {
		if res := sg.AddSubscriber(context.Background(), contact, ""); !res.Success {
			t.Fatalf("add %d failed: %s", i+1, res.Error)
		}
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestSendGridRemoveSubscriberNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Search comes back empty for an unknown email.
		json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{}})
	}))
	defer srv.Close()

	sg := NewSendGrid()
	sg.Configure(Config{APIKey: "SG.test", BaseURL: srv.URL})

	res := sg.RemoveSubscriber(context.Background(), "ghost@example.com", "")
	if !res.Success {
		t.Errorf("removing an unknown subscriber should succeed, got %s", res.Error)
	}
}

func TestSendGridRemoveSubscriber(t *testing.T) {
	var deleted string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/search/emails"):
			json.NewEncoder(w).Encode(map[string]any{
				"result": map[string]any{
					"jane@example.com": map[string]any{
						"contact": map[string]any{"id": "c-123"},
					},
				},
			})
		case r.Method == http.MethodDelete:
			deleted = r.URL.Query().Get("ids")
			w.WriteHeader(http.StatusAccepted)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	sg := NewSendGrid()
	sg.Configure(Config{APIKey: "SG.test", BaseURL: srv.URL})

	res := sg.RemoveSubscriber(context.Background(), "jane@example.com", "")
	if !res.Success {
		t.Fatalf("RemoveSubscriber failed: %s", res.Error)
	}
	if deleted != "c-123" {
		t.Errorf("deleted ID = %q, want c-123", deleted)
	}
}

func TestSendGridSendEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/mail/send" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["subject"] != "Hello" {
			t.Errorf("subject = %v", body["subject"])
		}
		w.Header().Set("X-Message-Id", "msg-42")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sg := NewSendGrid()
	sg.Configure(Config{APIKey: "SG.test", BaseURL: srv.URL, FromEmail: "hello@fernwell.io", FromName: "Fernwell"})

	res := sg.SendEmail(context.Background(), Message{
		To:      "jane@example.com",
		Subject: "Hello",
		HTML:    "<p>Hi Jane</p>",
	})
	if !res.Success {
		t.Fatalf("SendEmail failed: %s", res.Error)
	}
	if res.EmailID != "msg-42" {
		t.Errorf("EmailID = %q, want msg-42", res.EmailID)
	}
}

func TestSendGridSendEmailRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]string{{"message": "authorization required"}},
		})
	}))
	defer srv.Close()

	sg := NewSendGrid()
	sg.Configure(Config{APIKey: "SG.bad", BaseURL: srv.URL, FromEmail: "hello@fernwell.io"})

	res := sg.SendEmail(context.Background(), Message{To: "jane@example.com", Subject: "x", HTML: "y"})
	if res.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.Error, "authorization required") {
		t.Errorf("error should carry the vendor message, got %q", res.Error)
	}
}
