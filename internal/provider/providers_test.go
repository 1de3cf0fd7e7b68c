package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// Vendors whose APIs upsert by design must report success when the same
// email is added twice.
func TestAddSubscriberIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data":         map[string]any{"id": "s-1"},
			"id":           7,
			"subscription": map[string]any{"subscriber": map[string]any{"id": 7}},
		})
	}))
	defer srv.Close()

	longKey := strings.Repeat("k", 40)
	adapters := []Provider{
		func() Provider {
			p := NewMailerLite()
			p.Configure(Config{APIKey: longKey, BaseURL: srv.URL})
			return p
		}(),
		func() Provider {
			p := NewBrevo()
			p.Configure(Config{APIKey: "xkeysib-" + longKey, BaseURL: srv.URL})
			return p
		}(),
		func() Provider {
			p := NewConvertKit()
			p.Configure(Config{APIKey: longKey, BaseURL: srv.URL, ListID: "form-1"})
			return p
		}(),
	}

	contact := Contact{Email: "jane@example.com", Name: "Jane Doe"}
	for _, p := range adapters {
		for i := 0; i < 2; i++ {
			res := p.AddSubscriber(context.Background(), contact, "")
			if !res.Success {
				t.Errorf("%s: add %d failed: %s", p.Name(), i+1, res.Error)
			}
		}
	}
}

// Removing an email the vendor does not know counts as already removed.
func TestRemoveSubscriberNotFoundIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"message": "not found"})
	}))
	defer srv.Close()

	longKey := strings.Repeat("k", 40)
	adapters := []Provider{
		func() Provider {
			p := NewMailerLite()
			p.Configure(Config{APIKey: longKey, BaseURL: srv.URL})
			return p
		}(),
		func() Provider {
			p := NewBrevo()
			p.Configure(Config{APIKey: "xkeysib-" + longKey, BaseURL: srv.URL})
			return p
		}(),
		func() Provider {
			p := NewConvertKit()
			p.Configure(Config{APIKey: longKey, BaseURL: srv.URL})
			return p
		}(),
		func() Provider {
			p := NewMailchimp()
			p.Configure(Config{APIKey: longKey + "-us21", BaseURL: srv.URL, ListID: "aud-1"})
			return p
		}(),
		func() Provider {
			p := NewOmnisend()
			p.Configure(Config{APIKey: longKey, BaseURL: srv.URL})
			return p
		}(),
	}

	for _, p := range adapters {
		res := p.RemoveSubscriber(context.Background(), "ghost@example.com", "")
		if !res.Success {
			t.Errorf("%s: removing unknown subscriber should succeed, got %s", p.Name(), res.Error)
		}
	}
}

// Vendors without a transactional API refuse to send without touching
// the network.
func TestSendEmailNotSupported(t *testing.T) {
	adapters := []Provider{NewMailerLite(), NewMailchimp(), NewConvertKit(), NewOmnisend()}
	msg := Message{To: "jane@example.com", Subject: "x", HTML: "y"}

	for _, p := range adapters {
		res := p.SendEmail(context.Background(), msg)
		if res.Success {
			t.Errorf("%s: send should not be supported", p.Name())
		}
		if !strings.Contains(res.Error, ErrSendNotSupported.Error()) {
			t.Errorf("%s: error = %q, want not-supported", p.Name(), res.Error)
		}
	}
}

// Key shape problems are caught locally without a network round trip.
func TestTestConnectionKeyShape(t *testing.T) {
	tests := []struct {
		name string
		p    Provider
		key  string
	}{
		{"brevo wrong prefix", NewBrevo(), "sk-wrong-prefix-0000000000000000"},
		{"mailerlite too short", NewMailerLite(), "short"},
		{"mailchimp no datacenter", NewMailchimp(), "0123456789abcdef0123456789abcdef"},
		{"sendpulse missing secret", NewSendPulse(), "only-a-client-id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.p.Configure(Config{APIKey: tt.key})
			if res := tt.p.TestConnection(context.Background()); res.Success {
				t.Errorf("expected local failure for key %q", tt.key)
			}
		})
	}
}

func TestMailchimpMemberHash(t *testing.T) {
	// Hash is over the lowercased address.
	if memberHash("Jane@Example.COM") != memberHash("jane@example.com") {
		t.Error("hash must be case-insensitive on the email")
	}
	if got := memberHash("jane@example.com"); len(got) != 32 {
		t.Errorf("hash length = %d, want 32 hex chars", len(got))
	}
}

func TestMailchimpAddSubscriberUpsertPath(t *testing.T) {
	var gotPath, gotMethod string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]string{"id": "m-1"})
	}))
	defer srv.Close()

	mc := NewMailchimp()
	mc.Configure(Config{APIKey: "key-us21", BaseURL: srv.URL, ListID: "aud-1"})

	res := mc.AddSubscriber(context.Background(), Contact{Email: "jane@example.com", Name: "Jane Doe"}, "")
	if !res.Success {
		t.Fatalf("AddSubscriber failed: %s", res.Error)
	}
	if gotMethod != http.MethodPut {
		t.Errorf("method = %s, want PUT", gotMethod)
	}
	want := "/lists/aud-1/members/" + memberHash("jane@example.com")
	if gotPath != want {
		t.Errorf("path = %s, want %s", gotPath, want)
	}
	if gotBody["status_if_new"] != "subscribed" {
		t.Errorf("status_if_new = %v", gotBody["status_if_new"])
	}
}

func TestConvertKitSubscribeUsesForm(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"subscription": map[string]any{"subscriber": map[string]any{"id": 99}},
		})
	}))
	defer srv.Close()

	ck := NewConvertKit()
	ck.Configure(Config{APIKey: "secret", BaseURL: srv.URL, ListID: "12345"})

	res := ck.AddSubscriber(context.Background(), Contact{Email: "jane@example.com", Name: "Jane Doe"}, "")
	if !res.Success {
		t.Fatalf("AddSubscriber failed: %s", res.Error)
	}
	if gotPath != "/forms/12345/subscribe" {
		t.Errorf("path = %s", gotPath)
	}
	if gotBody["api_secret"] != "secret" {
		t.Error("api_secret missing from body")
	}
	if res.SubscriberID != "99" {
		t.Errorf("SubscriberID = %q, want 99", res.SubscriberID)
	}
}

func TestBrevoSendEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/smtp/email" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if key := r.Header.Get("api-key"); !strings.HasPrefix(key, "xkeysib-") {
			t.Errorf("api-key header = %q", key)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"messageId": "brevo-1"})
	}))
	defer srv.Close()

	b := NewBrevo()
	b.Configure(Config{APIKey: "xkeysib-" + strings.Repeat("k", 32), BaseURL: srv.URL, FromEmail: "hello@fernwell.io"})

	res := b.SendEmail(context.Background(), Message{To: "jane@example.com", Subject: "Hi", HTML: "<p>x</p>"})
	if !res.Success {
		t.Fatalf("SendEmail failed: %s", res.Error)
	}
	if res.EmailID != "brevo-1" {
		t.Errorf("EmailID = %q", res.EmailID)
	}
}

// Brevo fetches attachments by URL; a template's attachment reference
// must land in the request body.
func TestBrevoSendEmailAttachmentURL(t *testing.T) {
	var body struct {
		Attachment []struct {
			URL string `json:"url"`
		} `json:"attachment"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"messageId": "brevo-2"})
	}))
	defer srv.Close()

	b := NewBrevo()
	b.Configure(Config{APIKey: "xkeysib-" + strings.Repeat("k", 32), BaseURL: srv.URL, FromEmail: "hello@fernwell.io"})

	res := b.SendEmail(context.Background(), Message{
		To:            "jane@example.com",
		Subject:       "Hi",
		HTML:          "<p>x</p>",
		AttachmentURL: "https://cdn.fernwell.io/guide.pdf",
	})
	if !res.Success {
		t.Fatalf("SendEmail failed: %s", res.Error)
	}
	if len(body.Attachment) != 1 || body.Attachment[0].URL != "https://cdn.fernwell.io/guide.pdf" {
		t.Errorf("attachment = %+v", body.Attachment)
	}
}

// The OAuth token is fetched once and reused for subsequent calls.
func TestSendPulseTokenCaching(t *testing.T) {
	tokenCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/access_token":
			tokenCalls++
			json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-1", "expires_in": 3600})
		case "/addressbooks":
			if auth := r.Header.Get("Authorization"); auth != "Bearer tok-1" {
				t.Errorf("auth = %q", auth)
			}
			json.NewEncoder(w).Encode([]map[string]any{})
		default:
			json.NewEncoder(w).Encode(map[string]any{})
		}
	}))
	defer srv.Close()

	sp := NewSendPulse()
	sp.Configure(Config{APIKey: "id:secret", BaseURL: srv.URL})

	for i := 0; i < 3; i++ {
		if _, err := sp.GetLists(context.Background()); err != nil {
			t.Fatalf("GetLists: %v", err)
		}
	}
	if tokenCalls != 1 {
		t.Errorf("token endpoint called %d times, want 1", tokenCalls)
	}
}

func TestCustomAuthMethods(t *testing.T) {
	type seen struct {
		auth   string
		header string
		query  string
	}
	var got seen
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = seen{
			auth:   r.Header.Get("Authorization"),
			header: r.Header.Get("X-Token"),
			query:  r.URL.Query().Get("key"),
		}
		json.NewEncoder(w).Encode(map[string]any{"lists": []any{}})
	}))
	defer srv.Close()

	tests := []struct {
		name     string
		settings CustomSettings
		check    func(t *testing.T)
	}{
		{
			name:     "bearer",
			settings: CustomSettings{AuthMethod: "bearer", ListsPath: "/lists"},
			check: func(t *testing.T) {
				if got.auth != "Bearer secret" {
					t.Errorf("auth = %q", got.auth)
				}
			},
		},
		{
			name:     "header",
			settings: CustomSettings{AuthMethod: "header", AuthName: "X-Token", ListsPath: "/lists"},
			check: func(t *testing.T) {
				if got.header != "secret" {
					t.Errorf("X-Token = %q", got.header)
				}
			},
		},
		{
			name:     "query",
			settings: CustomSettings{AuthMethod: "query", AuthName: "key", ListsPath: "/lists"},
			check: func(t *testing.T) {
				if got.query != "secret" {
					t.Errorf("query key = %q", got.query)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCustom()
			cfg := Config{APIKey: "secret", BaseURL: srv.URL}
			s := tt.settings
			cfg.Custom = &s
			c.Configure(cfg)

			if _, err := c.GetLists(context.Background()); err != nil {
				t.Fatalf("GetLists: %v", err)
			}
			tt.check(t)
		})
	}
}

func TestCustomSendWithoutSendPath(t *testing.T) {
	c := NewCustom()
	c.Configure(Config{APIKey: "secret", BaseURL: "http://example.invalid", Custom: &CustomSettings{}})

	res := c.SendEmail(context.Background(), Message{To: "jane@example.com"})
	if res.Success {
		t.Fatal("expected not-supported without a send path")
	}
	if !strings.Contains(res.Error, ErrSendNotSupported.Error()) {
		t.Errorf("error = %q", res.Error)
	}
}
