package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

const mailerliteBaseURL = "https://connect.mailerlite.com/api"

// MailerLite implements Provider for the MailerLite connect API.
// MailerLite calls lists "groups". It has no transactional send API
// (that is the separate MailerSend product), so SendEmail reports
// not-supported.
type MailerLite struct {
	cfg    Config
	client *http.Client
}

func NewMailerLite() *MailerLite {
	return &MailerLite{client: newHTTPClient()}
}

func (m *MailerLite) Name() string { return "mailerlite" }

func (m *MailerLite) Configure(cfg Config) { m.cfg = cfg }

func (m *MailerLite) baseURL() string {
	if m.cfg.BaseURL != "" {
		return m.cfg.BaseURL
	}
	return mailerliteBaseURL
}

func (m *MailerLite) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + m.cfg.APIKey}
}

func (m *MailerLite) TestConnection(ctx context.Context) TestResult {
	if m.cfg.APIKey == "" {
		return TestResult{Success: false, Message: "MailerLite API key is not configured"}
	}
	if len(m.cfg.APIKey) < 32 {
		return TestResult{Success: false, Message: "MailerLite API key looks too short"}
	}

	_, err := doJSON(ctx, m.client, "mailerlite", http.MethodGet, m.baseURL()+"/groups?limit=1", m.headers(), nil, nil)
	if err != nil {
		return TestResult{Success: false, Message: "MailerLite connection failed", Error: err.Error()}
	}
	return TestResult{Success: true, Message: "MailerLite connection OK"}
}

// AddSubscriber upserts a subscriber. MailerLite's POST /subscribers
// returns 200 for an existing subscriber and 201 for a new one; both
// are success.
func (m *MailerLite) AddSubscriber(ctx context.Context, contact Contact, listID string) SubscriberResponse {
	contact = normalizeContact(contact)
	if listID == "" {
		listID = m.cfg.ListID
	}

	body := map[string]any{
		"email": contact.Email,
		"fields": map[string]string{
			"name":      contact.FirstName,
			"last_name": contact.LastName,
		},
	}
	if listID != "" {
		body["groups"] = []string{listID}
	}

	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	_, err := doJSON(ctx, m.client, "mailerlite", http.MethodPost, m.baseURL()+"/subscribers", m.headers(), body, &resp)
	if err != nil {
		return failure("add subscriber", err)
	}

	return SubscriberResponse{
		Success:      true,
		Message:      fmt.Sprintf("subscriber %s added to MailerLite", contact.Email),
		SubscriberID: resp.Data.ID,
	}
}

func (m *MailerLite) RemoveSubscriber(ctx context.Context, email, listID string) SubscriberResponse {
	// MailerLite accepts the email address as the subscriber reference.
	_, err := doJSON(ctx, m.client, "mailerlite", http.MethodDelete, m.baseURL()+"/subscribers/"+url.PathEscape(email), m.headers(), nil, nil)
	if err != nil {
		if statusOf(err) == http.StatusNotFound {
			return SubscriberResponse{Success: true, Message: fmt.Sprintf("subscriber %s not found in MailerLite", email)}
		}
		return failure("remove subscriber", err)
	}
	return SubscriberResponse{Success: true, Message: fmt.Sprintf("subscriber %s removed from MailerLite", email)}
}

// UpdateSubscriber is the same upsert call as AddSubscriber.
func (m *MailerLite) UpdateSubscriber(ctx context.Context, contact Contact, listID string) SubscriberResponse {
	return m.AddSubscriber(ctx, contact, listID)
}

func (m *MailerLite) GetLists(ctx context.Context) ([]List, error) {
	var resp struct {
		Data []struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			ActiveCount int    `json:"active_count"`
		} `json:"data"`
	}
	_, err := doJSON(ctx, m.client, "mailerlite", http.MethodGet, m.baseURL()+"/groups?limit=100", m.headers(), nil, &resp)
	if err != nil {
		return nil, err
	}

	lists := make([]List, 0, len(resp.Data))
	for _, g := range resp.Data {
		lists = append(lists, List{ID: g.ID, Name: g.Name, Count: g.ActiveCount})
	}
	return lists, nil
}

// GetList scans the group listing; MailerLite has no fetch-by-ID for
// groups.
func (m *MailerLite) GetList(ctx context.Context, id string) (*List, error) {
	lists, err := m.GetLists(ctx)
	if err != nil {
		return nil, err
	}
	for i := range lists {
		if lists[i].ID == id {
			return &lists[i], nil
		}
	}
	return nil, fmt.Errorf("mailerlite: group %q not found", id)
}

func (m *MailerLite) CreateList(ctx context.Context, name string) (*List, error) {
	var resp struct {
		Data struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"data"`
	}
	_, err := doJSON(ctx, m.client, "mailerlite", http.MethodPost, m.baseURL()+"/groups", m.headers(), map[string]string{"name": name}, &resp)
	if err != nil {
		return nil, err
	}
	return &List{ID: resp.Data.ID, Name: resp.Data.Name}, nil
}

func (m *MailerLite) SendEmail(ctx context.Context, msg Message) EmailResponse {
	return sendNotSupported("mailerlite")
}
