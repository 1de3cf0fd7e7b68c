package provider

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Mailchimp implements Provider for the Mailchimp Marketing API v3.
// The datacenter is encoded in the API key suffix ("-us21" and so on)
// and contacts are addressed by the MD5 hash of the lowercased email,
// which makes PUT a natural upsert.
type Mailchimp struct {
	cfg    Config
	client *http.Client
}

func NewMailchimp() *Mailchimp {
	return &Mailchimp{client: newHTTPClient()}
}

func (m *Mailchimp) Name() string { return "mailchimp" }

func (m *Mailchimp) Configure(cfg Config) { m.cfg = cfg }

func (m *Mailchimp) baseURL() (string, error) {
	if m.cfg.BaseURL != "" {
		return m.cfg.BaseURL, nil
	}
	idx := strings.LastIndex(m.cfg.APIKey, "-")
	if idx < 0 || idx == len(m.cfg.APIKey)-1 {
		return "", fmt.Errorf("mailchimp: API key has no datacenter suffix")
	}
	dc := m.cfg.APIKey[idx+1:]
	return fmt.Sprintf("https://%s.api.mailchimp.com/3.0", dc), nil
}

func (m *Mailchimp) headers() map[string]string {
	token := base64.StdEncoding.EncodeToString([]byte("anystring:" + m.cfg.APIKey))
	return map[string]string{"Authorization": "Basic " + token}
}

func memberHash(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(email)))
	return hex.EncodeToString(sum[:])
}

func (m *Mailchimp) TestConnection(ctx context.Context) TestResult {
	if m.cfg.APIKey == "" {
		return TestResult{Success: false, Message: "Mailchimp API key is not configured"}
	}
	base, err := m.baseURL()
	if err != nil {
		return TestResult{Success: false, Message: err.Error()}
	}

	var resp struct {
		HealthStatus string `json:"health_status"`
	}
	_, err = doJSON(ctx, m.client, "mailchimp", http.MethodGet, base+"/ping", m.headers(), nil, &resp)
	if err != nil {
		return TestResult{Success: false, Message: "Mailchimp connection failed", Error: err.Error()}
	}
	return TestResult{Success: true, Message: "Mailchimp connection OK"}
}

func (m *Mailchimp) AddSubscriber(ctx context.Context, contact Contact, listID string) SubscriberResponse {
	contact = normalizeContact(contact)
	if listID == "" {
		listID = m.cfg.ListID
	}
	if listID == "" {
		return failure("add subscriber", fmt.Errorf("mailchimp: audience ID is required"))
	}
	base, err := m.baseURL()
	if err != nil {
		return failure("add subscriber", err)
	}

	body := map[string]any{
		"email_address": contact.Email,
		"status_if_new": "subscribed",
		"status":        "subscribed",
		"merge_fields": map[string]string{
			"FNAME": contact.FirstName,
			"LNAME": contact.LastName,
		},
	}

	var resp struct {
		ID string `json:"id"`
	}
	u := fmt.Sprintf("%s/lists/%s/members/%s", base, url.PathEscape(listID), memberHash(contact.Email))
	_, err = doJSON(ctx, m.client, "mailchimp", http.MethodPut, u, m.headers(), body, &resp)
	if err != nil {
		return failure("add subscriber", err)
	}

	return SubscriberResponse{
		Success:      true,
		Message:      fmt.Sprintf("subscriber %s added to Mailchimp", contact.Email),
		SubscriberID: resp.ID,
	}
}

// RemoveSubscriber archives the member. Mailchimp keeps archived
// members addressable, so a later AddSubscriber resubscribes them.
func (m *Mailchimp) RemoveSubscriber(ctx context.Context, email, listID string) SubscriberResponse {
	if listID == "" {
		listID = m.cfg.ListID
	}
	if listID == "" {
		return failure("remove subscriber", fmt.Errorf("mailchimp: audience ID is required"))
	}
	base, err := m.baseURL()
	if err != nil {
		return failure("remove subscriber", err)
	}

	u := fmt.Sprintf("%s/lists/%s/members/%s", base, url.PathEscape(listID), memberHash(email))
	_, err = doJSON(ctx, m.client, "mailchimp", http.MethodDelete, u, m.headers(), nil, nil)
	if err != nil {
		if statusOf(err) == http.StatusNotFound {
			return SubscriberResponse{Success: true, Message: fmt.Sprintf("subscriber %s not found in Mailchimp", email)}
		}
		return failure("remove subscriber", err)
	}
	return SubscriberResponse{Success: true, Message: fmt.Sprintf("subscriber %s removed from Mailchimp", email)}
}

func (m *Mailchimp) UpdateSubscriber(ctx context.Context, contact Contact, listID string) SubscriberResponse {
	return m.AddSubscriber(ctx, contact, listID)
}

func (m *Mailchimp) GetLists(ctx context.Context) ([]List, error) {
	base, err := m.baseURL()
	if err != nil {
		return nil, err
	}

	var resp struct {
		Lists []struct {
			ID    string `json:"id"`
			Name  string `json:"name"`
			Stats struct {
				MemberCount int `json:"member_count"`
			} `json:"stats"`
		} `json:"lists"`
	}
	_, err = doJSON(ctx, m.client, "mailchimp", http.MethodGet, base+"/lists?count=50", m.headers(), nil, &resp)
	if err != nil {
		return nil, err
	}

	lists := make([]List, 0, len(resp.Lists))
	for _, l := range resp.Lists {
		lists = append(lists, List{ID: l.ID, Name: l.Name, Count: l.Stats.MemberCount})
	}
	return lists, nil
}

func (m *Mailchimp) GetList(ctx context.Context, id string) (*List, error) {
	base, err := m.baseURL()
	if err != nil {
		return nil, err
	}

	var resp struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Stats struct {
			MemberCount int `json:"member_count"`
		} `json:"stats"`
	}
	_, err = doJSON(ctx, m.client, "mailchimp", http.MethodGet, base+"/lists/"+url.PathEscape(id), m.headers(), nil, &resp)
	if err != nil {
		return nil, err
	}
	return &List{ID: resp.ID, Name: resp.Name, Count: resp.Stats.MemberCount}, nil
}

// CreateList is not offered: Mailchimp audiences require full contact
// and compliance details (company address, permission reminder) that
// have no place in this integration.
func (m *Mailchimp) CreateList(ctx context.Context, name string) (*List, error) {
	return nil, fmt.Errorf("mailchimp: creating audiences is not supported, create one in the Mailchimp dashboard")
}

// SendEmail is not supported: transactional mail is a separate product
// (Mandrill) with its own API key.
func (m *Mailchimp) SendEmail(ctx context.Context, msg Message) EmailResponse {
	return sendNotSupported("mailchimp")
}
