package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

const omnisendBaseURL = "https://api.omnisend.com/v3"

// Omnisend implements Provider for the Omnisend v3 API. Contacts are
// modelled with identifiers and channels, and opting out means setting
// the email channel status to unsubscribed rather than deleting.
type Omnisend struct {
	cfg    Config
	client *http.Client
}

func NewOmnisend() *Omnisend {
	return &Omnisend{client: newHTTPClient()}
}

func (o *Omnisend) Name() string { return "omnisend" }

func (o *Omnisend) Configure(cfg Config) { o.cfg = cfg }

func (o *Omnisend) baseURL() string {
	if o.cfg.BaseURL != "" {
		return o.cfg.BaseURL
	}
	return omnisendBaseURL
}

func (o *Omnisend) headers() map[string]string {
	return map[string]string{"X-API-KEY": o.cfg.APIKey}
}

func (o *Omnisend) TestConnection(ctx context.Context) TestResult {
	if o.cfg.APIKey == "" {
		return TestResult{Success: false, Message: "Omnisend API key is not configured"}
	}

	_, err := doJSON(ctx, o.client, "omnisend", http.MethodGet, o.baseURL()+"/contacts?limit=1", o.headers(), nil, nil)
	if err != nil {
		return TestResult{Success: false, Message: "Omnisend connection failed", Error: err.Error()}
	}
	return TestResult{Success: true, Message: "Omnisend connection OK"}
}

func (o *Omnisend) contactBody(contact Contact, status string) map[string]any {
	ident := map[string]any{
		"type": "email",
		"id":   contact.Email,
		"channels": map[string]any{
			"email": map[string]any{"status": status},
		},
	}
	body := map[string]any{
		"identifiers": []map[string]any{ident},
		"firstName":   contact.FirstName,
		"lastName":    contact.LastName,
	}
	if contact.Source != "" {
		body["tags"] = []string{contact.Source}
	}
	return body
}

func (o *Omnisend) AddSubscriber(ctx context.Context, contact Contact, listID string) SubscriberResponse {
	contact = normalizeContact(contact)

	var resp struct {
		ContactID string `json:"contactID"`
	}
	_, err := doJSON(ctx, o.client, "omnisend", http.MethodPost, o.baseURL()+"/contacts", o.headers(), o.contactBody(contact, "subscribed"), &resp)
	if err != nil {
		// Omnisend rejects a repeat create of a known email; the
		// contact is already there, so patch instead.
		if statusOf(err) == http.StatusConflict || statusOf(err) == http.StatusUnprocessableEntity {
			return o.UpdateSubscriber(ctx, contact, listID)
		}
		return failure("add subscriber", err)
	}

	return SubscriberResponse{
		Success:      true,
		Message:      fmt.Sprintf("subscriber %s added to Omnisend", contact.Email),
		SubscriberID: resp.ContactID,
	}
}

// RemoveSubscriber unsubscribes the email channel. Omnisend has no
// delete endpoint, unsubscribing is the supported opt-out.
func (o *Omnisend) RemoveSubscriber(ctx context.Context, email, listID string) SubscriberResponse {
	body := map[string]any{
		"identifiers": []map[string]any{{
			"type": "email",
			"id":   email,
			"channels": map[string]any{
				"email": map[string]any{"status": "unsubscribed"},
			},
		}},
	}
	u := o.baseURL() + "/contacts?email=" + url.QueryEscape(email)
	_, err := doJSON(ctx, o.client, "omnisend", http.MethodPatch, u, o.headers(), body, nil)
	if err != nil {
		if statusOf(err) == http.StatusNotFound {
			return SubscriberResponse{Success: true, Message: fmt.Sprintf("subscriber %s not found in Omnisend", email)}
		}
		return failure("remove subscriber", err)
	}
	return SubscriberResponse{Success: true, Message: fmt.Sprintf("subscriber %s unsubscribed from Omnisend", email)}
}

func (o *Omnisend) UpdateSubscriber(ctx context.Context, contact Contact, listID string) SubscriberResponse {
	contact = normalizeContact(contact)

	u := o.baseURL() + "/contacts?email=" + url.QueryEscape(contact.Email)
	_, err := doJSON(ctx, o.client, "omnisend", http.MethodPatch, u, o.headers(), o.contactBody(contact, "subscribed"), nil)
	if err != nil {
		if statusOf(err) == http.StatusNotFound {
			return o.AddSubscriber(ctx, contact, "")
		}
		return failure("update subscriber", err)
	}
	return SubscriberResponse{Success: true, Message: fmt.Sprintf("subscriber %s updated in Omnisend", contact.Email)}
}

// GetLists returns Omnisend segments. Segments are computed from
// rules, so they are the closest read-only analogue of lists.
func (o *Omnisend) GetLists(ctx context.Context) ([]List, error) {
	var resp struct {
		Segments []struct {
			SegmentID    string `json:"segmentID"`
			Name         string `json:"name"`
			ContactCount int    `json:"contactCount"`
		} `json:"segments"`
	}
	_, err := doJSON(ctx, o.client, "omnisend", http.MethodGet, o.baseURL()+"/segments", o.headers(), nil, &resp)
	if err != nil {
		return nil, err
	}

	lists := make([]List, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		lists = append(lists, List{ID: s.SegmentID, Name: s.Name, Count: s.ContactCount})
	}
	return lists, nil
}

func (o *Omnisend) GetList(ctx context.Context, id string) (*List, error) {
	var resp struct {
		SegmentID    string `json:"segmentID"`
		Name         string `json:"name"`
		ContactCount int    `json:"contactCount"`
	}
	_, err := doJSON(ctx, o.client, "omnisend", http.MethodGet, o.baseURL()+"/segments/"+url.PathEscape(id), o.headers(), nil, &resp)
	if err != nil {
		return nil, err
	}
	return &List{ID: resp.SegmentID, Name: resp.Name, Count: resp.ContactCount}, nil
}

// CreateList is not supported: segments are rule-based and defined in
// the Omnisend dashboard.
func (o *Omnisend) CreateList(ctx context.Context, name string) (*List, error) {
	return nil, fmt.Errorf("omnisend: creating segments is not supported, define one in the Omnisend dashboard")
}

// SendEmail is not supported: Omnisend sends through its own campaign
// and automation builder only.
func (o *Omnisend) SendEmail(ctx context.Context, msg Message) EmailResponse {
	return sendNotSupported("omnisend")
}
