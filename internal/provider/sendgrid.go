package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const sendgridBaseURL = "https://api.sendgrid.com"

// SendGrid implements Provider for the SendGrid v3 API.
type SendGrid struct {
	cfg    Config
	client *http.Client
}

func NewSendGrid() *SendGrid {
	return &SendGrid{client: newHTTPClient()}
}

func (s *SendGrid) Name() string { return "sendgrid" }

func (s *SendGrid) Configure(cfg Config) { s.cfg = cfg }

func (s *SendGrid) baseURL() string {
	if s.cfg.BaseURL != "" {
		return s.cfg.BaseURL
	}
	return sendgridBaseURL
}

func (s *SendGrid) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + s.cfg.APIKey}
}

func (s *SendGrid) TestConnection(ctx context.Context) TestResult {
	if s.cfg.APIKey == "" {
		return TestResult{Success: false, Message: "SendGrid API key is not configured"}
	}
	if !strings.HasPrefix(s.cfg.APIKey, "SG.") {
		return TestResult{Success: false, Message: "SendGrid API keys start with SG."}
	}

	var resp struct {
		Result []any `json:"result"`
	}
	_, err := doJSON(ctx, s.client, "sendgrid", http.MethodGet, s.baseURL()+"/v3/marketing/lists?page_size=1", s.headers(), nil, &resp)
	if err != nil {
		return TestResult{Success: false, Message: "SendGrid connection failed", Error: err.Error()}
	}
	return TestResult{Success: true, Message: "SendGrid connection OK"}
}

// AddSubscriber upserts a contact. SendGrid's PUT /marketing/contacts is
// an upsert by design, so the idempotence requirement is native here.
func (s *SendGrid) AddSubscriber(ctx context.Context, contact Contact, listID string) SubscriberResponse {
	contact = normalizeContact(contact)
	if listID == "" {
		listID = s.cfg.ListID
	}

	body := map[string]any{
		"contacts": []map[string]any{{
			"email":      contact.Email,
			"first_name": contact.FirstName,
			"last_name":  contact.LastName,
		}},
	}
	if listID != "" {
		body["list_ids"] = []string{listID}
	}

	var resp struct {
		JobID string `json:"job_id"`
	}
	_, err := doJSON(ctx, s.client, "sendgrid", http.MethodPut, s.baseURL()+"/v3/marketing/contacts", s.headers(), body, &resp)
	if err != nil {
		return failure("add subscriber", err)
	}

	return SubscriberResponse{
		Success:      true,
		Message:      fmt.Sprintf("subscriber %s added to SendGrid", contact.Email),
		SubscriberID: resp.JobID,
	}
}

// RemoveSubscriber deletes a contact. A contact SendGrid does not know
// is a success.
func (s *SendGrid) RemoveSubscriber(ctx context.Context, email, listID string) SubscriberResponse {
	// SendGrid deletes by contact ID, so resolve the email first.
	var search struct {
		Result map[string]struct {
			Contact struct {
				ID string `json:"id"`
			} `json:"contact"`
		} `json:"result"`
	}
	body := map[string]any{"emails": []string{email}}
	_, err := doJSON(ctx, s.client, "sendgrid", http.MethodPost, s.baseURL()+"/v3/marketing/contacts/search/emails", s.headers(), body, &search)
	if err != nil {
		if statusOf(err) == http.StatusNotFound {
			return SubscriberResponse{Success: true, Message: fmt.Sprintf("subscriber %s not found in SendGrid", email)}
		}
		return failure("remove subscriber", err)
	}

	entry, ok := search.Result[email]
	if !ok || entry.Contact.ID == "" {
		return SubscriberResponse{Success: true, Message: fmt.Sprintf("subscriber %s not found in SendGrid", email)}
	}

	_, err = doJSON(ctx, s.client, "sendgrid", http.MethodDelete, s.baseURL()+"/v3/marketing/contacts?ids="+entry.Contact.ID, s.headers(), nil, nil)
	if err != nil && statusOf(err) != http.StatusNotFound {
		return failure("remove subscriber", err)
	}

	return SubscriberResponse{Success: true, Message: fmt.Sprintf("subscriber %s removed from SendGrid", email)}
}

// UpdateSubscriber is the same upsert as AddSubscriber.
func (s *SendGrid) UpdateSubscriber(ctx context.Context, contact Contact, listID string) SubscriberResponse {
	return s.AddSubscriber(ctx, contact, listID)
}

func (s *SendGrid) GetLists(ctx context.Context) ([]List, error) {
	var resp struct {
		Result []struct {
			ID           string `json:"id"`
			Name         string `json:"name"`
			ContactCount int    `json:"contact_count"`
		} `json:"result"`
	}
	_, err := doJSON(ctx, s.client, "sendgrid", http.MethodGet, s.baseURL()+"/v3/marketing/lists?page_size=100", s.headers(), nil, &resp)
	if err != nil {
		return nil, err
	}

	lists := make([]List, 0, len(resp.Result))
	for _, l := range resp.Result {
		lists = append(lists, List{ID: l.ID, Name: l.Name, Count: l.ContactCount})
	}
	return lists, nil
}

func (s *SendGrid) GetList(ctx context.Context, id string) (*List, error) {
	var resp struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		ContactCount int    `json:"contact_count"`
	}
	_, err := doJSON(ctx, s.client, "sendgrid", http.MethodGet, s.baseURL()+"/v3/marketing/lists/"+id, s.headers(), nil, &resp)
	if err != nil {
		return nil, err
	}
	return &List{ID: resp.ID, Name: resp.Name, Count: resp.ContactCount}, nil
}

func (s *SendGrid) CreateList(ctx context.Context, name string) (*List, error) {
	var resp struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	_, err := doJSON(ctx, s.client, "sendgrid", http.MethodPost, s.baseURL()+"/v3/marketing/lists", s.headers(), map[string]string{"name": name}, &resp)
	if err != nil {
		return nil, err
	}
	return &List{ID: resp.ID, Name: resp.Name}, nil
}

func (s *SendGrid) SendEmail(ctx context.Context, msg Message) EmailResponse {
	from := msg.FromEmail
	if from == "" {
		from = s.cfg.FromEmail
	}
	fromName := msg.FromName
	if fromName == "" {
		fromName = s.cfg.FromName
	}
	if from == "" {
		return sendFailure(fmt.Errorf("sendgrid: sender address is not configured"))
	}

	content := []map[string]string{}
	if msg.Text != "" {
		content = append(content, map[string]string{"type": "text/plain", "value": msg.Text})
	}
	if msg.HTML != "" {
		content = append(content, map[string]string{"type": "text/html", "value": msg.HTML})
	}

	body := map[string]any{
		"personalizations": []map[string]any{{
			"to": []map[string]string{{"email": msg.To, "name": msg.ToName}},
		}},
		"from":    map[string]string{"email": from, "name": fromName},
		"subject": msg.Subject,
		"content": content,
	}
	if msg.ReplyTo != "" {
		body["reply_to"] = map[string]string{"email": msg.ReplyTo}
	} else if s.cfg.ReplyTo != "" {
		body["reply_to"] = map[string]string{"email": s.cfg.ReplyTo}
	}

	headers, err := doJSON(ctx, s.client, "sendgrid", http.MethodPost, s.baseURL()+"/v3/mail/send", s.headers(), body, nil)
	if err != nil {
		return sendFailure(err)
	}

	return EmailResponse{
		Success: true,
		Message: fmt.Sprintf("email to %s accepted by SendGrid", msg.To),
		EmailID: headers.Get("X-Message-Id"),
	}
}
