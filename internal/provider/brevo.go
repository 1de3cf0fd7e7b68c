package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const brevoBaseURL = "https://api.brevo.com/v3"

// Brevo implements Provider for the Brevo (ex-Sendinblue) v3 API.
// Brevo list IDs are integers and authentication uses an api-key
// header rather than a bearer token.
type Brevo struct {
	cfg    Config
	client *http.Client
}

func NewBrevo() *Brevo {
	return &Brevo{client: newHTTPClient()}
}

func (b *Brevo) Name() string { return "brevo" }

func (b *Brevo) Configure(cfg Config) { b.cfg = cfg }

func (b *Brevo) baseURL() string {
	if b.cfg.BaseURL != "" {
		return b.cfg.BaseURL
	}
	return brevoBaseURL
}

func (b *Brevo) headers() map[string]string {
	return map[string]string{"api-key": b.cfg.APIKey}
}

func (b *Brevo) TestConnection(ctx context.Context) TestResult {
	if b.cfg.APIKey == "" {
		return TestResult{Success: false, Message: "Brevo API key is not configured"}
	}
	if !strings.HasPrefix(b.cfg.APIKey, "xkeysib-") {
		return TestResult{Success: false, Message: "Brevo API keys start with xkeysib-"}
	}

	_, err := doJSON(ctx, b.client, "brevo", http.MethodGet, b.baseURL()+"/account", b.headers(), nil, nil)
	if err != nil {
		return TestResult{Success: false, Message: "Brevo connection failed", Error: err.Error()}
	}
	return TestResult{Success: true, Message: "Brevo connection OK"}
}

// AddSubscriber creates a contact with updateEnabled, which makes the
// call an upsert: an existing contact is updated instead of rejected.
func (b *Brevo) AddSubscriber(ctx context.Context, contact Contact, listID string) SubscriberResponse {
	contact = normalizeContact(contact)
	if listID == "" {
		listID = b.cfg.ListID
	}

	body := map[string]any{
		"email": contact.Email,
		"attributes": map[string]string{
			"FIRSTNAME": contact.FirstName,
			"LASTNAME":  contact.LastName,
		},
		"updateEnabled": true,
	}
	if listID != "" {
		id, err := strconv.Atoi(listID)
		if err != nil {
			return failure("add subscriber", fmt.Errorf("brevo: list ID %q is not numeric", listID))
		}
		body["listIds"] = []int{id}
	}

	var resp struct {
		ID int64 `json:"id"`
	}
	_, err := doJSON(ctx, b.client, "brevo", http.MethodPost, b.baseURL()+"/contacts", b.headers(), body, &resp)
	if err != nil {
		return failure("add subscriber", err)
	}

	out := SubscriberResponse{
		Success: true,
		Message: fmt.Sprintf("subscriber %s added to Brevo", contact.Email),
	}
	if resp.ID != 0 {
		out.SubscriberID = strconv.FormatInt(resp.ID, 10)
	}
	return out
}

func (b *Brevo) RemoveSubscriber(ctx context.Context, email, listID string) SubscriberResponse {
	_, err := doJSON(ctx, b.client, "brevo", http.MethodDelete, b.baseURL()+"/contacts/"+url.PathEscape(email), b.headers(), nil, nil)
	if err != nil {
		if statusOf(err) == http.StatusNotFound {
			return SubscriberResponse{Success: true, Message: fmt.Sprintf("subscriber %s not found in Brevo", email)}
		}
		return failure("remove subscriber", err)
	}
	return SubscriberResponse{Success: true, Message: fmt.Sprintf("subscriber %s removed from Brevo", email)}
}

// UpdateSubscriber updates a contact in place, falling back to
// AddSubscriber when Brevo does not know the email.
func (b *Brevo) UpdateSubscriber(ctx context.Context, contact Contact, listID string) SubscriberResponse {
	contact = normalizeContact(contact)

	body := map[string]any{
		"attributes": map[string]string{
			"FIRSTNAME": contact.FirstName,
			"LASTNAME":  contact.LastName,
		},
	}

	_, err := doJSON(ctx, b.client, "brevo", http.MethodPut, b.baseURL()+"/contacts/"+url.PathEscape(contact.Email), b.headers(), body, nil)
	if err != nil {
		if statusOf(err) == http.StatusNotFound {
			return b.AddSubscriber(ctx, contact, listID)
		}
		return failure("update subscriber", err)
	}
	return SubscriberResponse{Success: true, Message: fmt.Sprintf("subscriber %s updated in Brevo", contact.Email)}
}

func (b *Brevo) GetLists(ctx context.Context) ([]List, error) {
	var resp struct {
		Lists []struct {
			ID               int64  `json:"id"`
			Name             string `json:"name"`
			TotalSubscribers int    `json:"totalSubscribers"`
		} `json:"lists"`
	}
	_, err := doJSON(ctx, b.client, "brevo", http.MethodGet, b.baseURL()+"/contacts/lists?limit=50", b.headers(), nil, &resp)
	if err != nil {
		return nil, err
	}

	lists := make([]List, 0, len(resp.Lists))
	for _, l := range resp.Lists {
		lists = append(lists, List{ID: strconv.FormatInt(l.ID, 10), Name: l.Name, Count: l.TotalSubscribers})
	}
	return lists, nil
}

func (b *Brevo) GetList(ctx context.Context, id string) (*List, error) {
	var resp struct {
		ID               int64  `json:"id"`
		Name             string `json:"name"`
		TotalSubscribers int    `json:"totalSubscribers"`
	}
	_, err := doJSON(ctx, b.client, "brevo", http.MethodGet, b.baseURL()+"/contacts/lists/"+url.PathEscape(id), b.headers(), nil, &resp)
	if err != nil {
		return nil, err
	}
	return &List{ID: strconv.FormatInt(resp.ID, 10), Name: resp.Name, Count: resp.TotalSubscribers}, nil
}

func (b *Brevo) CreateList(ctx context.Context, name string) (*List, error) {
	var resp struct {
		ID int64 `json:"id"`
	}
	body := map[string]any{"name": name, "folderId": 1}
	_, err := doJSON(ctx, b.client, "brevo", http.MethodPost, b.baseURL()+"/contacts/lists", b.headers(), body, &resp)
	if err != nil {
		return nil, err
	}
	return &List{ID: strconv.FormatInt(resp.ID, 10), Name: name}, nil
}

func (b *Brevo) SendEmail(ctx context.Context, msg Message) EmailResponse {
	from := msg.FromEmail
	if from == "" {
		from = b.cfg.FromEmail
	}
	fromName := msg.FromName
	if fromName == "" {
		fromName = b.cfg.FromName
	}
	if from == "" {
		return sendFailure(fmt.Errorf("brevo: sender address is not configured"))
	}

	body := map[string]any{
		"sender":  map[string]string{"email": from, "name": fromName},
		"to":      []map[string]string{{"email": msg.To, "name": msg.ToName}},
		"subject": msg.Subject,
	}
	if msg.HTML != "" {
		body["htmlContent"] = msg.HTML
	}
	if msg.Text != "" {
		body["textContent"] = msg.Text
	}
	if msg.ReplyTo != "" {
		body["replyTo"] = map[string]string{"email": msg.ReplyTo}
	} else if b.cfg.ReplyTo != "" {
		body["replyTo"] = map[string]string{"email": b.cfg.ReplyTo}
	}
	if msg.AttachmentURL != "" {
		body["attachment"] = []map[string]string{{"url": msg.AttachmentURL}}
	}

	var resp struct {
		MessageID string `json:"messageId"`
	}
	_, err := doJSON(ctx, b.client, "brevo", http.MethodPost, b.baseURL()+"/smtp/email", b.headers(), body, &resp)
	if err != nil {
		return sendFailure(err)
	}

	return EmailResponse{
		Success: true,
		Message: fmt.Sprintf("email to %s accepted by Brevo", msg.To),
		EmailID: resp.MessageID,
	}
}
