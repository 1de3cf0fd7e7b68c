package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const sendpulseBaseURL = "https://api.sendpulse.com"

// SendPulse implements Provider for the SendPulse REST API. SendPulse
// authenticates with OAuth client credentials, so the APIKey field
// carries "clientID:clientSecret" and the adapter caches the bearer
// token until shortly before expiry.
type SendPulse struct {
	cfg    Config
	client *http.Client

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

func NewSendPulse() *SendPulse {
	return &SendPulse{client: newHTTPClient()}
}

func (s *SendPulse) Name() string { return "sendpulse" }

func (s *SendPulse) Configure(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.token = ""
	s.tokenExp = time.Time{}
}

func (s *SendPulse) baseURL() string {
	if s.cfg.BaseURL != "" {
		return s.cfg.BaseURL
	}
	return sendpulseBaseURL
}

func (s *SendPulse) credentials() (id, secret string, err error) {
	id, secret, ok := strings.Cut(s.cfg.APIKey, ":")
	if !ok || id == "" || secret == "" {
		return "", "", fmt.Errorf("sendpulse: API key must be in clientID:clientSecret form")
	}
	return id, secret, nil
}

func (s *SendPulse) accessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Now().Before(s.tokenExp) {
		return s.token, nil
	}

	id, secret, err := s.credentials()
	if err != nil {
		return "", err
	}

	body := map[string]any{
		"grant_type":    "client_credentials",
		"client_id":     id,
		"client_secret": secret,
	}
	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	_, err = doJSON(ctx, s.client, "sendpulse", http.MethodPost, s.baseURL()+"/oauth/access_token", nil, body, &resp)
	if err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("sendpulse: token response had no access_token")
	}

	s.token = resp.AccessToken
	// Refresh a minute early so in-flight calls never race expiry.
	s.tokenExp = time.Now().Add(time.Duration(resp.ExpiresIn)*time.Second - time.Minute)
	return s.token, nil
}

func (s *SendPulse) authedJSON(ctx context.Context, method, url string, body, result any) error {
	token, err := s.accessToken(ctx)
	if err != nil {
		return err
	}
	headers := map[string]string{"Authorization": "Bearer " + token}
	_, err = doJSON(ctx, s.client, "sendpulse", method, url, headers, body, result)
	return err
}

func (s *SendPulse) TestConnection(ctx context.Context) TestResult {
	if s.cfg.APIKey == "" {
		return TestResult{Success: false, Message: "SendPulse API key is not configured"}
	}
	if _, _, err := s.credentials(); err != nil {
		return TestResult{Success: false, Message: err.Error()}
	}

	if err := s.authedJSON(ctx, http.MethodGet, s.baseURL()+"/addressbooks?limit=1", nil, nil); err != nil {
		return TestResult{Success: false, Message: "SendPulse connection failed", Error: err.Error()}
	}
	return TestResult{Success: true, Message: "SendPulse connection OK"}
}

// AddSubscriber adds the email to an address book. SendPulse silently
// skips emails already present, so the call is a natural upsert.
func (s *SendPulse) AddSubscriber(ctx context.Context, contact Contact, listID string) SubscriberResponse {
	contact = normalizeContact(contact)
	if listID == "" {
		listID = s.cfg.ListID
	}
	if listID == "" {
		return failure("add subscriber", fmt.Errorf("sendpulse: address book ID is required"))
	}

	body := map[string]any{
		"emails": []map[string]any{{
			"email": contact.Email,
			"variables": map[string]string{
				"first_name": contact.FirstName,
				"last_name":  contact.LastName,
			},
		}},
	}
	u := s.baseURL() + "/addressbooks/" + url.PathEscape(listID) + "/emails"
	if err := s.authedJSON(ctx, http.MethodPost, u, body, nil); err != nil {
		return failure("add subscriber", err)
	}
	return SubscriberResponse{Success: true, Message: fmt.Sprintf("subscriber %s added to SendPulse", contact.Email)}
}

func (s *SendPulse) RemoveSubscriber(ctx context.Context, email, listID string) SubscriberResponse {
	if listID == "" {
		listID = s.cfg.ListID
	}
	if listID == "" {
		return failure("remove subscriber", fmt.Errorf("sendpulse: address book ID is required"))
	}

	body := map[string]any{"emails": []string{email}}
	u := s.baseURL() + "/addressbooks/" + url.PathEscape(listID) + "/emails"
	if err := s.authedJSON(ctx, http.MethodDelete, u, body, nil); err != nil {
		if statusOf(err) == http.StatusNotFound {
			return SubscriberResponse{Success: true, Message: fmt.Sprintf("subscriber %s not found in SendPulse", email)}
		}
		return failure("remove subscriber", err)
	}
	return SubscriberResponse{Success: true, Message: fmt.Sprintf("subscriber %s removed from SendPulse", email)}
}

func (s *SendPulse) UpdateSubscriber(ctx context.Context, contact Contact, listID string) SubscriberResponse {
	return s.AddSubscriber(ctx, contact, listID)
}

func (s *SendPulse) GetLists(ctx context.Context) ([]List, error) {
	var books []struct {
		ID              int64  `json:"id"`
		Name            string `json:"name"`
		AllEmailQty     int    `json:"all_email_qty"`
	}
	if err := s.authedJSON(ctx, http.MethodGet, s.baseURL()+"/addressbooks?limit=100", nil, &books); err != nil {
		return nil, err
	}

	lists := make([]List, 0, len(books))
	for _, b := range books {
		lists = append(lists, List{ID: strconv.FormatInt(b.ID, 10), Name: b.Name, Count: b.AllEmailQty})
	}
	return lists, nil
}

func (s *SendPulse) GetList(ctx context.Context, id string) (*List, error) {
	var books []struct {
		ID          int64  `json:"id"`
		Name        string `json:"name"`
		AllEmailQty int    `json:"all_email_qty"`
	}
	if err := s.authedJSON(ctx, http.MethodGet, s.baseURL()+"/addressbooks/"+url.PathEscape(id), nil, &books); err != nil {
		return nil, err
	}
	if len(books) == 0 {
		return nil, fmt.Errorf("sendpulse: address book %s not found", id)
	}
	b := books[0]
	return &List{ID: strconv.FormatInt(b.ID, 10), Name: b.Name, Count: b.AllEmailQty}, nil
}

func (s *SendPulse) CreateList(ctx context.Context, name string) (*List, error) {
	var resp struct {
		ID int64 `json:"id"`
	}
	body := map[string]any{"bookName": name}
	if err := s.authedJSON(ctx, http.MethodPost, s.baseURL()+"/addressbooks", body, &resp); err != nil {
		return nil, err
	}
	return &List{ID: strconv.FormatInt(resp.ID, 10), Name: name}, nil
}

// SendEmail uses the SMTP service endpoint. SendPulse requires the
// HTML body base64 encoded.
func (s *SendPulse) SendEmail(ctx context.Context, msg Message) EmailResponse {
	from := msg.FromEmail
	if from == "" {
		from = s.cfg.FromEmail
	}
	fromName := msg.FromName
	if fromName == "" {
		fromName = s.cfg.FromName
	}
	if from == "" {
		return sendFailure(fmt.Errorf("sendpulse: sender address is not configured"))
	}

	email := map[string]any{
		"subject": msg.Subject,
		"from":    map[string]string{"name": fromName, "email": from},
		"to":      []map[string]string{{"name": msg.ToName, "email": msg.To}},
	}
	if msg.HTML != "" {
		email["html"] = base64.StdEncoding.EncodeToString([]byte(msg.HTML))
	}
	if msg.Text != "" {
		email["text"] = msg.Text
	}

	var resp struct {
		Result bool   `json:"result"`
		ID     string `json:"id"`
	}
	if err := s.authedJSON(ctx, http.MethodPost, s.baseURL()+"/smtp/emails", map[string]any{"email": email}, &resp); err != nil {
		return sendFailure(err)
	}
	if !resp.Result {
		return sendFailure(fmt.Errorf("sendpulse: send was not accepted"))
	}

	return EmailResponse{
		Success: true,
		Message: fmt.Sprintf("email to %s accepted by SendPulse", msg.To),
		EmailID: resp.ID,
	}
}
