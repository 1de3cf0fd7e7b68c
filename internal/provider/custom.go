package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Custom implements Provider against a self-described HTTP API. The
// endpoint paths and auth method come entirely from configuration, so
// any in-house list manager with a JSON API can be plugged in without
// a dedicated adapter.
type Custom struct {
	cfg    Config
	client *http.Client
}

func NewCustom() *Custom {
	return &Custom{client: newHTTPClient()}
}

func (c *Custom) Name() string { return "custom" }

func (c *Custom) Configure(cfg Config) { c.cfg = cfg }

func (c *Custom) settings() *CustomSettings {
	if c.cfg.Custom != nil {
		return c.cfg.Custom
	}
	return &CustomSettings{}
}

// endpoint joins the configured base URL with a relative path and, for
// query auth, appends the key.
func (c *Custom) endpoint(path string) (string, error) {
	if c.cfg.BaseURL == "" {
		return "", fmt.Errorf("custom: base URL is not configured")
	}
	if path == "" {
		return "", fmt.Errorf("custom: endpoint path is not configured")
	}
	u := strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")

	if c.settings().AuthMethod == "query" {
		name := c.settings().AuthName
		if name == "" {
			name = "api_key"
		}
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + name + "=" + url.QueryEscape(c.cfg.APIKey)
	}
	return u, nil
}

func (c *Custom) headers() map[string]string {
	s := c.settings()
	switch s.AuthMethod {
	case "basic":
		token := base64.StdEncoding.EncodeToString([]byte(c.cfg.APIKey))
		return map[string]string{"Authorization": "Basic " + token}
	case "header":
		name := s.AuthName
		if name == "" {
			name = "X-API-Key"
		}
		return map[string]string{name: c.cfg.APIKey}
	case "query":
		return nil
	default: // bearer
		return map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	}
}

// TestConnection fetches the lists endpoint, the one read-only call
// every custom backend is expected to expose.
func (c *Custom) TestConnection(ctx context.Context) TestResult {
	if c.cfg.APIKey == "" {
		return TestResult{Success: false, Message: "custom provider API key is not configured"}
	}
	u, err := c.endpoint(c.settings().ListsPath)
	if err != nil {
		return TestResult{Success: false, Message: err.Error()}
	}

	if _, err := doJSON(ctx, c.client, "custom", http.MethodGet, u, c.headers(), nil, nil); err != nil {
		return TestResult{Success: false, Message: "custom provider connection failed", Error: err.Error()}
	}
	return TestResult{Success: true, Message: "custom provider connection OK"}
}

func (c *Custom) AddSubscriber(ctx context.Context, contact Contact, listID string) SubscriberResponse {
	contact = normalizeContact(contact)
	if listID == "" {
		listID = c.cfg.ListID
	}
	u, err := c.endpoint(c.settings().SubscribePath)
	if err != nil {
		return failure("add subscriber", err)
	}

	body := map[string]any{
		"email":      contact.Email,
		"first_name": contact.FirstName,
		"last_name":  contact.LastName,
	}
	if listID != "" {
		body["list_id"] = listID
	}
	if contact.Source != "" {
		body["source"] = contact.Source
	}

	var resp struct {
		ID string `json:"id"`
	}
	_, err = doJSON(ctx, c.client, "custom", http.MethodPost, u, c.headers(), body, &resp)
	if err != nil {
		// A conflict means the backend already has this email.
		if statusOf(err) == http.StatusConflict {
			return SubscriberResponse{Success: true, Message: fmt.Sprintf("subscriber %s already present", contact.Email)}
		}
		return failure("add subscriber", err)
	}

	return SubscriberResponse{
		Success:      true,
		Message:      fmt.Sprintf("subscriber %s added", contact.Email),
		SubscriberID: resp.ID,
	}
}

func (c *Custom) RemoveSubscriber(ctx context.Context, email, listID string) SubscriberResponse {
	u, err := c.endpoint(c.settings().UnsubscribePath)
	if err != nil {
		return failure("remove subscriber", err)
	}

	body := map[string]any{"email": email}
	if listID != "" {
		body["list_id"] = listID
	}
	_, err = doJSON(ctx, c.client, "custom", http.MethodPost, u, c.headers(), body, nil)
	if err != nil {
		if statusOf(err) == http.StatusNotFound {
			return SubscriberResponse{Success: true, Message: fmt.Sprintf("subscriber %s not found", email)}
		}
		return failure("remove subscriber", err)
	}
	return SubscriberResponse{Success: true, Message: fmt.Sprintf("subscriber %s removed", email)}
}

func (c *Custom) UpdateSubscriber(ctx context.Context, contact Contact, listID string) SubscriberResponse {
	return c.AddSubscriber(ctx, contact, listID)
}

func (c *Custom) GetLists(ctx context.Context) ([]List, error) {
	u, err := c.endpoint(c.settings().ListsPath)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Lists []List `json:"lists"`
	}
	if _, err := doJSON(ctx, c.client, "custom", http.MethodGet, u, c.headers(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Lists, nil
}

func (c *Custom) GetList(ctx context.Context, id string) (*List, error) {
	lists, err := c.GetLists(ctx)
	if err != nil {
		return nil, err
	}
	for i := range lists {
		if lists[i].ID == id {
			return &lists[i], nil
		}
	}
	return nil, fmt.Errorf("custom: list %s not found", id)
}

func (c *Custom) CreateList(ctx context.Context, name string) (*List, error) {
	u, err := c.endpoint(c.settings().ListsPath)
	if err != nil {
		return nil, err
	}

	var resp List
	if _, err := doJSON(ctx, c.client, "custom", http.MethodPost, u, c.headers(), map[string]any{"name": name}, &resp); err != nil {
		return nil, err
	}
	if resp.Name == "" {
		resp.Name = name
	}
	return &resp, nil
}

// SendEmail posts to the configured send path. Backends without one
// report send as unsupported.
func (c *Custom) SendEmail(ctx context.Context, msg Message) EmailResponse {
	if c.settings().SendPath == "" {
		return sendNotSupported("custom")
	}
	u, err := c.endpoint(c.settings().SendPath)
	if err != nil {
		return sendFailure(err)
	}

	from := msg.FromEmail
	if from == "" {
		from = c.cfg.FromEmail
	}
	body := map[string]any{
		"to":         msg.To,
		"to_name":    msg.ToName,
		"subject":    msg.Subject,
		"html":       msg.HTML,
		"text":       msg.Text,
		"from_email": from,
		"from_name":  msg.FromName,
	}
	if msg.ReplyTo != "" {
		body["reply_to"] = msg.ReplyTo
	}

	var resp struct {
		ID string `json:"id"`
	}
	if _, err := doJSON(ctx, c.client, "custom", http.MethodPost, u, c.headers(), body, &resp); err != nil {
		return sendFailure(err)
	}

	return EmailResponse{
		Success: true,
		Message: fmt.Sprintf("email to %s accepted", msg.To),
		EmailID: resp.ID,
	}
}
