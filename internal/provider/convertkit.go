package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

const convertkitBaseURL = "https://api.convertkit.com/v3"

// ConvertKit implements Provider for the ConvertKit (Kit) v3 API.
// ConvertKit has no standalone list concept, so forms stand in for
// lists, and subscribing targets a specific form.
type ConvertKit struct {
	cfg    Config
	client *http.Client
}

func NewConvertKit() *ConvertKit {
	return &ConvertKit{client: newHTTPClient()}
}

func (c *ConvertKit) Name() string { return "convertkit" }

func (c *ConvertKit) Configure(cfg Config) { c.cfg = cfg }

func (c *ConvertKit) baseURL() string {
	if c.cfg.BaseURL != "" {
		return c.cfg.BaseURL
	}
	return convertkitBaseURL
}

func (c *ConvertKit) TestConnection(ctx context.Context) TestResult {
	if c.cfg.APIKey == "" {
		return TestResult{Success: false, Message: "ConvertKit API secret is not configured"}
	}

	u := fmt.Sprintf("%s/account?api_secret=%s", c.baseURL(), url.QueryEscape(c.cfg.APIKey))
	_, err := doJSON(ctx, c.client, "convertkit", http.MethodGet, u, nil, nil, nil)
	if err != nil {
		return TestResult{Success: false, Message: "ConvertKit connection failed", Error: err.Error()}
	}
	return TestResult{Success: true, Message: "ConvertKit connection OK"}
}

// AddSubscriber subscribes the contact to a form. ConvertKit treats a
// repeat subscribe of the same email as an update, not an error.
func (c *ConvertKit) AddSubscriber(ctx context.Context, contact Contact, listID string) SubscriberResponse {
	contact = normalizeContact(contact)
	if listID == "" {
		listID = c.cfg.ListID
	}
	if listID == "" {
		return failure("add subscriber", fmt.Errorf("convertkit: form ID is required"))
	}

	body := map[string]any{
		"api_secret": c.cfg.APIKey,
		"email":      contact.Email,
		"first_name": contact.FirstName,
	}

	var resp struct {
		Subscription struct {
			Subscriber struct {
				ID int64 `json:"id"`
			} `json:"subscriber"`
		} `json:"subscription"`
	}
	u := fmt.Sprintf("%s/forms/%s/subscribe", c.baseURL(), url.PathEscape(listID))
	_, err := doJSON(ctx, c.client, "convertkit", http.MethodPost, u, nil, body, &resp)
	if err != nil {
		return failure("add subscriber", err)
	}

	out := SubscriberResponse{
		Success: true,
		Message: fmt.Sprintf("subscriber %s added to ConvertKit", contact.Email),
	}
	if id := resp.Subscription.Subscriber.ID; id != 0 {
		out.SubscriberID = strconv.FormatInt(id, 10)
	}
	return out
}

// RemoveSubscriber unsubscribes the email account-wide. ConvertKit
// does not remove from a single form, and unsubscribing an unknown
// email reports not found, which counts as already removed.
func (c *ConvertKit) RemoveSubscriber(ctx context.Context, email, listID string) SubscriberResponse {
	body := map[string]any{
		"api_secret": c.cfg.APIKey,
		"email":      email,
	}
	_, err := doJSON(ctx, c.client, "convertkit", http.MethodPut, c.baseURL()+"/unsubscribe", nil, body, nil)
	if err != nil {
		if statusOf(err) == http.StatusNotFound {
			return SubscriberResponse{Success: true, Message: fmt.Sprintf("subscriber %s not found in ConvertKit", email)}
		}
		return failure("remove subscriber", err)
	}
	return SubscriberResponse{Success: true, Message: fmt.Sprintf("subscriber %s unsubscribed from ConvertKit", email)}
}

func (c *ConvertKit) UpdateSubscriber(ctx context.Context, contact Contact, listID string) SubscriberResponse {
	return c.AddSubscriber(ctx, contact, listID)
}

func (c *ConvertKit) GetLists(ctx context.Context) ([]List, error) {
	var resp struct {
		Forms []struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		} `json:"forms"`
	}
	u := fmt.Sprintf("%s/forms?api_secret=%s", c.baseURL(), url.QueryEscape(c.cfg.APIKey))
	_, err := doJSON(ctx, c.client, "convertkit", http.MethodGet, u, nil, nil, &resp)
	if err != nil {
		return nil, err
	}

	lists := make([]List, 0, len(resp.Forms))
	for _, f := range resp.Forms {
		lists = append(lists, List{ID: strconv.FormatInt(f.ID, 10), Name: f.Name})
	}
	return lists, nil
}

func (c *ConvertKit) GetList(ctx context.Context, id string) (*List, error) {
	lists, err := c.GetLists(ctx)
	if err != nil {
		return nil, err
	}
	for i := range lists {
		if lists[i].ID == id {
			return &lists[i], nil
		}
	}
	return nil, fmt.Errorf("convertkit: form %s not found", id)
}

// CreateList is not supported: ConvertKit forms are built in its
// editor and cannot be created over the API.
func (c *ConvertKit) CreateList(ctx context.Context, name string) (*List, error) {
	return nil, fmt.Errorf("convertkit: creating forms is not supported, create one in the ConvertKit dashboard")
}

// SendEmail is not supported: ConvertKit only sends broadcasts and
// sequences it hosts itself, there is no transactional endpoint.
func (c *ConvertKit) SendEmail(ctx context.Context, msg Message) EmailResponse {
	return sendNotSupported("convertkit")
}
