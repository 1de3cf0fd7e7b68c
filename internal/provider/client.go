package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrSendNotSupported is reported by vendors that cannot send arbitrary
// transactional email (ConvertKit, MailerLite, Mailchimp, Omnisend).
var ErrSendNotSupported = errors.New("provider does not support transactional sending")

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
	}
}

// apiError is a vendor HTTP failure carrying the status code so callers
// can reclassify "not found"/"already exists" responses.
type apiError struct {
	Vendor  string
	Status  int
	Message string
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Vendor, e.Status)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Vendor, e.Status, e.Message)
}

// statusOf returns the HTTP status of an apiError, or 0 for transport
// errors.
func statusOf(err error) int {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.Status
	}
	return 0
}

// doJSON performs one JSON request. A non-2xx response is returned as
// *apiError with the best error message the body offers. result may be
// nil; resp headers are returned for callers that need message IDs.
func doJSON(ctx context.Context, client *http.Client, vendor, method, url string, headers map[string]string, body any, result any) (http.Header, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal request: %w", vendor, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", vendor, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", vendor, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return resp.Header, &apiError{
			Vendor:  vendor,
			Status:  resp.StatusCode,
			Message: extractAPIMessage(resp.Body),
		}
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil && err != io.EOF {
			return resp.Header, fmt.Errorf("%s: decode response: %w", vendor, err)
		}
	}

	return resp.Header, nil
}

// extractAPIMessage pulls a human-readable error out of a vendor error
// body. Vendors disagree on the field name; try the usual suspects.
func extractAPIMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}

	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return strings.TrimSpace(string(data))
	}

	for _, key := range []string{"message", "error", "detail", "title"} {
		if v, ok := body[key].(string); ok && v != "" {
			return v
		}
	}
	// SendGrid style: {"errors":[{"message":"..."}]}
	if errs, ok := body["errors"].([]any); ok && len(errs) > 0 {
		if m, ok := errs[0].(map[string]any); ok {
			if v, ok := m["message"].(string); ok {
				return v
			}
		}
	}
	return strings.TrimSpace(string(data))
}

// failure converts an adapter error into a SubscriberResponse.
func failure(action string, err error) SubscriberResponse {
	return SubscriberResponse{
		Success: false,
		Message: "failed to " + action,
		Error:   err.Error(),
	}
}

// sendFailure converts an adapter error into an EmailResponse.
func sendFailure(err error) EmailResponse {
	return EmailResponse{
		Success: false,
		Message: "failed to send email",
		Error:   err.Error(),
	}
}

// sendNotSupported is the EmailResponse for vendors without a
// transactional API.
func sendNotSupported(vendor string) EmailResponse {
	return EmailResponse{
		Success: false,
		Message: "sending not supported",
		Error:   fmt.Sprintf("%s: %s", vendor, ErrSendNotSupported),
	}
}
