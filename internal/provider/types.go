package provider

// Config holds per-vendor settings pushed in by the registry.
type Config struct {
	// APIKey is the vendor credential. SendPulse expects "id:secret".
	APIKey string

	// FromEmail/FromName/ReplyTo form the default sender identity.
	FromEmail string
	FromName  string
	ReplyTo   string

	// ListID is the default list/group/audience/address-book ID.
	ListID string

	// BaseURL overrides the vendor API endpoint. Used by tests and
	// self-hosted gateways; empty means the vendor default.
	BaseURL string

	// Custom configures the generic adapter; ignored by the others.
	Custom *CustomSettings
}

// CustomSettings describes a vendor without a dedicated adapter. The
// operator supplies the endpoint shapes; the adapter only builds auth
// headers and generic JSON bodies.
type CustomSettings struct {
	// AuthMethod is one of "bearer", "basic", "header", "query".
	AuthMethod string

	// AuthName is the header name (method "header", default X-API-Key)
	// or query parameter name (method "query", default api_key).
	AuthName string

	// Relative endpoint paths. Empty paths disable the operation.
	SubscribePath   string
	UnsubscribePath string
	ListsPath       string
	SendPath        string
}

// Contact is the provider-agnostic subscriber identity handed to
// adapters. When FirstName/LastName are empty and Name is set, adapters
// split Name the same way (see SplitName).
type Contact struct {
	Email     string
	Name      string
	FirstName string
	LastName  string
	Source    string
}

// SubscriberResponse is the structured outcome of a subscriber operation.
type SubscriberResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	Error        string `json:"error,omitempty"`
	SubscriberID string `json:"subscriber_id,omitempty"`
}

// EmailResponse is the structured outcome of a send operation.
type EmailResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	EmailID string `json:"email_id,omitempty"`
}

// TestResult is the outcome of a connection test.
type TestResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// List is a vendor list/group/audience normalized to a common shape.
type List struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Message is one transactional email to deliver.
type Message struct {
	To        string
	ToName    string
	Subject   string
	HTML      string
	Text      string
	FromEmail string
	FromName  string
	ReplyTo   string

	// AttachmentURL points at a hosted file to attach. Only vendors
	// that fetch attachments by URL use it; the rest ignore it.
	AttachmentURL string
}
