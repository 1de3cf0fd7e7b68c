// Package provider contains the email-marketing vendor adapters.
//
// Each vendor lives in its own file and implements the Provider
// interface:
//   - sendgrid.go:   SendGrid v3 marketing + mail send APIs
//   - mailerlite.go: MailerLite connect API (groups)
//   - brevo.go:      Brevo v3 contacts + transactional SMTP API
//   - mailchimp.go:  Mailchimp v3 (audiences, member-hash upserts)
//   - convertkit.go: ConvertKit v3 (forms, query-param auth)
//   - omnisend.go:   Omnisend v3 (contacts, segments)
//   - sendpulse.go:  SendPulse (address books, OAuth client credentials)
//   - custom.go:     configuration-driven generic REST adapter
//
// Adapters never return Go errors for vendor failures on the
// subscriber/send paths; they convert them into structured results so
// one vendor's outage cannot panic or abort a queue run. "Already
// exists" and "not found" are reclassified as success: adding a
// subscriber is an upsert, removing one is idempotent.
package provider

import "context"

// Provider is the uniform contract every vendor adapter implements.
// Implementations must be safe for concurrent use after Configure.
type Provider interface {
	// Name returns the lower-case provider identifier (e.g. "sendgrid").
	Name() string

	// Configure replaces the adapter's configuration.
	Configure(cfg Config)

	// TestConnection validates the API key shape locally and then makes
	// a cheap authenticated call to the vendor.
	TestConnection(ctx context.Context) TestResult

	// AddSubscriber upserts a contact. listID overrides the configured
	// default list/group/audience when non-empty.
	AddSubscriber(ctx context.Context, contact Contact, listID string) SubscriberResponse

	// RemoveSubscriber unsubscribes/deletes a contact. A contact the
	// vendor does not know is a success.
	RemoveSubscriber(ctx context.Context, email, listID string) SubscriberResponse

	// UpdateSubscriber updates a contact, falling back to AddSubscriber
	// when the vendor has no update verb or the contact does not exist.
	UpdateSubscriber(ctx context.Context, contact Contact, listID string) SubscriberResponse

	// GetLists returns the vendor's lists, whatever the vendor calls
	// them (groups, audiences, address books, forms).
	GetLists(ctx context.Context) ([]List, error)

	// GetList returns a single list by ID.
	GetList(ctx context.Context, id string) (*List, error)

	// CreateList creates a new list with the given name.
	CreateList(ctx context.Context, name string) (*List, error)

	// SendEmail sends one transactional email. Vendors without a
	// transactional API report ErrSendNotSupported in the result
	// instead of silently dropping the message.
	SendEmail(ctx context.Context, msg Message) EmailResponse
}
