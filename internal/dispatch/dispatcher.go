// Package dispatch connects captured subscribers, stored templates and
// the scheduled queue to the active email provider.
package dispatch

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/fernwell/nurture/internal/metrics"
	"github.com/fernwell/nurture/internal/models"
	"github.com/fernwell/nurture/internal/provider"
	"github.com/fernwell/nurture/internal/queue"
	"github.com/fernwell/nurture/internal/repository"
)

// variable pattern for template substitution: {{variable_name}}
var varPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Settings keys shared with the HTTP API and CLI.
const (
	SettingEmailService   = "email_service"
	SettingEmailFrom      = "email_from"
	SettingEmailFromName  = "email_from_name"
	SettingEmailReplyTo   = "email_reply_to"
	SettingUnsubscribeURL = "unsubscribe_base_url"
)

// Dispatcher routes sends through the active provider and advances
// sequences as queued emails complete.
type Dispatcher struct {
	logger      *slog.Logger
	registry    *provider.Registry
	subscribers *repository.SubscriberRepository
	templates   *repository.TemplateRepository
	sequences   *repository.SequenceRepository
	settings    *repository.SettingsRepository
	emailLog    *repository.EmailLogRepository
	queue       queue.Queue

	batchSize int
}

// New creates a dispatcher over the given stores and registry.
func New(db *sql.DB, q queue.Queue, reg *provider.Registry, logger *slog.Logger, batchSize int) *Dispatcher {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Dispatcher{
		logger:      logger.With("component", "dispatch"),
		registry:    reg,
		subscribers: repository.NewSubscriberRepository(db),
		templates:   repository.NewTemplateRepository(db),
		sequences:   repository.NewSequenceRepository(db),
		settings:    repository.NewSettingsRepository(db),
		emailLog:    repository.NewEmailLogRepository(db),
		queue:       q,
		batchSize:   batchSize,
	}
}

// envBindings maps environment variables to settings keys. The sync is
// one-way: a set environment variable overwrites the stored value, and
// stored values are mirrored back into the process environment so other
// code reading os.Getenv sees the same configuration.
var envBindings = []struct {
	env string
	key string
}{
	{"EMAIL_SERVICE", SettingEmailService},
	{"EMAIL_FROM", SettingEmailFrom},
	{"EMAIL_FROM_NAME", SettingEmailFromName},
	{"EMAIL_REPLY_TO", SettingEmailReplyTo},
	{"UNSUBSCRIBE_BASE_URL", SettingUnsubscribeURL},
	{"SENDGRID_API_KEY", "sendgrid_api_key"},
	{"SENDGRID_LIST_ID", "sendgrid_list_id"},
	{"MAILERLITE_API_KEY", "mailerlite_api_key"},
	{"MAILERLITE_GROUP_ID", "mailerlite_list_id"},
	{"BREVO_API_KEY", "brevo_api_key"},
	{"BREVO_LIST_ID", "brevo_list_id"},
	{"MAILCHIMP_API_KEY", "mailchimp_api_key"},
	{"MAILCHIMP_LIST_ID", "mailchimp_list_id"},
	{"CONVERTKIT_API_SECRET", "convertkit_api_key"},
	{"CONVERTKIT_FORM_ID", "convertkit_list_id"},
	{"OMNISEND_API_KEY", "omnisend_api_key"},
	{"SENDPULSE_API_KEY", "sendpulse_api_key"},
	{"SENDPULSE_LIST_ID", "sendpulse_list_id"},
	{"CUSTOM_API_KEY", "custom_api_key"},
	{"CUSTOM_BASE_URL", "custom_base_url"},
	{"CUSTOM_AUTH_METHOD", "custom_auth_method"},
	{"CUSTOM_AUTH_NAME", "custom_auth_name"},
	{"CUSTOM_SUBSCRIBE_PATH", "custom_subscribe_path"},
	{"CUSTOM_UNSUBSCRIBE_PATH", "custom_unsubscribe_path"},
	{"CUSTOM_LISTS_PATH", "custom_lists_path"},
	{"CUSTOM_SEND_PATH", "custom_send_path"},
}

// SyncEnvSettings reconciles provider settings with the environment.
// Environment variables win; stored values fill in gaps and are
// exported for the rest of the process.
func (d *Dispatcher) SyncEnvSettings() error {
	for _, b := range envBindings {
		if v := os.Getenv(b.env); v != "" {
			if err := d.settings.SetSetting(b.key, v); err != nil {
				return fmt.Errorf("sync setting %s: %w", b.key, err)
			}
			continue
		}
		v, err := d.settings.GetSetting(b.key)
		if err != nil {
			return fmt.Errorf("read setting %s: %w", b.key, err)
		}
		if v != "" {
			os.Setenv(b.env, v)
		}
	}
	return nil
}

// ConfigureProviders pushes stored credentials into every registered
// adapter and activates the configured service.
func (d *Dispatcher) ConfigureProviders() error {
	from, _ := d.settings.GetSetting(SettingEmailFrom)
	fromName, _ := d.settings.GetSetting(SettingEmailFromName)
	replyTo, _ := d.settings.GetSetting(SettingEmailReplyTo)

	for _, name := range d.registry.Names() {
		apiKey, err := d.settings.GetSetting(name + "_api_key")
		if err != nil {
			return fmt.Errorf("read %s credentials: %w", name, err)
		}
		listID, _ := d.settings.GetSetting(name + "_list_id")

		cfg := provider.Config{
			APIKey:    apiKey,
			FromEmail: from,
			FromName:  fromName,
			ReplyTo:   replyTo,
			ListID:    listID,
		}
		if name == "custom" {
			cfg.BaseURL, _ = d.settings.GetSetting("custom_base_url")
			cfg.Custom = &provider.CustomSettings{}
			cfg.Custom.AuthMethod, _ = d.settings.GetSetting("custom_auth_method")
			cfg.Custom.AuthName, _ = d.settings.GetSetting("custom_auth_name")
			cfg.Custom.SubscribePath, _ = d.settings.GetSetting("custom_subscribe_path")
			cfg.Custom.UnsubscribePath, _ = d.settings.GetSetting("custom_unsubscribe_path")
			cfg.Custom.ListsPath, _ = d.settings.GetSetting("custom_lists_path")
			cfg.Custom.SendPath, _ = d.settings.GetSetting("custom_send_path")
		}
		d.registry.SetProviderConfig(name, cfg)
	}

	service, err := d.settings.GetSetting(SettingEmailService)
	if err != nil {
		return err
	}
	if service != "" {
		if err := d.registry.SetActive(service); err != nil {
			return fmt.Errorf("activate provider: %w", err)
		}
	}
	return nil
}

// SendSubscriber captures a lead locally and pushes it to the active
// provider. The local record is written regardless of the provider
// outcome so no lead is lost to a vendor outage.
func (d *Dispatcher) SendSubscriber(ctx context.Context, email, name, source string) provider.SubscriberResponse {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return provider.SubscriberResponse{Success: false, Message: "email is required"}
	}

	first, last := provider.SplitName(name)

	sub, err := d.subscribers.GetByEmail(email)
	if err != nil {
		return provider.SubscriberResponse{Success: false, Message: "subscriber lookup failed", Error: err.Error()}
	}
	if sub == nil {
		sub = &models.Subscriber{
			Email:        email,
			FirstName:    first,
			LastName:     last,
			Source:       source,
			IsSubscribed: true,
		}
		if err := d.subscribers.Save(sub); err != nil {
			return provider.SubscriberResponse{Success: false, Message: "failed to save subscriber", Error: err.Error()}
		}
	} else {
		changed := false
		if first != "" && sub.FirstName != first {
			sub.FirstName, sub.LastName = first, last
			changed = true
		}
		if !sub.IsSubscribed {
			sub.IsSubscribed = true
			changed = true
		}
		if changed {
			if err := d.subscribers.Update(sub); err != nil {
				return provider.SubscriberResponse{Success: false, Message: "failed to update subscriber", Error: err.Error()}
			}
		}
	}

	p, err := d.registry.Active()
	if err != nil {
		return provider.SubscriberResponse{Success: false, Message: "no provider configured", Error: err.Error()}
	}

	res := p.AddSubscriber(ctx, provider.Contact{
		Email:     email,
		FirstName: sub.FirstName,
		LastName:  sub.LastName,
		Source:    source,
	}, "")
	if !res.Success {
		metrics.IncProviderErrors(p.Name(), "add_subscriber")
		d.logger.Warn("provider rejected subscriber", "provider", p.Name(), "email", email, "error", res.Error)
	} else {
		metrics.IncSubscribersCaptured(source)
		d.logger.Info("subscriber captured", "provider", p.Name(), "email", email, "source", source)
	}
	return res
}

// Unsubscribe flips the subscriber off by token. The row is kept so the
// address stays known and re-subscribing later reuses it.
func (d *Dispatcher) Unsubscribe(ctx context.Context, token string) (*models.Subscriber, error) {
	sub, err := d.subscribers.GetByUnsubscribeToken(token)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, fmt.Errorf("unknown unsubscribe token")
	}
	if !sub.IsSubscribed {
		return sub, nil
	}

	sub.IsSubscribed = false
	if err := d.subscribers.Update(sub); err != nil {
		return nil, err
	}

	// Best effort: the local flag is what stops sequence sends, the
	// vendor list is cleaned up when reachable.
	if p, err := d.registry.Active(); err == nil {
		if res := p.RemoveSubscriber(ctx, sub.Email, ""); !res.Success {
			metrics.IncProviderErrors(p.Name(), "remove_subscriber")
			d.logger.Warn("provider removal failed", "provider", p.Name(), "email", sub.Email, "error", res.Error)
		}
	}

	metrics.IncUnsubscribes()
	d.logger.Info("subscriber unsubscribed", "email", sub.Email)
	return sub, nil
}

// SendTemplateToSubscriber renders a template for the subscriber and
// sends it through the active provider, recording the outcome.
func (d *Dispatcher) SendTemplateToSubscriber(ctx context.Context, sub *models.Subscriber, tmpl *models.EmailTemplate) provider.EmailResponse {
	p, err := d.registry.Active()
	if err != nil {
		return provider.EmailResponse{Success: false, Message: "no provider configured", Error: err.Error()}
	}

	vars := d.templateVars(sub)
	msg := provider.Message{
		To:            sub.Email,
		ToName:        sub.FullName(),
		Subject:       renderTemplate(tmpl.Subject, vars),
		HTML:          renderTemplate(tmpl.HTML, vars),
		Text:          renderTemplate(tmpl.Text, vars),
		AttachmentURL: tmpl.Attachment,
	}

	res := p.SendEmail(ctx, msg)

	entry := &models.EmailLogEntry{
		SubscriberID: sub.ID,
		TemplateID:   tmpl.ID,
		Provider:     p.Name(),
		Subject:      msg.Subject,
		Status:       "sent",
	}
	if !res.Success {
		entry.Status = "failed"
		entry.Error = res.Error
	}
	if err := d.emailLog.RecordEmailSent(entry); err != nil {
		d.logger.Error("failed to record delivery", "email", sub.Email, "error", err)
	}

	if res.Success {
		metrics.IncEmailsSent(p.Name())
		now := time.Now()
		sub.LastEmailSentAt = &now
		if err := d.subscribers.Update(sub); err != nil {
			d.logger.Error("failed to update last-sent time", "email", sub.Email, "error", err)
		}
		d.logger.Info("email sent", "provider", p.Name(), "email", sub.Email, "template", tmpl.Name)
	} else {
		metrics.IncEmailsFailed(p.Name())
		d.logger.Warn("email send failed", "provider", p.Name(), "email", sub.Email, "template", tmpl.Name, "error", res.Error)
	}
	return res
}

// templateVars builds the substitution map for one subscriber.
func (d *Dispatcher) templateVars(sub *models.Subscriber) map[string]string {
	vars := map[string]string{
		"email":             sub.Email,
		"first_name":        sub.FirstName,
		"last_name":         sub.LastName,
		"name":              sub.FullName(),
		"unsubscribe_token": sub.UnsubscribeToken,
	}
	if base, _ := d.settings.GetSetting(SettingUnsubscribeURL); base != "" {
		vars["unsubscribe_url"] = base + "?token=" + sub.UnsubscribeToken
	}
	return vars
}

// renderTemplate substitutes {{variable}} patterns in template string
func renderTemplate(template string, vars map[string]string) string {
	if template == "" {
		return template
	}

	return varPattern.ReplaceAllStringFunc(template, func(match string) string {
		varName := strings.TrimSpace(match[2 : len(match)-2])
		if value, ok := vars[varName]; ok {
			return value
		}
		// Keep original if variable not found
		return match
	})
}
