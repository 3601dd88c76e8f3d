// Package mail renders transactional auth emails and hands them to the job
// queue for delivery.
package mail

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"text/template"

	"github.com/hibiken/asynq"
	"github.com/samber/oops"

	"github.com/pawhub/pawhub/jobs"
)

// Enqueuer accepts send-email tasks. *jobs.Client satisfies it.
type Enqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload jobs.SendEmailPayload) (*asynq.TaskInfo, error)
}

const (
	templateVerification  = "verification"
	templatePasswordReset = "password_reset"
)

var templates = template.Must(template.New("mail").Parse(`
{{define "verification"}}Hi {{.Name}},

Welcome to PawHub. Confirm your email address by opening the link below:

{{.Link}}

The link expires in {{.ValidFor}}. If you did not create an account you can ignore this message.
{{end}}
{{define "password_reset"}}Hello,

We received a request to reset the password of your PawHub account. Choose a new password here:

{{.Link}}

The link expires in {{.ValidFor}}. If you did not ask for a reset, no action is needed and your password stays the same.
{{end}}`))

type templateData struct {
	Name     string
	Link     string
	ValidFor string
}

// Config controls link building and the validity hints shown to recipients.
type Config struct {
	PublicURL         string
	VerificationValid string
	ResetValid        string
}

// QueueMailer renders verification and reset emails and enqueues them.
type QueueMailer struct {
	queue  Enqueuer
	base   *url.URL
	verify string
	reset  string
}

// NewQueueMailer validates the public URL and returns a mailer.
func NewQueueMailer(queue Enqueuer, cfg Config) (*QueueMailer, error) {
	if queue == nil {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("mail: queue is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.PublicURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("public_url", cfg.PublicURL).Errorf("mail: public url must be absolute")
	}
	if cfg.VerificationValid == "" {
		cfg.VerificationValid = "24 hours"
	}
	if cfg.ResetValid == "" {
		cfg.ResetValid = "1 hour"
	}
	return &QueueMailer{queue: queue, base: base, verify: cfg.VerificationValid, reset: cfg.ResetValid}, nil
}

// SendVerificationEmail enqueues the email carrying the raw verification token.
func (m *QueueMailer) SendVerificationEmail(ctx context.Context, email, rawToken, displayName string) error {
	if displayName == "" {
		displayName = "there"
	}
	return m.send(ctx, email, "Confirm your PawHub email address", templateVerification, templateData{
		Name:     displayName,
		Link:     m.link("/auth/verify-email", rawToken),
		ValidFor: m.verify,
	})
}

// SendPasswordResetEmail enqueues the email carrying the raw reset token.
func (m *QueueMailer) SendPasswordResetEmail(ctx context.Context, email, rawToken string) error {
	return m.send(ctx, email, "Reset your PawHub password", templatePasswordReset, templateData{
		Link:     m.link("/reset-password", rawToken),
		ValidFor: m.reset,
	})
}

func (m *QueueMailer) link(path, token string) string {
	u := *m.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String()
}

func (m *QueueMailer) send(ctx context.Context, to, subject, name string, data templateData) error {
	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, name, data); err != nil {
		return oops.Code("MAIL_RENDER_FAILED").With("template", name).Wrap(err)
	}
	_, err := m.queue.EnqueueSendEmail(ctx, jobs.SendEmailPayload{
		To:       to,
		Subject:  subject,
		Body:     strings.TrimSpace(body.String()) + "\n",
		Template: name,
	})
	if err != nil {
		return oops.Code("MAIL_ENQUEUE_FAILED").With("template", name).Wrap(err)
	}
	return nil
}
