// Package notification renders customer messages from templates and delivers
// them by email or SMS.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Channel is how a notification is delivered.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Template IDs.
const (
	TemplateBookingConfirmed    = "booking-confirmed"
	TemplateAppointmentReminder = "appointment-reminder"
	TemplateSampleDispatch      = "sample-dispatch-reminder"
)

// Notification is one outbound message.
type Notification struct {
	ID         string     `json:"id"`
	Channel    Channel    `json:"channel"`
	Recipient  string     `json:"recipient"`
	Subject    string     `json:"subject,omitempty"`
	Body       string     `json:"body"`
	TemplateID string     `json:"template_id,omitempty"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Template is a message with {{key}} placeholders.
type Template struct {
	ID      string
	Subject string
	Body    string
}

// TemplateEngine holds the message templates.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewTemplateEngine returns an engine with the booking templates registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]Template)}
	for _, t := range []Template{
		{
			ID:      TemplateBookingConfirmed,
			Subject: "Your DNA test booking {{payment_code}} is confirmed",
			Body: "Dear {{name}}, your booking for {{service}} is confirmed. Booking code: {{payment_code}}. " +
				"Total: {{total}}. Appointment: {{appointment}}.",
		},
		{
			ID:      TemplateAppointmentReminder,
			Subject: "Reminder: DNA test appointment on {{date}}",
			Body: "Dear {{name}}, this is a reminder of your {{service}} appointment on {{date}} at {{slot}}. " +
				"Please bring the national ID of every participant. Booking code: {{payment_code}}.",
		},
		{
			ID:      TemplateSampleDispatch,
			Subject: "Please send your DNA samples",
			Body: "Dear {{name}}, please post the samples for booking {{payment_code}} ({{service}}) using the " +
				"prepaid envelope in your kit.",
		},
	} {
		e.templates[t.ID] = t
	}
	return e
}

// RegisterTemplate adds or replaces a template.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = t
}

// Render fills a template's placeholders from data. Unknown placeholders are
// left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}
	subject, body = t.Subject, t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	Logger zerolog.Logger
}

func (s LogSender) SendEmail(_ context.Context, to, subject, body string) error {
	s.Logger.Info().Str("channel", "email").Str("to", to).Str("subject", subject).Msg(body)
	return nil
}

func (s LogSender) SendSMS(_ context.Context, to, body string) error {
	s.Logger.Info().Str("channel", "sms").Str("to", to).Msg(body)
	return nil
}

// Manager sends notifications and keeps a bounded history of them.
type Manager struct {
	email     EmailSender
	sms       SMSSender
	templates *TemplateEngine

	mu      sync.Mutex
	history []*Notification
	limit   int
}

func NewManager(email EmailSender, sms SMSSender, tpl *TemplateEngine) *Manager {
	return &Manager{email: email, sms: sms, templates: tpl, limit: 500}
}

// Send delivers n on its channel and records the outcome on n.
func (m *Manager) Send(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = time.Now().UTC()

	var err error
	switch {
	case n.Recipient == "":
		err = errors.New("recipient is required")
	case n.Channel == ChannelEmail:
		err = m.email.SendEmail(ctx, n.Recipient, n.Subject, n.Body)
	case n.Channel == ChannelSMS:
		err = m.sms.SendSMS(ctx, n.Recipient, n.Body)
	default:
		err = fmt.Errorf("unsupported channel: %s", n.Channel)
	}
	if err != nil {
		n.Status = "failed"
		n.Error = err.Error()
	} else {
		n.Status = "sent"
		sentAt := time.Now().UTC()
		n.SentAt = &sentAt
	}

	m.mu.Lock()
	m.history = append(m.history, n)
	if len(m.history) > m.limit {
		m.history = m.history[len(m.history)-m.limit:]
	}
	m.mu.Unlock()
	return err
}

// SendFromTemplate renders templateID and sends it to recipient.
func (m *Manager) SendFromTemplate(ctx context.Context, ch Channel, templateID, recipient string, data map[string]string) (*Notification, error) {
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	n := &Notification{Channel: ch, Recipient: recipient, Subject: subject, Body: body, TemplateID: templateID}
	return n, m.Send(ctx, n)
}

// History returns the most recent notifications, oldest first.
func (m *Manager) History() []*Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Notification, len(m.history))
	copy(out, m.history)
	return out
}
