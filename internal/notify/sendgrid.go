package notify

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

var (
	host     = "https://api.sendgrid.com"
	endpoint = "/v3/mail/send"
)

// Sendgrid delivers mail through the SendGrid v3 API.
type Sendgrid struct {
	key        string
	host       string
	from       *sgmail.Email
	subjPrefix string
	client     *rest.Client
}

// NewSendgrid creates a SendGrid mailer.
func NewSendgrid(key, appName, fromEmail string) *Sendgrid {
	return &Sendgrid{
		key:        key,
		host:       host,
		from:       sgmail.NewEmail(appName, fromEmail),
		subjPrefix: "[" + appName + "] ",
		client:     &rest.Client{HTTPClient: &http.Client{}},
	}
}

func (s *Sendgrid) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = s.subjPrefix + msg.Subject
	p.AddTos(sgmail.NewEmail(msg.To.Name, msg.To.Address))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(
		sgmail.NewContent("text/plain", msg.Text),
		sgmail.NewContent("text/html", msg.HTML),
	)
	return m
}

// Send implements Mailer. The request is bound to ctx, so a deadline or
// cancellation aborts an in-flight call.
func (s *Sendgrid) Send(ctx context.Context, msg Message) error {
	req := sendgrid.GetRequest(s.key, endpoint, s.host)
	req.Method = rest.Post
	req.Body = sgmail.GetRequestBody(s.prepare(msg))

	res, err := s.client.SendWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

// LogMailer prints emails instead of sending them and keeps them for tests.
type LogMailer struct {
	std  *log.Logger
	mu   sync.Mutex
	sent []Message
}

// NewLogMailer creates a console mailer. std may be nil.
func NewLogMailer(std *log.Logger) *LogMailer {
	return &LogMailer{std: std}
}

// Send implements Mailer.
func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	if m.std != nil {
		m.std.Printf("mail to=%s subject=%q\n%s", msg.To.String(), msg.Subject, msg.Text)
	}
	return nil
}

// Sent returns a copy of every message sent so far.
func (m *LogMailer) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.sent...)
}
