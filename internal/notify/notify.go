// Package notify turns registration events into emails to the student.
package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/mail"
	"strings"

	"kompetisi/internal/queue"
)

// Message is one outgoing email.
type Message struct {
	To      mail.Address
	Subject string
	Text    string
	HTML    string
}

// Mailer sends emails.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// ForEvent builds the email for a registration event. ok is false when the
// student left no email address.
func ForEvent(msgType string, ev queue.RegistrationEvent) (Message, bool) {
	addr, err := mail.ParseAddress(strings.TrimSpace(ev.Email))
	if err != nil {
		return Message{}, false
	}
	addr.Name = ev.StudentName
	title := ev.CompetitionTitle
	if title == "" {
		title = "lomba"
	}

	var subject, body string
	switch msgType {
	case queue.TypeRegistrationSubmitted:
		subject = "Pendaftaran diterima: " + title
		body = fmt.Sprintf("Halo %s,\n\nPendaftaran Anda (NIM %s) untuk %s sudah kami terima dan sedang menunggu verifikasi panitia.",
			ev.StudentName, ev.NIM, title)
	case queue.TypeRegistrationApproved:
		subject = "Pendaftaran disetujui: " + title
		body = fmt.Sprintf("Halo %s,\n\nSelamat! Pendaftaran Anda (NIM %s) untuk %s telah disetujui.",
			ev.StudentName, ev.NIM, title)
	case queue.TypeRegistrationRejected:
		subject = "Pendaftaran ditolak: " + title
		body = fmt.Sprintf("Halo %s,\n\nMohon maaf, pendaftaran Anda (NIM %s) untuk %s ditolak.",
			ev.StudentName, ev.NIM, title)
		if ev.Reason != "" {
			body += "\nAlasan: " + ev.Reason
		}
	default:
		return Message{}, false
	}
	return Message{
		To:      *addr,
		Subject: subject,
		Text:    body,
		HTML:    "<p>" + strings.ReplaceAll(html.EscapeString(body), "\n", "<br>") + "</p>",
	}, true
}

// ErrMalformed marks a message that can never be delivered; retrying it is
// pointless.
var ErrMalformed = errors.New("malformed event")

// Notifier consumes queue messages and mails the student.
type Notifier struct {
	mailer Mailer
}

// NewNotifier creates a notifier.
func NewNotifier(m Mailer) *Notifier {
	return &Notifier{mailer: m}
}

// Handle processes one queue message. Messages without a recipient are
// skipped without error.
func (n *Notifier) Handle(ctx context.Context, msg queue.Message) error {
	ev, err := queue.DecodeEvent(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	email, ok := ForEvent(msg.Type, ev)
	if !ok {
		return nil
	}
	return n.mailer.Send(ctx, email)
}
