package delivery

import (
	"context"
	"fmt"
	"time"

	mail "gopkg.in/mail.v2"
)

// Message is one rendered email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Transport delivers a message using the given credentials.
type Transport interface {
	Send(ctx context.Context, creds Credentials, msg Message) error
}

// SMTPTransport sends over SMTP with STARTTLS when the server offers it.
type SMTPTransport struct {
	Timeout time.Duration
}

func (t SMTPTransport) Send(ctx context.Context, creds Credentials, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := mail.NewMessage()
	m.SetHeader("From", creds.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		m.AddAlternative("text/html", msg.HTML)
	}

	d := mail.NewDialer(creds.Host, creds.Port, creds.Username, creds.Password)
	if t.Timeout > 0 {
		d.Timeout = t.Timeout
	}
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp %s:%d: %w", creds.Host, creds.Port, err)
	}
	return nil
}
