package verification

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
)

// Mailer sends plain text emails over SMTP with implicit TLS
type Mailer struct {
	host     string
	port     int
	username string
	password string
	timeout  time.Duration
}

func NewMailer(host string, port int, username string, password string) *Mailer {
	return &Mailer{host: host, port: port, username: username, password: password, timeout: 30 * time.Second}
}

func (m *Mailer) Send(ctx context.Context, to string, subject string, body string) error {

	// Message
	msg := mail.NewMsg()
	if err := msg.From(m.username); err != nil {
		return fmt.Errorf("invalid sender %q: %w", m.username, err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	// Client
	client, err := mail.NewClient(m.host,
		mail.WithPort(m.port),
		mail.WithSSL(),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.username),
		mail.WithPassword(m.password),
		mail.WithTimeout(m.timeout),
	)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send email to %s: %w", to, err)
	}
	return nil
}
