package notify

import (
	"context"
	"fmt"

	logger "github.com/sirupsen/logrus"
	"github.com/wneessen/go-mail"
)

type Sender interface {
	Send(ctx context.Context, to string, subject string, body string) error
}

type SMTPSender struct {
	client *mail.Client
	from   string
}

func NewSMTPSender(host string, port int, user string, password string, from string) (*SMTPSender, error) {
	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if user != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(user),
			mail.WithPassword(password),
		)
	}
	client, err := mail.NewClient(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail client %w", err)
	}
	return &SMTPSender{client: client, from: from}, nil
}

func (s *SMTPSender) Send(ctx context.Context, to string, subject string, body string) error {
	m := mail.NewMsg()
	if err := m.From(s.from); err != nil {
		return fmt.Errorf("invalid sender %w", err)
	}
	if err := m.To(to); err != nil {
		return fmt.Errorf("invalid recipient %w", err)
	}
	m.Subject(subject)
	m.SetBodyString(mail.TypeTextPlain, body)

	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("failed to send mail %w", err)
	}
	return nil
}

// LogSender only logs messages. Used when no SMTP host is configured.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, to string, subject string, body string) error {
	logger.WithFields(logger.Fields{"to": to, "subject": subject}).Info("Mail not sent, SMTP is not configured")
	return nil
}
