package outreach

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"gopkg.in/gomail.v2"
)

// SMTPConfig configures the direct-mail fallback sender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender implements MailSender over plain SMTP using gomail.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPSender creates an SMTP-backed mail sender.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

// Send delivers a single message and returns a locally generated message ID.
// gomail has no context support, so cancellation is checked before dialing
// only.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", eris.Wrap(err, "smtp: context")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	msgID := fmt.Sprintf("<%s@leadgen>", uuid.New().String())
	m.SetHeader("Message-ID", msgID)
	m.SetDateHeader("Date", time.Now())
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return "", eris.Wrapf(err, "smtp: send to %s", to)
	}
	return msgID, nil
}
