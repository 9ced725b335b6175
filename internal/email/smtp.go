package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"roamly/internal/config"
	"roamly/internal/model"
)

// SMTPMailer sends notifications over plain SMTP.
type SMTPMailer struct {
	cfg config.EmailConfig
}

// NewSMTPMailer creates a mailer from SMTP config.
func NewSMTPMailer(cfg config.EmailConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// SendWelcome greets a new account.
func (m *SMTPMailer) SendWelcome(ctx context.Context, user *model.User, contextURL string) error {
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>Welcome to Roamly! Visit <a href=%q>your profile</a> to get started.</p>",
		user.Name, contextURL,
	)
	return m.send(ctx, user.Email, "Welcome to Roamly", body)
}

// SendPasswordReset delivers the recovery link. The secret inside the link
// is valid for ten minutes.
func (m *SMTPMailer) SendPasswordReset(ctx context.Context, user *model.User, recoveryURL string) error {
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>Forgot your password? <a href=%q>Reset it here</a>. The link expires in 10 minutes.</p>"+
			"<p>If you didn't request this, just ignore this email.</p>",
		user.Name, recoveryURL,
	)
	return m.send(ctx, user.Email, "Your password reset token (valid for 10 minutes)", body)
}

func (m *SMTPMailer) send(_ context.Context, to, subject, html string) error {
	if !m.cfg.Enabled() {
		return fmt.Errorf("email is not configured")
	}

	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", m.cfg.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	msg.WriteString(html)

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	if m.cfg.Secure {
		return m.sendTLS(addr, to, msg.String())
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	return smtp.SendMail(addr, auth, m.cfg.From, []string{to}, []byte(msg.String()))
}

func (m *SMTPMailer) sendTLS(addr, to, msg string) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: m.cfg.Host})
	if err != nil {
		return err
	}
	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return err
	}
	defer client.Quit()

	if m.cfg.Username != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return err
		}
	}
	if err := client.Mail(m.cfg.From); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return err
	}
	return w.Close()
}
