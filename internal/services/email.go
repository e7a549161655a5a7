package services

import (
	"crypto/tls"
	"fmt"
	"html"

	"gopkg.in/gomail.v2"

	"github.com/princeprakhar/movie-watchlist/internal/config"
	"github.com/princeprakhar/movie-watchlist/pkg/logger"
)

// Mailer sends account notifications.
type Mailer interface {
	SendWelcomeEmail(to, username string) error
}

type EmailService struct {
	config *config.Config
	send   func(*gomail.Message) error
}

func NewEmailService(cfg *config.Config) *EmailService {
	s := &EmailService{config: cfg}
	s.send = s.dialAndSend
	return s
}

func (s *EmailService) dialAndSend(m *gomail.Message) error {
	d := gomail.NewDialer(s.config.SMTPHost, s.config.SMTPPort, s.config.SMTPUsername, s.config.SMTPPassword)
	d.TLSConfig = &tls.Config{ServerName: s.config.SMTPHost}
	return d.DialAndSend(m)
}

func (s *EmailService) SendEmail(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.config.FromEmail)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	return s.send(m)
}

func (s *EmailService) SendWelcomeEmail(to, username string) error {
	subject := "Welcome to your watchlist"
	body := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2>Hi %s,</h2>
        <p>Your account is ready. Browse the streaming platforms, track titles and leave a review for anything you have watched.</p>
        <p>Each title takes one review per account, so make it count.</p>
        <p style="font-size: 12px; color: #666;">This is an automated message, please do not reply to this email.</p>
    </div>
</body>
</html>`, html.EscapeString(username))

	return s.SendEmail(to, subject, body)
}

// sendWelcomeAsync mails in the background and only logs failures.
func sendWelcomeAsync(mailer Mailer, to, username string) {
	if mailer == nil {
		return
	}
	go func() {
		if err := mailer.SendWelcomeEmail(to, username); err != nil {
			logger.WithError(err).WithField("username", username).Warn("Failed to send welcome email")
		}
	}()
}
