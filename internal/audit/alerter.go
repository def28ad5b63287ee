package audit

import (
	"fmt"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/qdata-project/qdata/internal/auth/models"
)

// Alerter delivers high-severity security events out of band.
type Alerter interface {
	Alert(event models.SecurityEvent) error
}

// AlertingConfig holds the SMTP settings for email alerts.
type AlertingConfig struct {
	Enabled   bool
	SMTPHost  string
	SMTPPort  int
	FromEmail string
	FromPass  string
	ToEmails  []string
}

type EmailAlerter struct {
	client    *mail.Client
	fromEmail string
	toEmails  []string
	logger    *zap.Logger
}

func NewEmailAlerter(cfg AlertingConfig, logger *zap.Logger) (*EmailAlerter, error) {
	client, err := mail.NewClient(cfg.SMTPHost,
		mail.WithPort(cfg.SMTPPort),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.FromEmail),
		mail.WithPassword(cfg.FromPass),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail client: %w", err)
	}

	return &EmailAlerter{
		client:    client,
		fromEmail: cfg.FromEmail,
		toEmails:  cfg.ToEmails,
		logger:    logger,
	}, nil
}

func (a *EmailAlerter) Alert(event models.SecurityEvent) error {
	msg := mail.NewMsg()
	if err := msg.From(a.fromEmail); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(a.toEmails...); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}

	msg.Subject(fmt.Sprintf("qdata security alert: %s", event.Type))
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf(
		"Security event detected.\n\nType: %s\nUsername: %s\nIP: %s\nTime: %s\nDetails: %s\n",
		event.Type, event.Username, event.IP,
		event.Timestamp.Format("2006-01-02 15:04:05 MST"), event.Details,
	))

	if err := a.client.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}

	a.logger.Info("security alert email sent",
		zap.String("type", string(event.Type)),
		zap.Strings("recipients", a.toEmails),
	)
	return nil
}

// NoopAlerter implements Alerter but does nothing.
type NoopAlerter struct{}

func (n *NoopAlerter) Alert(event models.SecurityEvent) error {
	return nil
}
