package bootstrap

import (
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/hivedesk/engage-platform/internal/config"
	"github.com/hivedesk/engage-platform/internal/notify"
	"github.com/hivedesk/engage-platform/pkg/logging"
)

// BuildEmailSender prefers SES when a from-address and client are configured,
// falls back to SendGrid, and finally to a logging stub so notification
// fan-out never dereferences a nil sender.
func BuildEmailSender(sesClient *sesv2.Client, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	if sesClient != nil && cfg.SESFromEmail != "" {
		if sender := notify.NewSESSender(sesClient, notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger); sender != nil {
			return sender
		}
	}
	if cfg.SendGridAPIKey != "" {
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			return sender
		}
	}
	logger.Warn("no email provider configured, using stub sender")
	return notify.NewStubEmailSender(logger)
}

// BuildSMSSender returns the Telnyx sender when configured, otherwise a
// logging stub.
func BuildSMSSender(cfg *appconfig.Config, logger *logging.Logger) notify.SMSSender {
	if cfg.TelnyxAPIKey != "" && cfg.TelnyxFromNumber != "" {
		return notify.NewTelnyxSMSSender(cfg.TelnyxAPIKey, cfg.TelnyxFromNumber, cfg.TelnyxMessagingProfileID, logger)
	}
	logger.Warn("no SMS provider configured, using stub sender")
	return notify.NewStubSMSSender(logger)
}
