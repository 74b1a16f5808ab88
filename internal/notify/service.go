package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hivedesk/engage-platform/internal/voice"
	"github.com/hivedesk/engage-platform/pkg/logging"
)

// ConfigSource supplies a tenant's notification settings. *voice.ConfigService
// satisfies it.
type ConfigSource interface {
	NotificationConfig(ctx context.Context, tenantID string) (voice.NotificationConfig, error)
}

// InAppStore persists in-app notifications for the tenant dashboard.
type InAppStore interface {
	Record(ctx context.Context, tenantID, title, body string) error
}

// HandoffEvent describes a call that was escalated to a human.
type HandoffEvent struct {
	TenantID    string
	CallSID     string
	CallerPhone string
	Reason      string
	Mode        string
	OccurredAt  time.Time
}

// Service sends handoff alerts to tenant operators. Channel failures are
// logged and aggregated; a notification failure never blocks call flow.
type Service struct {
	configs ConfigSource
	email   EmailSender
	sms     SMSSender
	inApp   InAppStore
	logger  *logging.Logger
}

// NewService creates a notification service. Email, SMS, and in-app senders
// are each optional; a nil sender disables that channel.
func NewService(configs ConfigSource, email EmailSender, sms SMSSender, inApp InAppStore, logger *logging.Logger) *Service {
	if configs == nil {
		panic("notify: config service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		configs: configs,
		email:   email,
		sms:     sms,
		inApp:   inApp,
		logger:  logger,
	}
}

// NotifyHandoff fans the event out to every recipient on every method the
// tenant has enabled.
func (s *Service) NotifyHandoff(ctx context.Context, evt HandoffEvent) error {
	cfg, err := s.configs.NotificationConfig(ctx, evt.TenantID)
	if err != nil {
		s.logger.Error("notify: failed to load notification config", "error", err, "tenant_id", evt.TenantID)
		return fmt.Errorf("notify: load notification config: %w", err)
	}

	methods := make(map[string]bool, len(cfg.Methods))
	for _, m := range cfg.Methods {
		methods[m] = true
	}

	caller := evt.CallerPhone
	if caller == "" {
		caller = "an unknown number"
	}
	when := evt.OccurredAt
	if when.IsZero() {
		when = time.Now()
	}

	subject := fmt.Sprintf("Call handed off - %s", caller)
	body := fmt.Sprintf(`A caller was just handed off from the virtual assistant.

Caller: %s
Time: %s
Reason: %s
Handling: %s
Call ID: %s

Please follow up with the caller as soon as you can.`,
		caller,
		when.Format("January 2, 2006 at 3:04 PM"),
		humanizeReason(evt.Reason),
		humanizeMode(evt.Mode),
		evt.CallSID,
	)
	smsBody := fmt.Sprintf("Call handoff: %s at %s (%s, %s). Please follow up.",
		caller, when.Format("1/2 3:04PM"), humanizeReason(evt.Reason), humanizeMode(evt.Mode))

	var errs []error

	if methods["email"] && s.email != nil {
		for _, r := range cfg.Recipients {
			if r.Type != "email" || r.Value == "" {
				continue
			}
			msg := EmailMessage{To: r.Value, Subject: subject, Body: body}
			if err := s.email.Send(ctx, msg); err != nil {
				s.logger.Error("notify: failed to send handoff email", "error", err, "to", r.Value, "call_sid", evt.CallSID)
				errs = append(errs, err)
			} else {
				s.logger.Info("notify: handoff email sent", "to", r.Value, "call_sid", evt.CallSID)
			}
		}
	}

	if methods["sms"] && s.sms != nil {
		for _, r := range cfg.Recipients {
			if r.Type != "sms" || r.Value == "" {
				continue
			}
			if err := s.sms.SendSMS(ctx, r.Value, smsBody); err != nil {
				s.logger.Error("notify: failed to send handoff SMS", "error", err, "to", maskPhone(r.Value), "call_sid", evt.CallSID)
				errs = append(errs, err)
			} else {
				s.logger.Info("notify: handoff SMS sent", "to", maskPhone(r.Value), "call_sid", evt.CallSID)
			}
		}
	}

	if methods["in_app"] && s.inApp != nil {
		if err := s.inApp.Record(ctx, evt.TenantID, subject, smsBody); err != nil {
			s.logger.Error("notify: failed to record in-app notification", "error", err, "tenant_id", evt.TenantID)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d notification(s) failed", len(errs))
	}
	return nil
}

func humanizeReason(reason string) string {
	switch {
	case reason == voice.ReasonCallerRequestedHuman:
		return "caller asked for a human"
	case reason == voice.ReasonRepeatedConfusion:
		return "repeated low-confidence turns"
	case reason == voice.ReasonLowConfidence:
		return "low transcription confidence"
	case strings.HasPrefix(reason, "high_value_intent:"):
		return "high-value request: " + strings.TrimPrefix(reason, "high_value_intent:")
	case reason == "":
		return "unspecified"
	}
	return reason
}

func humanizeMode(mode string) string {
	switch voice.HandoffMode(mode) {
	case voice.HandoffModeLiveTransfer:
		return "transferred live"
	case voice.HandoffModeTakeMessage, voice.HandoffModeVoicemail:
		return "message taken"
	case voice.HandoffModeScheduleCallback:
		return "callback scheduled"
	}
	return mode
}

// maskPhone hides the middle digits of a phone number for log output.
func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}

// LogInAppStore records in-app notifications to the structured log until the
// dashboard inbox lands.
type LogInAppStore struct {
	logger *logging.Logger
}

// NewLogInAppStore creates a log-backed in-app store.
func NewLogInAppStore(logger *logging.Logger) *LogInAppStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogInAppStore{logger: logger}
}

// Record logs the notification.
func (s *LogInAppStore) Record(ctx context.Context, tenantID, title, body string) error {
	s.logger.Info("in-app notification", "tenant_id", tenantID, "title", title, "body", body)
	return nil
}

var _ InAppStore = (*LogInAppStore)(nil)
