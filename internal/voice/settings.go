// Package voice implements per-tenant voice agent configuration and the
// call handoff engine: deciding, turn by turn, whether the AI agent should
// hand a live call to a human and how (live transfer, take a message, or a
// scheduled callback).
package voice

import (
	"fmt"
	"strings"
	"time"
)

// HandoffMode is the outcome path used when a call escalates.
type HandoffMode string

const (
	HandoffModeLiveTransfer     HandoffMode = "live_transfer"
	HandoffModeTakeMessage      HandoffMode = "take_message"
	HandoffModeScheduleCallback HandoffMode = "schedule_callback"
	// HandoffModeVoicemail is accepted for backward compatibility and treated
	// identically to take_message.
	HandoffModeVoicemail HandoffMode = "voicemail"
)

// Valid reports whether m is a recognized handoff mode.
func (m HandoffMode) Valid() bool {
	switch m {
	case HandoffModeLiveTransfer, HandoffModeTakeMessage, HandoffModeScheduleCallback, HandoffModeVoicemail:
		return true
	}
	return false
}

// RepeatedConfusionRule escalates after N consecutive low-confidence turns.
type RepeatedConfusionRule struct {
	Enabled   bool `json:"enabled"`
	Threshold int  `json:"threshold"`
}

// HighValueIntentRule escalates immediately when the detected intent is in
// the configured set.
type HighValueIntentRule struct {
	Enabled bool     `json:"enabled"`
	Intents []string `json:"intents"`
}

// LowConfidenceRule escalates on a single turn whose transcription confidence
// falls strictly below the threshold.
type LowConfidenceRule struct {
	Enabled   bool    `json:"enabled"`
	Threshold float64 `json:"threshold"`
}

// EscalationRules is the tenant-configurable rule set consulted by the
// handoff engine. Stored as JSONB on the tenant voice config row.
type EscalationRules struct {
	CallerAsksHuman   bool                  `json:"caller_asks_human"`
	RepeatedConfusion RepeatedConfusionRule `json:"repeated_confusion"`
	HighValueIntent   HighValueIntentRule   `json:"high_value_intent"`
	LowConfidence     LowConfidenceRule     `json:"low_confidence"`
}

// Validate enforces rule invariants: non-negative thresholds and a
// low-confidence threshold within [0, 1].
func (r *EscalationRules) Validate() error {
	if r.RepeatedConfusion.Threshold < 0 {
		return fmt.Errorf("%w: repeated_confusion.threshold must be non-negative", ErrInvalidEscalationRules)
	}
	if r.LowConfidence.Threshold < 0 || r.LowConfidence.Threshold > 1 {
		return fmt.Errorf("%w: low_confidence.threshold must be within [0,1]", ErrInvalidEscalationRules)
	}
	return nil
}

// NotificationRecipient is a single (type, value) notification target,
// e.g. {"email", "owner@business.com"} or {"sms", "+15551234567"}.
type NotificationRecipient struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// ValidNotificationMethods enumerates the channels a tenant may enable for
// handoff notifications.
var ValidNotificationMethods = []string{"email", "sms", "in_app"}

// System defaults for tenant-facing prompt text. Tenants can override each
// of these in their voice settings.
const (
	DefaultGreetingText     = "Thanks for calling! You've reached our virtual assistant. How can I help you today?"
	DefaultDisclosureLine   = "Just so you know, you're speaking with an AI assistant. This call may be recorded."
	DefaultAfterHoursText   = "Thanks for calling! We're currently closed, but I can take a message or help you schedule a callback."
	defaultConfusionLimit   = 3
	defaultConfidenceFloor  = 0.45
	DefaultTransferGreeting = "One moment please, I'm connecting you with a member of our team."
)

// TenantVoiceConfig holds a tenant's voice channel configuration. One row per
// tenant, created lazily on first access.
type TenantVoiceConfig struct {
	TenantID               string                  `json:"tenant_id"`
	IsEnabled              bool                    `json:"is_enabled"`
	HandoffMode            HandoffMode             `json:"handoff_mode"`
	LiveTransferNumber     string                  `json:"live_transfer_number,omitempty"`
	EscalationRules        *EscalationRules        `json:"escalation_rules,omitempty"`
	DefaultGreeting        string                  `json:"default_greeting,omitempty"`
	DisclosureLine         string                  `json:"disclosure_line,omitempty"`
	AfterHoursMessage      string                  `json:"after_hours_message,omitempty"`
	NotificationMethods    []string                `json:"notification_methods,omitempty"`
	NotificationRecipients []NotificationRecipient `json:"notification_recipients,omitempty"`
	CreatedAt              time.Time               `json:"created_at"`
	UpdatedAt              time.Time               `json:"updated_at"`
}

// DefaultEscalationRules returns the system default rule set applied when a
// tenant has not configured rules of their own.
func DefaultEscalationRules() *EscalationRules {
	return &EscalationRules{
		CallerAsksHuman: true,
		RepeatedConfusion: RepeatedConfusionRule{
			Enabled:   true,
			Threshold: defaultConfusionLimit,
		},
		HighValueIntent: HighValueIntentRule{
			Enabled: true,
			Intents: []string{"book_appointment", "pricing", "cancel_service"},
		},
		LowConfidence: LowConfidenceRule{
			Enabled:   true,
			Threshold: defaultConfidenceFloor,
		},
	}
}

// DefaultConfig returns the config created on a tenant's first access.
// The voice channel starts disabled until the tenant opts in.
func DefaultConfig(tenantID string) *TenantVoiceConfig {
	return &TenantVoiceConfig{
		TenantID:            tenantID,
		IsEnabled:           false,
		HandoffMode:         HandoffModeTakeMessage,
		EscalationRules:     DefaultEscalationRules(),
		NotificationMethods: []string{"email"},
	}
}

// EffectiveRules returns the stored rule set, or the system defaults when the
// tenant has never configured rules. A stored rule set is taken verbatim: a
// zero threshold means escalate immediately, not "unset".
func (c *TenantVoiceConfig) EffectiveRules() EscalationRules {
	if c == nil || c.EscalationRules == nil {
		return *DefaultEscalationRules()
	}
	return *c.EscalationRules
}

// ConfigUpdate carries a partial settings update. Nil fields leave the stored
// value unchanged; this is deliberately different from "set to empty".
type ConfigUpdate struct {
	IsEnabled              *bool                    `json:"is_enabled,omitempty"`
	HandoffMode            *HandoffMode             `json:"handoff_mode,omitempty"`
	LiveTransferNumber     *string                  `json:"live_transfer_number,omitempty"`
	EscalationRules        *EscalationRules         `json:"escalation_rules,omitempty"`
	DefaultGreeting        *string                  `json:"default_greeting,omitempty"`
	DisclosureLine         *string                  `json:"disclosure_line,omitempty"`
	AfterHoursMessage      *string                  `json:"after_hours_message,omitempty"`
	NotificationMethods    *[]string                `json:"notification_methods,omitempty"`
	NotificationRecipients *[]NotificationRecipient `json:"notification_recipients,omitempty"`
}

// apply merges the update onto cfg in place. Only non-nil fields are applied.
func (u *ConfigUpdate) apply(cfg *TenantVoiceConfig) {
	if u.IsEnabled != nil {
		cfg.IsEnabled = *u.IsEnabled
	}
	if u.HandoffMode != nil {
		cfg.HandoffMode = *u.HandoffMode
	}
	if u.LiveTransferNumber != nil {
		cfg.LiveTransferNumber = strings.TrimSpace(*u.LiveTransferNumber)
	}
	if u.EscalationRules != nil {
		rules := *u.EscalationRules
		cfg.EscalationRules = &rules
	}
	if u.DefaultGreeting != nil {
		cfg.DefaultGreeting = *u.DefaultGreeting
	}
	if u.DisclosureLine != nil {
		cfg.DisclosureLine = *u.DisclosureLine
	}
	if u.AfterHoursMessage != nil {
		cfg.AfterHoursMessage = *u.AfterHoursMessage
	}
	if u.NotificationMethods != nil {
		cfg.NotificationMethods = append([]string(nil), (*u.NotificationMethods)...)
	}
	if u.NotificationRecipients != nil {
		cfg.NotificationRecipients = append([]NotificationRecipient(nil), (*u.NotificationRecipients)...)
	}
}

// validateMerged checks the post-update config as a whole. Live transfer
// requires a number; notification methods must come from the valid set.
func validateMerged(cfg *TenantVoiceConfig) error {
	if cfg.HandoffMode != "" && !cfg.HandoffMode.Valid() {
		return fmt.Errorf("%w: unknown handoff_mode %q", ErrInvalidHandoffMode, cfg.HandoffMode)
	}
	if cfg.HandoffMode == HandoffModeLiveTransfer && strings.TrimSpace(cfg.LiveTransferNumber) == "" {
		return ErrTransferNumberRequired
	}
	if cfg.EscalationRules != nil {
		if err := cfg.EscalationRules.Validate(); err != nil {
			return err
		}
	}
	for _, method := range cfg.NotificationMethods {
		if !isValidNotificationMethod(method) {
			return fmt.Errorf("%w: %q (valid methods: %s)",
				ErrUnknownNotificationMethod, method, strings.Join(ValidNotificationMethods, ", "))
		}
	}
	return nil
}

func isValidNotificationMethod(method string) bool {
	for _, m := range ValidNotificationMethods {
		if m == method {
			return true
		}
	}
	return false
}
