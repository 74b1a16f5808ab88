// Package calls persists call records keyed by the telephony provider's
// session identifier.
package calls

import "time"

// Call statuses over the call lifecycle.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// CallRecord is one inbound or outbound phone call.
type CallRecord struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	// CallSID is the provider's external session identifier.
	CallSID     string `json:"call_sid"`
	CallerPhone string `json:"caller_phone"`
	TenantPhone string `json:"tenant_phone"`
	Status      string `json:"status"`

	// Per-call conversational state maintained by the webhook layer.
	CurrentTurn              int `json:"current_turn"`
	ConsecutiveLowConfidence int `json:"consecutive_low_confidence"`

	// Handoff outcome, set by the recorder when a call escalates.
	HandoffAttempted bool   `json:"handoff_attempted"`
	HandoffNumber    string `json:"handoff_number,omitempty"`
	HandoffReason    string `json:"handoff_reason,omitempty"`

	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}
