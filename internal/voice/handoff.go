package voice

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hivedesk/engage-platform/internal/observability/metrics"
	"github.com/hivedesk/engage-platform/pkg/logging"
)

var handoffTracer = otel.Tracer("engage/handoff-engine")

// Escalation reason tags. A decision carries exactly one.
const (
	ReasonCallerRequestedHuman = "caller_requested_human"
	ReasonRepeatedConfusion    = "repeated_confusion"
	ReasonHighValueIntent      = "high_value_intent"
	ReasonLowConfidence        = "low_confidence"
)

// CallContext is the per-turn evaluation input. It is ephemeral; the caller
// (the webhook layer) maintains the consecutive low-confidence counter across
// turns.
type CallContext struct {
	CallSID                  string
	TenantID                 string
	ConversationID           string
	CurrentTurn              int
	TranscribedText          string
	Intent                   string
	Confidence               *float64
	ConsecutiveLowConfidence int
	// UserRequestedHuman is informational; the transcript phrase match is
	// what actually fires the caller_asks_human rule.
	UserRequestedHuman bool
}

// HandoffDecision is the engine's output. When ShouldHandoff is true, Mode
// and TransferNumber are copied from the tenant's handoff config.
type HandoffDecision struct {
	ShouldHandoff  bool        `json:"should_handoff"`
	Reason         string      `json:"reason,omitempty"`
	HandoffMode    HandoffMode `json:"handoff_mode,omitempty"`
	TransferNumber string      `json:"transfer_number,omitempty"`
}

// humanRequestPhrases is the fixed phrase table for the caller_asks_human
// rule. Matching is case-insensitive substring search anywhere in the
// message, including inside longer words ("manager" matches "the manager of
// pricing"). That over-match is a long-standing, deliberately kept behavior;
// tightening it to word boundaries would silently change tenant-visible
// escalation rates.
var humanRequestPhrases = []string{
	"speak to a human",
	"talk to a human",
	"speak to a person",
	"talk to a person",
	"speak to someone",
	"talk to someone",
	"real person",
	"live person",
	"human being",
	"manager",
	"supervisor",
	"representative",
	"operator",
	"front desk",
	"receptionist",
	"stop talking to a robot",
	"not a robot",
}

// escalationRule is one link in the fixed-priority chain. match returns the
// reason tag when the rule fires.
type escalationRule struct {
	name  string
	match func(rules EscalationRules, callCtx *CallContext) (string, bool)
}

// escalationChain is evaluated in order with first-match-wins. The ordering
// encodes intent priority: an explicit human request outranks a
// revenue-relevant intent, which outranks confidence heuristics. A turn
// satisfying several rules reports only the highest-priority reason.
var escalationChain = []escalationRule{
	{
		name: "caller_asks_human",
		match: func(rules EscalationRules, callCtx *CallContext) (string, bool) {
			if !rules.CallerAsksHuman {
				return "", false
			}
			text := strings.ToLower(callCtx.TranscribedText)
			if text == "" {
				return "", false
			}
			for _, phrase := range humanRequestPhrases {
				if strings.Contains(text, phrase) {
					return ReasonCallerRequestedHuman, true
				}
			}
			return "", false
		},
	},
	{
		name: "repeated_confusion",
		match: func(rules EscalationRules, callCtx *CallContext) (string, bool) {
			if !rules.RepeatedConfusion.Enabled {
				return "", false
			}
			// Boundary inclusive: hitting the threshold exactly escalates.
			if callCtx.ConsecutiveLowConfidence >= rules.RepeatedConfusion.Threshold {
				return ReasonRepeatedConfusion, true
			}
			return "", false
		},
	},
	{
		name: "high_value_intent",
		match: func(rules EscalationRules, callCtx *CallContext) (string, bool) {
			if !rules.HighValueIntent.Enabled || callCtx.Intent == "" {
				return "", false
			}
			for _, intent := range rules.HighValueIntent.Intents {
				if intent == callCtx.Intent {
					return ReasonHighValueIntent + ":" + callCtx.Intent, true
				}
			}
			return "", false
		},
	},
	{
		name: "low_confidence",
		match: func(rules EscalationRules, callCtx *CallContext) (string, bool) {
			if !rules.LowConfidence.Enabled || callCtx.Confidence == nil {
				return "", false
			}
			// Strictly below: confidence exactly at the threshold passes.
			if *callCtx.Confidence < rules.LowConfidence.Threshold {
				return ReasonLowConfidence, true
			}
			return "", false
		},
	},
}

// Engine evaluates the tenant's escalation rules against a single call turn.
// It keeps no cross-turn state.
type Engine struct {
	configs *ConfigService
	metrics *metrics.VoiceMetrics
	logger  *logging.Logger
}

// NewEngine creates a handoff decision engine.
func NewEngine(configs *ConfigService, m *metrics.VoiceMetrics, logger *logging.Logger) *Engine {
	if configs == nil {
		panic("voice: config service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{configs: configs, metrics: m, logger: logger}
}

// Evaluate runs the fixed-priority rule chain for one conversational turn.
// A disabled tenant short-circuits to no-handoff regardless of transcript.
func (e *Engine) Evaluate(ctx context.Context, callCtx *CallContext) (HandoffDecision, error) {
	ctx, span := handoffTracer.Start(ctx, "handoff.evaluate")
	defer span.End()
	span.SetAttributes(
		attribute.String("engage.tenant_id", callCtx.TenantID),
		attribute.String("engage.call_sid", callCtx.CallSID),
		attribute.Int("engage.turn", callCtx.CurrentTurn),
	)

	handoffCfg, err := e.configs.HandoffConfig(ctx, callCtx.TenantID)
	if err != nil {
		return HandoffDecision{}, err
	}
	if !handoffCfg.Enabled {
		e.metrics.ObserveEvaluation("disabled")
		return HandoffDecision{ShouldHandoff: false}, nil
	}

	rules, err := e.configs.EscalationRules(ctx, callCtx.TenantID)
	if err != nil {
		return HandoffDecision{}, err
	}

	for _, rule := range escalationChain {
		reason, fired := rule.match(rules, callCtx)
		if !fired {
			continue
		}
		span.SetAttributes(attribute.String("engage.handoff_reason", reason))
		e.metrics.ObserveEvaluation("handoff")
		e.metrics.ObserveHandoff(rule.name, string(handoffCfg.Mode))
		e.logger.Info("handoff triggered",
			"tenant_id", callCtx.TenantID,
			"call_sid", callCtx.CallSID,
			"reason", reason,
			"mode", handoffCfg.Mode,
		)
		return HandoffDecision{
			ShouldHandoff:  true,
			Reason:         reason,
			HandoffMode:    handoffCfg.Mode,
			TransferNumber: handoffCfg.TransferNumber,
		}, nil
	}

	e.metrics.ObserveEvaluation("no_handoff")
	return HandoffDecision{ShouldHandoff: false}, nil
}
