// Package handlers holds the HTTP glue: webhook endpoints for the telephony
// provider and the admin settings API. Handlers stay thin; decisions live in
// internal/voice.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hivedesk/engage-platform/internal/calls"
	"github.com/hivedesk/engage-platform/internal/notify"
	"github.com/hivedesk/engage-platform/internal/observability/metrics"
	"github.com/hivedesk/engage-platform/internal/tenancy"
	"github.com/hivedesk/engage-platform/internal/voice"
	"github.com/hivedesk/engage-platform/pkg/logging"
)

// VoiceWebhookHandler handles Twilio voice webhooks: call start, per-turn
// speech results, and status callbacks. Every voice endpoint answers 200 with
// a well-formed call-control document; a caller on a live line must never
// hear an HTTP error.
type VoiceWebhookHandler struct {
	tenants  tenancy.Resolver
	calls    calls.Repository
	configs  *voice.ConfigService
	detector *voice.PushbackDetector
	engine   *voice.Engine
	executor *voice.Executor
	notifier *notify.Service
	metrics  *metrics.VoiceMetrics
	logger   *logging.Logger

	authToken          string
	publicBaseURL      string
	validateSignatures bool
}

// VoiceWebhookConfig configures the VoiceWebhookHandler.
type VoiceWebhookConfig struct {
	Tenants  tenancy.Resolver
	Calls    calls.Repository
	Configs  *voice.ConfigService
	Detector *voice.PushbackDetector
	Engine   *voice.Engine
	Executor *voice.Executor
	Notifier *notify.Service
	Metrics  *metrics.VoiceMetrics
	Logger   *logging.Logger

	// TwilioAuthToken enables signature validation when non-empty.
	TwilioAuthToken string
	// PublicBaseURL is the externally visible base URL Twilio signed against.
	PublicBaseURL string
}

// NewVoiceWebhookHandler creates the webhook handler.
func NewVoiceWebhookHandler(cfg VoiceWebhookConfig) *VoiceWebhookHandler {
	if cfg.Tenants == nil {
		panic("handlers: tenant resolver required")
	}
	if cfg.Calls == nil {
		panic("handlers: call repository required")
	}
	if cfg.Configs == nil {
		panic("handlers: config service required")
	}
	if cfg.Engine == nil {
		panic("handlers: handoff engine required")
	}
	if cfg.Executor == nil {
		panic("handlers: handoff executor required")
	}
	if cfg.Detector == nil {
		cfg.Detector = voice.NewPushbackDetector(cfg.Logger)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &VoiceWebhookHandler{
		tenants:            cfg.Tenants,
		calls:              cfg.Calls,
		configs:            cfg.Configs,
		detector:           cfg.Detector,
		engine:             cfg.Engine,
		executor:           cfg.Executor,
		notifier:           cfg.Notifier,
		metrics:            cfg.Metrics,
		logger:             cfg.Logger,
		authToken:          cfg.TwilioAuthToken,
		publicBaseURL:      cfg.PublicBaseURL,
		validateSignatures: cfg.TwilioAuthToken != "",
	}
}

// HandleInbound is the HTTP handler for POST /webhooks/twilio/voice/inbound.
// Twilio calls it once when a call arrives; we create the call record and
// speak the tenant's greeting and AI disclosure, then gather the first turn.
func (h *VoiceWebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { h.metrics.ObserveWebhookLatency("voice_inbound", time.Since(start).Seconds()) }()

	if !h.checkSignature(w, r) {
		return
	}

	callSID := r.FormValue("CallSid")
	if callSID == "" {
		http.Error(w, "CallSid required", http.StatusBadRequest)
		return
	}
	from := r.FormValue("From")
	to := r.FormValue("To")

	ctx := r.Context()
	tenantID, err := h.tenants.ResolveByNumber(ctx, to)
	if err != nil {
		h.logger.Warn("voice inbound: no tenant for number", "to", to, "call_sid", callSID, "error", err)
		writeTwiML(w, voice.ScheduleCallbackTwiML("We're sorry, this number is not in service. Goodbye."))
		return
	}
	ctx = tenancy.WithTenantID(ctx, tenantID)

	if _, err := h.calls.Create(ctx, &calls.CallRecord{
		TenantID:    tenantID,
		CallSID:     callSID,
		CallerPhone: from,
		TenantPhone: to,
	}); err != nil {
		h.logger.Error("voice inbound: failed to create call record", "error", err, "call_sid", callSID, "tenant_id", tenantID)
	}

	greeting, err := h.configs.GreetingAndDisclosure(ctx, tenantID)
	if err != nil {
		h.logger.Error("voice inbound: failed to load greeting", "error", err, "tenant_id", tenantID)
		greeting = voice.GreetingConfig{
			Greeting:       voice.DefaultGreetingText,
			DisclosureLine: voice.DefaultDisclosureLine,
		}
	}

	h.logger.Info("voice call started", "call_sid", callSID, "tenant_id", tenantID, "from", maskPhone(from))
	writeTwiML(w, gatherTwiML(greeting.Greeting+" "+greeting.DisclosureLine))
}

// HandleTurn is the HTTP handler for POST /webhooks/twilio/voice/turn. Twilio
// posts the transcribed speech for each conversational turn; we update the
// call's confusion counters, run the handoff evaluation, and answer with the
// next call-control document.
func (h *VoiceWebhookHandler) HandleTurn(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { h.metrics.ObserveWebhookLatency("voice_turn", time.Since(start).Seconds()) }()

	if !h.checkSignature(w, r) {
		return
	}

	callSID := r.FormValue("CallSid")
	if callSID == "" {
		http.Error(w, "CallSid required", http.StatusBadRequest)
		return
	}
	speech := r.FormValue("SpeechResult")
	intent := r.FormValue("Intent")

	var confidence *float64
	if raw := r.FormValue("Confidence"); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil {
			confidence = &parsed
		} else {
			h.logger.Warn("voice turn: unparseable confidence", "call_sid", callSID, "confidence", raw)
		}
	}

	ctx := r.Context()
	record, tenantID := h.ensureCall(w, r, callSID)
	if record == nil && tenantID == "" {
		return
	}
	ctx = tenancy.WithTenantID(ctx, tenantID)

	rules, err := h.configs.EscalationRules(ctx, tenantID)
	if err != nil {
		h.logger.Error("voice turn: failed to load rules", "error", err, "tenant_id", tenantID)
		writeTwiML(w, gatherTwiML(""))
		return
	}

	turn := 1
	consecutiveLow := 0
	if record != nil {
		record.CurrentTurn++
		if confidence != nil {
			if *confidence < rules.LowConfidence.Threshold {
				record.ConsecutiveLowConfidence++
			} else {
				record.ConsecutiveLowConfidence = 0
			}
		}
		turn = record.CurrentTurn
		consecutiveLow = record.ConsecutiveLowConfidence
		if err := h.calls.Save(ctx, record); err != nil {
			h.logger.Error("voice turn: failed to save call record", "error", err, "call_sid", callSID)
		}
	}

	pushback := h.detector.Detect(ctx, speech)

	decision, err := h.engine.Evaluate(ctx, &voice.CallContext{
		CallSID:                  callSID,
		TenantID:                 tenantID,
		CurrentTurn:              turn,
		TranscribedText:          speech,
		Intent:                   intent,
		Confidence:               confidence,
		ConsecutiveLowConfidence: consecutiveLow,
		UserRequestedHuman:       pushback != nil && pushback.Type == voice.PushbackExplicit,
	})
	if err != nil {
		h.logger.Error("voice turn: evaluation failed", "error", err, "call_sid", callSID, "tenant_id", tenantID)
		writeTwiML(w, gatherTwiML(""))
		return
	}

	if !decision.ShouldHandoff {
		writeTwiML(w, gatherTwiML(""))
		return
	}

	doc := h.executor.Execute(ctx, callSID, decision, tenantID)
	h.notifyHandoff(ctx, record, callSID, tenantID, decision)
	writeTwiML(w, doc)
}

// HandleStatus is the HTTP handler for POST /webhooks/twilio/voice/status.
// Twilio posts lifecycle updates; terminal statuses close the call record.
func (h *VoiceWebhookHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { h.metrics.ObserveWebhookLatency("voice_status", time.Since(start).Seconds()) }()

	if !h.checkSignature(w, r) {
		return
	}

	callSID := r.FormValue("CallSid")
	if callSID == "" {
		http.Error(w, "CallSid required", http.StatusBadRequest)
		return
	}
	status := r.FormValue("CallStatus")

	ctx := r.Context()
	record, err := h.calls.FindByCallSID(ctx, callSID)
	if err != nil {
		if !errors.Is(err, calls.ErrCallNotFound) {
			h.logger.Error("voice status: lookup failed", "error", err, "call_sid", callSID)
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	switch status {
	case "completed", "busy", "no-answer", "canceled", "failed":
		now := time.Now().UTC()
		record.EndedAt = &now
		if status == "completed" {
			record.Status = calls.StatusCompleted
		} else {
			record.Status = calls.StatusFailed
		}
		if err := h.calls.Save(ctx, record); err != nil {
			h.logger.Error("voice status: failed to close call record", "error", err, "call_sid", callSID)
		} else {
			h.logger.Info("voice call ended", "call_sid", callSID, "tenant_id", record.TenantID, "status", status)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// ensureCall loads the call record, creating one from webhook fields when the
// inbound webhook was missed. A nil record with a non-empty tenant means
// evaluation proceeds statelessly.
func (h *VoiceWebhookHandler) ensureCall(w http.ResponseWriter, r *http.Request, callSID string) (*calls.CallRecord, string) {
	ctx := r.Context()
	record, err := h.calls.FindByCallSID(ctx, callSID)
	if err == nil {
		return record, record.TenantID
	}
	if !errors.Is(err, calls.ErrCallNotFound) {
		h.logger.Error("voice turn: call lookup failed", "error", err, "call_sid", callSID)
	}

	to := r.FormValue("To")
	tenantID, resolveErr := h.tenants.ResolveByNumber(ctx, to)
	if resolveErr != nil {
		h.logger.Warn("voice turn: no call record and no tenant for number", "to", to, "call_sid", callSID)
		writeTwiML(w, voice.ScheduleCallbackTwiML("We're sorry, something went wrong with your call. Goodbye."))
		return nil, ""
	}

	created, createErr := h.calls.Create(ctx, &calls.CallRecord{
		TenantID:    tenantID,
		CallSID:     callSID,
		CallerPhone: r.FormValue("From"),
		TenantPhone: to,
	})
	if createErr != nil {
		h.logger.Error("voice turn: failed to create call record", "error", createErr, "call_sid", callSID)
		return nil, tenantID
	}
	return created, tenantID
}

func (h *VoiceWebhookHandler) notifyHandoff(ctx context.Context, record *calls.CallRecord, callSID, tenantID string, decision voice.HandoffDecision) {
	if h.notifier == nil {
		return
	}
	callerPhone := ""
	if record != nil {
		callerPhone = record.CallerPhone
	}
	evt := notify.HandoffEvent{
		TenantID:    tenantID,
		CallSID:     callSID,
		CallerPhone: callerPhone,
		Reason:      decision.Reason,
		Mode:        string(decision.HandoffMode),
		OccurredAt:  time.Now(),
	}
	if err := h.notifier.NotifyHandoff(ctx, evt); err != nil {
		h.logger.Error("voice turn: handoff notification failed", "error", err, "call_sid", callSID, "tenant_id", tenantID)
	}
}

// checkSignature rejects requests that fail Twilio signature validation.
// Validation is skipped when no auth token is configured (local development).
func (h *VoiceWebhookHandler) checkSignature(w http.ResponseWriter, r *http.Request) bool {
	if !h.validateSignatures {
		return true
	}
	if !ValidateTwilioSignature(r, h.authToken, buildAbsoluteURL(r, h.publicBaseURL)) {
		h.logger.Warn("rejected webhook with invalid signature", "path", r.URL.Path, "remote_ip", r.RemoteAddr)
		http.Error(w, "invalid signature", http.StatusForbidden)
		return false
	}
	return true
}

const defaultContinuePrompt = "Okay. Is there anything else I can help you with?"

// gatherTwiML renders the document that keeps the conversation going: an
// optional prompt, then speech capture posted back to the turn endpoint.
func gatherTwiML(prompt string) string {
	if prompt == "" {
		prompt = defaultContinuePrompt
	}
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString("<Response>")
	fmt.Fprintf(&b, `<Gather input="speech" action="/webhooks/twilio/voice/turn" method="POST" speechTimeout="auto">`)
	fmt.Fprintf(&b, "<Say>%s</Say>", voice.EscapeXML(prompt))
	b.WriteString("</Gather>")
	// Caller said nothing: prompt once more before Twilio retries.
	b.WriteString("<Say>Sorry, I didn't catch that.</Say>")
	b.WriteString("<Redirect>/webhooks/twilio/voice/turn</Redirect>")
	b.WriteString("</Response>")
	return b.String()
}

func writeTwiML(w http.ResponseWriter, doc string) {
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}

// maskPhone hides the middle digits of a phone number for log output.
func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
