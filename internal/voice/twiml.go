package voice

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hivedesk/engage-platform/pkg/logging"
)

var twimlTracer = otel.Tracer("engage/twiml")

const twimlHeader = `<?xml version="1.0" encoding="UTF-8"?>`

// Default spoken lines for each handoff outcome. Static template text is
// never escaped; only tenant- or caller-supplied strings are.
const (
	defaultTransferFallback = "I'm sorry, we couldn't connect your call right now. Please try again later. Goodbye."
	defaultVoicemailPrompt  = "No one is available to take your call right now. Please leave a message after the tone, and press the pound key when you're finished."
	defaultVoicemailClosing = "Thank you. We'll get back to you as soon as we can. Goodbye."
	defaultCallbackMessage  = "Thanks for calling. A member of our team will call you back as soon as someone is available. Goodbye."

	// DefaultRecordingMaxSeconds bounds voicemail recordings.
	DefaultRecordingMaxSeconds = 300
)

// xmlEscaper escapes the five XML control characters in user-supplied text
// so the generated document stays well-formed.
var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// EscapeXML escapes user-supplied text for embedding in a call-control
// document.
func EscapeXML(s string) string {
	return xmlEscaper.Replace(s)
}

// TransferTwiML renders the live-transfer document: announcement, dial, and
// a spoken fallback plus hangup should the dial fail to connect. The
// provider's runtime decides failure, not this generator.
func TransferTwiML(number, announcement string) string {
	if announcement == "" {
		announcement = DefaultTransferGreeting
	}
	var b strings.Builder
	b.WriteString(twimlHeader)
	b.WriteString("<Response>")
	fmt.Fprintf(&b, "<Say>%s</Say>", EscapeXML(announcement))
	fmt.Fprintf(&b, "<Dial>%s</Dial>", EscapeXML(number))
	fmt.Fprintf(&b, "<Say>%s</Say>", defaultTransferFallback)
	b.WriteString("<Hangup/>")
	b.WriteString("</Response>")
	return b.String()
}

// TakeMessageTwiML renders the voicemail document: prompt, bounded recording
// terminated by the pound key, closing remark, hangup. A non-positive
// maxLengthSeconds uses DefaultRecordingMaxSeconds.
func TakeMessageTwiML(message string, maxLengthSeconds int) string {
	if message == "" {
		message = defaultVoicemailPrompt
	}
	if maxLengthSeconds <= 0 {
		maxLengthSeconds = DefaultRecordingMaxSeconds
	}
	var b strings.Builder
	b.WriteString(twimlHeader)
	b.WriteString("<Response>")
	fmt.Fprintf(&b, "<Say>%s</Say>", EscapeXML(message))
	fmt.Fprintf(&b, `<Record maxLength="%d" finishOnKey="#"/>`, maxLengthSeconds)
	fmt.Fprintf(&b, "<Say>%s</Say>", defaultVoicemailClosing)
	b.WriteString("<Hangup/>")
	b.WriteString("</Response>")
	return b.String()
}

// ScheduleCallbackTwiML renders the callback document: spoken confirmation
// and hangup. Callback scheduling itself happens out of band.
func ScheduleCallbackTwiML(message string) string {
	if message == "" {
		message = defaultCallbackMessage
	}
	var b strings.Builder
	b.WriteString(twimlHeader)
	b.WriteString("<Response>")
	fmt.Fprintf(&b, "<Say>%s</Say>", EscapeXML(message))
	b.WriteString("<Hangup/>")
	b.WriteString("</Response>")
	return b.String()
}

// Executor turns a handoff decision into a call-control document, recording
// the outcome first. Recording failures are logged and never block the
// response: the caller must always hear something.
type Executor struct {
	recorder *Recorder
	logger   *logging.Logger
}

// NewExecutor creates a handoff executor.
func NewExecutor(recorder *Recorder, logger *logging.Logger) *Executor {
	if recorder == nil {
		panic("voice: recorder required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Executor{recorder: recorder, logger: logger}
}

// Execute records the handoff and dispatches to the generator matching the
// decision's mode. Unset or unrecognized modes, and voicemail, fall back to
// take_message.
func (e *Executor) Execute(ctx context.Context, callSID string, decision HandoffDecision, tenantID string) string {
	ctx, span := twimlTracer.Start(ctx, "twiml.execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("engage.call_sid", callSID),
		attribute.String("engage.handoff_mode", string(decision.HandoffMode)),
	)

	if err := e.recorder.Record(ctx, callSID, decision.TransferNumber, decision.Reason); err != nil {
		e.logger.Error("handoff recording failed, continuing with call control",
			"error", err,
			"call_sid", callSID,
			"tenant_id", tenantID,
		)
	}

	switch decision.HandoffMode {
	case HandoffModeLiveTransfer:
		if decision.TransferNumber == "" {
			e.logger.Warn("live transfer without a number, falling back to take_message",
				"call_sid", callSID,
				"tenant_id", tenantID,
			)
			return TakeMessageTwiML("", DefaultRecordingMaxSeconds)
		}
		return TransferTwiML(decision.TransferNumber, "")
	case HandoffModeScheduleCallback:
		return ScheduleCallbackTwiML("")
	default:
		// take_message, voicemail, unset, and anything unrecognized.
		return TakeMessageTwiML("", DefaultRecordingMaxSeconds)
	}
}
