package voice

import (
	"context"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hivedesk/engage-platform/pkg/logging"
)

var pushbackTracer = otel.Tracer("engage/pushback-detector")

// PushbackType classifies the kind of frustration signal detected.
type PushbackType string

const (
	PushbackImpatience  PushbackType = "impatience"
	PushbackFrustration PushbackType = "frustration"
	PushbackRepetition  PushbackType = "repetition_complaint"
	PushbackExplicit    PushbackType = "explicit_complaint"
)

// PushbackSignal is a detected frustration/impatience indication in free text.
// It is channel-agnostic: voice transcripts, SMS, and chat all use it.
type PushbackSignal struct {
	IsPushback      bool         `json:"is_pushback"`
	Type            PushbackType `json:"pushback_type"`
	Confidence      float64      `json:"confidence"`
	TriggerPhrase   string       `json:"trigger_phrase"`
	OriginalMessage string       `json:"original_message"`
}

type pushbackPattern struct {
	regex      *regexp.Regexp
	confidence float64
	phrase     string
}

type pushbackCategory struct {
	ptype    PushbackType
	patterns []pushbackPattern
}

// pushbackCategories is scanned in declaration order; Detect returns the
// first match. Confidence values are author-assigned certainty of each
// heuristic, not computed scores.
var pushbackCategories = []pushbackCategory{
	{
		ptype: PushbackImpatience,
		patterns: []pushbackPattern{
			{regex: regexp.MustCompile(`hurry\s+(it\s+)?up`), confidence: 0.85, phrase: "hurry up"},
			{regex: regexp.MustCompile(`i (don'?t|do not) have (all day|time for this)`), confidence: 0.9, phrase: "don't have all day"},
			{regex: regexp.MustCompile(`(this is|you('re| are)) (so|too|really) slow`), confidence: 0.8, phrase: "too slow"},
			{regex: regexp.MustCompile(`\bjust (answer|tell me)\b`), confidence: 0.6, phrase: "just answer"},
			{regex: regexp.MustCompile(`\bcome\s+on\b`), confidence: 0.5, phrase: "come on"},
		},
	},
	{
		ptype: PushbackFrustration,
		patterns: []pushbackPattern{
			{regex: regexp.MustCompile(`this is (ridiculous|absurd|insane)`), confidence: 0.9, phrase: "this is ridiculous"},
			{regex: regexp.MustCompile(`i('m| am) (getting )?(frustrated|annoyed|angry|fed up)`), confidence: 0.9, phrase: "frustrated"},
			{regex: regexp.MustCompile(`you('re| are) (not|no) help(ing|ful)?`), confidence: 0.85, phrase: "not helping"},
			{regex: regexp.MustCompile(`\b(useless|pointless)\b`), confidence: 0.8, phrase: "useless"},
			{regex: regexp.MustCompile(`\bstop asking\b`), confidence: 0.75, phrase: "stop asking"},
			{regex: regexp.MustCompile(`(isn'?t|not) (working|helping)`), confidence: 0.6, phrase: "not working"},
		},
	},
	{
		ptype: PushbackRepetition,
		patterns: []pushbackPattern{
			{regex: regexp.MustCompile(`i (already|just) (told|said|answered|gave)`), confidence: 0.9, phrase: "already told you"},
			{regex: regexp.MustCompile(`you keep (asking|repeating|saying)`), confidence: 0.85, phrase: "you keep asking"},
			{regex: regexp.MustCompile(`(asked|answered|said) (that|this) (already|before)`), confidence: 0.85, phrase: "answered that already"},
			{regex: regexp.MustCompile(`same (question|thing) (again|over)`), confidence: 0.8, phrase: "same question again"},
			{regex: regexp.MustCompile(`\bover and over\b`), confidence: 0.75, phrase: "over and over"},
		},
	},
	{
		ptype: PushbackExplicit,
		patterns: []pushbackPattern{
			{regex: regexp.MustCompile(`(speak|talk) to a (human|person|real person|live person)`), confidence: 0.95, phrase: "talk to a human"},
			{regex: regexp.MustCompile(`(get|give) me a (human|person|manager|supervisor)`), confidence: 0.95, phrase: "get me a person"},
			{regex: regexp.MustCompile(`this (bot|ai|robot) (sucks|is (terrible|awful|useless))`), confidence: 0.9, phrase: "bot complaint"},
			{regex: regexp.MustCompile(`(terrible|awful|worst) (service|experience)`), confidence: 0.85, phrase: "terrible service"},
			{regex: regexp.MustCompile(`i('m| am) going to (complain|report|leave a review)`), confidence: 0.8, phrase: "going to complain"},
		},
	},
}

// PushbackDetector flags frustration/impatience signals in free text. It is a
// pure classifier over an immutable pattern table.
type PushbackDetector struct {
	logger *logging.Logger
}

// NewPushbackDetector creates a pushback detector.
func NewPushbackDetector(logger *logging.Logger) *PushbackDetector {
	if logger == nil {
		logger = logging.Default()
	}
	return &PushbackDetector{logger: logger}
}

// Detect returns the first matching signal scanning categories and patterns
// in declaration order, or nil when nothing matches. Matching is
// case-insensitive substring search over the trimmed message.
func (d *PushbackDetector) Detect(ctx context.Context, message string) *PushbackSignal {
	_, span := pushbackTracer.Start(ctx, "pushback.detect")
	defer span.End()

	normalized := normalizeMessage(message)
	if normalized == "" {
		return nil
	}

	for _, category := range pushbackCategories {
		for _, p := range category.patterns {
			if p.regex.MatchString(normalized) {
				span.SetAttributes(
					attribute.Bool("pushback.detected", true),
					attribute.String("pushback.type", string(category.ptype)),
					attribute.Float64("pushback.confidence", p.confidence),
				)
				d.logger.Info("pushback detected",
					"type", category.ptype,
					"confidence", p.confidence,
					"trigger", p.phrase,
				)
				return &PushbackSignal{
					IsPushback:      true,
					Type:            category.ptype,
					Confidence:      p.confidence,
					TriggerPhrase:   p.phrase,
					OriginalMessage: message,
				}
			}
		}
	}
	return nil
}

// DetectAll returns every matching signal across all categories with no
// early exit or deduplication. Intended for analytics, not control flow.
func (d *PushbackDetector) DetectAll(ctx context.Context, message string) []PushbackSignal {
	_, span := pushbackTracer.Start(ctx, "pushback.detect_all")
	defer span.End()

	normalized := normalizeMessage(message)
	if normalized == "" {
		return nil
	}

	var signals []PushbackSignal
	for _, category := range pushbackCategories {
		for _, p := range category.patterns {
			if p.regex.MatchString(normalized) {
				signals = append(signals, PushbackSignal{
					IsPushback:      true,
					Type:            category.ptype,
					Confidence:      p.confidence,
					TriggerPhrase:   p.phrase,
					OriginalMessage: message,
				})
			}
		}
	}
	span.SetAttributes(attribute.Int("pushback.match_count", len(signals)))
	return signals
}

func normalizeMessage(message string) string {
	return strings.ToLower(strings.TrimSpace(message))
}
