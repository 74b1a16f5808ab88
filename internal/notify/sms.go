package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hivedesk/engage-platform/pkg/logging"
)

var telnyxSMSTracer = otel.Tracer("engage/notify-sms")

// SMSSender sends SMS messages to tenant operators.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// TelnyxSMSSender posts SMS messages using Telnyx's V2 API.
type TelnyxSMSSender struct {
	apiKey             string
	fromNumber         string
	messagingProfileID string
	httpClient         *http.Client
	logger             *logging.Logger
}

// NewTelnyxSMSSender builds a sender for Telnyx V2 API.
func NewTelnyxSMSSender(apiKey, fromNumber, messagingProfileID string, logger *logging.Logger) *TelnyxSMSSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &TelnyxSMSSender{
		apiKey:             apiKey,
		fromNumber:         fromNumber,
		messagingProfileID: messagingProfileID,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// SendSMS dispatches a single SMS via Telnyx V2 API, retrying transient failures.
func (s *TelnyxSMSSender) SendSMS(ctx context.Context, to, body string) error {
	if s.apiKey == "" {
		return errors.New("notify: telnyx api key missing")
	}
	if to == "" {
		return errors.New("notify: to required")
	}
	if strings.TrimSpace(body) == "" {
		return errors.New("notify: body required")
	}

	ctx, span := telnyxSMSTracer.Start(ctx, "notify.telnyx.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("engage.to", to),
		attribute.String("engage.from", s.fromNumber),
	)

	payload := map[string]interface{}{
		"from": s.fromNumber,
		"to":   to,
		"text": body,
	}
	if s.messagingProfileID != "" {
		payload["messaging_profile_id"] = s.messagingProfileID
	}

	var attempt int
	var lastErr error
	for attempt = 1; attempt <= 3; attempt++ {
		bodyBytes, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("notify: failed to marshal telnyx payload: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.telnyx.com/v2/messages", bytes.NewReader(bodyBytes))
		if err != nil {
			lastErr = err
			break
		}
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				s.logger.Info("telnyx sms sent", "to", to, "from", s.fromNumber)
				return nil
			}
			var errorBody map[string]interface{}
			if len(respBody) > 0 && json.Unmarshal(respBody, &errorBody) == nil {
				lastErr = fmt.Errorf("telnyx send failed: status %d, body: %v", resp.StatusCode, errorBody)
			} else {
				lastErr = fmt.Errorf("telnyx send failed: status %d", resp.StatusCode)
			}
		}

		if attempt < 3 {
			sleep := time.Duration(200+rand.Intn(300)) * time.Millisecond
			time.Sleep(sleep)
		}
	}

	if lastErr != nil {
		span.RecordError(lastErr)
		s.logger.Error("failed to send telnyx sms", "error", lastErr, "to", to)
	}
	return lastErr
}

// StubSMSSender is a no-op sender for testing or when SMS is disabled.
type StubSMSSender struct {
	logger *logging.Logger
}

// NewStubSMSSender creates a stub SMS sender.
func NewStubSMSSender(logger *logging.Logger) *StubSMSSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubSMSSender{logger: logger}
}

// SendSMS logs but doesn't send.
func (s *StubSMSSender) SendSMS(ctx context.Context, to, body string) error {
	s.logger.Info("stub SMS sender: would send", "to", to, "body_preview", truncate(body, 50))
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

var _ SMSSender = (*TelnyxSMSSender)(nil)
var _ SMSSender = (*StubSMSSender)(nil)
