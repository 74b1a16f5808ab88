package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivedesk/engage-platform/internal/calls"
	"github.com/hivedesk/engage-platform/internal/tenancy"
	"github.com/hivedesk/engage-platform/internal/voice"
)

type webhookFixture struct {
	handler   *VoiceWebhookHandler
	callRepo  *calls.InMemoryRepository
	configs   *voice.ConfigService
	cfgRepo   *voice.InMemoryConfigRepository
	tenantNum string
}

func newWebhookFixture(t *testing.T, cfg *voice.TenantVoiceConfig) *webhookFixture {
	t.Helper()

	cfgRepo := voice.NewInMemoryConfigRepository()
	if cfg != nil {
		_, err := cfgRepo.Create(context.Background(), cfg)
		require.NoError(t, err)
	}
	configs := voice.NewConfigService(cfgRepo, voice.NewMemoryCache(time.Minute), nil, nil)
	callRepo := calls.NewInMemoryRepository()
	recorder := voice.NewRecorder(callRepo, nil)

	tenantNum := "+15553334444"
	tenantID := "t-1"
	if cfg != nil {
		tenantID = cfg.TenantID
	}
	resolver := tenancy.NewStaticResolver(map[string]string{tenantNum: tenantID})

	handler := NewVoiceWebhookHandler(VoiceWebhookConfig{
		Tenants:  resolver,
		Calls:    callRepo,
		Configs:  configs,
		Engine:   voice.NewEngine(configs, nil, nil),
		Executor: voice.NewExecutor(recorder, nil),
	})
	return &webhookFixture{
		handler:   handler,
		callRepo:  callRepo,
		configs:   configs,
		cfgRepo:   cfgRepo,
		tenantNum: tenantNum,
	}
}

func liveTransferConfig(tenantID string) *voice.TenantVoiceConfig {
	cfg := voice.DefaultConfig(tenantID)
	cfg.IsEnabled = true
	cfg.HandoffMode = voice.HandoffModeLiveTransfer
	cfg.LiveTransferNumber = "+15559876543"
	return cfg
}

func postForm(t *testing.T, handler http.HandlerFunc, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio/voice/turn", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestHandleInbound(t *testing.T) {
	cfg := liveTransferConfig("t-1")
	cfg.DefaultGreeting = "Welcome to Brightside Dental!"
	fx := newWebhookFixture(t, cfg)

	form := url.Values{}
	form.Set("CallSid", "CA800")
	form.Set("From", "+15551112222")
	form.Set("To", fx.tenantNum)

	rec := postForm(t, fx.handler.HandleInbound, form)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/xml")
	assert.Contains(t, rec.Body.String(), "Welcome to Brightside Dental!")
	assert.Contains(t, rec.Body.String(), "<Gather")

	record, err := fx.callRepo.FindByCallSID(context.Background(), "CA800")
	require.NoError(t, err)
	assert.Equal(t, "t-1", record.TenantID)
	assert.Equal(t, "+15551112222", record.CallerPhone)
}

func TestHandleInbound_UnknownNumber(t *testing.T) {
	fx := newWebhookFixture(t, liveTransferConfig("t-1"))

	form := url.Values{}
	form.Set("CallSid", "CA801")
	form.Set("To", "+15550000000")

	rec := postForm(t, fx.handler.HandleInbound, form)

	// Still a valid spoken document, never an HTTP error.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<Hangup/>")
}

func TestHandleTurn_HandoffOnHumanRequest(t *testing.T) {
	fx := newWebhookFixture(t, liveTransferConfig("t-1"))

	_, err := fx.callRepo.Create(context.Background(), &calls.CallRecord{
		TenantID:    "t-1",
		CallSID:     "CA802",
		CallerPhone: "+15551112222",
	})
	require.NoError(t, err)

	form := url.Values{}
	form.Set("CallSid", "CA802")
	form.Set("SpeechResult", "let me talk to a manager")

	rec := postForm(t, fx.handler.HandleTurn, form)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<Dial>+15559876543</Dial>")

	record, err := fx.callRepo.FindByCallSID(context.Background(), "CA802")
	require.NoError(t, err)
	assert.True(t, record.HandoffAttempted)
	assert.Equal(t, voice.ReasonCallerRequestedHuman, record.HandoffReason)
	assert.Equal(t, 1, record.CurrentTurn)
}

func TestHandleTurn_NoHandoffContinuesGathering(t *testing.T) {
	fx := newWebhookFixture(t, liveTransferConfig("t-1"))

	_, err := fx.callRepo.Create(context.Background(), &calls.CallRecord{
		TenantID: "t-1",
		CallSID:  "CA803",
	})
	require.NoError(t, err)

	form := url.Values{}
	form.Set("CallSid", "CA803")
	form.Set("SpeechResult", "I'd like to book a cleaning")
	form.Set("Confidence", "0.92")

	rec := postForm(t, fx.handler.HandleTurn, form)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<Gather")
	assert.NotContains(t, rec.Body.String(), "<Dial>")
}

func TestHandleTurn_ConfusionCounterAcrossTurns(t *testing.T) {
	// Default rules: low-confidence threshold 0.45, repeated confusion fires
	// at 3 consecutive low turns.
	fx := newWebhookFixture(t, liveTransferConfig("t-1"))

	_, err := fx.callRepo.Create(context.Background(), &calls.CallRecord{
		TenantID: "t-1",
		CallSID:  "CA804",
	})
	require.NoError(t, err)

	lowTurn := func() *httptest.ResponseRecorder {
		form := url.Values{}
		form.Set("CallSid", "CA804")
		form.Set("SpeechResult", "mumble")
		form.Set("Confidence", "0.30")
		return postForm(t, fx.handler.HandleTurn, form)
	}

	// Turn 1: a single low-confidence turn escalates via low_confidence,
	// since the default rule fires strictly below 0.45.
	rec := lowTurn()
	assert.Contains(t, rec.Body.String(), "<Dial>")

	record, err := fx.callRepo.FindByCallSID(context.Background(), "CA804")
	require.NoError(t, err)
	assert.Equal(t, 1, record.ConsecutiveLowConfidence)

	// A clear turn resets the counter.
	form := url.Values{}
	form.Set("CallSid", "CA804")
	form.Set("SpeechResult", "I want to book an appointment for my dog")
	form.Set("Confidence", "0.95")
	postForm(t, fx.handler.HandleTurn, form)

	record, err = fx.callRepo.FindByCallSID(context.Background(), "CA804")
	require.NoError(t, err)
	assert.Equal(t, 0, record.ConsecutiveLowConfidence)
}

func TestHandleTurn_DisabledTenant(t *testing.T) {
	cfg := voice.DefaultConfig("t-1")
	cfg.IsEnabled = false
	fx := newWebhookFixture(t, cfg)

	_, err := fx.callRepo.Create(context.Background(), &calls.CallRecord{
		TenantID: "t-1",
		CallSID:  "CA805",
	})
	require.NoError(t, err)

	form := url.Values{}
	form.Set("CallSid", "CA805")
	form.Set("SpeechResult", "let me speak to a human")

	rec := postForm(t, fx.handler.HandleTurn, form)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<Gather")
	assert.NotContains(t, rec.Body.String(), "<Dial>")
}

func TestHandleTurn_MissingCallSid(t *testing.T) {
	fx := newWebhookFixture(t, liveTransferConfig("t-1"))

	rec := postForm(t, fx.handler.HandleTurn, url.Values{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleTurn_CreatesRecordWhenInboundMissed(t *testing.T) {
	fx := newWebhookFixture(t, liveTransferConfig("t-1"))

	form := url.Values{}
	form.Set("CallSid", "CA806")
	form.Set("From", "+15551112222")
	form.Set("To", fx.tenantNum)
	form.Set("SpeechResult", "hello")

	rec := postForm(t, fx.handler.HandleTurn, form)
	assert.Equal(t, http.StatusOK, rec.Code)

	record, err := fx.callRepo.FindByCallSID(context.Background(), "CA806")
	require.NoError(t, err)
	assert.Equal(t, "t-1", record.TenantID)
}

func TestHandleStatus_ClosesCall(t *testing.T) {
	fx := newWebhookFixture(t, liveTransferConfig("t-1"))

	_, err := fx.callRepo.Create(context.Background(), &calls.CallRecord{
		TenantID: "t-1",
		CallSID:  "CA807",
	})
	require.NoError(t, err)

	form := url.Values{}
	form.Set("CallSid", "CA807")
	form.Set("CallStatus", "completed")

	rec := postForm(t, fx.handler.HandleStatus, form)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	record, err := fx.callRepo.FindByCallSID(context.Background(), "CA807")
	require.NoError(t, err)
	assert.Equal(t, calls.StatusCompleted, record.Status)
	require.NotNil(t, record.EndedAt)
}

func TestHandleStatus_UnknownCall(t *testing.T) {
	fx := newWebhookFixture(t, liveTransferConfig("t-1"))

	form := url.Values{}
	form.Set("CallSid", "CA-none")
	form.Set("CallStatus", "completed")

	rec := postForm(t, fx.handler.HandleStatus, form)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHandleTurn_RejectsInvalidSignature(t *testing.T) {
	cfgRepo := voice.NewInMemoryConfigRepository()
	configs := voice.NewConfigService(cfgRepo, voice.NewMemoryCache(time.Minute), nil, nil)
	callRepo := calls.NewInMemoryRepository()

	handler := NewVoiceWebhookHandler(VoiceWebhookConfig{
		Tenants:         tenancy.NewStaticResolver(nil),
		Calls:           callRepo,
		Configs:         configs,
		Engine:          voice.NewEngine(configs, nil, nil),
		Executor:        voice.NewExecutor(voice.NewRecorder(callRepo, nil), nil),
		TwilioAuthToken: "secret-token",
	})

	form := url.Values{}
	form.Set("CallSid", "CA808")
	rec := postForm(t, handler.HandleTurn, form)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
