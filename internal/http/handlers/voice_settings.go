package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	httpmiddleware "github.com/hivedesk/engage-platform/internal/http/middleware"
	"github.com/hivedesk/engage-platform/internal/tenancy"
	"github.com/hivedesk/engage-platform/internal/voice"
	"github.com/hivedesk/engage-platform/pkg/logging"
)

// VoiceSettingsHandler serves the admin voice-settings API.
type VoiceSettingsHandler struct {
	configs *voice.ConfigService
	logger  *logging.Logger
}

// NewVoiceSettingsHandler creates the settings handler.
func NewVoiceSettingsHandler(configs *voice.ConfigService, logger *logging.Logger) *VoiceSettingsHandler {
	if configs == nil {
		panic("handlers: config service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &VoiceSettingsHandler{configs: configs, logger: logger}
}

// HandleGet is the HTTP handler for GET /api/admin/tenants/{tenantID}/voice-settings.
// First access creates the tenant's config with system defaults.
func (h *VoiceSettingsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	if tenantID == "" {
		http.Error(w, "tenant id required", http.StatusBadRequest)
		return
	}
	if !tenantAllowed(r, tenantID) {
		http.Error(w, "tenant not permitted", http.StatusForbidden)
		return
	}
	ctx := tenancy.WithTenantID(r.Context(), tenantID)

	cfg, err := h.configs.GetOrCreate(ctx, tenantID)
	if err != nil {
		h.logger.Error("voice settings: read failed", "error", err, "tenant_id", tenantID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// HandlePut is the HTTP handler for PUT /api/admin/tenants/{tenantID}/voice-settings.
// The body is a partial update: absent fields keep their stored value.
func (h *VoiceSettingsHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	if tenantID == "" {
		http.Error(w, "tenant id required", http.StatusBadRequest)
		return
	}
	if !tenantAllowed(r, tenantID) {
		http.Error(w, "tenant not permitted", http.StatusForbidden)
		return
	}
	ctx := tenancy.WithTenantID(r.Context(), tenantID)

	var upd voice.ConfigUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	cfg, err := h.configs.Update(ctx, tenantID, upd)
	if err != nil {
		if isValidationError(err) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		h.logger.Error("voice settings: update failed", "error", err, "tenant_id", tenantID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("voice settings updated", "tenant_id", tenantID, "handoff_mode", cfg.HandoffMode)
	writeJSON(w, http.StatusOK, cfg)
}

// tenantAllowed enforces the token's tenant scope. Requests that did not pass
// through admin auth (direct handler wiring in tests) carry no claims and are
// allowed; the router always mounts these handlers behind AdminJWT.
func tenantAllowed(r *http.Request, tenantID string) bool {
	claims, ok := httpmiddleware.AdminClaimsFromContext(r.Context())
	if !ok {
		return true
	}
	return claims.AllowsTenant(tenantID)
}

func isValidationError(err error) bool {
	return errors.Is(err, voice.ErrInvalidHandoffMode) ||
		errors.Is(err, voice.ErrTransferNumberRequired) ||
		errors.Is(err, voice.ErrInvalidEscalationRules) ||
		errors.Is(err, voice.ErrUnknownNotificationMethod)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
