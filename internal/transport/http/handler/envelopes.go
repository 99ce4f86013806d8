package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/referral-onboarding/internal/application/onboarding"
	"github.com/referral-onboarding/internal/domain"
	"github.com/referral-onboarding/internal/pkg/validate"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// OnboardingEnvelope wraps every onboarding response.
type OnboardingEnvelope struct {
	SessionID string                 `json:"session_id"`
	View      *domain.OnboardingView `json:"view,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// AttributionEnvelope wraps the visitor's current attribution.
type AttributionEnvelope struct {
	Attribution *domain.AttributionRecord `json:"attribution,omitempty"`
	Error       string                    `json:"error,omitempty"`
}

// ValidityEnvelope answers live format checks.
type ValidityEnvelope struct {
	Code  string `json:"code"`
	Valid bool   `json:"valid"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg, ErrorCode: status})
}

// httpStatus maps domain sentinels to status codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, onboarding.ErrClosed):
		return http.StatusGone
	case errors.Is(err, onboarding.ErrBusy), errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrBadRequest):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func httpError(w http.ResponseWriter, err error) {
	status := httpStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeError(w, status, msg)
}

// decode reads a JSON body into dst and applies its validate tags. An empty
// body is accepted when dst has no required fields.
func decode(r *http.Request, dst interface{}) error {
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
			return fmt.Errorf("invalid request body: %w", domain.ErrBadRequest)
		}
	}
	return validate.Struct(dst)
}
