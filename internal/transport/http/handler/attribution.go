package handler

import (
	"net/http"

	"github.com/referral-onboarding/internal/application/attribution"
)

// AttributionHandler exposes the visitor's referral attribution to signup
// forms.
type AttributionHandler struct {
	svc *attribution.Service
}

func NewAttributionHandler(svc *attribution.Service) *AttributionHandler {
	return &AttributionHandler{svc: svc}
}

type attributionRequest struct {
	Code string `json:"code" validate:"required"`
}

func (h *AttributionHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec := h.svc.For(visitor(r)).Read(r.Context())
	if rec == nil {
		writeJSON(w, http.StatusNotFound, AttributionEnvelope{Error: "no attribution"})
		return
	}
	writeJSON(w, http.StatusOK, AttributionEnvelope{Attribution: rec})
}

// Capture stores a code typed by the visitor.
func (h *AttributionHandler) Capture(w http.ResponseWriter, r *http.Request) {
	var req attributionRequest
	if err := decode(r, &req); err != nil {
		httpError(w, err)
		return
	}
	if !attribution.IsValidFormat(req.Code) {
		writeJSON(w, http.StatusBadRequest, AttributionEnvelope{Error: "invalid referral code"})
		return
	}
	rec := h.svc.For(visitor(r)).CaptureManual(r.Context(), req.Code)
	if rec == nil {
		writeJSON(w, http.StatusServiceUnavailable, AttributionEnvelope{Error: "referral code could not be saved"})
		return
	}
	writeJSON(w, http.StatusCreated, AttributionEnvelope{Attribution: rec})
}

// Validate is the live format check used while typing.
func (h *AttributionHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req attributionRequest
	if err := decode(r, &req); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ValidityEnvelope{Code: req.Code, Valid: attribution.IsValidFormat(req.Code)})
}

// Clear is called once a signup has consumed the attribution.
func (h *AttributionHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.svc.For(visitor(r)).Clear(r.Context())
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "cleared"})
}
