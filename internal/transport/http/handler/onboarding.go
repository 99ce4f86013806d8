package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/referral-onboarding/internal/application/onboarding"
	"github.com/referral-onboarding/internal/domain"
	"github.com/referral-onboarding/internal/transport/http/middleware"
)

// Sessions is the onboarding registry surface the handler requires.
type Sessions interface {
	Create(mode domain.Mode, owner string) *onboarding.Controller
	Get(onboardingID, owner string) (*onboarding.Controller, error)
	Close(onboardingID, owner string) error
}

// OnboardingHandler exposes one onboarding controller per session ID.
type OnboardingHandler struct {
	sessions Sessions
}

func NewOnboardingHandler(s Sessions) *OnboardingHandler { return &OnboardingHandler{sessions: s} }

type createOnboardingRequest struct {
	Mode string `json:"mode" validate:"omitempty,oneof=new returning"`
}

type phoneRequest struct {
	Phone   string `json:"phone"`
	Channel string `json:"channel" validate:"omitempty,oneof=sms whatsapp"`
}

type codeRequest struct {
	Code string `json:"code"`
}

type channelRequest struct {
	Channel string `json:"channel" validate:"required,oneof=sms whatsapp"`
}

type resendLinkRequest struct {
	Phone string `json:"phone"`
}

func visitor(r *http.Request) string {
	v, _ := middleware.VisitorFromContext(r.Context())
	return v
}

func (h *OnboardingHandler) controller(w http.ResponseWriter, r *http.Request) (*onboarding.Controller, bool) {
	c, err := h.sessions.Get(chi.URLParam(r, "id"), visitor(r))
	if err != nil {
		httpError(w, err)
		return nil, false
	}
	return c, true
}

func respond(w http.ResponseWriter, c *onboarding.Controller, v domain.OnboardingView, err error) {
	if err != nil {
		writeJSON(w, httpStatus(err), OnboardingEnvelope{SessionID: c.ID(), View: &v, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, OnboardingEnvelope{SessionID: c.ID(), View: &v})
}

func (h *OnboardingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOnboardingRequest
	if err := decode(r, &req); err != nil {
		httpError(w, err)
		return
	}
	mode, err := domain.ParseMode(req.Mode)
	if err != nil {
		httpError(w, err)
		return
	}
	c := h.sessions.Create(mode, visitor(r))
	v := c.View()
	writeJSON(w, http.StatusCreated, OnboardingEnvelope{SessionID: c.ID(), View: &v})
}

func (h *OnboardingHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	respond(w, c, c.View(), nil)
}

func (h *OnboardingHandler) SubmitPhone(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	var req phoneRequest
	if err := decode(r, &req); err != nil {
		httpError(w, err)
		return
	}
	var ch domain.Channel
	if req.Channel != "" {
		ch = domain.Channel(req.Channel)
	}
	v, err := c.SubmitPhone(r.Context(), req.Phone, ch)
	respond(w, c, v, err)
}

func (h *OnboardingHandler) SubmitCode(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	var req codeRequest
	if err := decode(r, &req); err != nil {
		httpError(w, err)
		return
	}
	v, err := c.SubmitCode(r.Context(), req.Code)
	respond(w, c, v, err)
}

func (h *OnboardingHandler) Resend(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	v, err := c.Resend(r.Context())
	respond(w, c, v, err)
}

func (h *OnboardingHandler) Back(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	v, err := c.Back()
	respond(w, c, v, err)
}

func (h *OnboardingHandler) SelectChannel(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	var req channelRequest
	if err := decode(r, &req); err != nil {
		httpError(w, err)
		return
	}
	v, err := c.SelectChannel(domain.Channel(req.Channel))
	respond(w, c, v, err)
}

func (h *OnboardingHandler) ResendLink(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	var req resendLinkRequest
	if err := decode(r, &req); err != nil {
		httpError(w, err)
		return
	}
	v, err := c.ResendLink(r.Context(), req.Phone)
	respond(w, c, v, err)
}

func (h *OnboardingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(chi.URLParam(r, "id"), visitor(r)); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "closed"})
}

// Events streams the view as server-sent events after every change, until
// the client disconnects or the session closes.
func (h *OnboardingHandler) Events(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	changes, cancel := c.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func() {
		b, _ := json.Marshal(c.View())
		fmt.Fprintf(w, "event: view\ndata: %s\n\n", b)
		flusher.Flush()
	}
	send()
	for {
		select {
		case <-r.Context().Done():
			return
		case _, open := <-changes:
			if !open {
				fmt.Fprint(w, "event: closed\ndata: {}\n\n")
				flusher.Flush()
				return
			}
			send()
		}
	}
}
