package twin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/referral-onboarding/internal/domain"
	"github.com/referral-onboarding/internal/infrastructure/backend"
	"github.com/referral-onboarding/internal/infrastructure/sns"
	"github.com/referral-onboarding/internal/pkg/validate"
)

// Handler serves the verification backend contract.
type Handler struct {
	store *Store
	sms   sns.SMSSender // nil unless SMS codes are really sent
}

func NewHandler(s *Store, sms sns.SMSSender) *Handler {
	return &Handler{store: s, sms: sms}
}

// Routes mounts the backend endpoints and admin extras.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/send-verification", h.SendVerification)
	r.Get("/delivery-status/{sid}", h.DeliveryStatus)
	r.Post("/verify-code", h.VerifyCode)
	r.Post("/resend-link", h.ResendLink)

	r.Get("/admin/codes", h.AdminListCodes)
	r.Post("/admin/reset", h.AdminReset)
}

type sendVerificationBody struct {
	Phone  string `json:"phone" validate:"required,loosephone"`
	Method string `json:"method" validate:"omitempty,oneof=sms whatsapp SMS WHATSAPP"`
}

type verifyCodeBody struct {
	Phone string `json:"phone" validate:"required,loosephone"`
	Code  string `json:"code" validate:"required"`
}

type resendLinkBody struct {
	Phone string `json:"phone" validate:"required,loosephone"`
}

// SendVerification handles POST /send-verification.
func (h *Handler) SendVerification(w http.ResponseWriter, r *http.Request) {
	var body sendVerificationBody
	if err := decode(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, backend.SendVerificationResponse{Message: "Invalid phone number"})
		return
	}
	ch := domain.ChannelSMS
	if body.Method != "" {
		ch, _ = domain.ParseChannel(body.Method)
	}

	if ch == domain.ChannelWhatsApp && !h.store.SupportsWhatsApp(body.Phone) {
		writeJSON(w, http.StatusOK, backend.SendVerificationResponse{
			Message:    "This number is not reachable on WhatsApp.",
			Suggestion: backend.SuggestionTrySMS,
		})
		return
	}

	msg, err := h.store.Issue(body.Phone, ch)
	if err != nil {
		slog.Error("issue code failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, backend.SendVerificationResponse{Message: "Failed to send verification code"})
		return
	}
	if ch == domain.ChannelSMS && h.sms != nil {
		if _, err := h.sms.SendSMS(r.Context(), body.Phone, fmt.Sprintf("Your verification code is %s", msg.Code)); err != nil {
			slog.Error("sms publish failed", "sid", msg.SID, "err", err)
			writeJSON(w, http.StatusBadGateway, backend.SendVerificationResponse{Message: "Failed to send SMS"})
			return
		}
	}
	slog.Info("verification code issued", "sid", msg.SID, "channel", ch)

	writeJSON(w, http.StatusOK, backend.SendVerificationResponse{
		Success:     true,
		ChannelUsed: string(ch),
		MessageSid:  msg.SID,
	})
}

// DeliveryStatus handles GET /delivery-status/{sid}.
func (h *Handler) DeliveryStatus(w http.ResponseWriter, r *http.Request) {
	msg, err := h.store.Poll(chi.URLParam(r, "sid"))
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, backend.DeliveryStatusResponse{})
		return
	}
	writeJSON(w, http.StatusOK, backend.DeliveryStatusResponse{
		OK:          true,
		IsDelivered: msg.Status == MessageDelivered,
		IsFailed:    msg.Status == MessageFailed,
	})
}

// VerifyCode handles POST /verify-code.
func (h *Handler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var body verifyCodeBody
	if err := decode(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, backend.VerifyCodeResponse{Error: "Phone and code are required"})
		return
	}
	ref, ok := h.store.Verify(body.Phone, body.Code)
	if !ok {
		writeJSON(w, http.StatusOK, backend.VerifyCodeResponse{Error: "Invalid verification code"})
		return
	}
	writeJSON(w, http.StatusOK, backend.VerifyCodeResponse{
		Success:      true,
		Verified:     true,
		ReferralCode: ref.Code,
		ReferralLink: ref.Link,
	})
}

// ResendLink handles POST /resend-link.
func (h *Handler) ResendLink(w http.ResponseWriter, r *http.Request) {
	var body resendLinkBody
	if err := decode(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, backend.ResendLinkResponse{Error: "Invalid phone number"})
		return
	}
	ref, ok := h.store.Referral(body.Phone)
	if !ok {
		writeJSON(w, http.StatusNotFound, backend.ResendLinkResponse{Error: "No referral link found for this phone number"})
		return
	}
	if h.sms != nil {
		if err := h.sendLink(r.Context(), ref); err != nil {
			slog.Error("sms publish failed", "err", err)
			writeJSON(w, http.StatusBadGateway, backend.ResendLinkResponse{Error: "Failed to send SMS"})
			return
		}
	}
	writeJSON(w, http.StatusOK, backend.ResendLinkResponse{Success: true})
}

func (h *Handler) sendLink(ctx context.Context, ref Referral) error {
	_, err := h.sms.SendSMS(ctx, ref.Phone, "Your referral link: "+ref.Link)
	return err
}

// AdminListCodes handles GET /admin/codes. Supports ?phone= filtering.
func (h *Handler) AdminListCodes(w http.ResponseWriter, r *http.Request) {
	phone := phoneKey(r.URL.Query().Get("phone"))
	msgs := h.store.Messages()
	if phone != "" {
		filtered := msgs[:0]
		for _, m := range msgs {
			if phoneKey(m.Phone) == phone {
				filtered = append(filtered, m)
			}
		}
		msgs = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": msgs,
		"total":    len(msgs),
	})
}

// AdminReset handles POST /admin/reset.
func (h *Handler) AdminReset(w http.ResponseWriter, _ *http.Request) {
	h.store.Reset()
	writeJSON(w, http.StatusOK, map[string]any{"reset": true})
}

func decode(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", domain.ErrBadRequest)
	}
	return validate.Struct(dst)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
