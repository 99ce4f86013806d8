package otp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/referral-onboarding/internal/domain"
	"github.com/referral-onboarding/internal/infrastructure/backend"
)

// Generic user-facing reasons. Server-supplied messages are passed through
// verbatim when present.
const (
	ReasonConnectivity = "We couldn't reach the server. Check your connection and try again."
	ReasonSendFailed   = "We couldn't send the verification code. Please try again."
	ReasonTrySMS       = "WhatsApp couldn't reach this number. Try SMS instead."
)

// VerificationAPI is the backend surface the sender requires.
type VerificationAPI interface {
	SendVerification(ctx context.Context, phone string, ch domain.Channel) (*backend.SendVerificationResponse, error)
}

// Sender requests a one-time code on a chosen channel.
type Sender interface {
	Send(ctx context.Context, phone string, ch domain.Channel) domain.SendOutcome
}

type sender struct {
	api VerificationAPI
}

func NewSender(api VerificationAPI) Sender {
	return &sender{api: api}
}

// Send performs exactly one backend call and classifies the result. It
// never mutates a VerificationSession.
func (s *sender) Send(ctx context.Context, phone string, ch domain.Channel) domain.SendOutcome {
	resp, err := s.api.SendVerification(ctx, phone, ch)
	if err != nil {
		if errors.Is(err, domain.ErrContractViolation) {
			slog.Error("send-verification returned an unreadable payload", "channel", ch, "err", err)
			return domain.Rejected(domain.KindContractViolation, ReasonSendFailed, "")
		}
		slog.Warn("send-verification transport failure", "channel", ch, "err", err)
		return domain.Rejected(domain.KindTransport, ReasonConnectivity, "")
	}

	if resp.Success {
		if resp.MessageSid == "" {
			slog.Error("send-verification accepted without messageSid", "channel", ch, "status", resp.HTTPStatus)
			return domain.Rejected(domain.KindContractViolation, ReasonSendFailed, "")
		}
		used := ch
		if parsed, err := domain.ParseChannel(resp.ChannelUsed); err == nil {
			used = parsed
		}
		return domain.Accepted(resp.MessageSid, used)
	}

	if resp.Suggestion == backend.SuggestionTrySMS && ch != domain.ChannelSMS {
		reason := resp.Message
		if reason == "" {
			reason = ReasonTrySMS
		}
		return domain.Rejected(domain.KindChannelDelivery, reason, ch.Alternate())
	}

	reason := resp.Message
	if reason == "" {
		reason = ReasonSendFailed
	}
	slog.Info("send-verification rejected", "channel", ch, "status", resp.HTTPStatus, "message", resp.Message)
	return domain.Rejected(domain.KindRejected, reason, "")
}
