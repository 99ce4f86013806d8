package verify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/referral-onboarding/internal/domain"
	"github.com/referral-onboarding/internal/infrastructure/backend"
)

const (
	ReasonInvalidCode     = "That code isn't right. Check the message and try again."
	ReasonInvalidResponse = "Invalid response from server. Please try again."
	ReasonConnectivity    = "We couldn't reach the server. Check your connection and try again."
)

// CodeAPI is the backend surface the verifier requires.
type CodeAPI interface {
	VerifyCode(ctx context.Context, phone, code string) (*backend.VerifyCodeResponse, error)
}

// Verifier checks a user-entered code and returns the referral it unlocks.
type Verifier interface {
	Verify(ctx context.Context, phone, code string) domain.VerifyOutcome
}

type verifier struct {
	api CodeAPI
}

func NewVerifier(api CodeAPI) Verifier {
	return &verifier{api: api}
}

// Verify makes one backend call. Only success && verified with both
// referral fields present yields a verified outcome; partial success is
// never trusted.
func (v *verifier) Verify(ctx context.Context, phone, code string) domain.VerifyOutcome {
	resp, err := v.api.VerifyCode(ctx, phone, code)
	if err != nil {
		if errors.Is(err, domain.ErrContractViolation) {
			slog.Error("verify-code returned an unreadable payload", "err", err)
			return invalid(domain.KindContractViolation, ReasonInvalidResponse)
		}
		slog.Warn("verify-code transport failure", "err", err)
		return invalid(domain.KindTransport, ReasonConnectivity)
	}

	if resp.Success && resp.Verified {
		if resp.ReferralCode == "" || resp.ReferralLink == "" {
			slog.Error("verify-code claimed success without referral fields",
				"status", resp.HTTPStatus,
				"has_code", resp.ReferralCode != "",
				"has_link", resp.ReferralLink != "")
			return invalid(domain.KindContractViolation, ReasonInvalidResponse)
		}
		return domain.VerifyOutcome{Verified: true, ReferralCode: resp.ReferralCode, ReferralLink: resp.ReferralLink}
	}

	reason := resp.Error
	if reason == "" {
		reason = ReasonInvalidCode
	}
	return invalid(domain.KindRejected, reason)
}

func invalid(kind domain.ErrorKind, reason string) domain.VerifyOutcome {
	return domain.VerifyOutcome{Kind: kind, Reason: reason}
}
