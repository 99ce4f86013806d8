package verify

import (
	"context"
	"fmt"
	"testing"

	"github.com/referral-onboarding/internal/domain"
	"github.com/referral-onboarding/internal/infrastructure/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockCodeAPI struct{ mock.Mock }

func (m *mockCodeAPI) VerifyCode(ctx context.Context, phone, code string) (*backend.VerifyCodeResponse, error) {
	args := m.Called(ctx, phone, code)
	if r, _ := args.Get(0).(*backend.VerifyCodeResponse); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func verifyWith(resp *backend.VerifyCodeResponse, err error) domain.VerifyOutcome {
	api := &mockCodeAPI{}
	api.On("VerifyCode", mock.Anything, "5551234567", "123456").Return(resp, err).Once()
	return NewVerifier(api).Verify(context.Background(), "5551234567", "123456")
}

func TestVerify_Success(t *testing.T) {
	out := verifyWith(&backend.VerifyCodeResponse{
		Success: true, Verified: true, ReferralCode: "JANE-42", ReferralLink: "https://example.com/r/JANE-42",
	}, nil)

	assert.True(t, out.Verified)
	assert.Equal(t, "JANE-42", out.ReferralCode)
	assert.Equal(t, "https://example.com/r/JANE-42", out.ReferralLink)
	assert.Empty(t, out.Reason)
}

func TestVerify_MissingLink_IsContractViolation(t *testing.T) {
	out := verifyWith(&backend.VerifyCodeResponse{Success: true, Verified: true, ReferralCode: "JANE-42", HTTPStatus: 200}, nil)

	assert.False(t, out.Verified)
	assert.Equal(t, domain.KindContractViolation, out.Kind)
	assert.Equal(t, ReasonInvalidResponse, out.Reason)
}

func TestVerify_MissingCode_IsContractViolation(t *testing.T) {
	out := verifyWith(&backend.VerifyCodeResponse{Success: true, Verified: true, ReferralLink: "https://x"}, nil)
	assert.Equal(t, domain.KindContractViolation, out.Kind)
}

func TestVerify_SuccessButNotVerified(t *testing.T) {
	out := verifyWith(&backend.VerifyCodeResponse{Success: true, Verified: false, ReferralCode: "A", ReferralLink: "B"}, nil)
	assert.False(t, out.Verified)
	assert.Equal(t, domain.KindRejected, out.Kind)
	assert.Equal(t, ReasonInvalidCode, out.Reason)
}

func TestVerify_ServerErrorVerbatim(t *testing.T) {
	out := verifyWith(&backend.VerifyCodeResponse{Success: false, Error: "Code expired"}, nil)
	assert.Equal(t, "Code expired", out.Reason)
}

func TestVerify_Transport(t *testing.T) {
	out := verifyWith(nil, fmt.Errorf("timeout: %w", domain.ErrTransport))
	assert.Equal(t, domain.KindTransport, out.Kind)
	assert.Equal(t, ReasonConnectivity, out.Reason)
}
