package otp

import (
	"context"
	"fmt"
	"testing"

	"github.com/referral-onboarding/internal/domain"
	"github.com/referral-onboarding/internal/infrastructure/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockAPI struct{ mock.Mock }

func (m *mockAPI) SendVerification(ctx context.Context, phone string, ch domain.Channel) (*backend.SendVerificationResponse, error) {
	args := m.Called(ctx, phone, ch)
	if r, _ := args.Get(0).(*backend.SendVerificationResponse); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func TestSend_Accepted(t *testing.T) {
	api := &mockAPI{}
	api.On("SendVerification", mock.Anything, "5551234567", domain.ChannelSMS).
		Return(&backend.SendVerificationResponse{Success: true, ChannelUsed: "sms", MessageSid: "SM123"}, nil).Once()

	out := NewSender(api).Send(context.Background(), "5551234567", domain.ChannelSMS)

	assert.True(t, out.Accepted)
	assert.Equal(t, "SM123", out.MessageID)
	assert.Equal(t, domain.ChannelSMS, out.ChannelUsed)
	api.AssertExpectations(t)
}

func TestSend_AcceptedOnDifferentChannel(t *testing.T) {
	api := &mockAPI{}
	api.On("SendVerification", mock.Anything, "555", domain.ChannelWhatsApp).
		Return(&backend.SendVerificationResponse{Success: true, ChannelUsed: "sms", MessageSid: "SM9"}, nil)

	out := NewSender(api).Send(context.Background(), "555", domain.ChannelWhatsApp)
	assert.Equal(t, domain.ChannelSMS, out.ChannelUsed)
}

func TestSend_TrySMSSuggestion_OffersFallback(t *testing.T) {
	api := &mockAPI{}
	api.On("SendVerification", mock.Anything, "555", domain.ChannelWhatsApp).
		Return(&backend.SendVerificationResponse{Success: false, Message: "Number is not on WhatsApp", Suggestion: backend.SuggestionTrySMS}, nil)

	out := NewSender(api).Send(context.Background(), "555", domain.ChannelWhatsApp)

	assert.False(t, out.Accepted)
	assert.Equal(t, domain.ChannelSMS, out.SuggestedFallback)
	assert.Equal(t, domain.KindChannelDelivery, out.Kind)
	assert.Equal(t, "Number is not on WhatsApp", out.Reason)
}

func TestSend_TrySMSSuggestion_DefaultReason(t *testing.T) {
	api := &mockAPI{}
	api.On("SendVerification", mock.Anything, "555", domain.ChannelWhatsApp).
		Return(&backend.SendVerificationResponse{Suggestion: backend.SuggestionTrySMS}, nil)

	out := NewSender(api).Send(context.Background(), "555", domain.ChannelWhatsApp)
	assert.Equal(t, ReasonTrySMS, out.Reason)
}

func TestSend_OtherRejection_PassesMessageVerbatim(t *testing.T) {
	api := &mockAPI{}
	api.On("SendVerification", mock.Anything, "555", domain.ChannelSMS).
		Return(&backend.SendVerificationResponse{Success: false, Message: "Too many attempts, wait 60s", HTTPStatus: 429}, nil)

	out := NewSender(api).Send(context.Background(), "555", domain.ChannelSMS)

	assert.False(t, out.Accepted)
	assert.Empty(t, out.SuggestedFallback)
	assert.Equal(t, domain.KindRejected, out.Kind)
	assert.Equal(t, "Too many attempts, wait 60s", out.Reason)
}

func TestSend_TrySMSOnSMS_IsPlainRejection(t *testing.T) {
	api := &mockAPI{}
	api.On("SendVerification", mock.Anything, "555", domain.ChannelSMS).
		Return(&backend.SendVerificationResponse{Message: "nope", Suggestion: backend.SuggestionTrySMS}, nil)

	out := NewSender(api).Send(context.Background(), "555", domain.ChannelSMS)
	assert.Empty(t, out.SuggestedFallback)
	assert.Equal(t, domain.KindRejected, out.Kind)
}

func TestSend_TransportFailure(t *testing.T) {
	api := &mockAPI{}
	api.On("SendVerification", mock.Anything, "555", domain.ChannelSMS).
		Return(nil, fmt.Errorf("dial tcp: refused: %w", domain.ErrTransport))

	out := NewSender(api).Send(context.Background(), "555", domain.ChannelSMS)

	assert.False(t, out.Accepted)
	assert.Equal(t, domain.KindTransport, out.Kind)
	assert.Equal(t, ReasonConnectivity, out.Reason)
	assert.Empty(t, out.SuggestedFallback)
}

func TestSend_SuccessWithoutSid_IsContractViolation(t *testing.T) {
	api := &mockAPI{}
	api.On("SendVerification", mock.Anything, "555", domain.ChannelSMS).
		Return(&backend.SendVerificationResponse{Success: true}, nil)

	out := NewSender(api).Send(context.Background(), "555", domain.ChannelSMS)
	assert.False(t, out.Accepted)
	assert.Equal(t, domain.KindContractViolation, out.Kind)
}

func TestSend_UndecodablePayload_IsContractViolation(t *testing.T) {
	api := &mockAPI{}
	api.On("SendVerification", mock.Anything, "555", domain.ChannelSMS).
		Return(nil, fmt.Errorf("decode: %w", domain.ErrContractViolation))

	out := NewSender(api).Send(context.Background(), "555", domain.ChannelSMS)
	assert.Equal(t, domain.KindContractViolation, out.Kind)
	assert.Equal(t, ReasonSendFailed, out.Reason)
}
