package validate

import (
	"errors"
	"testing"

	"github.com/referral-onboarding/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type phoneReq struct {
	Phone   string `validate:"required,loosephone"`
	Channel string `validate:"required,oneof=sms whatsapp"`
}

type codeReq struct {
	Code string `validate:"required,otpcode"`
}

func TestStruct_Valid(t *testing.T) {
	assert.NoError(t, Struct(phoneReq{Phone: "+1 555 123 4567", Channel: "sms"}))
	assert.NoError(t, Struct(codeReq{Code: "123456"}))
}

func TestStruct_Invalid_WrapsValidationError(t *testing.T) {
	err := Struct(phoneReq{Phone: "call me", Channel: "fax"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Contains(t, err.Error(), "field 'Phone' failed 'loosephone'")
	assert.Contains(t, err.Error(), "field 'Channel' failed 'oneof'")
}

func TestVar_RefCode(t *testing.T) {
	assert.True(t, Var("ref-2024", "refcode"))
	assert.False(t, Var("x", "refcode"))
}
