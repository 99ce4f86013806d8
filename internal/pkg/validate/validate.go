package validate

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/referral-onboarding/internal/domain"
)

// v is the package-level singleton validator. Custom tags are registered in
// init() before the first call to Struct.
var v = validator.New()

func init() {
	mustRegister("loosephone", func(fl validator.FieldLevel) bool {
		return domain.IsLoosePhone(fl.Field().String())
	})
	mustRegister("refcode", func(fl validator.FieldLevel) bool {
		return domain.IsValidReferralCode(fl.Field().String())
	})
	mustRegister("otpcode", func(fl validator.FieldLevel) bool {
		return domain.IsOTPCode(fl.Field().String())
	})
}

func mustRegister(tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("validate: register %s: %v", tag, err))
	}
}

// Struct validates the given struct using its validate tags.
// Returns a human-readable error wrapping domain.ErrValidation, or nil.
func Struct(s interface{}) error {
	if err := v.Struct(s); err != nil {
		ve, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		var msgs []string
		for _, fe := range ve {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed '%s'", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%s: %w", strings.Join(msgs, "; "), domain.ErrValidation)
	}
	return nil
}

// Var validates a single value against a tag expression such as "loosephone".
func Var(field interface{}, tag string) bool {
	return v.Var(field, tag) == nil
}
