package domain

import "fmt"

// Step is the UI-facing onboarding state.
type Step string

const (
	StepPhone  Step = "phone"
	StepVerify Step = "verify"
	StepReady  Step = "ready"
)

// Mode selects between the returning-user and new-user variants of the flow.
type Mode string

const (
	ModeNew       Mode = "new"
	ModeReturning Mode = "returning"
)

// ParseMode defaults to ModeNew for an empty string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeNew:
		return ModeNew, nil
	case ModeReturning:
		return ModeReturning, nil
	}
	return "", fmt.Errorf("unknown mode %q: %w", s, ErrValidation)
}

// ViewError is an inline, non-blocking error shown near the relevant input.
type ViewError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Err converts the view error back into the sentinel taxonomy.
func (e *ViewError) Err() error {
	if e == nil {
		return nil
	}
	if s := e.Kind.Err(); s != nil {
		return fmt.Errorf("%s: %w", e.Message, s)
	}
	return fmt.Errorf("%s", e.Message)
}

// OnboardingView is a snapshot of everything a UI needs to render the flow.
type OnboardingView struct {
	Mode         Mode                 `json:"mode"`
	Step         Step                 `json:"step"`
	Headline     string               `json:"headline"`
	Phone        string               `json:"phone,omitempty"`
	Channel      Channel              `json:"channel"`
	Session      *VerificationSession `json:"session,omitempty"`
	Busy         bool                 `json:"busy"`
	Delivery     string               `json:"delivery,omitempty"`
	Notice       string               `json:"notice,omitempty"`
	Error        *ViewError           `json:"error,omitempty"`
	ReferralCode string               `json:"referral_code,omitempty"`
	ReferralLink string               `json:"referral_link,omitempty"`
}
