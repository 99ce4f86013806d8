package onboarding

import (
	"fmt"

	"github.com/referral-onboarding/internal/domain"
)

// User-facing copy. Kept together so the new and returning variants stay in
// step with each other.
const (
	msgInvalidPhone   = "Please enter a valid phone number."
	msgInvalidCode    = "Enter the code from your message (4 to 8 digits)."
	msgResendNeeded   = "This code can no longer be checked. Request a new code."
	msgConnectivity   = "We couldn't reach the server. Check your connection and try again."
	msgLinkFailed     = "We couldn't resend your referral link. Please try again."
	msgInvalidPayload = "Invalid response from server. Please try again."
)

func headline(mode domain.Mode, step domain.Step) string {
	switch {
	case mode == domain.ModeReturning && step == domain.StepPhone:
		return "Welcome back. Verify your phone to get your referral link."
	case mode == domain.ModeReturning && step == domain.StepReady:
		return "Welcome back! Here is your referral link."
	case step == domain.StepPhone:
		return "Verify your phone to get your referral link."
	case step == domain.StepReady:
		return "You're all set! Share your link to start earning."
	}
	return "Enter the code we just sent you."
}

func sendingText(ch domain.Channel) string {
	return fmt.Sprintf("Sending your code via %s...", ch.Label())
}

func waitingText(ch domain.Channel, attempt, total int) string {
	if attempt == 0 {
		return fmt.Sprintf("Waiting for %s delivery confirmation...", ch.Label())
	}
	return fmt.Sprintf("Waiting for %s delivery confirmation (%d/%d)...", ch.Label(), attempt, total)
}

func deliveredText(ch domain.Channel) string {
	return fmt.Sprintf("Code delivered via %s.", ch.Label())
}

func resentNotice(ch domain.Channel) string {
	return fmt.Sprintf("We sent a new code via %s.", ch.Label())
}

// deliveryFailedText is shared by DELIVERY_FAILED and DELIVERY_TIMEOUT; the
// two are only told apart by the error kind.
func deliveryFailedText(ch domain.Channel) string {
	if ch == domain.ChannelWhatsApp {
		return "We couldn't deliver your code via WhatsApp. Try SMS instead."
	}
	return "We couldn't deliver your code via SMS. Please try again."
}

func linkSentNotice(phone string) string {
	return fmt.Sprintf("We sent your referral link to %s.", phone)
}
