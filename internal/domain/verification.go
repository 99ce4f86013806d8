package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// Channel is the OTP delivery transport.
type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

// ParseChannel accepts "sms" or "whatsapp" in any case.
func ParseChannel(s string) (Channel, error) {
	switch Channel(strings.ToLower(strings.TrimSpace(s))) {
	case ChannelSMS:
		return ChannelSMS, nil
	case ChannelWhatsApp:
		return ChannelWhatsApp, nil
	}
	return "", fmt.Errorf("unknown channel %q: %w", s, ErrValidation)
}

// Alternate returns the other channel.
func (c Channel) Alternate() Channel {
	if c == ChannelWhatsApp {
		return ChannelSMS
	}
	return ChannelWhatsApp
}

// Label is the human-readable channel name.
func (c Channel) Label() string {
	if c == ChannelWhatsApp {
		return "WhatsApp"
	}
	return "SMS"
}

// VerificationStatus tracks one phone-verification attempt.
type VerificationStatus string

const (
	StatusIdle            VerificationStatus = "IDLE"
	StatusSending         VerificationStatus = "SENDING"
	StatusWaitingDelivery VerificationStatus = "WAITING_DELIVERY"
	StatusDelivered       VerificationStatus = "DELIVERED"
	StatusSendFailed      VerificationStatus = "SEND_FAILED"
	StatusDeliveryFailed  VerificationStatus = "DELIVERY_FAILED"
	StatusDeliveryTimeout VerificationStatus = "DELIVERY_TIMEOUT"
	StatusCodeSubmitted   VerificationStatus = "CODE_SUBMITTED"
	StatusVerified        VerificationStatus = "VERIFIED"
	StatusVerifyFailed    VerificationStatus = "VERIFY_FAILED"
)

// RequiresMessageID reports whether a session in this status must carry a
// provider message identifier.
func (s VerificationStatus) RequiresMessageID() bool {
	switch s {
	case StatusWaitingDelivery, StatusDelivered, StatusDeliveryFailed,
		StatusDeliveryTimeout, StatusCodeSubmitted, StatusVerified:
		return true
	}
	return false
}

// DeliveryTerminal reports whether the status ends a delivery poll.
func (s VerificationStatus) DeliveryTerminal() bool {
	return s == StatusDelivered || s == StatusDeliveryFailed || s == StatusDeliveryTimeout
}

// VerificationSession is one live phone-verification attempt.
// MessageID is empty until the gateway accepts a send.
type VerificationSession struct {
	ID        string             `json:"id"`
	Phone     string             `json:"phone"`
	Channel   Channel            `json:"channel"`
	MessageID string             `json:"message_id,omitempty"`
	Status    VerificationStatus `json:"status"`
}

// Valid checks the message-id invariant.
func (s *VerificationSession) Valid() bool {
	return (s.MessageID != "") == s.Status.RequiresMessageID()
}

var loosePhone = regexp.MustCompile(`^[\d\s\-()+]+$`)

// IsLoosePhone applies the pre-send charset check. Numbers are not
// normalized or validated further on the client side.
func IsLoosePhone(phone string) bool {
	p := strings.TrimSpace(phone)
	return p != "" && loosePhone.MatchString(p)
}

var otpCode = regexp.MustCompile(`^\d{4,8}$`)

// IsOTPCode reports whether code looks like a user-entered one-time code.
func IsOTPCode(code string) bool {
	return otpCode.MatchString(strings.TrimSpace(code))
}

// SendOutcome is the result of one send-verification request.
// Exactly one of Accepted/Rejected semantics applies: MessageID is set on
// acceptance, Reason on rejection.
type SendOutcome struct {
	Accepted          bool
	MessageID         string
	ChannelUsed       Channel
	Reason            string
	Kind              ErrorKind
	SuggestedFallback Channel // empty when no fallback is offered
}

// Accepted builds an accepted send outcome.
func Accepted(messageID string, ch Channel) SendOutcome {
	return SendOutcome{Accepted: true, MessageID: messageID, ChannelUsed: ch}
}

// Rejected builds a rejected send outcome.
func Rejected(kind ErrorKind, reason string, fallback Channel) SendOutcome {
	return SendOutcome{Kind: kind, Reason: reason, SuggestedFallback: fallback}
}

// VerifyOutcome is the result of one verify-code request.
type VerifyOutcome struct {
	Verified     bool
	ReferralCode string
	ReferralLink string
	Reason       string
	Kind         ErrorKind
}
