package backend

// Wire shapes of the verification backend. Field names follow the backend's
// camelCase JSON.

type SendVerificationRequest struct {
	Phone  string `json:"phone"`
	Method string `json:"method"` // "sms" | "whatsapp"
}

type SendVerificationResponse struct {
	Success     bool   `json:"success"`
	ChannelUsed string `json:"channelUsed,omitempty"`
	MessageSid  string `json:"messageSid,omitempty"`
	Message     string `json:"message,omitempty"`
	Suggestion  string `json:"suggestion,omitempty"`
	HTTPStatus  int    `json:"-"`
}

// SuggestionTrySMS is the fallback signal returned when WhatsApp cannot
// reach the number.
const SuggestionTrySMS = "Try SMS instead"

type DeliveryStatusResponse struct {
	OK          bool `json:"ok"`
	IsDelivered bool `json:"isDelivered"`
	IsFailed    bool `json:"isFailed"`
}

type VerifyCodeRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

type VerifyCodeResponse struct {
	Success      bool   `json:"success"`
	Verified     bool   `json:"verified"`
	ReferralCode string `json:"referralCode,omitempty"`
	ReferralLink string `json:"referralLink,omitempty"`
	Error        string `json:"error,omitempty"`
	HTTPStatus   int    `json:"-"`
}

type ResendLinkRequest struct {
	Phone string `json:"phone"`
}

type ResendLinkResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
