package domain

import (
	"regexp"
	"strings"
	"time"
)

// AttributionSource records how a referral code was captured.
type AttributionSource string

const (
	SourceURL    AttributionSource = "URL"
	SourceManual AttributionSource = "MANUAL"
)

// AttributionRecord is the single persisted referral-code slot.
// PK: slot_key (visitor ID). ExpiresAtUnix is the DynamoDB TTL attribute;
// logical expiry is always ExpiresAt, checked on read.
type AttributionRecord struct {
	SlotKey       string            `json:"-" dynamodbav:"slot_key"`
	Code          string            `json:"code" dynamodbav:"code"`
	CapturedAt    time.Time         `json:"captured_at" dynamodbav:"captured_at"`
	ExpiresAt     time.Time         `json:"expires_at" dynamodbav:"-"`
	Source        AttributionSource `json:"source" dynamodbav:"source"`
	ExpiresAtUnix int64             `json:"-" dynamodbav:"expires_at"`
}

// Expired reports whether the record is logically absent at now.
func (r *AttributionRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

var referralCode = regexp.MustCompile(`^[A-Z0-9-]{3,20}$`)

// NormalizeReferralCode trims and uppercases a raw code.
func NormalizeReferralCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// IsValidReferralCode reports whether raw, once normalized, is 3–20
// characters of [A-Z0-9-].
func IsValidReferralCode(raw string) bool {
	return referralCode.MatchString(NormalizeReferralCode(raw))
}
