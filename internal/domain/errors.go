package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrBadRequest = errors.New("bad request")

	// Onboarding failure taxonomy.
	ErrValidation        = errors.New("validation failed")
	ErrChannelDelivery   = errors.New("channel delivery failed")
	ErrDeliveryTimeout   = errors.New("delivery confirmation timed out")
	ErrTransport         = errors.New("backend unreachable")
	ErrContractViolation = errors.New("backend contract violation")
)

// ErrorKind classifies a user-facing failure on the onboarding view.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindChannelDelivery   ErrorKind = "channel_delivery"
	KindTimeout           ErrorKind = "timeout"
	KindTransport         ErrorKind = "transport"
	KindContractViolation ErrorKind = "contract_violation"
	KindRejected          ErrorKind = "rejected"
)

// Err returns the sentinel matching the kind, or nil for KindRejected
// (a plain server-side refusal carries only its message).
func (k ErrorKind) Err() error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindChannelDelivery:
		return ErrChannelDelivery
	case KindTimeout:
		return ErrDeliveryTimeout
	case KindTransport:
		return ErrTransport
	case KindContractViolation:
		return ErrContractViolation
	}
	return nil
}
