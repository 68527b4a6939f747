package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/JRebertt/shortcart-v3/services/payment/internal/domain"
)

// Kind classifies a gateway failure.
type Kind int

const (
	KindNotConfigured Kind = iota + 1
	KindUnsupportedMethod
	KindUnsupportedProvider
	KindNotImplemented
	KindProviderRejected
	KindTransport
	KindParse
	KindInvalidSignature
)

func (k Kind) String() string {
	switch k {
	case KindNotConfigured:
		return "not_configured"
	case KindUnsupportedMethod:
		return "unsupported_method"
	case KindUnsupportedProvider:
		return "unsupported_provider"
	case KindNotImplemented:
		return "not_implemented"
	case KindProviderRejected:
		return "provider_rejected"
	case KindTransport:
		return "transport"
	case KindParse:
		return "parse_error"
	case KindInvalidSignature:
		return "invalid_signature"
	}
	return "unknown"
}

// Error is the failure type every adapter returns.
type Error struct {
	Kind     Kind
	Provider domain.Provider
	// Status is the provider HTTP status when one was received.
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so callers can compare against the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Provider == "" && t.Kind == e.Kind
}

var (
	ErrNotConfigured       = &Error{Kind: KindNotConfigured}
	ErrUnsupportedMethod   = &Error{Kind: KindUnsupportedMethod}
	ErrUnsupportedProvider = &Error{Kind: KindUnsupportedProvider}
	ErrNotImplemented      = &Error{Kind: KindNotImplemented}
	ErrProviderRejected    = &Error{Kind: KindProviderRejected}
	ErrTransport           = &Error{Kind: KindTransport}
	ErrParse               = &Error{Kind: KindParse}
	ErrInvalidSignature    = &Error{Kind: KindInvalidSignature}
)

func NotConfigured(p domain.Provider) *Error {
	return &Error{Kind: KindNotConfigured, Provider: p, Message: "credentials not configured"}
}

func UnsupportedMethod(p domain.Provider, m domain.PaymentMethod) *Error {
	return &Error{Kind: KindUnsupportedMethod, Provider: p, Message: fmt.Sprintf("method %q not supported", m)}
}

func UnsupportedProvider(p domain.Provider) *Error {
	return &Error{Kind: KindUnsupportedProvider, Provider: p, Message: "unknown provider"}
}

func NotImplemented(p domain.Provider) *Error {
	return &Error{Kind: KindNotImplemented, Provider: p, Message: "no adapter available"}
}

// Rejected records a definitive provider refusal.
func Rejected(p domain.Provider, status int, msg string) *Error {
	return &Error{Kind: KindProviderRejected, Provider: p, Status: status, Message: msg}
}

func Transport(p domain.Provider, err error) *Error {
	return &Error{Kind: KindTransport, Provider: p, Err: err}
}

func Parse(p domain.Provider, msg string, err error) *Error {
	return &Error{Kind: KindParse, Provider: p, Message: msg, Err: err}
}

func InvalidSignature(p domain.Provider) *Error {
	return &Error{Kind: KindInvalidSignature, Provider: p, Message: "webhook signature mismatch"}
}

// KindOf returns the Kind of the first *Error in err's chain. Context
// errors classify as transport.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindTransport
	}
	return 0
}

// IsRetryable reports failures another gateway may succeed at.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransport
}
