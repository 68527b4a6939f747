package manager

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JRebertt/shortcart-v3/services/payment/internal/domain"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/gateway"
)

var (
	ErrNoGatewayConfigured = errors.New("no payment gateway configured")
	// ErrUnsupportedMethod matches gateway.ErrUnsupportedMethod as well.
	ErrUnsupportedMethod = fmt.Errorf("no active gateway supports the payment method: %w", gateway.ErrUnsupportedMethod)
	// ErrGatewayUnhealthy is recorded for candidates skipped by the health probe.
	ErrGatewayUnhealthy = errors.New("gateway reported unhealthy")
)

// AllGatewaysFailedError ends a failover run that found no gateway able to
// take the payment.
type AllGatewaysFailedError struct {
	Attempted []domain.Provider
	LastErr   error
}

func (e *AllGatewaysFailedError) Error() string {
	names := make([]string, len(e.Attempted))
	for i, p := range e.Attempted {
		names[i] = string(p)
	}
	msg := "all payment gateways failed"
	if len(names) > 0 {
		msg += " [" + strings.Join(names, ", ") + "]"
	}
	if e.LastErr != nil {
		msg += ": " + e.LastErr.Error()
	}
	return msg
}

func (e *AllGatewaysFailedError) Unwrap() error { return e.LastErr }
