package service

import (
	"errors"
	"fmt"

	apperrors "github.com/JRebertt/shortcart-v3/pkg/errors"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/domain"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/gateway"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/manager"
)

// toAppError maps gateway and manager failures onto client-facing errors.
func toAppError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}

	switch {
	case errors.Is(err, manager.ErrNoGatewayConfigured):
		return apperrors.ServiceUnavailable("no payment gateway is configured", err)
	case errors.Is(err, gateway.ErrUnsupportedMethod):
		return apperrors.InvalidInput(err.Error())
	}

	switch gateway.KindOf(err) {
	case gateway.KindProviderRejected:
		var gerr *gateway.Error
		msg := "payment rejected by provider"
		if errors.As(err, &gerr) && gerr.Message != "" {
			msg = fmt.Sprintf("payment rejected by %s: %s", gerr.Provider, gerr.Message)
		}
		return apperrors.PaymentFailed(msg, err)
	case gateway.KindNotConfigured:
		return apperrors.ServiceUnavailable("payment gateway is not configured", err)
	case gateway.KindUnsupportedProvider, gateway.KindNotImplemented:
		return apperrors.InvalidInput(err.Error())
	case gateway.KindParse:
		return apperrors.BadGateway("unreadable payment provider response", err)
	case gateway.KindInvalidSignature:
		return apperrors.Unauthorized("invalid webhook signature")
	}

	var all *manager.AllGatewaysFailedError
	if errors.As(err, &all) {
		return apperrors.ServiceUnavailable("no payment gateway could process the payment", err)
	}
	if gateway.KindOf(err) == gateway.KindTransport {
		return apperrors.BadGateway("payment provider unavailable", err)
	}
	return apperrors.Internal(err)
}

func gatewayNotFound(organizationID string, p domain.Provider) error {
	return apperrors.NotFound("gateway", organizationID+"/"+string(p))
}
