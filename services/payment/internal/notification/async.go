package notification

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/JRebertt/shortcart-v3/pkg/logger"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/domain"
)

// AsyncNotifier runs the wrapped notifier in the background so callers do
// not wait out webhook retries. It is used when no broker is configured.
type AsyncNotifier struct {
	next    Notifier
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

var _ Notifier = (*AsyncNotifier)(nil)

// NewAsyncNotifier bounds each background notification by timeout.
func NewAsyncNotifier(next Notifier, timeout time.Duration, logger *slog.Logger) *AsyncNotifier {
	return &AsyncNotifier{next: next, timeout: timeout, logger: logger}
}

// Notify never fails; errors are logged from the background goroutine.
func (a *AsyncNotifier) Notify(ctx context.Context, n domain.PaymentNotification) error {
	bg := context.WithoutCancel(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(bg, a.timeout)
		defer cancel()
		if err := a.next.Notify(ctx, n); err != nil {
			logger.WithContext(ctx, a.logger).Error("background notification failed",
				slog.String("event", string(n.Event)),
				slog.String("payment_id", n.PaymentID),
				slog.String("error", err.Error()),
			)
		}
	}()
	return nil
}

// Wait blocks until in-flight notifications finish or ctx is done.
func (a *AsyncNotifier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
