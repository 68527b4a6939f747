package webhook

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/JRebertt/shortcart-v3/pkg/httpclient"
	"github.com/JRebertt/shortcart-v3/pkg/logger"
)

type RetryPolicy struct {
	MaxRetries int
	// Delays[n] is waited before retry n+1; the last entry repeats.
	Delays []time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		Delays:     []time.Duration{time.Second, 5 * time.Second, 15 * time.Second},
	}
}

// Delay returns the wait before retry number n (0-based).
func (p RetryPolicy) Delay(n int) time.Duration {
	if len(p.Delays) == 0 {
		return 0
	}
	if n >= len(p.Delays) {
		n = len(p.Delays) - 1
	}
	return p.Delays[n]
}

// Retryable is true when no status was received, or for 408, 429 and 5xx.
// Permanent failures never are.
func Retryable(r Result) bool {
	if r.Permanent {
		return false
	}
	return r.StatusCode == 0 || httpclient.IsRetryableStatus(r.StatusCode)
}

// WaitFunc blocks for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

func timerWait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type RetrySender struct {
	sender Deliverer
	policy RetryPolicy
	wait   WaitFunc
	logger *slog.Logger
}

type RetryOption func(*RetrySender)

// WithWait replaces the timer-based wait, mainly for tests.
func WithWait(w WaitFunc) RetryOption {
	return func(r *RetrySender) { r.wait = w }
}

func WithRetryLogger(l *slog.Logger) RetryOption {
	return func(r *RetrySender) { r.logger = l }
}

func NewRetrySender(sender Deliverer, policy RetryPolicy, opts ...RetryOption) *RetrySender {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	r := &RetrySender{sender: sender, policy: policy, wait: timerWait, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SendWithRetry makes at most MaxRetries+1 attempts. Non-retryable answers
// end the run immediately. RetryCount is the number of retries performed.
func (r *RetrySender) SendWithRetry(ctx context.Context, d Delivery) Result {
	var res Result
	for attempt := 0; ; attempt++ {
		res = r.sender.Send(ctx, d)
		res.RetryCount = attempt
		deliveryAttempts.WithLabelValues(statusClass(res.StatusCode)).Inc()

		if res.Success {
			deliveries.WithLabelValues("delivered").Inc()
			return res
		}
		if !Retryable(res) {
			deliveries.WithLabelValues("rejected").Inc()
			return res
		}
		if attempt >= r.policy.MaxRetries {
			deliveries.WithLabelValues("exhausted").Inc()
			logger.WithContext(ctx, r.logger).Warn("webhook delivery exhausted retries",
				slog.String("url", d.URL),
				slog.String("event", string(d.Event)),
				slog.Int("status_code", res.StatusCode),
				slog.Int("retries", attempt),
			)
			return res
		}
		if err := r.wait(ctx, r.policy.Delay(attempt)); err != nil {
			deliveries.WithLabelValues("abandoned").Inc()
			res.Error = res.Error + "; retry abandoned: " + err.Error()
			return res
		}
	}
}

// SendBatch runs SendWithRetry for each delivery concurrently.
func (r *RetrySender) SendBatch(ctx context.Context, ds []Delivery) []Result {
	return sendBatch(ctx, deliverFunc(r.SendWithRetry), ds)
}

type deliverFunc func(ctx context.Context, d Delivery) Result

func (f deliverFunc) Send(ctx context.Context, d Delivery) Result { return f(ctx, d) }

func statusClass(code int) string {
	switch {
	case code == 0:
		return "none"
	case code < 300:
		return "2xx"
	case code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests:
		return "4xx"
	case code < 500:
		return "retryable_4xx"
	}
	return "5xx"
}
