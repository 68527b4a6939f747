// Package webhook delivers signed JSON notifications to subscriber URLs and
// retries the failures worth retrying.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JRebertt/shortcart-v3/pkg/httpclient"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/domain"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/gateway"
)

const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderEvent     = "X-Webhook-Event"
	HeaderDelivery  = "X-Webhook-Delivery"

	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "shortcart-webhook/1.0"

	maxResponseBody = 64 << 10
	batchLimit      = 16
)

// Delivery is one notification to one endpoint. Payload is serialized as
// JSON; the signature covers exactly the bytes sent.
type Delivery struct {
	URL     string
	Event   domain.WebhookEvent
	Payload any
	Secret  string
	Headers map[string]string
}

// Result describes the outcome of a delivery. StatusCode is 0 when no HTTP
// answer was received.
type Result struct {
	Success    bool      `json:"success"`
	StatusCode int       `json:"status_code,omitempty"`
	Response   string    `json:"response,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	RetryCount int       `json:"retry_count"`
	// Permanent marks failures that happened before any request was sent.
	Permanent bool `json:"permanent,omitempty"`
}

// Deliverer sends a single delivery attempt.
type Deliverer interface {
	Send(ctx context.Context, d Delivery) Result
}

type Sender struct {
	client    httpclient.Doer
	timeout   time.Duration
	userAgent string
	now       func() time.Time
	logger    *slog.Logger
}

var _ Deliverer = (*Sender)(nil)

type SenderOption func(*Sender)

func WithTimeout(d time.Duration) SenderOption {
	return func(s *Sender) { s.timeout = d }
}

func WithClock(now func() time.Time) SenderOption {
	return func(s *Sender) { s.now = now }
}

func WithLogger(l *slog.Logger) SenderOption {
	return func(s *Sender) { s.logger = l }
}

func NewSender(client httpclient.Doer, opts ...SenderOption) *Sender {
	s := &Sender{
		client:    client,
		timeout:   DefaultTimeout,
		userAgent: DefaultUserAgent,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send performs one POST. Failures are reported in the Result, never as a
// panic or error.
func (s *Sender) Send(ctx context.Context, d Delivery) Result {
	started := s.now()
	res := Result{Timestamp: started}

	body, err := json.Marshal(d.Payload)
	if err != nil {
		res.Error = fmt.Sprintf("encode payload: %v", err)
		res.Permanent = true
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(body))
	if err != nil {
		res.Error = fmt.Sprintf("build request: %v", err)
		res.Permanent = true
		return res
	}
	for k, v := range d.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set(HeaderDelivery, uuid.NewString())
	if d.Event != "" {
		req.Header.Set(HeaderEvent, string(d.Event))
	}
	if d.Secret != "" {
		req.Header.Set(HeaderSignature, Sign(body, d.Secret))
		req.Header.Set(HeaderTimestamp, strconv.FormatInt(started.Unix(), 10))
	}

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		var se *httpclient.StatusError
		if errors.As(err, &se) {
			res.StatusCode = se.StatusCode
			res.Response = string(se.Body)
		}
		res.Error = err.Error()
		return res
	}
	defer func() { _ = resp.Body.Close() }()

	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	res.StatusCode = resp.StatusCode
	res.Response = string(b)
	res.Success = resp.StatusCode >= 200 && resp.StatusCode < 300
	if !res.Success {
		res.Error = fmt.Sprintf("endpoint answered %d", resp.StatusCode)
	}
	return res
}

// SendBatch delivers concurrently. One failing endpoint never affects the
// others; results follow the input order.
func (s *Sender) SendBatch(ctx context.Context, ds []Delivery) []Result {
	return sendBatch(ctx, s, ds)
}

func sendBatch(ctx context.Context, d Deliverer, ds []Delivery) []Result {
	results := make([]Result, len(ds))
	var g errgroup.Group
	g.SetLimit(batchLimit)
	for i, delivery := range ds {
		g.Go(func() error {
			results[i] = d.Send(ctx, delivery)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Sign returns the lowercase hex HMAC-SHA256 of payload.
func Sign(payload []byte, secret string) string {
	return gateway.SignHMAC(payload, secret)
}

// ValidateSignature recomputes the signature and compares in constant time.
func ValidateSignature(payload []byte, signature, secret string) bool {
	return gateway.VerifyHMAC(payload, signature, secret)
}
