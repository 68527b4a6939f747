package mercadopago

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/JRebertt/shortcart-v3/pkg/httpclient"
)

type probeKey struct{}

// probe captures the last HTTP status the SDK saw for one call. The SDK's
// errors do not expose it in a stable form.
type probe struct {
	status atomic.Int32
}

func (p *probe) code() int { return int(p.status.Load()) }

func withProbe(ctx context.Context) (context.Context, *probe) {
	p := &probe{}
	return context.WithValue(ctx, probeKey{}, p), p
}

// statusRecorder is the SDK requester. It routes through the shared Doer
// and records status codes into the request's probe.
type statusRecorder struct {
	doer httpclient.Doer
}

func (r *statusRecorder) Do(req *http.Request) (*http.Response, error) {
	resp, err := r.doer.Do(req.Context(), req)
	p, _ := req.Context().Value(probeKey{}).(*probe)
	if p == nil {
		return resp, err
	}
	var se *httpclient.StatusError
	switch {
	case err == nil:
		p.status.Store(int32(resp.StatusCode))
	case errors.As(err, &se):
		p.status.Store(int32(se.StatusCode))
	}
	return resp, err
}
