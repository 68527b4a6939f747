package httpclient

import "net/http"

// Transport exposes a Doer as an http.RoundTripper so SDKs that only
// accept an *http.Client still go through retries and the breaker.
type Transport struct {
	Doer Doer
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.Doer.Do(req.Context(), req)
}

// NewSDKClient wraps d in an *http.Client. Timeouts are left to d.
func NewSDKClient(d Doer) *http.Client {
	return &http.Client{Transport: &Transport{Doer: d}}
}
