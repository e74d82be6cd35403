package toolauth

import "net/http"

// Transport stamps the per-call Authorization header onto every outbound
// request of a shared http.Client. The token is read from the request context
// at round-trip time, so the same client instance serves many users safely.
type Transport struct {
	Base    http.RoundTripper
	Headers *HeaderSet
}

// NewClient builds an http.Client whose requests carry the context-bound token.
func NewClient(headers *HeaderSet) *http.Client {
	if headers == nil {
		headers = NewHeaderSet(nil)
	}
	return &http.Client{Transport: &Transport{Headers: headers}}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	clone := req.Clone(req.Context())
	if t.Headers != nil {
		t.Headers.Apply(req.Context(), clone.Header)
	} else if tok := Token(req.Context()); tok != "" {
		clone.Header.Set("Authorization", bearer(tok))
	}
	return base.RoundTrip(clone)
}
