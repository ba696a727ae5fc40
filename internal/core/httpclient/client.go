// Package httpclient configures the HTTP client used to call OGC API services.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// NewOutbound creates the shared client. Per-document deadlines come from the caller's context;
// the client timeout only bounds requests issued without one.
func NewOutbound(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          128,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   2 * timeout,
	}
}

// BasicAuth wraps rt so every request carries the given credentials.
// Empty user returns rt unchanged.
func BasicAuth(rt http.RoundTripper, user, pass string) http.RoundTripper {
	if user == "" {
		return rt
	}
	if rt == nil {
		rt = http.DefaultTransport
	}
	return basicAuthTransport{next: rt, user: user, pass: pass}
}

type basicAuthTransport struct {
	next       http.RoundTripper
	user, pass string
}

func (t basicAuthTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r2 := r.Clone(r.Context())
	r2.SetBasicAuth(t.user, t.pass)
	return t.next.RoundTrip(r2)
}
