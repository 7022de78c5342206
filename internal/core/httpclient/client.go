// Package httpclient configures the HTTP client used to call the provider.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// NewOutbound creates the outbound client. The per-request deadline is the
// caller's business; the transport timeouts here only bound connection setup.
func NewOutbound(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          128,
		MaxIdleConnsPerHost:   64,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
