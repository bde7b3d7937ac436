// Package httpc builds HTTP clients with production timeouts. Provider
// clients use it instead of http.DefaultClient, which has none.
package httpc

import (
	"net"
	"net/http"
	"time"
)

// Default timeouts for provider HTTP traffic.
const (
	DefaultTimeout        = 30 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultKeepAlive      = 30 * time.Second
)

// NewClient creates an HTTP client with the given overall request timeout.
// A zero timeout falls back to DefaultTimeout; streaming responses (SSE)
// count the full body read against it, so callers streaming long replies
// should pass their own budget.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   DefaultConnectTimeout,
				KeepAlive: DefaultKeepAlive,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
		},
	}
}
