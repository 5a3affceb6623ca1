package health

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxBodyRead bounds how much of a response body is inspected
const maxBodyRead = 64 << 10

// HTTPChecker passes when URL answers with a status in [StatusMin, StatusMax]
// and, if ExpectBody is set, a body containing it.
type HTTPChecker struct {
	Label     string
	URL       string
	Method    string
	Headers   map[string]string
	StatusMin int
	StatusMax int

	ExpectBody string

	Client *http.Client
}

// NewHTTPChecker accepts any 2xx or 3xx answer to a GET of url
func NewHTTPChecker(url string) *HTTPChecker {
	return &HTTPChecker{
		Label:     "http " + url,
		URL:       url,
		Method:    http.MethodGet,
		Headers:   make(map[string]string),
		StatusMin: 200,
		StatusMax: 399,
		Client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// NewVaultChecker checks Vault's health endpoint on host. Active and standby
// nodes are healthy; sealed (503) and uninitialized (501) nodes are not.
func NewVaultChecker(host string, port int) *HTTPChecker {
	return NewHTTPChecker(fmt.Sprintf("http://%s/v1/sys/health?standbyok=true", hostPort(host, port))).
		Named("vault-http").
		WithStatusRange(200, 200)
}

// NewConsulLeaderChecker checks that the Consul agent on host knows a raft
// leader. Consul answers "" while there is none.
func NewConsulLeaderChecker(host string, port int) *HTTPChecker {
	c := NewHTTPChecker(fmt.Sprintf("http://%s/v1/status/leader", hostPort(host, port))).Named("consul-leader")
	c.ExpectBody = ":"
	return c
}

func hostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func (h *HTTPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, h.Method, h.URL, nil)
	if err != nil {
		return outcome(start, false, fmt.Sprintf("bad request: %v", err))
	}
	for k, v := range h.Headers {
		req.Header.Set(k, v)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return outcome(start, false, fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	if msg, ok := h.verify(resp); !ok {
		return outcome(start, false, msg)
	}
	return outcome(start, true, status(resp))
}

// verify applies the status and body expectations to resp
func (h *HTTPChecker) verify(resp *http.Response) (string, bool) {
	if resp.StatusCode < h.StatusMin || resp.StatusCode > h.StatusMax {
		return fmt.Sprintf("%s (expected %d-%d)", status(resp), h.StatusMin, h.StatusMax), false
	}
	if h.ExpectBody == "" {
		return "", true
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyRead))
	if err != nil {
		return fmt.Sprintf("failed to read body: %v", err), false
	}
	if !strings.Contains(string(body), h.ExpectBody) {
		return fmt.Sprintf("%s: body does not contain %q", status(resp), h.ExpectBody), false
	}
	return "", true
}

func status(resp *http.Response) string {
	return fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}

func (h *HTTPChecker) Type() CheckType { return CheckTypeHTTP }
func (h *HTTPChecker) Name() string    { return h.Label }

// Named sets the label shown in reports
func (h *HTTPChecker) Named(label string) *HTTPChecker {
	h.Label = label
	return h
}

// WithMethod sets the HTTP method
func (h *HTTPChecker) WithMethod(method string) *HTTPChecker {
	h.Method = method
	return h
}

// WithHeader adds a request header
func (h *HTTPChecker) WithHeader(key, value string) *HTTPChecker {
	h.Headers[key] = value
	return h
}

// WithStatusRange sets the accepted status codes, inclusive
func (h *HTTPChecker) WithStatusRange(min, max int) *HTTPChecker {
	h.StatusMin, h.StatusMax = min, max
	return h
}

// WithTimeout sets the client timeout
func (h *HTTPChecker) WithTimeout(timeout time.Duration) *HTTPChecker {
	h.Client.Timeout = timeout
	return h
}
