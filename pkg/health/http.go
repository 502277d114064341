package health

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPChecker performs HTTP or HTTPS probes (spec.md section 4.4
// protocols HTTP/HTTPS). Grounded on the teacher's HTTPChecker, extended
// with an explicit accepted-status-code list for the readiness variant
// (spec.md section 4.4 "HTTPStatusCodesForReady") alongside the health
// variant's min/max range.
type HTTPChecker struct {
	URL     string
	Method  string
	Headers map[string]string

	ExpectedStatusMin int
	ExpectedStatusMax int
	AcceptedStatuses  []int // when non-empty, overrides the min/max range

	Client *http.Client
}

// NewHTTPChecker returns an HTTPChecker with the teacher's defaults: GET,
// 2xx-3xx accepted, 10s client timeout.
func NewHTTPChecker(url string) *HTTPChecker {
	return &HTTPChecker{
		URL:               url,
		Method:            "GET",
		Headers:           make(map[string]string),
		ExpectedStatusMin: 200,
		ExpectedStatusMax: 399,
		Client:            &http.Client{Timeout: 10 * time.Second},
	}
}

func (h *HTTPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, h.Method, h.URL, nil)
	if err != nil {
		return Result{Healthy: false, Message: fmt.Sprintf("failed to create request: %v", err), CheckedAt: start, Duration: time.Since(start)}
	}
	for key, value := range h.Headers {
		req.Header.Set(key, value)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return Result{Healthy: false, Message: fmt.Sprintf("request failed: %v", err), CheckedAt: start, Duration: time.Since(start)}
	}
	defer resp.Body.Close()

	healthy := h.accepts(resp.StatusCode)
	message := fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	if !healthy {
		message = fmt.Sprintf("%s (unexpected status)", message)
	}
	return Result{Healthy: healthy, Message: message, CheckedAt: start, Duration: time.Since(start)}
}

func (h *HTTPChecker) accepts(status int) bool {
	if len(h.AcceptedStatuses) > 0 {
		for _, s := range h.AcceptedStatuses {
			if s == status {
				return true
			}
		}
		return false
	}
	return status >= h.ExpectedStatusMin && status <= h.ExpectedStatusMax
}

func (h *HTTPChecker) Type() CheckType { return CheckTypeHTTP }

func (h *HTTPChecker) WithTimeout(timeout time.Duration) *HTTPChecker {
	h.Client.Timeout = timeout
	return h
}
