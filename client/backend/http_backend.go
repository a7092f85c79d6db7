package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	httptrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/net/http"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultServiceName = "webtrekk-client"
)

// StatusError is returned when the endpoint answered with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("failed to GET %s: status_code=%d", e.URL, e.StatusCode)
}

// HTTPSender implements Sender by issuing a GET for every track request URL.
type HTTPSender struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
}

// HTTPSenderOption is a functional option for configuring HTTPSender
type HTTPSenderOption func(*HTTPSender)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) HTTPSenderOption {
	return func(s *HTTPSender) {
		s.client = client
	}
}

// WithTimeout bounds every delivery, including reading the response
func WithTimeout(timeout time.Duration) HTTPSenderOption {
	return func(s *HTTPSender) {
		s.timeout = timeout
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(userAgent string) HTTPSenderOption {
	return func(s *HTTPSender) {
		s.userAgent = userAgent
	}
}

// WithTracing wraps the client so that every delivery is reported as a span of serviceName.
// Must come after WithHTTPClient to trace a custom client.
func WithTracing(serviceName string) HTTPSenderOption {
	return func(s *HTTPSender) {
		s.client = httptrace.WrapClient(s.client, httptrace.RTWithServiceName(serviceName))
	}
}

// NewHTTPSender creates a new HTTP sender with the given options.
func NewHTTPSender(opts ...HTTPSenderOption) *HTTPSender {
	s := &HTTPSender{
		client:  &http.Client{},
		timeout: DefaultTimeout,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Type returns "http" to identify this sender type.
func (s *HTTPSender) Type() string {
	return string(SenderTypeHTTP)
}

func (s *HTTPSender) Send(ctx context.Context, url string) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create GET request: %w", err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to GET %s: %w", url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	return nil
}

// IsOfflineError reports whether err looks like the device or the endpoint being unreachable,
// as opposed to the endpoint rejecting the request.
func IsOfflineError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusBadGateway ||
			statusErr.StatusCode == http.StatusServiceUnavailable ||
			statusErr.StatusCode == http.StatusGatewayTimeout
	}
	if strings.Contains(err.Error(), ": no such host") ||
		strings.Contains(err.Error(), "connect: network is unreachable") ||
		strings.Contains(err.Error(), "read: connection reset by peer") ||
		strings.Contains(err.Error(), ": EOF") ||
		strings.Contains(err.Error(), ": i/o timeout") ||
		strings.Contains(err.Error(), "connect: operation timed out") ||
		strings.Contains(err.Error(), "net/http: TLS handshake timeout") ||
		strings.Contains(err.Error(), "connect: connection refused") {
		return true
	}
	return false
}
