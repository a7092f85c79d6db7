package backend

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds the minimal configuration needed to create a sender.
// This avoids circular imports with the tctx package.
type Config struct {
	// SenderType is either "http" (default) or "log"
	SenderType string

	// Timeout bounds a single delivery
	Timeout time.Duration

	// UserAgent is sent as the User-Agent header of every delivery
	UserAgent string

	// EnableTracing wraps the HTTP client with dd-trace-go
	EnableTracing bool

	// Logger is used by the log sender
	Logger *logrus.Logger
}

// NewSenderFromConfig creates the appropriate sender based on configuration.
func NewSenderFromConfig(cfg Config) (Sender, error) {
	switch SenderType(cfg.SenderType) {
	case SenderTypeLog:
		if cfg.Logger == nil {
			return nil, fmt.Errorf("the log sender requires a logger")
		}
		return NewLogSender(cfg.Logger), nil
	case SenderTypeHTTP, "":
		opts := []HTTPSenderOption{}
		if cfg.Timeout > 0 {
			opts = append(opts, WithTimeout(cfg.Timeout))
		}
		if cfg.UserAgent != "" {
			opts = append(opts, WithUserAgent(cfg.UserAgent))
		}
		if cfg.EnableTracing {
			opts = append(opts, WithTracing(DefaultServiceName))
		}
		return NewHTTPSender(opts...), nil
	default:
		return nil, fmt.Errorf("unknown sender type: %q", cfg.SenderType)
	}
}
