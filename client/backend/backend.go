// Package backend delivers encoded track requests to the collection endpoint.
//   - HTTPSender: performs a GET of the request URL (default)
//   - LogSender: writes the request URL to the log instead of sending it, for dry runs
package backend

import (
	"context"
)

// Sender delivers a single track request. A nil error means the endpoint confirmed receipt.
// Implementations must honour ctx cancellation.
type Sender interface {
	Send(ctx context.Context, url string) error

	// Type returns the sender type identifier ("http" or "log").
	Type() string
}

// SenderType represents the type of sender
type SenderType string

const (
	SenderTypeHTTP SenderType = "http"
	SenderTypeLog  SenderType = "log"
)
