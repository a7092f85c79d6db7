//go:build offline
// +build offline

package lib

import "github.com/webtrekk/webtrekk-go/client/backend"

// Binaries built with the offline tag only log what they would have sent.
const defaultSenderType = backend.SenderTypeLog

func IsOfflineBinary() bool {
	return true
}
