//go:build !offline
// +build !offline

package lib

import "github.com/webtrekk/webtrekk-go/client/backend"

const defaultSenderType = backend.SenderTypeHTTP

func IsOfflineBinary() bool {
	return false
}
