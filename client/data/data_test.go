package data

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGenerateEverId(t *testing.T) {
	now := time.Unix(1641774958, 0)
	everId := GenerateEverId(now)
	require.Len(t, everId, 19)
	require.Regexp(t, regexp.MustCompile(`^6\d{18}$`), everId)
	require.Equal(t, "61641774958", everId[:11])

	// Seconds are zero padded to 10 digits
	everId = GenerateEverId(time.Unix(42, 0))
	require.Equal(t, "60000000042", everId[:11])
}

func TestGenerateEverIdIsRandom(t *testing.T) {
	now := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		seen[GenerateEverId(now)] = true
	}
	require.Greater(t, len(seen), 1)
}

func TestGetWebtrekkPath(t *testing.T) {
	t.Setenv("WEBTREKK_PATH", "/tmp/wt-test")
	require.Equal(t, "/tmp/wt-test", GetWebtrekkPath())
}

func TestTrackRequestCreated(t *testing.T) {
	ts := time.Date(2022, 1, 9, 10, 0, 0, 0, time.UTC)
	req := TrackRequest{TimeStamp: ts.UnixMilli()}
	require.True(t, req.Created().Equal(ts))
}
