package encode

import (
	"errors"
	"fmt"
	"strconv"
)

const (
	KeyMediaName      = "mi"
	KeyMediaAction    = "mk"
	KeyMediaPosition  = "mt1"
	KeyMediaDuration  = "mt2"
	KeyMediaBandwidth = "bw"
	KeyMediaMute      = "mut"
	KeyMediaVolume    = "vol"
)

var ErrInvalidMediaAction = errors.New("invalid media action")

// MediaAction is one of a fixed set of player actions. New actions are added here, callers
// cannot invent their own.
type MediaAction string

const (
	MediaInit  MediaAction = "init"
	MediaPlay  MediaAction = "play"
	MediaPause MediaAction = "pause"
	MediaStop  MediaAction = "stop"
	MediaSeek  MediaAction = "seek"
	MediaPos   MediaAction = "pos"
	MediaEOF   MediaAction = "eof"
)

var mediaActions = []MediaAction{MediaInit, MediaPlay, MediaPause, MediaStop, MediaSeek, MediaPos, MediaEOF}

func (a MediaAction) Valid() bool {
	for _, known := range mediaActions {
		if a == known {
			return true
		}
	}
	return false
}

func ParseMediaAction(s string) (MediaAction, error) {
	a := MediaAction(s)
	if !a.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidMediaAction, s)
	}
	return a, nil
}

type MediaParameters struct {
	Name       string
	Action     MediaAction
	Position   int64
	Duration   int64
	Bandwidth  *int64
	Mute       *bool
	Volume     *int
	Categories map[int]string
}

// Params returns the four required keys followed by whichever optional values are set.
// Unset optional values are left out entirely.
func (m *MediaParameters) Params() *Params {
	out := NewParams()
	if m == nil {
		return out
	}
	out.Set(KeyMediaName, m.Name)
	out.Set(KeyMediaAction, string(m.Action))
	out.Set(KeyMediaPosition, strconv.FormatInt(m.Position, 10))
	out.Set(KeyMediaDuration, strconv.FormatInt(m.Duration, 10))
	if m.Bandwidth != nil {
		out.Set(KeyMediaBandwidth, strconv.FormatInt(*m.Bandwidth, 10))
	}
	if m.Mute != nil {
		out.Set(KeyMediaMute, formatBool(*m.Mute))
	}
	if m.Volume != nil {
		out.Set(KeyMediaVolume, strconv.Itoa(*m.Volume))
	}
	putIndexed(out, prefixMediaCategory, m.Categories)
	return out
}

func (m *MediaParameters) Validate() error {
	if m == nil {
		return errors.New("media parameters are required")
	}
	if m.Name == "" {
		return errors.New("media name is required")
	}
	if !m.Action.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMediaAction, m.Action)
	}
	if m.Position < 0 || m.Duration < 0 {
		return fmt.Errorf("media position and duration must not be negative (position=%d, duration=%d)", m.Position, m.Duration)
	}
	return nil
}

type MediaEvent struct {
	PageName         string
	CustomParameters *Params
	Media            *MediaParameters
	Page             *PageParameters
	Session          *SessionParameters
	ECommerce        *ECommerceParameters
	Campaign         *CampaignParameters
	User             *UserCategories
}

func (e *MediaEvent) Name() string {
	return e.PageName
}

func (e *MediaEvent) Params() (*Params, error) {
	if err := e.Media.Validate(); err != nil {
		return nil, err
	}
	return merge(e.CustomParameters, e.Media, e.Page, e.Session, e.User, e.ECommerce, e.Campaign), nil
}
