package encode

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/webtrekk/webtrekk-go/client/data"
)

var ErrNilEvent = errors.New("event must not be nil")

// Snapshot is the session state copied into a request at creation time.
type Snapshot struct {
	Fns string
	One string
}

type Encoder struct {
	device           DeviceInfo
	screenResolution string
	appVersion       string
	now              func() time.Time
}

type Option func(*Encoder)

func WithDeviceInfo(device DeviceInfo) Option {
	return func(e *Encoder) {
		e.device = device
	}
}

func WithScreenResolution(resolution string) Option {
	return func(e *Encoder) {
		e.screenResolution = resolution
	}
}

func WithAppVersion(version string) Option {
	return func(e *Encoder) {
		e.appVersion = version
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Encoder) {
		e.now = now
	}
}

func NewEncoder(opts ...Option) *Encoder {
	e := &Encoder{
		device:           DefaultDeviceInfo(),
		screenResolution: "0x0",
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewTrackRequest fills in every required field of a request named name.
func (e *Encoder) NewTrackRequest(name string, snap Snapshot) data.TrackRequest {
	now := e.now()
	_, offset := now.Zone()
	return data.TrackRequest{
		RequestId:          uuid.Must(uuid.NewRandom()).String(),
		Name:               name,
		ScreenResolution:   e.screenResolution,
		Fns:                snap.Fns,
		One:                snap.One,
		TimeStamp:          now.UnixMilli(),
		Language:           e.device.Language,
		Country:            e.device.Country,
		TimeZone:           TimeZoneOffset(offset),
		OsName:             e.device.OsName,
		OsVersion:          e.device.OsVersion,
		DeviceManufacturer: e.device.Manufacturer,
		DeviceModel:        e.device.Model,
		AppVersion:         e.appVersion,
		LibraryVersion:     LibraryVersion,
	}
}

// Encode resolves ev into a request and the ordered parameters persisted with it. custom
// comes first and the event's parameters follow, so the event's groups win on collisions.
func (e *Encoder) Encode(ev Event, custom *Params, snap Snapshot) (data.TrackRequest, *Params, error) {
	if ev == nil {
		return data.TrackRequest{}, nil, ErrNilEvent
	}
	evParams, err := ev.Params()
	if err != nil {
		return data.TrackRequest{}, nil, err
	}
	params := NewParams()
	params.PutAll(custom)
	params.PutAll(evParams)
	return e.NewTrackRequest(ev.Name(), snap), params, nil
}
