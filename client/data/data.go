package data

import (
	"fmt"
	"math/rand"
	"os"
	"time"
)

const (
	CONFIG_PATH = ".webtrekk.config"
	DB_PATH     = ".webtrekk.db"
	LOG_PATH    = "webtrekk.log"
)

const (
	defaultWebtrekkPath = ".webtrekk"
)

// Keys used in the preferences table.
const (
	PrefEverId       = "ever_id"
	PrefAppFirstOpen = "one"
	PrefForceNewSess = "fns"
	PrefLastActivity = "last_activity"
	PrefOptOut       = "opt_out"
)

// TrackRequest is a snapshot of one trackable occurrence. Once persisted it is never updated,
// later session changes only affect requests created afterwards.
type TrackRequest struct {
	Id                 uint64 `json:"id" gorm:"primaryKey;autoIncrement"`
	RequestId          string `json:"request_id" gorm:"uniqueIndex:request_id_index"`
	Name               string `json:"name"`
	ScreenResolution   string `json:"screen_resolution"`
	Fns                string `json:"fns"`
	One                string `json:"one"`
	TimeStamp          int64  `json:"time_stamp" gorm:"index:time_stamp_index"`
	Language           string `json:"language"`
	Country            string `json:"country"`
	TimeZone           string `json:"time_zone"`
	OsName             string `json:"os_name"`
	OsVersion          string `json:"os_version"`
	DeviceManufacturer string `json:"device_manufacturer"`
	DeviceModel        string `json:"device_model"`
	AppVersion         string `json:"app_version"`
	LibraryVersion     string `json:"library_version"`
}

// CustomParam belongs to exactly one TrackRequest. Insertion order (Id) is the order
// in which the params are appended to the delivery URL.
type CustomParam struct {
	Id         uint64 `json:"id" gorm:"primaryKey;autoIncrement"`
	TrackId    uint64 `json:"track_id" gorm:"index:track_id_index;not null"`
	ParamKey   string `json:"param_key"`
	ParamValue string `json:"param_value"`
}

// DataTrack is a TrackRequest joined with its CustomParams. It is never stored directly.
type DataTrack struct {
	TrackRequest TrackRequest
	CustomParams []CustomParam
}

// Preference is a single row of the durable key-value store.
type Preference struct {
	PrefKey   string `gorm:"primaryKey"`
	PrefValue string
}

func (t *TrackRequest) GoString() string {
	return fmt.Sprintf("%#v", *t)
}

// Created returns the creation time of the request, which is what retention is measured against.
func (t TrackRequest) Created() time.Time {
	return time.UnixMilli(t.TimeStamp)
}

// GenerateEverId builds the installation id: a leading "6", the unix time in seconds
// padded to 10 digits and an 8 digit random suffix.
func GenerateEverId(now time.Time) string {
	seconds := now.Unix() % 10_000_000_000
	return fmt.Sprintf("6%010d%08d", seconds, rand.Int63n(100_000_000))
}

func GetWebtrekkPath() string {
	webtrekkPath := os.Getenv("WEBTREKK_PATH")
	if webtrekkPath != "" {
		return webtrekkPath
	}

	userHome, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}

	return fmt.Sprintf("%s/%s", userHome, defaultWebtrekkPath)
}
