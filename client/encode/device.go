package encode

import (
	"os"
	"runtime"
	"strings"

	"golang.org/x/text/language"
)

// DeviceInfo describes the host the events come from. It is copied into every request.
type DeviceInfo struct {
	OsName       string
	OsVersion    string
	Manufacturer string
	Model        string
	Language     string
	Country      string
}

func DefaultDeviceInfo() DeviceInfo {
	lang, country := DetectLocale()
	return DeviceInfo{
		OsName:       runtime.GOOS,
		OsVersion:    "unknown",
		Manufacturer: "unknown",
		Model:        runtime.GOARCH,
		Language:     lang,
		Country:      country,
	}
}

// DetectLocale reads the POSIX locale variables and returns language and country codes.
func DetectLocale() (string, string) {
	for _, name := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(name); v != "" {
			return ParseLocale(v)
		}
	}
	return ParseLocale("")
}

// ParseLocale accepts values like "de_DE.UTF-8", "en-US" or "fr". Anything unparseable
// falls back to en/US.
func ParseLocale(locale string) (string, string) {
	if i := strings.IndexAny(locale, ".@"); i >= 0 {
		locale = locale[:i]
	}
	locale = strings.ReplaceAll(locale, "_", "-")
	if locale == "" || locale == "C" || locale == "POSIX" {
		return "en", "US"
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return "en", "US"
	}
	base, _ := tag.Base()
	region, confidence := tag.Region()
	country := ""
	if confidence != language.No {
		country = region.String()
	}
	return base.String(), country
}
