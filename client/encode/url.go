package encode

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/webtrekk/webtrekk-go/client/data"
)

// Query keys of the delivery URL.
const (
	UrlWebtrekkParam   = "p"
	UrlUserAgent       = "X-WT-UA"
	UrlEverId          = "eid"
	UrlAppFirstStart   = "one"
	UrlForceNewSession = "fns"
	UrlLanguage        = "lang"
	UrlTimeZone        = "tz"
)

// LibraryVersion is reported as the first field of the p parameter and in the user agent.
const LibraryVersion = "500"

func encodeToUTF8(s string) string {
	return url.QueryEscape(s)
}

// RequestParams builds the fixed order p parameter. The trailing zero fields are unused
// slots that the endpoint still expects.
func RequestParams(req data.TrackRequest) string {
	return fmt.Sprintf("%s,%s,0,%s,0,0,%d,0,0,0", req.LibraryVersion, encodeToUTF8(req.Name), req.ScreenResolution, req.TimeStamp)
}

func UserAgent(req data.TrackRequest) string {
	return fmt.Sprintf("Tracking Library %s (%s %s; %s %s; %s_%s)",
		req.LibraryVersion, req.OsName, req.OsVersion, req.DeviceManufacturer, req.DeviceModel, req.Language, req.Country)
}

func buildCustomParams(params []data.CustomParam) string {
	var sb strings.Builder
	for _, p := range params {
		sb.WriteString("&")
		sb.WriteString(encodeToUTF8(p.ParamKey))
		sb.WriteString("=")
		sb.WriteString(encodeToUTF8(p.ParamValue))
	}
	return sb.String()
}

// BuildURL renders the delivery URL of one queued request.
func BuildURL(track data.DataTrack, trackDomain string, trackIds []string, everId string) string {
	req := track.TrackRequest
	var sb strings.Builder
	sb.WriteString(strings.TrimRight(trackDomain, "/"))
	sb.WriteString("/")
	sb.WriteString(strings.Join(trackIds, ","))
	sb.WriteString("/wt")
	sb.WriteString("?" + UrlWebtrekkParam + "=" + RequestParams(req))
	sb.WriteString("&" + UrlUserAgent + "=" + encodeToUTF8(UserAgent(req)))
	sb.WriteString("&" + UrlEverId + "=" + everId)
	sb.WriteString("&" + UrlAppFirstStart + "=" + req.One)
	sb.WriteString("&" + UrlForceNewSession + "=" + req.Fns)
	sb.WriteString("&" + UrlLanguage + "=" + req.Language)
	sb.WriteString("&" + UrlTimeZone + "=" + req.TimeZone)
	sb.WriteString(buildCustomParams(track.CustomParams))
	return sb.String()
}

// ToCustomParams converts p into rows owned by the request with the given id, keeping order.
func ToCustomParams(p *Params, trackId uint64) []data.CustomParam {
	out := make([]data.CustomParam, 0, p.Len())
	p.Each(func(k, v string) {
		out = append(out, data.CustomParam{TrackId: trackId, ParamKey: k, ParamValue: v})
	})
	return out
}

// TimeZoneOffset returns the UTC offset in whole hours as reported in the tz parameter.
func TimeZoneOffset(offsetSeconds int) string {
	return strconv.Itoa(offsetSeconds / 3600)
}
