// Package backend defines the request headers every arena client call carries.
package backend

import (
	"net/http"
	"time"

	"github.com/Xuanwo/go-locale"
	"github.com/getlantern/timezone"

	"github.com/codearena/arena/app"
)

const (
	AppNameHeader    = "X-Arena-App"
	VersionHeader    = "X-Arena-Version"
	PlatformHeader   = "X-Arena-Platform"
	DeviceIDHeader   = "X-Arena-Device-Id"
	TimeZoneHeader   = "X-Arena-Time-Zone"
	LocaleHeader     = "Accept-Language"
	AuthHeader       = "Authorization"
	bearerPrefix     = "Bearer "
	defaultLocaleTag = "en-US"
)

// Identity is what the backend needs to know about the installation making a request.
type Identity interface {
	DeviceID() string
	Locale() string
}

// SetHeaders adds the common arena headers to h.
func SetHeaders(h http.Header, id Identity) {
	h.Set(AppNameHeader, app.Name)
	h.Set(VersionHeader, app.Version)
	h.Set(PlatformHeader, app.Platform)
	if id == nil {
		return
	}
	if deviceID := id.DeviceID(); deviceID != "" {
		h.Set(DeviceIDHeader, deviceID)
	}
	if l := id.Locale(); l != "" {
		h.Set(LocaleHeader, l)
	}
	if tz, err := timezone.IANANameForTime(time.Now()); err == nil {
		h.Set(TimeZoneHeader, tz)
	}
}

// SetBearer sets the Authorization header. An empty token removes it.
func SetBearer(h http.Header, token string) {
	if token == "" {
		h.Del(AuthHeader)
		return
	}
	h.Set(AuthHeader, bearerPrefix+token)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(h http.Header) (string, bool) {
	v := h.Get(AuthHeader)
	if len(v) <= len(bearerPrefix) || v[:len(bearerPrefix)] != bearerPrefix {
		return "", false
	}
	return v[len(bearerPrefix):], true
}

// DetectLocale returns the system locale as a BCP 47 tag, or en-US if it cannot be determined.
func DetectLocale() string {
	tag, err := locale.Detect()
	if err != nil {
		return defaultLocaleTag
	}
	if s := tag.String(); s != "" && s != "und" {
		return s
	}
	return defaultLocaleTag
}

// StaticIdentity is an Identity with fixed values.
type StaticIdentity struct {
	Device string
	Lang   string
}

func (s StaticIdentity) DeviceID() string { return s.Device }
func (s StaticIdentity) Locale() string   { return s.Lang }
