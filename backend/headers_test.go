package backend

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codearena/arena/app"
)

func TestSetHeaders(t *testing.T) {
	h := http.Header{}
	SetHeaders(h, StaticIdentity{Device: "dev-1", Lang: "vi-VN"})

	assert.Equal(t, app.Name, h.Get(AppNameHeader))
	assert.Equal(t, app.Version, h.Get(VersionHeader))
	assert.Equal(t, app.Platform, h.Get(PlatformHeader))
	assert.Equal(t, "dev-1", h.Get(DeviceIDHeader))
	assert.Equal(t, "vi-VN", h.Get(LocaleHeader))
}

func TestSetHeadersWithoutIdentity(t *testing.T) {
	h := http.Header{}
	SetHeaders(h, nil)
	assert.Equal(t, app.Name, h.Get(AppNameHeader))
	assert.Empty(t, h.Get(DeviceIDHeader))
}

func TestBearer(t *testing.T) {
	h := http.Header{}
	SetBearer(h, "t1")
	assert.Equal(t, "Bearer t1", h.Get(AuthHeader))

	token, ok := BearerToken(h)
	assert.True(t, ok)
	assert.Equal(t, "t1", token)

	SetBearer(h, "")
	_, ok = BearerToken(h)
	assert.False(t, ok)

	h.Set(AuthHeader, "Basic abc")
	_, ok = BearerToken(h)
	assert.False(t, ok)
}

func TestDetectLocale(t *testing.T) {
	assert.NotEmpty(t, DetectLocale())
}
