package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWithoutEndpoint(t *testing.T) {
	require.NoError(t, Init(context.Background(), Config{TracesEnabled: true}, Attributes{}))
	assert.Nil(t, shutdownOTEL)
	assert.NoError(t, Close(context.Background()))
}

func TestInitAndClose(t *testing.T) {
	cfg := Config{
		Endpoint:      "127.0.0.1:4317",
		Insecure:      true,
		TracesEnabled: true,
	}
	require.NoError(t, Init(context.Background(), cfg, Attributes{DeviceID: "dev-1", Locale: "en-US"}))
	assert.NotNil(t, shutdownOTEL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	// nothing was recorded, so shutting down does not need the collector
	assert.NoError(t, Close(ctx))
	assert.Nil(t, shutdownOTEL)
}

func TestBuildResources(t *testing.T) {
	kvs := map[string]string{}
	for _, kv := range buildResources(Attributes{DeviceID: "dev-1", Locale: "fr-FR"}) {
		kvs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "arena", kvs["service.name"])
	assert.Equal(t, "dev-1", kvs["device.id"])
	assert.Equal(t, "fr-FR", kvs["locale"])
}
