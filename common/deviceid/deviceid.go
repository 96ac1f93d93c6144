// Package deviceid provides a stable identifier for this installation, sent to the backend with
// every request.
package deviceid

import (
	"encoding/base64"
	"log/slog"

	"github.com/google/uuid"

	"github.com/codearena/arena/common/settings"
)

// Get returns the persisted device ID, generating and storing a random UUID on first use.
func Get() string {
	if existing := settings.GetString(settings.DeviceIDKey); existing != "" {
		return existing
	}
	id := newDeviceID()
	if err := settings.Set(settings.DeviceIDKey, id); err != nil {
		slog.Warn("Error persisting new device ID", "error", err)
	}
	return id
}

func newDeviceID() string {
	newID, err := uuid.NewRandom()
	if err != nil {
		slog.Error("Error generating device ID, falling back to node ID", "error", err)
		return base64.RawURLEncoding.EncodeToString(uuid.NodeID())
	}
	return newID.String()
}
