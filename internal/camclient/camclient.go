// internal/camclient/camclient.go
package camclient

import (
	"context"

	"github.com/sua-org/cctv-thumbnails/internal/core"
)

// Client fetches a single still image from one camera. Implementations are
// vendor specific; all failure modes come back as errors, never panics.
type Client interface {
	Fetch(ctx context.Context) (core.Snapshot, error)
}

type ClientFactory func(record core.CameraRecord) (Client, error)

// registry: normalized model tag -> factory
var registry = map[string]ClientFactory{}

// Register is called from the init() of each vendor client. The "any" tag
// is the catch-all used when no model-specific client exists.
func Register(model string, f ClientFactory) {
	registry[normalize(model)] = f
}

// For builds the client for a camera record, dispatching on its model tag.
// Models without a dedicated client fall back to the generic JPEG endpoint.
func For(record core.CameraRecord) (Client, error) {
	if f, ok := registry[normalize(record.Model)]; ok {
		return f(record)
	}
	if f, ok := registry["any"]; ok {
		return f(record)
	}
	return nil, ErrClientNotFound
}

func normalize(s string) string {
	b := make([]rune, 0, len(s))
	for _, r := range s {
		if r == ' ' || r == '-' || r == '_' {
			continue
		}
		if r >= 'A' && r <= 'Z' {
			r = r + 32
		}
		b = append(b, r)
	}
	return string(b)
}
