// internal/camclient/advidia.go
package camclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sua-org/cctv-thumbnails/internal/core"
)

// AdvidiaClient talks to Advidia cameras, which expose the ISAPI still
// picture endpoint and require basic auth; every other model in the fleet
// uses the plain JPEG endpoint (see GenericClient).
type AdvidiaClient struct {
	record core.CameraRecord
	client *http.Client
}

func init() {
	Register("advidia", func(record core.CameraRecord) (Client, error) {
		return NewAdvidiaClient(record), nil
	})
}

func NewAdvidiaClient(record core.CameraRecord) *AdvidiaClient {
	return &AdvidiaClient{
		record: record,
		client: &http.Client{Timeout: 0},
	}
}

func (c *AdvidiaClient) Fetch(ctx context.Context) (core.Snapshot, error) {
	url := fmt.Sprintf("http://%s/ISAPI/Streaming/channels/101/picture", c.record.IP)
	auth := c.record.Auth
	return doFetch(ctx, c.client, url, &auth)
}
