// internal/camclient/generic.go
package camclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sua-org/cctv-thumbnails/internal/core"
)

// GenericClient fetches from the JPEG endpoint shared by every camera model
// in the fleet except Advidia: http://<ip>/jpeg?id=2, no auth.
type GenericClient struct {
	record core.CameraRecord
	client *http.Client
}

func init() {
	Register("any", func(record core.CameraRecord) (Client, error) {
		return NewGenericClient(record), nil
	})
}

func NewGenericClient(record core.CameraRecord) *GenericClient {
	return &GenericClient{
		record: record,
		// Per-request deadlines come from the caller's context.
		client: &http.Client{Timeout: 0},
	}
}

func (c *GenericClient) Fetch(ctx context.Context) (core.Snapshot, error) {
	url := fmt.Sprintf("http://%s/jpeg?id=2", c.record.IP)
	return doFetch(ctx, c.client, url, nil)
}

// doFetch runs one GET against a camera and normalizes every failure mode
// into an error: transport/timeout, bad status, non-image payload.
func doFetch(ctx context.Context, client *http.Client, url string, auth *core.Credentials) (core.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("build request: %w", err)
	}
	if auth != nil && auth.Username != "" {
		req.SetBasicAuth(auth.Username, auth.Password)
	}

	resp, err := client.Do(req)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return core.Snapshot{}, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	// Some cameras append a semicolon or charset to the content-type, so a
	// substring check is all we can rely on.
	ct := resp.Header.Get("Content-Type")
	if !strings.Contains(ct, "image") {
		return core.Snapshot{}, fmt.Errorf("%w: content-type %q", ErrNotImage, ct)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("read body: %w", err)
	}
	if len(body) == 0 {
		return core.Snapshot{}, fmt.Errorf("%w: empty body", ErrNotImage)
	}

	return core.Snapshot{
		Bytes:       body,
		ContentType: ct,
		CapturedAt:  time.Now().UTC(),
	}, nil
}
