// internal/registry/registry.go
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/sua-org/cctv-thumbnails/internal/core"
)

// Knack field ids for the camera asset object. These have been stable for
// years; overridable mainly for tests.
const (
	DefaultBaseURL      = "https://api.knack.com/v1"
	FieldIP             = "field_638"
	FieldID             = "field_947"
	FieldModel          = "field_639"
	FieldDisablePublish = "field_1866"
	defaultFetchTimeout = 30 * time.Second
)

type Options struct {
	BaseURL   string
	AppID     string
	APIKey    string
	Container string

	// Shared camera credentials stamped onto every record.
	CameraAuth core.Credentials
}

// Client reads the camera asset registry. It is called exactly once, at
// startup; the service must be restarted to pick up new/modified cameras.
type Client struct {
	http *resty.Client
	opts Options
}

func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}

	r := resty.New()
	r.SetBaseURL(opts.BaseURL)
	r.SetTimeout(defaultFetchTimeout)
	r.SetHeader("X-Knack-Application-Id", opts.AppID)
	r.SetHeader("X-Knack-REST-API-KEY", opts.APIKey)
	r.SetHeader("Accept", "application/json")

	return &Client{http: r, opts: opts}
}

type recordsResponse struct {
	Records []map[string]json.RawMessage `json:"records"`
}

// FetchRecords downloads the camera records, filtered server-side to rows
// that have an ip, id and model and are not publish-disabled. Rows that
// still come back incomplete are skipped with a warning, never fatal.
func (c *Client) FetchRecords(ctx context.Context) ([]core.CameraRecord, error) {
	filters := map[string]interface{}{
		"match": "and",
		"rules": []map[string]interface{}{
			{"field": FieldIP, "operator": "is not blank"},
			{"field": FieldID, "operator": "is not blank"},
			{"field": FieldModel, "operator": "is not blank"},
			{"field": FieldDisablePublish, "operator": "is not", "value": true},
		},
	}
	filterJSON, err := json.Marshal(filters)
	if err != nil {
		return nil, fmt.Errorf("marshal registry filters: %w", err)
	}

	var out recordsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("filters", string(filterJSON)).
		SetResult(&out).
		Get(fmt.Sprintf("/objects/%s/records", c.opts.Container))
	if err != nil {
		return nil, fmt.Errorf("fetch registry records: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("registry returned status %s", resp.Status())
	}

	records := make([]core.CameraRecord, 0, len(out.Records))
	for _, raw := range out.Records {
		rec := core.CameraRecord{
			ID:    fieldString(raw, FieldID),
			IP:    fieldString(raw, FieldIP),
			Model: fieldString(raw, FieldModel),
			Auth:  c.opts.CameraAuth,
		}
		if err := rec.Validate(); err != nil {
			log.Printf("[registry] skipping record: %v", err)
			continue
		}
		records = append(records, rec)
	}

	log.Printf("[registry] loaded %d camera records (%d skipped)",
		len(records), len(out.Records)-len(records))
	return records, nil
}

// fieldString pulls a field value as a string. Knack returns numbers for
// numeric fields, so non-strings are rendered through their JSON form.
func fieldString(raw map[string]json.RawMessage, field string) string {
	v, ok := raw[field]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String()
	}
	return ""
}
