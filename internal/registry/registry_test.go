package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sua-org/cctv-thumbnails/internal/core"
)

func TestFetchRecords(t *testing.T) {
	var gotPath, gotAppID, gotAPIKey, gotFilters string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAppID = r.Header.Get("X-Knack-Application-Id")
		gotAPIKey = r.Header.Get("X-Knack-REST-API-KEY")
		gotFilters = r.URL.Query().Get("filters")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"records": [
			{"field_947": "cam-1", "field_638": "10.0.0.10", "field_639": "advidia"},
			{"field_947": 42, "field_638": "10.0.0.11", "field_639": "axis"},
			{"field_947": "cam-3", "field_638": "", "field_639": "axis"},
			{"field_947": "cam-4", "field_638": "10.0.0.12"}
		]}`))
	}))
	defer srv.Close()

	cli := New(Options{
		BaseURL:    srv.URL,
		AppID:      "app-id",
		APIKey:     "api-key",
		Container:  "object_53",
		CameraAuth: core.Credentials{Username: "user", Password: "secret"},
	})

	records, err := cli.FetchRecords(context.Background())
	if err != nil {
		t.Fatalf("FetchRecords: %v", err)
	}

	if gotPath != "/objects/object_53/records" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAppID != "app-id" || gotAPIKey != "api-key" {
		t.Errorf("auth headers = %q / %q", gotAppID, gotAPIKey)
	}

	// The server-side filter must exclude blank rows and disabled cameras.
	var filters map[string]interface{}
	if err := json.Unmarshal([]byte(gotFilters), &filters); err != nil {
		t.Fatalf("filters param is not JSON: %v", err)
	}
	if filters["match"] != "and" {
		t.Errorf("filters match = %v, want and", filters["match"])
	}
	if !strings.Contains(gotFilters, FieldDisablePublish) {
		t.Errorf("filters do not exclude publish-disabled cameras: %s", gotFilters)
	}

	// Incomplete rows are skipped; numeric ids are rendered as strings;
	// order of valid rows is preserved.
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2 (incomplete rows skipped)", len(records))
	}
	if records[0].ID != "cam-1" || records[0].IP != "10.0.0.10" || records[0].Model != "advidia" {
		t.Errorf("record 0 = %+v", records[0])
	}
	if records[1].ID != "42" || records[1].Model != "axis" {
		t.Errorf("record 1 = %+v", records[1])
	}
	for _, rec := range records {
		if rec.Auth.Username != "user" || rec.Auth.Password != "secret" {
			t.Errorf("record %s missing camera credentials", rec.ID)
		}
	}
}

func TestFetchRecordsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	cli := New(Options{BaseURL: srv.URL, AppID: "a", APIKey: "k", Container: "object_53"})
	if _, err := cli.FetchRecords(context.Background()); err == nil {
		t.Fatal("want error on registry failure")
	}
}

func TestFetchRecordsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"records": []}`))
	}))
	defer srv.Close()

	cli := New(Options{BaseURL: srv.URL, AppID: "a", APIKey: "k", Container: "object_53"})
	records, err := cli.FetchRecords(context.Background())
	if err != nil {
		t.Fatalf("FetchRecords: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("records = %d, want 0", len(records))
	}
}
