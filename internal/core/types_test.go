package core

import "testing"

func TestCameraRecordValidate(t *testing.T) {
	tests := []struct {
		name    string
		rec     CameraRecord
		wantErr bool
	}{
		{"complete", CameraRecord{ID: "1", IP: "10.0.0.1", Model: "axis"}, false},
		{"missing id", CameraRecord{IP: "10.0.0.1", Model: "axis"}, true},
		{"missing ip", CameraRecord{ID: "1", Model: "axis"}, true},
		{"missing model", CameraRecord{ID: "1", IP: "10.0.0.1"}, true},
		{"empty", CameraRecord{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestObjectKeyIsStable(t *testing.T) {
	rec := CameraRecord{ID: "cam-42", IP: "10.0.0.42", Model: "axis"}
	if got := rec.ObjectKey(); got != "cam-42.jpg" {
		t.Fatalf("ObjectKey = %q, want cam-42.jpg", got)
	}
	// The key depends on the id alone.
	rec.IP = "10.9.9.9"
	rec.Model = "advidia"
	if got := rec.ObjectKey(); got != "cam-42.jpg" {
		t.Fatalf("ObjectKey after mutation = %q, want cam-42.jpg", got)
	}
}
