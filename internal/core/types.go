// internal/core/types.go
package core

import (
	"fmt"
	"time"
)

// Credentials are shared vendor credentials for cameras that require auth.
// They come from the environment, not from the registry.
type Credentials struct {
	Username string
	Password string
}

// CameraRecord describes a single camera as loaded from the registry
// snapshot at startup. Records are immutable after load; a process restart
// is the only way to pick up registry changes.
type CameraRecord struct {
	ID    string
	IP    string
	Model string
	Auth  Credentials
}

func (r CameraRecord) String() string {
	return fmt.Sprintf("<Camera %s %s %s>", r.ID, r.IP, r.Model)
}

// Validate reports whether the record has the fields a worker needs.
func (r CameraRecord) Validate() error {
	if r.ID == "" || r.IP == "" || r.Model == "" {
		return fmt.Errorf("camera record missing id/ip/model (id=%q ip=%q model=%q)", r.ID, r.IP, r.Model)
	}
	return nil
}

// ObjectKey is the stable storage key for the camera's live thumbnail.
// Only the bytes and expiry metadata change between uploads.
func (r CameraRecord) ObjectKey() string {
	return r.ID + ".jpg"
}

// Snapshot is one fetched still image.
type Snapshot struct {
	Bytes       []byte
	ContentType string
	CapturedAt  time.Time
}

// WorkerState names the phase a camera worker is in. Values are published
// on the status topic for external consumption.
type WorkerState string

const (
	WorkerStateStarting  WorkerState = "starting"
	WorkerStatePolling   WorkerState = "polling"
	WorkerStateUploading WorkerState = "uploading"
	WorkerStateSleeping  WorkerState = "sleeping"
	WorkerStateStopped   WorkerState = "stopped"
)
