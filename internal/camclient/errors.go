// internal/camclient/errors.go
package camclient

import (
	"errors"
	"fmt"
)

var (
	ErrClientNotFound = errors.New("no client registered for this camera model")

	// ErrNotImage means the camera answered with something that is not an
	// image (login pages, error HTML, etc).
	ErrNotImage = errors.New("response is not an image")
)

// StatusError is a non-2xx/3xx answer from the camera.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("camera returned status %s", e.Status)
}

// Permanent reports whether retrying is pointless. 4xx answers (bad auth,
// wrong path) will not fix themselves; 5xx and transport errors might.
func (e *StatusError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// IsPermanent reports whether err is a failure that should immediately
// exhaust the worker's retry budget.
func IsPermanent(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Permanent()
	}
	return false
}
