package smartset

import (
	"errors"
	"fmt"
)

// ErrRequestFailed wraps every transport or HTTP failure of the device API.
var ErrRequestFailed = errors.New("smartset: request failed")

// HTTPError is a non-2xx answer from the portal.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("smartset: %s", e.Status)
	}
	return fmt.Sprintf("smartset: %s: %s", e.Status, e.Body)
}

// Unwrap lets errors.Is match ErrRequestFailed.
func (e *HTTPError) Unwrap() error {
	return ErrRequestFailed
}
