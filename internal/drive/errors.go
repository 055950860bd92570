package drive

import (
	"errors"
	"fmt"
)

// ErrNotFound marks a get-by-id for an item the store does not know.
// Check with errors.Is.
var ErrNotFound = errors.New("item not found")

// APIError is a non-2xx store response, decoded from the error body when
// the store sent one.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("drive api error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("drive api error (%d): %s - %s", e.StatusCode, e.Status, e.Message)
}

// AsAPIError checks if an error is an APIError and returns it.
func AsAPIError(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
