package pestsearch

import "fmt"

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int    // HTTP status code
	Code    string // machine-readable error code
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pestsearch: %s (%d): %s", e.Code, e.Status, e.Message)
}

// IsRetryable reports whether the request may succeed if repeated.
func (e *APIError) IsRetryable() bool {
	return e.Status == 502 || e.Status == 503
}
