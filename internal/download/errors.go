package download

import (
	"fmt"
	"net/http"
)

// HTTPStatusError reports a non-success status from the download endpoint.
type HTTPStatusError struct {
	StatusCode int
	URL        string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("download %s: status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Retryable reports whether the status is a server-side failure.
func (e *HTTPStatusError) Retryable() bool {
	return e.StatusCode >= 500
}
