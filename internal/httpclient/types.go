package httpclient

import (
	"fmt"
	"net/http"
)

// HTTPError represents an HTTP error
type HTTPError struct {
	StatusCode int
	Message    string
	URL        string
}

// Error returns the error message
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for URL %s: %s", e.StatusCode, e.URL, e.Message)
}

// NewHTTPError creates a new HTTP error
func NewHTTPError(statusCode int, url, message string) error {
	return &HTTPError{
		StatusCode: statusCode,
		URL:        url,
		Message:    message,
	}
}

// Response is the outcome of a successful request. NotModified is true when
// the server answered a conditional request with 304; Body is empty then.
type Response struct {
	StatusCode  int
	Body        []byte
	Header      http.Header
	NotModified bool
}

// ETag returns the entity tag of the response, if any.
func (r *Response) ETag() string {
	return r.Header.Get("ETag")
}

// LastModified returns the Last-Modified header of the response, if any.
func (r *Response) LastModified() string {
	return r.Header.Get("Last-Modified")
}
