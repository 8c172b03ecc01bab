package transport

import (
	"fmt"
	"net/http"
	"strings"
)

// StatusError is returned for any response with a status of 400 or above.
// It carries the full response so the envelope can be built from it.
type StatusError struct {
	Method   string
	Path     string
	Response *Response
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: request failed with status code %d", e.Method, e.Path, e.Response.Status)
}

// HTTPStatus returns the response status code.
func (e *StatusError) HTTPStatus() int { return e.Response.Status }

// HTTPStatusText returns the status text without the numeric prefix.
func (e *StatusError) HTTPStatusText() string { return e.Response.StatusText }

// ResponseBody returns the raw response body.
func (e *StatusError) ResponseBody() []byte { return e.Response.Body }

// statusText strips the "404 " prefix from http.Response.Status.
func statusText(resp *http.Response) string {
	if text, ok := strings.CutPrefix(resp.Status, fmt.Sprintf("%d ", resp.StatusCode)); ok {
		return text
	}
	return http.StatusText(resp.StatusCode)
}
