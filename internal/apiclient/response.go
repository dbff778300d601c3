package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

var (
	// ErrUnexpectedStatus marks a login response outside the 2xx range.
	ErrUnexpectedStatus = errors.New("unexpected status code")

	// ErrMissingToken marks a login response without a token field.
	ErrMissingToken = errors.New("login response has no token")

	// ErrClientClosed is returned when work is submitted after Shutdown.
	ErrClientClosed = errors.New("api client is shut down")
)

// Response is a fully read HTTP response. Non-2xx statuses are returned as
// responses, not errors.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// IsSuccess reports whether the status is 2xx.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// Path looks up a gjson path in the body, e.g. "0.title" or "token".
func (r *Response) Path(path string) gjson.Result {
	return gjson.GetBytes(r.Body, path)
}

func (r *Response) String() string {
	return string(r.Body)
}

// ResponseError carries the response that made an operation fail.
type ResponseError struct {
	Response *Response
	Err      error
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%v (status %d)", e.Err, e.Response.StatusCode)
}

func (e *ResponseError) Unwrap() error { return e.Err }
