package dataservice

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// errorEnvelope is the JSON error body written by the reference service.
type errorEnvelope struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HTTPError is a summary of a non-2xx data service response.
type HTTPError struct {
	Op         string
	StatusCode int
	Status     string
	Code       string
	Message    string

	// Snippet is a truncated hint for responses without a JSON envelope.
	Snippet string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "dataservice http error"
	}
	parts := []string{
		fmt.Sprintf("dataservice: op=%s status=%s", strings.TrimSpace(e.Op), strings.TrimSpace(e.Status)),
	}
	if strings.TrimSpace(e.Code) != "" {
		parts = append(parts, "code="+strings.TrimSpace(e.Code))
	}
	if strings.TrimSpace(e.Message) != "" {
		parts = append(parts, "message="+strings.TrimSpace(e.Message))
	}
	if strings.TrimSpace(e.Snippet) != "" {
		parts = append(parts, "body="+strings.TrimSpace(e.Snippet))
	}
	return strings.Join(parts, " ")
}

// Temporary reports whether retrying the request later may succeed.
func (e *HTTPError) Temporary() bool {
	if e == nil {
		return false
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func newHTTPError(op string, resp *http.Response, body []byte) error {
	h := &HTTPError{Op: op}
	if resp != nil {
		h.StatusCode = resp.StatusCode
		h.Status = resp.Status
	}

	var env errorEnvelope
	if len(body) > 0 && json.Unmarshal(body, &env) == nil {
		h.Message = strings.TrimSpace(env.Error)
		h.Code = strings.TrimSpace(env.Code)
		if h.Message != "" || h.Code != "" {
			return h
		}
	}

	h.Snippet = truncate(body)
	return h
}

func truncate(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	const max = 256
	b := body
	if len(b) > max {
		b = b[:max]
	}
	s := strings.ReplaceAll(string(b), "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(body) > max {
		return s + "..."
	}
	return s
}
