package meta

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ekaya-inc/ekaya-adsync/pkg/logging"
)

// ErrThrottled is matched by errors.Is when throttling retries were exhausted.
var ErrThrottled = errors.New("meta api throttled")

// APIError is the error object the Graph API returns in a response body.
type APIError struct {
	Type         string `json:"type"`
	Code         int    `json:"code"`
	ErrorSubcode int    `json:"error_subcode"`
	Message      string `json:"message"`
	FBTraceID    string `json:"fbtrace_id"`
	StatusCode   int    `json:"-"`
	Throttled    bool   `json:"-"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf(
		"meta api error status=%d type=%s code=%d subcode=%d fbtrace_id=%s: %s",
		e.StatusCode,
		e.Type,
		e.Code,
		e.ErrorSubcode,
		e.FBTraceID,
		e.Message,
	)
}

// TransportError wraps failures that happened before a response was decoded.
// Its message is sanitized because net/http errors embed the request URL.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("meta api %s: %s", e.Op, logging.SanitizeError(e.Err))
}

func (e *TransportError) Unwrap() error { return e.Err }

// ThrottledError is returned after MaxThrottleRetries throttled attempts.
type ThrottledError struct {
	Path     string
	Attempts int
	Last     *APIError
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("meta api throttled on %s after %d attempts: %v", e.Path, e.Attempts, e.Last)
}

func (e *ThrottledError) Unwrap() error { return e.Last }

func (e *ThrottledError) Is(target error) bool { return target == ErrThrottled }

// IsThrottled reports whether err is (or wraps) an exhausted throttling error.
func IsThrottled(err error) bool {
	return errors.Is(err, ErrThrottled)
}

// IsThrottleCode reports whether a status/code pair is one of the platform's
// rate limiting responses.
func IsThrottleCode(statusCode, code int) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	switch code {
	case 4, 17, 32, 613:
		return true
	}
	return code >= 80000 && code <= 80014
}
