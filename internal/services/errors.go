package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"promethium-examples/runner/pkg/models"
)

var (
	// ErrWorkflowFailed is wrapped by WorkflowError when a workflow ends in a
	// state other than COMPLETED.
	ErrWorkflowFailed = errors.New("workflow did not complete successfully")
	// ErrWaitTimeout is wrapped by WorkflowError when the wait deadline passes
	// before the workflow reaches a terminal state.
	ErrWaitTimeout = errors.New("timed out waiting for workflow")
)

// APIError is a non-2xx response from the workflow API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Message)
}

// IsAuth reports whether the request was rejected for bad credentials.
func (e *APIError) IsAuth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsValidation reports whether the service rejected the payload.
func (e *APIError) IsValidation() bool {
	return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnprocessableEntity
}

// IsNotFound reports whether the workflow does not exist.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

const maxMessageBytes = 512

// newAPIError builds an APIError, pulling a message out of common JSON error
// shapes and falling back to the raw body.
func newAPIError(status int, body []byte) *APIError {
	var problem struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
		Title   string          `json:"title"`
	}
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &problem); err == nil {
		var detail string
		hasDetail := len(problem.Detail) > 0 && string(problem.Detail) != "null"
		switch {
		case hasDetail && json.Unmarshal(problem.Detail, &detail) == nil:
			msg = detail
		case hasDetail:
			msg = string(problem.Detail)
		case problem.Message != "":
			msg = problem.Message
		case problem.Error != "":
			msg = problem.Error
		case problem.Title != "":
			msg = problem.Title
		}
	}
	if len(msg) > maxMessageBytes {
		cut := maxMessageBytes
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut] + "..."
	}
	return &APIError{StatusCode: status, Message: msg}
}

// WorkflowError attaches a workflow id to a wait or poll failure.
type WorkflowError struct {
	ID     string
	Status models.WorkflowStatus
	Err    error
	// Reason is the error message reported by the service, if any.
	Reason string
}

func (e *WorkflowError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "workflow %s", e.ID)
	if e.Status != "" {
		fmt.Fprintf(&b, " (%s)", e.Status)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	return b.String()
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}
