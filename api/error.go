package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
)

// Kind classifies a failed operation. Every error the SDK surfaces carries
// exactly one Kind, regardless of the shape of the backend response that
// produced it.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindServerError  Kind = "server_error"
	KindNetworkError Kind = "network_error"
	KindTimeout      Kind = "timeout"
	KindUnknown      Kind = "unknown"
)

// Error is the normalized failure result for every SDK operation. Status is
// zero when no HTTP response was received. Field is populated for
// validation errors when the backend identified the offending input field.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Field   string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("olaf: %s (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("olaf: %s: %s", e.Kind, e.Message)
}

// Is allows errors.Is matching on Kind: errors.Is(err, &api.Error{Kind:
// api.KindNotFound}) matches any not-found error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Errorf builds an Error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindForStatus maps an HTTP status to a Kind. Retry exhaustion and
// transport failures are classified by the executor, not here.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return KindValidation
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusRequestTimeout:
		return KindTimeout
	case status >= 500:
		return KindServerError
	default:
		return KindUnknown
	}
}

// messageKeys are the top-level body keys consulted for an error message,
// in priority order. The first present, non-empty string wins.
var messageKeys = []string{"message", "error", "detail", "title"}

// FromResponse normalizes a non-success HTTP response into an Error. The
// body is inspected with a fixed-priority rule list so that backend
// response-shape drift changes the message, never the Kind:
//
//  1. a top-level string under "message", "error", "detail" or "title"
//  2. a field-error map under "errors" ({field: [messages...]}); the first
//     field in sorted key order supplies Field and Message
//  3. the standard status text
func FromResponse(status int, body []byte) *Error {
	e := &Error{
		Kind:    KindForStatus(status),
		Status:  status,
		Message: http.StatusText(status),
	}

	if len(body) == 0 {
		return e
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return e
	}

	for _, key := range messageKeys {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			e.Message = s
			break
		}
	}

	if raw, ok := payload["errors"]; ok {
		field, message, found := firstFieldError(raw)
		if found {
			e.Kind = KindValidation
			e.Field = field
			e.Message = message
		}
	}

	return e
}

// firstFieldError extracts the first field error from a validation map,
// iterating fields in sorted order so extraction is deterministic.
func firstFieldError(raw json.RawMessage) (field, message string, found bool) {
	var fields map[string][]string
	if err := json.Unmarshal(raw, &fields); err != nil || len(fields) == 0 {
		return "", "", false
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if len(fields[name]) > 0 && fields[name][0] != "" {
			return name, fields[name][0], true
		}
	}
	return "", "", false
}

// Retry messages escalate as attempts burn down. The three tiers are a UX
// contract: the view layer shows them verbatim while a request is being
// retried against a slow or sleeping backend.
const (
	msgFirstFailure = "server not responding"
	msgRetrying     = "service may be waking up, retrying"
	msgExhausted    = "service is not responding, it may be cold starting; try again later"
)

// RetryMessage returns the user-facing message for a transient failure
// observed on the given attempt (1-based) out of maxAttempts.
func RetryMessage(attempt, maxAttempts int) string {
	switch {
	case attempt >= maxAttempts:
		return msgExhausted
	case attempt > 1:
		return msgRetrying
	default:
		return msgFirstFailure
	}
}
