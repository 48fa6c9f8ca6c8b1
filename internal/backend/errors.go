package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"slide2video/internal/models"
)

// APIError is the single shape every backend failure is normalized into,
// whether it came from an error body or from the transport itself.
type APIError struct {
	Message    string
	Code       string
	StatusCode int // 0 for transport-level failures
	Err        error
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (code: %s)", e.Message, e.Code)
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Message returns the human-readable part of err, without the code suffix.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

// Code returns the backend error code carried by err, if any.
func Code(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// maxBodyInMessage bounds how much of an unparseable body ends up in a message.
const maxBodyInMessage = 512

// normalizeError turns a non-success response body into an APIError. Known
// shapes: {detail:{error,error_code}}, {detail:"..."}, {detail:[{msg}]},
// {error}, {message}. Anything else falls back to status + body text.
func normalizeError(statusCode int, body []byte, fallback string) *APIError {
	apiErr := &APIError{StatusCode: statusCode}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err == nil {
		if detail, ok := envelope["detail"]; ok {
			apiErr.Message, apiErr.Code = parseDetail(detail)
		}
		if apiErr.Message == "" {
			if raw, ok := envelope["error"]; ok {
				apiErr.Message, apiErr.Code = parseDetail(raw)
			}
		}
		if apiErr.Message == "" {
			if raw, ok := envelope["message"]; ok {
				apiErr.Message = asString(raw)
			}
		}
		if apiErr.Code == "" {
			apiErr.Code = codeFrom(envelope)
		}
	}

	if apiErr.Message == "" {
		text := strings.TrimSpace(string(body))
		if len(text) > maxBodyInMessage {
			text = text[:maxBodyInMessage] + "..."
		}
		switch {
		case fallback != "" && text == "":
			apiErr.Message = fmt.Sprintf("%s: status %d", fallback, statusCode)
		case fallback != "":
			apiErr.Message = fmt.Sprintf("%s: status %d, body: %s", fallback, statusCode, text)
		default:
			apiErr.Message = fmt.Sprintf("request failed: status %d, body: %s", statusCode, text)
		}
	}

	return apiErr
}

// decodeError reports a success status whose body could not be decoded.
func decodeError(statusCode int, body []byte, err error) *APIError {
	text := strings.TrimSpace(string(body))
	if len(text) > maxBodyInMessage {
		text = text[:maxBodyInMessage] + "..."
	}
	return &APIError{
		Message:    fmt.Sprintf("failed to decode response: status %d, body: %s", statusCode, text),
		StatusCode: statusCode,
		Err:        err,
	}
}

// parseDetail handles a "detail" (or "error") value that can be a string,
// an object with error/message fields, or a list of validation errors.
func parseDetail(raw json.RawMessage) (message, code string) {
	if s := asString(raw); s != "" {
		return s, ""
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, key := range []string{"error", "message", "detail", "msg"} {
			if v, ok := obj[key]; ok {
				if s := asString(v); s != "" {
					message = s
					break
				}
			}
		}
		return message, codeFrom(obj)
	}

	var list []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		for _, key := range []string{"msg", "message", "error"} {
			if v, ok := list[0][key]; ok {
				if s := asString(v); s != "" {
					return s, ""
				}
			}
		}
	}

	return "", ""
}

func codeFrom(obj map[string]json.RawMessage) string {
	for _, key := range []string{"error_code", "http_status"} {
		if raw, ok := obj[key]; ok {
			var code models.FlexString
			if err := json.Unmarshal(raw, &code); err == nil && code != "" {
				return code.String()
			}
		}
	}
	return ""
}

func asString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// transportError wraps failures that never produced an HTTP response.
func transportError(err error) *APIError {
	code := ""
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		code = "timeout"
	}
	return &APIError{
		Message: fmt.Sprintf("failed to execute request: %v", err),
		Code:    code,
		Err:     err,
	}
}
