package speech

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Status     string // e.g. PERMISSION_DENIED
	Message    string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("gemini API error %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("gemini API error %d: %s", e.StatusCode, e.Message)
}

// IsAuth reports whether the service rejected the credential.
func (e *APIError) IsAuth() bool {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	switch e.Status {
	case "PERMISSION_DENIED", "UNAUTHENTICATED":
		return true
	}
	return mentionsKey(e.Message)
}

// NoAudioError is a successful response that carried no audio payload.
type NoAudioError struct {
	FinishReason string
	BlockReason  string
}

func (e *NoAudioError) Error() string {
	reason := e.FinishReason
	if reason == "" {
		reason = "Unknown"
	}
	if e.BlockReason != "" {
		return fmt.Sprintf("no audio data received from Gemini. Status: %s, blocked: %s", reason, e.BlockReason)
	}
	return "no audio data received from Gemini. Status: " + reason
}

// IsAuth reports whether err anywhere in its chain is a credential rejection.
func IsAuth(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsAuth()
	}
	return err != nil && mentionsKey(err.Error())
}

func mentionsKey(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "api key") || strings.Contains(msg, "api_key")
}
