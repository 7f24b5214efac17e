package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"storefront/client/internal/apperr"
	"storefront/client/internal/transport"
)

// envelope is the identity backend response wrapper.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
	Code    string          `json:"code,omitempty"`
}

func (e envelope) text() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Message
}

// errBackend is a rejection the client cannot classify.
var errBackend = errors.New("identity backend rejected the request")

// decode unwraps the envelope. A rejection is classified by its typed code, then
// by message text, then by fallback (nil means errBackend).
func decode(op string, resp *transport.Response, fallback error) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(resp.Body, &env); err != nil || env.Success == nil {
		return nil, fmt.Errorf("%s: %w (status %d)", op, apperr.ErrProtocol, resp.Status)
	}
	if *env.Success {
		return env.Data, nil
	}
	return nil, fmt.Errorf("%s: %w", op, classify(env.Code, env.text(), fallback))
}

// classify maps a rejection to a sentinel. Typed codes win; the substring shim
// covers backends that only send text.
func classify(code, text string, fallback error) error {
	if err := apperr.FromCode(code); err != nil {
		return err
	}
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "not active"), strings.Contains(lower, "inactive"), strings.Contains(lower, "deactivated"):
		return apperr.ErrAccountInactive
	case strings.Contains(lower, "not found"), strings.Contains(lower, "no account"), strings.Contains(lower, "invalid email"):
		return apperr.ErrAccountNotFound
	case strings.Contains(lower, "password"), strings.Contains(lower, "invalid credentials"):
		return apperr.ErrInvalidCredentials
	case strings.Contains(lower, "expired"):
		return apperr.ErrChallengeExpired
	}
	if fallback == nil {
		fallback = errBackend
	}
	if text == "" {
		return fallback
	}
	return fmt.Errorf("%w: %s", fallback, text)
}
