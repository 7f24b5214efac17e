// Package apperr defines the error taxonomy shared by the auth components and the
// result envelope handed to hosts. Components wrap these sentinels with %w; callers
// classify with errors.Is or CodeOf.
package apperr

import (
	"errors"
)

// Transport and protocol errors.
var (
	// ErrNetwork is a transport failure. Retryable by user action, never retried automatically.
	ErrNetwork = errors.New("network error")
	// ErrProtocol is a malformed or unexpected backend response (non-JSON, missing success field).
	ErrProtocol = errors.New("unexpected response from identity backend")
)

// Account and credential errors.
var (
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrAccountInactive      = errors.New("account is not active")
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountAlreadyActive = errors.New("account is already active")
)

// Challenge errors.
var (
	// ErrChallengeExpired is detected client-side; no network call is made.
	ErrChallengeExpired = errors.New("verification code expired")
	// ErrInvalidChallenge is a code rejected by the backend (or malformed locally).
	ErrInvalidChallenge = errors.New("invalid verification code")
	ErrResendTooSoon    = errors.New("verification code requested too recently")
)

// Session errors.
var (
	// ErrStorageCorruption is recovered by purging the offending keys; it is never shown to the user.
	ErrStorageCorruption = errors.New("persisted session is corrupted")
	ErrNotPending        = errors.New("no login awaiting verification")
	ErrStaleSession      = errors.New("session changed while the request was in flight")
	ErrNoSession         = errors.New("no active session")
)

// Code is the stable, typed error code exposed to hosts.
type Code string

const (
	CodeOK                 Code = ""
	CodeNetwork            Code = "network_error"
	CodeProtocol           Code = "protocol_error"
	CodeInvalidCredentials Code = "invalid_credentials"
	CodeAccountInactive    Code = "account_inactive"
	CodeAccountNotFound    Code = "account_not_found"
	CodeAccountActive      Code = "account_already_active"
	CodeChallengeExpired   Code = "otp_expired"
	CodeInvalidChallenge   Code = "invalid_otp"
	CodeResendTooSoon      Code = "otp_resend_too_soon"
	CodeStorageCorruption  Code = "storage_corruption"
	CodeNotPending         Code = "not_pending"
	CodeStaleSession       Code = "stale_session"
	CodeNoSession          Code = "no_session"
	CodeUnknown            Code = "unknown"
)

var codes = []struct {
	err  error
	code Code
}{
	{ErrNetwork, CodeNetwork},
	{ErrProtocol, CodeProtocol},
	{ErrInvalidCredentials, CodeInvalidCredentials},
	{ErrAccountInactive, CodeAccountInactive},
	{ErrAccountNotFound, CodeAccountNotFound},
	{ErrAccountAlreadyActive, CodeAccountActive},
	{ErrChallengeExpired, CodeChallengeExpired},
	{ErrInvalidChallenge, CodeInvalidChallenge},
	{ErrResendTooSoon, CodeResendTooSoon},
	{ErrStorageCorruption, CodeStorageCorruption},
	{ErrNotPending, CodeNotPending},
	{ErrStaleSession, CodeStaleSession},
	{ErrNoSession, CodeNoSession},
}

// CodeOf returns the code of the first sentinel err wraps. nil maps to CodeOK.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeUnknown
}

// FromCode maps a backend-supplied error code to its sentinel. Returns nil for unknown codes.
func FromCode(code string) error {
	for _, c := range codes {
		if string(c.code) == code {
			return c.err
		}
	}
	return nil
}

// Result is the {success, error} envelope hosts render. Errors never cross the
// component boundary as panics; hosts decide presentation from Code.
type Result struct {
	Success bool   `json:"success"`
	Code    Code   `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ResultOf converts err into a Result.
func ResultOf(err error) Result {
	if err == nil {
		return Result{Success: true}
	}
	return Result{Success: false, Code: CodeOf(err), Error: err.Error()}
}

// Retryable reports whether the user can simply try again (transport failures only).
func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork)
}
