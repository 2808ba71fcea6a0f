package types

import (
	"errors"
	"fmt"
)

// Error types
type X402Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e X402Error) Error() string {
	return e.Message
}

// Common error codes
const (
	ErrInvalidPayload      = "INVALID_PAYLOAD"
	ErrInvalidRequirements = "INVALID_REQUIREMENTS"
	ErrUnsupportedNetwork  = "UNSUPPORTED_NETWORK"
	ErrNetworkError        = "NETWORK_ERROR"
	ErrConfigError         = "CONFIG_ERROR"
)

// ErrorKind identifies a failure the orchestrator reports to its caller.
type ErrorKind string

const (
	// -----------------------------
	// RESOLUTION
	// -----------------------------
	KindSenderAccountMissing ErrorKind = "sender_account_missing"
	KindMintMismatch         ErrorKind = "mint_mismatch"
	KindOwnerProgramMismatch ErrorKind = "owner_program_mismatch"

	// -----------------------------
	// EXECUTION
	// -----------------------------
	KindInsufficientBalance ErrorKind = "insufficient_balance"
	KindInsufficientFee     ErrorKind = "insufficient_fee"
	KindDecimalsMismatch    ErrorKind = "decimals_mismatch"
	KindSubmissionFailed    ErrorKind = "submission_failed"
	KindConfirmationTimeout ErrorKind = "confirmation_timeout"

	// -----------------------------
	// SESSION
	// -----------------------------
	KindNoSupportedOption ErrorKind = "no_supported_option"
	KindInvalidSelection  ErrorKind = "invalid_selection"
	KindMalformedAmount   ErrorKind = "malformed_amount"
	KindGatewayRejected   ErrorKind = "gateway_rejected"
	KindSessionActive     ErrorKind = "session_active"
)

// ResolutionError is returned when no safe destination token account can be determined.
type ResolutionError struct {
	Kind    ErrorKind
	Message string
	Account string
	Err     error
}

func (e *ResolutionError) Error() string {
	if e.Account != "" {
		return fmt.Sprintf("%s: %s (account %s)", e.Kind, e.Message, e.Account)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

func (e *ResolutionError) Is(target error) bool {
	t, ok := target.(*ResolutionError)
	return ok && t.Kind == e.Kind
}

// ExecutionError is returned when a transfer cannot be submitted or confirmed.
// Actual and Required are minor-unit (or lamport) amounts for the balance kinds.
type ExecutionError struct {
	Kind          ErrorKind
	Message       string
	Actual        string
	Required      string
	TransactionID string
	Err           error
}

func (e *ExecutionError) Error() string {
	switch {
	case e.Actual != "" || e.Required != "":
		return fmt.Sprintf("%s: %s (have %s, need %s)", e.Kind, e.Message, e.Actual, e.Required)
	case e.TransactionID != "":
		return fmt.Sprintf("%s: %s (tx %s)", e.Kind, e.Message, e.TransactionID)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *ExecutionError) Unwrap() error { return e.Err }

func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	return ok && t.Kind == e.Kind
}

// SessionError is returned for failures owned by the session workflow itself.
type SessionError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *SessionError) Unwrap() error { return e.Err }

func (e *SessionError) Is(target error) bool {
	t, ok := target.(*SessionError)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is matching by kind.
var (
	ErrSenderAccountMissing = &ResolutionError{Kind: KindSenderAccountMissing}
	ErrMintMismatch         = &ResolutionError{Kind: KindMintMismatch}
	ErrOwnerProgramMismatch = &ResolutionError{Kind: KindOwnerProgramMismatch}

	ErrInsufficientBalance = &ExecutionError{Kind: KindInsufficientBalance}
	ErrInsufficientFee     = &ExecutionError{Kind: KindInsufficientFee}
	ErrDecimalsMismatch    = &ExecutionError{Kind: KindDecimalsMismatch}
	ErrSubmissionFailed    = &ExecutionError{Kind: KindSubmissionFailed}
	ErrConfirmationTimeout = &ExecutionError{Kind: KindConfirmationTimeout}

	ErrNoSupportedOption = &SessionError{Kind: KindNoSupportedOption}
	ErrInvalidSelection  = &SessionError{Kind: KindInvalidSelection}
	ErrMalformedAmount   = &SessionError{Kind: KindMalformedAmount}
	ErrGatewayRejected   = &SessionError{Kind: KindGatewayRejected}
	ErrSessionActive     = &SessionError{Kind: KindSessionActive}
)

// KindOf extracts the error kind from any orchestrator error, or "" if there is none.
func KindOf(err error) ErrorKind {
	var re *ResolutionError
	if errors.As(err, &re) {
		return re.Kind
	}
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	var se *SessionError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// Failure is the persisted form of the error that ended a session.
type Failure struct {
	Kind          ErrorKind `json:"kind"`
	Message       string    `json:"message"`
	Actual        string    `json:"actual,omitempty"`
	Required      string    `json:"required,omitempty"`
	TransactionID string    `json:"transactionId,omitempty"`
}

// FailureFromError converts an error into its persisted form.
func FailureFromError(err error) *Failure {
	if err == nil {
		return nil
	}
	f := &Failure{Kind: KindOf(err), Message: err.Error()}
	var ee *ExecutionError
	if errors.As(err, &ee) {
		f.Actual = ee.Actual
		f.Required = ee.Required
		f.TransactionID = ee.TransactionID
	}
	return f
}
