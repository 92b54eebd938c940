package types

import (
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// Pipeline failure kinds. Typed errors below match them through errors.Is.
var (
	ErrSearchTimeout      = errors.New("vanity search timed out")
	ErrUploadFailed       = errors.New("upload failed")
	ErrTransactionRequest = errors.New("transaction request failed")
	ErrDeserialization    = errors.New("transaction deserialization failed")
	ErrSignatureRejected  = errors.New("signature rejected")
	ErrBroadcast          = errors.New("broadcast failed")
	ErrOnChain            = errors.New("transaction failed on-chain")
	ErrPersistence        = errors.New("registry write failed")
)

// Parameter and state errors.
var (
	ErrNilRPC              = errors.New("rpc client is nil")
	ErrNilSigner           = errors.New("signer is nil")
	ErrSignerUnsupported   = errors.New("signer cannot sign transactions")
	ErrMissingSigner       = errors.New("transaction does not require this signer")
	ErrConfirmationTimeout = errors.New("confirmation timeout")
	ErrWalletUnverified    = errors.New("wallet ownership not verified")
)

// SearchTimeoutError reports a vanity search that ran out of time without a usable key.
type SearchTimeoutError struct {
	Suffix   string
	Attempts uint64
}

func (e *SearchTimeoutError) Error() string {
	return fmt.Sprintf("could not find an address ending with %q after %d attempts", e.Suffix, e.Attempts)
}

func (e *SearchTimeoutError) Is(target error) bool { return target == ErrSearchTimeout }

// UploadError is returned once every upload backend has failed.
// Backend names the last backend attempted; Err aggregates all backend failures.
type UploadError struct {
	Backend  string
	Attempts int
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed on all %d backends, last backend %s: %v", e.Attempts, e.Backend, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

func (e *UploadError) Is(target error) bool { return target == ErrUploadFailed }

// TransactionRequestError is a non-2xx (or empty) response from the trade API.
type TransactionRequestError struct {
	StatusCode int
	Body       string
}

func (e *TransactionRequestError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("error obtaining transaction: %s", e.Body)
	}
	return fmt.Sprintf("error obtaining transaction: %d - %s", e.StatusCode, e.Body)
}

func (e *TransactionRequestError) Is(target error) bool { return target == ErrTransactionRequest }

// DeserializationError marks bytes that do not decode into a transaction.
type DeserializationError struct {
	Err error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("error deserializing transaction: %v", e.Err)
}

func (e *DeserializationError) Unwrap() error { return e.Err }

func (e *DeserializationError) Is(target error) bool { return target == ErrDeserialization }

// SignatureRejectedError is a user declining to sign. It is a cancellation, not a fault.
type SignatureRejectedError struct {
	Signer string
	Err    error
}

func (e *SignatureRejectedError) Error() string {
	return fmt.Sprintf("signature request cancelled by wallet %s", e.Signer)
}

func (e *SignatureRejectedError) Unwrap() error { return e.Err }

func (e *SignatureRejectedError) Is(target error) bool { return target == ErrSignatureRejected }

// BroadcastError is the network refusing the raw transaction.
type BroadcastError struct {
	Err error
}

func (e *BroadcastError) Error() string {
	return fmt.Sprintf("broadcast failed: %v", e.Err)
}

func (e *BroadcastError) Unwrap() error { return e.Err }

func (e *BroadcastError) Is(target error) bool { return target == ErrBroadcast }

// ConfirmationError carries the on-chain error object of a landed transaction.
// Detail is the object encoded as JSON, verbatim.
type ConfirmationError struct {
	Signature string
	Detail    string
	Raw       interface{}
	Program   *ProgramError
}

// NewConfirmationError encodes raw as JSON and decodes a custom program code when present.
func NewConfirmationError(signature string, raw interface{}) *ConfirmationError {
	detail, err := json.Marshal(raw)
	if err != nil {
		detail = []byte(fmt.Sprintf("%v", raw))
	}
	return &ConfirmationError{
		Signature: signature,
		Detail:    string(detail),
		Raw:       raw,
		Program:   ParseInstructionError(raw),
	}
}

func (e *ConfirmationError) Error() string {
	msg := fmt.Sprintf("transaction error: %s", e.Detail)
	if e.Program != nil {
		msg += " (" + e.Program.Message + ")"
	}
	return msg
}

func (e *ConfirmationError) Is(target error) bool { return target == ErrOnChain }

// PersistenceWarning is a registry failure after the token already exists on-chain.
type PersistenceWarning struct {
	Address string
	Err     error
}

func (e *PersistenceWarning) Error() string {
	return fmt.Sprintf("token %s minted but not recorded: %v", e.Address, e.Err)
}

func (e *PersistenceWarning) Unwrap() error { return e.Err }

func (e *PersistenceWarning) Is(target error) bool { return target == ErrPersistence }

// IsCancellation reports whether err is a user cancellation rather than a failure.
func IsCancellation(err error) bool {
	return errors.Is(err, ErrSignatureRejected)
}

// RPCError wraps RPC failures with operation context.
type RPCError struct {
	Op  string
	Err error
}

func (e RPCError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e RPCError) Unwrap() error {
	return e.Err
}

// ValidationError represents input validation failures.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message}
}

// ProgramError represents on-chain program execution errors.
type ProgramError struct {
	Program     string
	Instruction int
	Code        int
	Message     string
}

func (e ProgramError) Error() string {
	return fmt.Sprintf("program %s error [%d]: %s", e.Program, e.Code, e.Message)
}

// pump bonding-curve program error codes.
var pumpErrors = map[int]string{
	6000: "not authorized",
	6001: "program already initialized",
	6002: "too much SOL required to buy the given amount of tokens",
	6003: "too little SOL received to sell the given amount of tokens",
	6004: "mint does not match bonding curve",
	6005: "bonding curve has completed and liquidity migrated",
	6006: "bonding curve has not completed",
	6007: "program not initialized",
}

// ParseInstructionError extracts {"InstructionError":[idx,{"Custom":code}]} from an
// RPC error value. It returns nil for any other shape.
func ParseInstructionError(errVal interface{}) *ProgramError {
	errMap, ok := errVal.(map[string]interface{})
	if !ok {
		return nil
	}
	instErr, ok := errMap["InstructionError"].([]interface{})
	if !ok || len(instErr) < 2 {
		return nil
	}
	idx, _ := toInt(instErr[0])
	custom, ok := instErr[1].(map[string]interface{})
	if !ok {
		if name, ok := instErr[1].(string); ok {
			return &ProgramError{Instruction: idx, Code: -1, Message: toReadableError(name)}
		}
		return nil
	}
	code, ok := toInt(custom["Custom"])
	if !ok {
		return nil
	}
	pe := &ProgramError{Program: "pump", Instruction: idx, Code: code}
	if msg, known := pumpErrors[code]; known {
		pe.Message = msg
	} else {
		pe.Program = ""
		pe.Message = fmt.Sprintf("custom program error %d", code)
	}
	return pe
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}

// toReadableError converts CamelCase error name to readable format.
func toReadableError(name string) string {
	if name == "" {
		return "unknown error"
	}
	var b strings.Builder
	for i, c := range name {
		if i > 0 && c >= 'A' && c <= 'Z' {
			b.WriteByte(' ')
		}
		b.WriteRune(c)
	}
	return b.String()
}

// IsRetryableError checks if an error is worth retrying at the transport level.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrSignatureRejected),
		errors.Is(err, ErrDeserialization),
		errors.Is(err, ErrOnChain),
		errors.Is(err, ErrTransactionRequest):
		return false
	}
	var ve ValidationError
	return !errors.As(err, &ve)
}
