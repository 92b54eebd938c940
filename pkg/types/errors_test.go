package types

import (
	"errors"
	"fmt"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		err      error
		sentinel error
	}{
		{&SearchTimeoutError{Suffix: "tok", Attempts: 10}, ErrSearchTimeout},
		{&UploadError{Backend: "ipfs-local", Attempts: 2, Err: cause}, ErrUploadFailed},
		{&TransactionRequestError{StatusCode: 400, Body: "bad"}, ErrTransactionRequest},
		{&DeserializationError{Err: cause}, ErrDeserialization},
		{&SignatureRejectedError{Signer: "abc", Err: cause}, ErrSignatureRejected},
		{&BroadcastError{Err: cause}, ErrBroadcast},
		{NewConfirmationError("sig", map[string]interface{}{"x": 1.0}), ErrOnChain},
		{&PersistenceWarning{Address: "addr", Err: cause}, ErrPersistence},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%T", tt.err), func(t *testing.T) {
			wrapped := fmt.Errorf("stage: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
		})
	}
}

func TestUploadErrorNamesLastBackend(t *testing.T) {
	err := &UploadError{Backend: "ipfs-local", Attempts: 2, Err: errors.New("503")}
	assert.Contains(t, err.Error(), "ipfs-local")
	assert.Contains(t, err.Error(), "503")
}

func TestIsCancellation(t *testing.T) {
	rejected := fmt.Errorf("sign: %w", &SignatureRejectedError{Signer: "w", Err: errors.New("User rejected the request")})
	assert.True(t, IsCancellation(rejected))
	assert.False(t, IsCancellation(&BroadcastError{Err: errors.New("x")}))
	assert.False(t, IsRetryableError(rejected))
}

func TestConfirmationErrorKeepsObjectVerbatim(t *testing.T) {
	var raw interface{}
	require.NoError(t, json.Unmarshal([]byte(`{"InstructionError":[2,{"Custom":6002}]}`), &raw))

	err := NewConfirmationError("SIG1", raw)
	assert.Equal(t, `{"InstructionError":[2,{"Custom":6002}]}`, err.Detail)
	require.NotNil(t, err.Program)
	assert.Equal(t, 2, err.Program.Instruction)
	assert.Equal(t, 6002, err.Program.Code)
	assert.Contains(t, err.Error(), "too much SOL")
	assert.Contains(t, err.Error(), `"Custom":6002`)
}

func TestParseInstructionError(t *testing.T) {
	assert.Nil(t, ParseInstructionError(nil))
	assert.Nil(t, ParseInstructionError("AccountInUse"))

	named := ParseInstructionError(map[string]interface{}{
		"InstructionError": []interface{}{float64(0), "InvalidAccountData"},
	})
	require.NotNil(t, named)
	assert.Equal(t, "Invalid Account Data", named.Message)

	unknown := ParseInstructionError(map[string]interface{}{
		"InstructionError": []interface{}{float64(1), map[string]interface{}{"Custom": float64(42)}},
	})
	require.NotNil(t, unknown)
	assert.Equal(t, 42, unknown.Code)
	assert.Equal(t, "custom program error 42", unknown.Message)
}

func TestValidation(t *testing.T) {
	assert.NoError(t, ValidateTokenName("Dance Cat"))
	assert.Error(t, ValidateTokenName(""))
	assert.Error(t, ValidateTokenName("this name is far too long for on-chain metadata"))
	assert.NoError(t, ValidateSymbol("DCAT"))
	assert.Error(t, ValidateSymbol("WAYTOOLONGSYM"))
	assert.NoError(t, ValidateAmount("amount", decimal.Zero))
	assert.Error(t, ValidateAmount("amount", decimal.NewFromInt(-1)))
	assert.Error(t, ValidatePositiveAmount("amount", decimal.Zero))
	assert.Error(t, ValidateSlippage(101))
	assert.NoError(t, ValidateOptionalURL("website", ""))
	assert.Error(t, ValidateOptionalURL("website", "not a url"))

	var ve ValidationError
	require.True(t, errors.As(ValidateSymbol(""), &ve))
	assert.Equal(t, "symbol", ve.Field)
}
