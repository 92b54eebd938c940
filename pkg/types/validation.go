package types

import (
	"net/url"
	"unicode/utf8"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// Metaplex metadata limits.
const (
	MaxNameLength   = 32
	MaxSymbolLength = 10
)

// ValidateTokenName checks a token name against metadata limits.
func ValidateTokenName(name string) error {
	if name == "" {
		return NewValidationError("name", "is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return NewValidationError("name", "must be at most 32 characters")
	}
	return nil
}

// ValidateSymbol checks a token symbol against metadata limits.
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return NewValidationError("symbol", "is required")
	}
	if utf8.RuneCountInString(symbol) > MaxSymbolLength {
		return NewValidationError("symbol", "must be at most 10 characters")
	}
	return nil
}

// ValidateAmount rejects negative amounts. Zero is allowed (create without initial buy).
func ValidateAmount(field string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return NewValidationError(field, "must not be negative")
	}
	return nil
}

// ValidatePositiveAmount rejects zero and negative amounts.
func ValidatePositiveAmount(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return NewValidationError(field, "must be greater than 0")
	}
	return nil
}

// ValidateSlippage validates a slippage percentage.
func ValidateSlippage(percent int) error {
	if percent < 0 || percent > 100 {
		return NewValidationError("slippage", "must be within [0, 100] percent")
	}
	return nil
}

// ValidatePublicKey validates a public key is not zero.
func ValidatePublicKey(name string, key solana.PublicKey) error {
	if key.IsZero() {
		return NewValidationError(name, "cannot be zero")
	}
	return nil
}

// ValidateOptionalURL accepts an empty string or an absolute http(s) URL.
func ValidateOptionalURL(field, raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return NewValidationError(field, "must be an absolute http(s) URL")
	}
	return nil
}
