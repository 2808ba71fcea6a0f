package utils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/vitwit/x402pay/types"
)

var base58Pattern = regexp.MustCompile("^[1-9A-HJ-NP-Za-km-z]+$")

// ValidateSolanaAddress checks that address is a base58 encoded 32 byte public key.
func ValidateSolanaAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if len(address) < 32 || len(address) > 44 {
		return fmt.Errorf("Solana address has invalid length")
	}
	if !isBase58String(address) {
		return fmt.Errorf("Solana address must be valid base58")
	}
	raw, err := base58.Decode(address)
	if err != nil {
		return fmt.Errorf("Solana address must be valid base58: %w", err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("Solana address must decode to 32 bytes, got %d", len(raw))
	}
	return nil
}

// ValidateTransactionSignature checks that sig is a base58 encoded 64 byte signature.
func ValidateTransactionSignature(sig string) error {
	if sig == "" {
		return fmt.Errorf("transaction signature cannot be empty")
	}
	// Solana transaction signature - base58 encoded, typically 87-88 characters
	if len(sig) < 80 || len(sig) > 90 || !isBase58String(sig) {
		return fmt.Errorf("Solana transaction signature must be valid base58")
	}
	raw, err := base58.Decode(sig)
	if err != nil || len(raw) != 64 {
		return fmt.Errorf("Solana transaction signature must decode to 64 bytes")
	}
	return nil
}

// ValidatePaymentOption checks the struct tags of opt and that its mint and recipient are Solana addresses.
func ValidatePaymentOption(opt *types.PaymentOption) error {
	if err := validate.Struct(opt); err != nil {
		return &types.X402Error{
			Code:    types.ErrInvalidRequirements,
			Message: fmt.Sprintf("validation failed: %v", err),
		}
	}
	if err := ValidateSolanaAddress(opt.Asset); err != nil {
		return &types.X402Error{
			Code:    types.ErrInvalidRequirements,
			Message: fmt.Sprintf("asset: %v", err),
		}
	}
	if err := ValidateSolanaAddress(opt.PayTo); err != nil {
		return &types.X402Error{
			Code:    types.ErrInvalidRequirements,
			Message: fmt.Sprintf("payTo: %v", err),
		}
	}
	if opt.Decimals != nil && *opt.Decimals > 18 {
		return &types.X402Error{
			Code:    types.ErrInvalidRequirements,
			Message: fmt.Sprintf("decimals %d out of range", *opt.Decimals),
		}
	}
	return nil
}

// ValidateNetwork checks if a network is a Solana network
func ValidateNetwork(network string) error {
	if !types.Network(strings.ToLower(network)).IsSolana() {
		return fmt.Errorf("unsupported network: %s", network)
	}
	return nil
}

// ValidatePaymentScheme checks if a payment scheme is supported
func ValidatePaymentScheme(scheme string) error {
	if scheme != string(types.SchemeExact) {
		return fmt.Errorf("unsupported payment scheme: %s", scheme)
	}
	return nil
}

// Helper function to check if a string is valid base58
func isBase58String(s string) bool {
	// Base58 alphabet: 123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz
	return base58Pattern.MatchString(s)
}
