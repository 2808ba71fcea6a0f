package utils

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/vitwit/x402pay/types"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	// Register custom validators
	_ = validate.RegisterValidation("solanaaddr", validateSolanaAddrTag)
}

// ParsePaymentRequired parses the body of a 402 response.
func ParsePaymentRequired(data []byte) (*types.PaymentRequired, error) {
	var req types.PaymentRequired

	if err := json.Unmarshal(data, &req); err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrInvalidRequirements,
			Message: fmt.Sprintf("failed to parse payment requirements: %v", err),
		}
	}

	// A missing version is read as version 1.
	if req.X402Version != 0 && req.X402Version != int(types.X402Version1) {
		return nil, &types.X402Error{
			Code:    types.ErrInvalidRequirements,
			Message: fmt.Sprintf("unsupported x402Version %d", req.X402Version),
		}
	}

	// Options are validated one by one by the caller; a single bad option must not hide the others.
	return &req, nil
}

// ParsePayerConfig parses PayerConfig from JSON, validates it and fills in defaults.
func ParsePayerConfig(data []byte) (*types.PayerConfig, error) {
	var config types.PayerConfig

	if err := json.Unmarshal(data, &config); err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrConfigError,
			Message: fmt.Sprintf("failed to parse payer config: %v", err),
		}
	}

	if err := ValidatePayerConfig(&config); err != nil {
		return nil, err
	}

	config = config.WithDefaults()
	return &config, nil
}

// ValidatePayerConfig validates config using struct tags and its own rules.
func ValidatePayerConfig(config *types.PayerConfig) error {
	if err := validate.Struct(config); err != nil {
		return &types.X402Error{
			Code:    types.ErrConfigError,
			Message: fmt.Sprintf("validation failed: %v", err),
		}
	}
	if err := config.Validate(); err != nil {
		return &types.X402Error{
			Code:    types.ErrConfigError,
			Message: err.Error(),
		}
	}
	for _, n := range config.Networks {
		if err := ValidateNetwork(n); err != nil {
			return &types.X402Error{
				Code:    types.ErrUnsupportedNetwork,
				Message: err.Error(),
			}
		}
	}
	return nil
}

// Custom validator functions
func validateSolanaAddrTag(fl validator.FieldLevel) bool {
	return ValidateSolanaAddress(fl.Field().String()) == nil
}
