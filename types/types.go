package types

import (
	"fmt"
	"strings"
	"time"
)

// X402Version represents the version of the x402 protocol
type X402Version int

const (
	X402Version1 X402Version = 1
)

// PaymentHeader is the request header carrying the encoded payment proof.
const PaymentHeader = "X-PAYMENT"

// Network represents a network name as advertised by a gateway
type Network string

const (
	// Solana Networks
	NetworkSolana        Network = "solana"
	NetworkSolanaMainnet Network = "solana-mainnet"
	NetworkSolanaDevnet  Network = "solana-devnet" // testnet
	NetworkSolanaTestnet Network = "solana-testnet"

	// Bare cluster names some gateways send
	NetworkMainnetBeta Network = "mainnet-beta"
	NetworkDevnet      Network = "devnet"
	NetworkTestnet     Network = "testnet"

	// EVM Networks, recognised only so they can be filtered out
	NetworkPolygon     Network = "polygon"
	NetworkPolygonAmoy Network = "polygon-amoy"
	NetworkBase        Network = "base"
	NetworkBaseSepolia Network = "base-sepolia"
)

// PaymentScheme represents different payment schemes
type PaymentScheme string

const (
	SchemeExact PaymentScheme = "exact"
)

// PaymentOption is one way to pay for a resource, as offered by the gateway.
// It is never mutated after being decoded.
type PaymentOption struct {
	// Scheme of the payment protocol to use (e.g., "exact").
	Scheme string `json:"scheme" validate:"required"`

	// Network the payment must be sent on (e.g., "devnet", "solana-devnet").
	Network string `json:"network" validate:"required"`

	// Mint address of the SPL token to pay with.
	Asset string `json:"asset" validate:"required"`

	// Ticker shown to the payer.
	Symbol string `json:"symbol"`

	// Token precision. Nil when the gateway does not advertise it.
	Decimals *uint8 `json:"decimals,omitempty"`

	// Wallet or token account that must receive the payment.
	PayTo string `json:"payTo" validate:"required"`

	// Descriptor of the resource being purchased.
	Resource string `json:"resource"`

	Description       string `json:"description,omitempty"`
	MaxAmountRequired string `json:"maxAmountRequired,omitempty"`

	Nonce string `json:"nonce"`

	// Unix seconds after which the option is no longer honoured. Zero means no expiry.
	ExpiresAt int64 `json:"expiresAt"`

	Extra map[string]interface{} `json:"extra,omitempty"`
}

// Expired reports whether the option has passed its expiry at the given instant.
func (o PaymentOption) Expired(now time.Time) bool {
	return o.ExpiresAt > 0 && now.Unix() >= o.ExpiresAt
}

// PaymentRequired is the body of a 402 response from the gateway.
type PaymentRequired struct {
	X402Version int             `json:"x402Version"`
	Accepts     []PaymentOption `json:"accepts"`
	OrderID     string          `json:"orderId"`
	Error       string          `json:"error,omitempty"`
}

// PaymentRequestResult is the outcome of asking the gateway for a resource.
type PaymentRequestResult struct {
	// StatusCode is the HTTP status returned by the gateway.
	StatusCode int

	// Required is set when StatusCode is 402.
	Required *PaymentRequired

	// Data is the raw body when the resource was served (already paid).
	Data []byte
}

// Paid reports whether the gateway served the resource without asking for payment.
func (r *PaymentRequestResult) Paid() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// ConfirmResult is the gateway's answer to a submitted payment proof.
type ConfirmResult struct {
	StatusCode int         `json:"-"`
	Code       int         `json:"code"`
	Status     string      `json:"status,omitempty"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data,omitempty"`
}

// Pending reports whether the gateway is still waiting to observe settlement.
func (r *ConfirmResult) Pending() bool {
	return r != nil && strings.Contains(strings.ToLower(r.Message), "waiting")
}

// Settled reports whether the gateway accepted the proof.
func (r *ConfirmResult) Settled() bool {
	if r == nil || r.StatusCode < 200 || r.StatusCode >= 300 {
		return false
	}
	switch strings.ToLower(r.Status) {
	case "success", "ok", "paid", "settled":
		return true
	case "":
		return r.Code == 0 || r.Code == 200
	default:
		return false
	}
}

// ProofEnvelope is the JSON document carried, base64 encoded, in the X-PAYMENT header.
// Field order is part of the wire format.
type ProofEnvelope struct {
	X402Version int          `json:"x402Version"`
	Scheme      string       `json:"scheme"`
	Network     string       `json:"network"`
	OrderID     string       `json:"orderId"`
	Payload     ProofPayload `json:"payload"`
}

type ProofPayload struct {
	// Amount in minor units, rendered as a decimal string.
	Amount string `json:"amount"`
	TxHash string `json:"txHash"`
}

// ResolvedDestination is where a transfer must land. It is recomputed for every attempt.
type ResolvedDestination struct {
	TokenAccountAddress string `json:"tokenAccountAddress"`
	RequiresCreation    bool   `json:"requiresCreation"`
	OwnerAddress        string `json:"ownerAddress"`
}

// TransferReceipt is the evidence of a confirmed on-chain transfer.
type TransferReceipt struct {
	TransactionID      string `json:"transactionId"`
	AmountMinorUnits   string `json:"amountMinorUnits"`
	DecimalsUsed       uint8  `json:"decimalsUsed"`
	SourceAccount      string `json:"sourceAccount"`
	DestinationAccount string `json:"destinationAccount"`
	Mint               string `json:"mint"`
	CreatedAccount     bool   `json:"createdAccount"`
	Slot               uint64 `json:"slot,omitempty"`
}

// PayerConfig contains configuration for a payment orchestrator
type PayerConfig struct {
	RPCURL     string `json:"rpcUrl" validate:"required,url"`
	Commitment string `json:"commitment,omitempty" validate:"omitempty,oneof=processed confirmed finalized"`

	GatewayURL  string            `json:"gatewayUrl" validate:"required,url"`
	RequestPath string            `json:"requestPath,omitempty"`
	ConfirmPath string            `json:"confirmPath,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`

	// Networks restricts accepted options to these names. Empty accepts any Solana network.
	Networks []string `json:"networks,omitempty"`

	// AcceptedMints restricts accepted options to these mints. Empty accepts any mint.
	AcceptedMints []string `json:"acceptedMints,omitempty" validate:"omitempty,dive,solanaaddr"`

	// DefaultDecimals is used when neither the option nor the mint account gives decimals.
	// Nil means DefaultTokenDecimals; zero is a valid precision.
	DefaultDecimals    *uint8 `json:"defaultDecimals,omitempty" validate:"omitempty,lte=18"`
	FeeReserveLamports uint64 `json:"feeReserveLamports,omitempty"`

	// ConfirmPollAttempts is how often a pending confirmation is polled again. Nil means
	// DefaultConfirmPollAttempts; zero never polls again.
	ConfirmPollAttempts      *int          `json:"confirmPollAttempts,omitempty" validate:"omitempty,gte=0"`
	ConfirmPollInterval      time.Duration `json:"confirmPollInterval,omitempty"`
	ConfirmationPollInterval time.Duration `json:"confirmationPollInterval,omitempty"`
	DefaultTimeout           time.Duration `json:"defaultTimeout,omitempty"`

	LogLevel      string `json:"logLevel,omitempty" validate:"omitempty,oneof=debug info warn error"`
	EnableMetrics bool   `json:"enableMetrics,omitempty"`
	RedisURL      string `json:"redisUrl,omitempty"`
}

// Defaults applied by WithDefaults.
const (
	DefaultRequestPath              = "/api/resource/{resourceId}"
	DefaultConfirmPath              = "/api/resource/{resourceId}/confirm"
	DefaultTokenDecimals      uint8 = 6
	DefaultFeeReserveLamports       = 10_000_000 // 0.01 SOL
	DefaultConfirmPollAttempts      = 3
	DefaultConfirmPollInterval      = 2 * time.Second
	DefaultConfirmationPoll         = 500 * time.Millisecond
	DefaultTimeout                  = 90 * time.Second
)

// WithDefaults returns a copy of the config with zero values replaced by defaults.
func (c PayerConfig) WithDefaults() PayerConfig {
	if c.Commitment == "" {
		c.Commitment = "confirmed"
	}
	if c.RequestPath == "" {
		c.RequestPath = DefaultRequestPath
	}
	if c.ConfirmPath == "" {
		c.ConfirmPath = DefaultConfirmPath
	}
	if c.DefaultDecimals == nil {
		d := DefaultTokenDecimals
		c.DefaultDecimals = &d
	}
	if c.FeeReserveLamports == 0 {
		c.FeeReserveLamports = DefaultFeeReserveLamports
	}
	if c.ConfirmPollAttempts == nil {
		n := DefaultConfirmPollAttempts
		c.ConfirmPollAttempts = &n
	}
	if c.ConfirmPollInterval <= 0 {
		c.ConfirmPollInterval = DefaultConfirmPollInterval
	}
	if c.ConfirmationPollInterval <= 0 {
		c.ConfirmationPollInterval = DefaultConfirmationPoll
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = DefaultTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return c
}

func (c PayerConfig) FallbackDecimals() uint8 {
	if c.DefaultDecimals == nil {
		return DefaultTokenDecimals
	}
	return *c.DefaultDecimals
}

func (c PayerConfig) PollAttempts() int {
	if c.ConfirmPollAttempts == nil {
		return DefaultConfirmPollAttempts
	}
	return *c.ConfirmPollAttempts
}

// Accepts reports whether an option can be paid under this configuration.
func (c PayerConfig) Accepts(opt PaymentOption) bool {
	if Network(opt.Network).Family() != ChainSolana {
		return false
	}
	if len(c.Networks) > 0 && !containsFold(c.Networks, opt.Network) {
		return false
	}
	if len(c.AcceptedMints) > 0 && !contains(c.AcceptedMints, opt.Asset) {
		return false
	}
	return true
}

// Validate checks the fields the orchestrator cannot work without.
func (c *PayerConfig) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpcUrl is required")
	}
	if c.GatewayURL == "" {
		return fmt.Errorf("gatewayUrl is required")
	}
	if c.ConfirmPollAttempts != nil && *c.ConfirmPollAttempts < 0 {
		return fmt.Errorf("confirmPollAttempts must not be negative")
	}
	return nil
}

// IsSolana reports whether the network belongs to the Solana family.
// CAIP-2 identifiers ("solana:<genesis>") are accepted as well.
func (n Network) IsSolana() bool {
	switch n {
	case NetworkSolana, NetworkSolanaMainnet, NetworkSolanaDevnet, NetworkSolanaTestnet,
		NetworkMainnetBeta, NetworkDevnet, NetworkTestnet:
		return true
	}
	return strings.HasPrefix(string(n), "solana:")
}

func (n Network) IsEVM() bool {
	return n == NetworkPolygon || n == NetworkPolygonAmoy || n == NetworkBaseSepolia || n == NetworkBase ||
		strings.HasPrefix(string(n), "eip155:")
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}
