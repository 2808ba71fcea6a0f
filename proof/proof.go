// Package proof encodes the settlement proof sent to the gateway in the X-PAYMENT header.
package proof

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/vitwit/x402pay/types"
)

var (
	ErrMissingField  = errors.New("proof: missing required field")
	ErrInvalidHeader = errors.New("proof: invalid header")
)

// Encode renders the proof for one confirmed transfer. The output depends only on its
// arguments, so the same receipt always produces the same header.
func Encode(orderID, scheme, network, amountMinorUnits, transactionID string) (string, error) {
	switch {
	case orderID == "":
		return "", fmt.Errorf("%w: orderId", ErrMissingField)
	case amountMinorUnits == "":
		return "", fmt.Errorf("%w: amount", ErrMissingField)
	case transactionID == "":
		return "", fmt.Errorf("%w: txHash", ErrMissingField)
	}

	env := types.ProofEnvelope{
		X402Version: int(types.X402Version1),
		Scheme:      scheme,
		Network:     network,
		OrderID:     orderID,
		Payload: types.ProofPayload{
			Amount: amountMinorUnits,
			TxHash: transactionID,
		},
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(env); err != nil {
		return "", fmt.Errorf("marshal proof: %w", err)
	}
	return base64.StdEncoding.EncodeToString(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// FromReceipt encodes the proof for a transfer receipt paying the given option.
func FromReceipt(orderID string, opt types.PaymentOption, r *types.TransferReceipt) (string, error) {
	if r == nil {
		return "", fmt.Errorf("%w: receipt", ErrMissingField)
	}
	return Encode(orderID, opt.Scheme, opt.Network, r.AmountMinorUnits, r.TransactionID)
}

// Decode parses a header produced by Encode.
func Decode(header string) (*types.ProofEnvelope, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	var env types.ProofEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	if env.X402Version != int(types.X402Version1) {
		return nil, fmt.Errorf("%w: unsupported x402Version %d", ErrInvalidHeader, env.X402Version)
	}
	return &env, nil
}
