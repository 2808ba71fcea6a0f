// Package gateway talks to the x402 payment gateway that prices and serves resources.
package gateway

import (
	"context"

	"github.com/vitwit/x402pay/types"
)

// ResourcePlaceholder is replaced by the resource id in request and confirm paths.
const ResourcePlaceholder = "{resourceId}"

// Gateway is the payment gateway as seen by a paying client.
type Gateway interface {
	// RequestPayment asks for a resource. A 402 result carries the payment options.
	RequestPayment(ctx context.Context, resourceID string) (*types.PaymentRequestResult, error)

	// ConfirmPayment submits an encoded proof for the resource.
	ConfirmPayment(ctx context.Context, resourceID, proofHeader string) (*types.ConfirmResult, error)
}
