// Package gatewaytest provides a scripted gateway.Gateway for tests.
package gatewaytest

import (
	"context"
	"sync"

	"github.com/vitwit/x402pay/gateway"
	"github.com/vitwit/x402pay/types"
)

// Fake answers RequestPayment with RequestResult and ConfirmPayment with ConfirmResults in
// order, repeating the last one once the script runs out.
type Fake struct {
	mu sync.Mutex

	RequestResult  *types.PaymentRequestResult
	RequestErr     error
	ConfirmResults []*types.ConfirmResult
	ConfirmErr     error

	// OnRequest, when set, runs inside RequestPayment before it returns.
	OnRequest func(resourceID string)

	Requests []string
	Proofs   []string
}

var _ gateway.Gateway = (*Fake)(nil)

// PaymentRequired returns a fake that asks for payment with the given options.
func PaymentRequired(orderID string, accepts ...types.PaymentOption) *Fake {
	return &Fake{
		RequestResult: &types.PaymentRequestResult{
			StatusCode: 402,
			Required: &types.PaymentRequired{
				X402Version: int(types.X402Version1),
				Accepts:     accepts,
				OrderID:     orderID,
			},
		},
		ConfirmResults: []*types.ConfirmResult{Settled()},
	}
}

func Settled() *types.ConfirmResult {
	return &types.ConfirmResult{StatusCode: 200, Code: 200, Status: "success", Message: "payment verified"}
}

func Waiting() *types.ConfirmResult {
	return &types.ConfirmResult{StatusCode: 200, Code: 202, Status: "pending", Message: "Waiting for payment settlement"}
}

func (f *Fake) RequestPayment(_ context.Context, resourceID string) (*types.PaymentRequestResult, error) {
	f.mu.Lock()
	f.Requests = append(f.Requests, resourceID)
	hook := f.OnRequest
	res, err := f.RequestResult, f.RequestErr
	f.mu.Unlock()

	if hook != nil {
		hook(resourceID)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (f *Fake) ConfirmPayment(_ context.Context, _ string, proofHeader string) (*types.ConfirmResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Proofs = append(f.Proofs, proofHeader)
	if f.ConfirmErr != nil {
		return nil, f.ConfirmErr
	}
	if len(f.ConfirmResults) == 0 {
		return Settled(), nil
	}
	n := len(f.Proofs) - 1
	if n >= len(f.ConfirmResults) {
		n = len(f.ConfirmResults) - 1
	}
	r := *f.ConfirmResults[n]
	return &r, nil
}

// ConfirmCalls returns how many proofs were submitted.
func (f *Fake) ConfirmCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Proofs)
}
