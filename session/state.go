package session

import (
	"time"

	"github.com/vitwit/x402pay/types"
)

type State string

const (
	Idle                     State = "idle"
	AwaitingOptions          State = "awaiting_options"
	AwaitingNetworkSelection State = "awaiting_network_selection"
	AwaitingAmountSelection  State = "awaiting_amount_selection"
	Transferring             State = "transferring"
	AwaitingConfirmation     State = "awaiting_confirmation"
	Succeeded                State = "succeeded"
	Failed                   State = "failed"
	Cancelled                State = "cancelled"
)

// Terminal reports whether no further transition can leave the state.
func (s State) Terminal() bool {
	switch s {
	case Succeeded, Failed, Cancelled:
		return true
	default:
		return false
	}
}

// Cancellable reports whether a session in this state can be abandoned without ledger side effects.
func (s State) Cancellable() bool {
	switch s {
	case AwaitingOptions, AwaitingNetworkSelection, AwaitingAmountSelection:
		return true
	default:
		return false
	}
}

func CanTransition(from, to State) bool {
	switch from {
	case Idle, Succeeded, Failed, Cancelled:
		return to == AwaitingOptions
	case AwaitingOptions:
		return to == AwaitingNetworkSelection || to == Succeeded || to == Failed || to == Cancelled
	case AwaitingNetworkSelection:
		return to == AwaitingAmountSelection || to == Failed || to == Cancelled
	case AwaitingAmountSelection:
		return to == Transferring || to == Failed || to == Cancelled
	case Transferring:
		return to == AwaitingConfirmation || to == Failed
	case AwaitingConfirmation:
		return to == Succeeded || to == Failed
	default:
		return false
	}
}

// Session is the record of one resource purchase.
type Session struct {
	ResourceID       string                 `json:"resourceId"`
	OrderID          string                 `json:"orderId,omitempty"`
	CandidateOptions []types.PaymentOption  `json:"candidateOptions,omitempty"`
	SelectedOption   *types.PaymentOption   `json:"selectedOption,omitempty"`
	Decimals         *uint8                 `json:"decimals,omitempty"`
	RequestedAmount  string                 `json:"requestedAmount,omitempty"`
	TransferReceipt  *types.TransferReceipt `json:"transferReceipt,omitempty"`

	// PendingTransactionID is set when a transfer was broadcast but its outcome is unknown.
	PendingTransactionID string `json:"pendingTransactionId,omitempty"`

	State   State          `json:"state"`
	Failure *types.Failure `json:"failure,omitempty"`

	// Provisional marks a success the gateway had not finished settling when polling stopped.
	Provisional bool `json:"provisional,omitempty"`

	// Resource holds the body served when the resource turned out to be already paid.
	Resource []byte `json:"resource,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a deep copy safe to hand out while the machine keeps mutating the original.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.CandidateOptions != nil {
		c.CandidateOptions = append([]types.PaymentOption(nil), s.CandidateOptions...)
	}
	if s.SelectedOption != nil {
		opt := *s.SelectedOption
		c.SelectedOption = &opt
	}
	if s.Decimals != nil {
		d := *s.Decimals
		c.Decimals = &d
	}
	if s.TransferReceipt != nil {
		r := *s.TransferReceipt
		c.TransferReceipt = &r
	}
	if s.Failure != nil {
		f := *s.Failure
		c.Failure = &f
	}
	if s.Resource != nil {
		c.Resource = append([]byte(nil), s.Resource...)
	}
	return &c
}
