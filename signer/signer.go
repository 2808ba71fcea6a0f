// Package signer abstracts the key that authorises payer transactions so that
// custody can move to a remote or hardware signer without touching transfer logic.
package signer

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

var ErrInvalidKey = errors.New("invalid private key")

// Signer signs serialized transaction messages for a single account.
type Signer interface {
	PublicKey() solana.PublicKey
	SignMessage(ctx context.Context, message []byte) (solana.Signature, error)
}

// KeypairSigner signs with an in-process ed25519 keypair.
type KeypairSigner struct {
	key solana.PrivateKey
}

var _ Signer = (*KeypairSigner)(nil)

func NewKeypairSigner(key solana.PrivateKey) (*KeypairSigner, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKey, ed25519.PrivateKeySize, len(key))
	}
	return &KeypairSigner{key: key}, nil
}

// FromBytes accepts a 64-byte keypair or a 32-byte seed.
func FromBytes(b []byte) (*KeypairSigner, error) {
	switch len(b) {
	case ed25519.PrivateKeySize:
		key := make([]byte, len(b))
		copy(key, b)
		return NewKeypairSigner(solana.PrivateKey(key))
	case ed25519.SeedSize:
		return NewKeypairSigner(solana.PrivateKey(ed25519.NewKeyFromSeed(b)))
	default:
		return nil, fmt.Errorf("%w: unexpected length %d", ErrInvalidKey, len(b))
	}
}

// Parse reads a key encoded either as base58 or as the JSON byte array written
// by solana-keygen.
func Parse(s string) (*KeypairSigner, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidKey)
	}

	if strings.HasPrefix(s, "[") {
		var raw []byte
		var ints []int
		if err := json.Unmarshal([]byte(s), &ints); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		raw = make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("%w: byte %d out of range", ErrInvalidKey, i)
			}
			raw[i] = byte(v)
		}
		return FromBytes(raw)
	}

	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return FromBytes(raw)
}

// FromKeygenFile loads a solana-keygen JSON keypair file.
func FromKeygenFile(path string) (*KeypairSigner, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("load keypair %s: %w", path, err)
	}
	return NewKeypairSigner(key)
}

func (k *KeypairSigner) PublicKey() solana.PublicKey {
	return k.key.PublicKey()
}

func (k *KeypairSigner) SignMessage(_ context.Context, message []byte) (solana.Signature, error) {
	return k.key.Sign(message)
}

// SignTransaction signs a transaction whose only required signer is the fee payer.
func SignTransaction(ctx context.Context, tx *solana.Transaction, s Signer) error {
	if tx == nil {
		return errors.New("nil transaction")
	}
	if n := tx.Message.Header.NumRequiredSignatures; n != 1 {
		return fmt.Errorf("expected exactly one required signature, got %d", n)
	}
	if len(tx.Message.AccountKeys) == 0 || !tx.Message.AccountKeys[0].Equals(s.PublicKey()) {
		return fmt.Errorf("signer %s is not the fee payer", s.PublicKey())
	}

	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	sig, err := s.SignMessage(ctx, msg)
	if err != nil {
		return fmt.Errorf("sign message: %w", err)
	}
	tx.Signatures = []solana.Signature{sig}
	return nil
}
