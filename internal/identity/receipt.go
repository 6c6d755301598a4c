package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"

	"github.com/inneri/gateway/pkg/agentkey"
	"github.com/inneri/gateway/pkg/canonical"
)

// ReceiptSigner MACs call receipts with HMAC-SHA256 over their
// canonical encoding. Symmetric signing is an MVP decision; the
// receipt envelope is stable so an asymmetric signer can be swapped
// in without changing consumers.
type ReceiptSigner struct {
	key []byte
}

// NewReceiptSigner creates a ReceiptSigner with the given key.
func NewReceiptSigner(key []byte) *ReceiptSigner {
	return &ReceiptSigner{key: key}
}

// Sign returns the unpadded base64url HMAC of the canonical encoding
// of v. v must not already contain a signature field.
func (s *ReceiptSigner) Sign(v any) (string, error) {
	msg, err := canonical.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonicalize receipt: %w", err)
	}
	mac := hmac.New(sha256.New, s.key)
	mac.Write(msg)
	return agentkey.EncodeB64URL(mac.Sum(nil)), nil
}

// VerifySignature recomputes the MAC over v and compares it to sig in
// constant time.
func (s *ReceiptSigner) VerifySignature(v any, sig string) (bool, error) {
	want, err := s.Sign(v)
	if err != nil {
		return false, err
	}
	return hmac.Equal([]byte(want), []byte(sig)), nil
}
