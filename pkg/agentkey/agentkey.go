// Package agentkey handles Ed25519 agent keys in PEM form and the
// unpadded base64url signature encoding used on the wire.
package agentkey

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
)

// ErrNotEd25519 is returned when a PEM block parses but does not contain
// an Ed25519 key.
var ErrNotEd25519 = errors.New("key is not Ed25519")

// GenerateKeypair creates a fresh Ed25519 keypair.
func GenerateKeypair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate keypair: %w", err)
	}
	return pub, priv, nil
}

// MarshalPublicKeyPEM encodes pub as a PEM SubjectPublicKeyInfo block.
func MarshalPublicKeyPEM(pub ed25519.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// ParsePublicKeyPEM decodes a PEM SubjectPublicKeyInfo block and returns
// the Ed25519 public key inside it. Fails closed on malformed PEM and on
// keys of any other type.
func ParsePublicKeyPEM(pemStr string) (ed25519.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, ErrNotEd25519
	}
	return pub, nil
}

// MarshalPrivateKeyPEM encodes priv as a PEM PKCS#8 block.
func MarshalPrivateKeyPEM(priv ed25519.PrivateKey) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", fmt.Errorf("marshal private key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})), nil
}

// ParsePrivateKeyPEM decodes a PEM PKCS#8 block holding an Ed25519
// private key.
func ParsePrivateKeyPEM(pemStr string) (ed25519.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	priv, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, ErrNotEd25519
	}
	return priv, nil
}

// Sign signs message with priv and returns the signature as unpadded
// base64url.
func Sign(priv ed25519.PrivateKey, message []byte) string {
	return EncodeB64URL(ed25519.Sign(priv, message))
}

// Verify checks an unpadded base64url signature over message against a
// PEM-encoded public key. Any failure — malformed PEM, wrong key type,
// undecodable signature, mismatch — yields false.
func Verify(publicKeyPEM string, message []byte, signatureB64URL string) bool {
	pub, err := ParsePublicKeyPEM(publicKeyPEM)
	if err != nil {
		return false
	}
	sig, err := DecodeB64URL(signatureB64URL)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, message, sig)
}

// EncodeB64URL encodes data as unpadded base64url.
func EncodeB64URL(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeB64URL decodes unpadded base64url. Padded input is also
// accepted for interoperability.
func DecodeB64URL(s string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(s)
}
