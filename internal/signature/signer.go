// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package signature

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
)

// Signer produces license signatures. It backs the reference activation service
// and tests; end-user installs only ever verify.
type Signer struct {
	key crypto.Signer
	alg string
}

// NewSigner wraps a private key
func NewSigner(key crypto.Signer) (*Signer, error) {
	alg, err := AlgorithmFor(key.Public())
	if err != nil {
		return nil, err
	}
	return &Signer{key: key, alg: alg}, nil
}

// NewSignerFromPEM parses a PEM private key and wraps it
func NewSignerFromPEM(material string) (*Signer, error) {
	key, err := ParsePrivateKey(material)
	if err != nil {
		return nil, err
	}
	return NewSigner(key)
}

// Algorithm returns the envelope algorithm name
func (s *Signer) Algorithm() string {
	return s.alg
}

// Public returns the verifying key
func (s *Signer) Public() crypto.PublicKey {
	return s.key.Public()
}

// PublicKeyPEM returns the verifying key as PKIX PEM
func (s *Signer) PublicKeyPEM() (string, error) {
	return EncodePublicKeyPEM(s.key.Public())
}

// Sign signs payload with the algorithm matching the key
func (s *Signer) Sign(payload []byte) ([]byte, error) {
	switch key := s.key.(type) {
	case ed25519.PrivateKey:
		return ed25519.Sign(key, payload), nil
	case *rsa.PrivateKey:
		digest := sha256.Sum256(payload)
		return rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	case *ecdsa.PrivateKey:
		digest := sha256.Sum256(payload)
		return ecdsa.SignASN1(rand.Reader, key, digest[:])
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, s.key)
	}
}

// GenerateEd25519 creates a new key pair and returns both halves as PEM
func GenerateEd25519() (privatePEM, publicPEM string, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate key: %w", err)
	}

	privatePEM, err = EncodePrivateKeyPEM(priv)
	if err != nil {
		return "", "", err
	}
	publicPEM, err = EncodePublicKeyPEM(pub)
	if err != nil {
		return "", "", err
	}
	return privatePEM, publicPEM, nil
}
