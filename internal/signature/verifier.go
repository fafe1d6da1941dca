// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package signature

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"sync"

	"github.com/rs/zerolog/log"
)

type parsedKey struct {
	pub crypto.PublicKey
	alg string
	err error
}

// Verifier checks license signatures. Parsed keys are memoised per key string.
type Verifier struct {
	mu   sync.RWMutex
	keys map[string]parsedKey
}

func NewVerifier() *Verifier {
	return &Verifier{keys: make(map[string]parsedKey)}
}

// Verify reports whether sig is a valid signature of payload under publicKey. It
// never panics and returns false for malformed keys or signatures.
func (v *Verifier) Verify(payload, sig []byte, publicKey string) bool {
	return v.VerifyAlgorithm(payload, sig, publicKey, "")
}

// VerifyAlgorithm is Verify with the declared envelope algorithm checked against
// the key type. An empty algorithm skips that check.
func (v *Verifier) VerifyAlgorithm(payload, sig []byte, publicKey, algorithm string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Signature verification panicked")
			ok = false
		}
	}()

	if len(sig) == 0 {
		return false
	}

	key := v.key(publicKey)
	if key.err != nil {
		log.Debug().Err(key.err).Msg("Unusable public key")
		return false
	}
	if algorithm != "" && algorithm != key.alg {
		return false
	}

	switch pub := key.pub.(type) {
	case ed25519.PublicKey:
		return ed25519.Verify(pub, payload, sig)
	case *rsa.PublicKey:
		digest := sha256.Sum256(payload)
		return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig) == nil
	case *ecdsa.PublicKey:
		digest := sha256.Sum256(payload)
		return ecdsa.VerifyASN1(pub, digest[:], sig)
	default:
		return false
	}
}

func (v *Verifier) key(publicKey string) parsedKey {
	v.mu.RLock()
	k, ok := v.keys[publicKey]
	v.mu.RUnlock()
	if ok {
		return k
	}

	pub, err := ParsePublicKey(publicKey)
	k = parsedKey{pub: pub, err: err}
	if err == nil {
		k.alg, k.err = AlgorithmFor(pub)
	}

	v.mu.Lock()
	v.keys[publicKey] = k
	v.mu.Unlock()
	return k
}
