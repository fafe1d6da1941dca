// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Signature algorithms a license file may declare
const (
	AlgorithmEd25519 = "ed25519"
	AlgorithmRS256   = "rs256"
	AlgorithmES256   = "es256"
)

// SignFunc signs the exact license payload bytes
type SignFunc func(payload []byte) ([]byte, error)

// Envelope is a decoded license file. License holds the exact bytes the signature
// covers.
type Envelope struct {
	License   json.RawMessage
	Signature []byte
	Algorithm string
}

type envelopeJSON struct {
	License   json.RawMessage `json:"license"`
	Signature string          `json:"signature"`
	Algorithm string          `json:"algorithm"`
}

// Seal serialises rec, signs it and returns the license file bytes
func Seal(rec *Record, algorithm string, sign SignFunc) ([]byte, error) {
	if rec == nil {
		return nil, fmt.Errorf("seal: nil record")
	}
	if !knownAlgorithm(algorithm) {
		return nil, fmt.Errorf("seal: unsupported algorithm %q", algorithm)
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("seal: marshal record: %w", err)
	}

	sig, err := sign(payload)
	if err != nil {
		return nil, fmt.Errorf("seal: sign: %w", err)
	}

	return json.Marshal(envelopeJSON{
		License:   payload,
		Signature: hex.EncodeToString(sig),
		Algorithm: algorithm,
	})
}

// Open decodes license file bytes. The file must be in the canonical form Seal
// produces, so any change to the bytes outside the signed payload is rejected
// here and any change inside it fails signature verification. All failures wrap
// ErrFileCorrupt.
func Open(data []byte) (*Envelope, error) {
	var raw envelopeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, corrupt("decode envelope", err)
	}

	if len(raw.License) == 0 || raw.Signature == "" {
		return nil, corrupt("decode envelope", fmt.Errorf("missing license or signature"))
	}
	if !knownAlgorithm(raw.Algorithm) {
		return nil, corrupt("decode envelope", fmt.Errorf("unsupported algorithm %q", raw.Algorithm))
	}

	sig, err := hex.DecodeString(raw.Signature)
	if err != nil {
		return nil, corrupt("decode signature", err)
	}

	canonical, err := json.Marshal(envelopeJSON{
		License:   raw.License,
		Signature: hex.EncodeToString(sig),
		Algorithm: raw.Algorithm,
	})
	if err != nil || !bytes.Equal(canonical, data) {
		return nil, corrupt("decode envelope", fmt.Errorf("envelope is not in canonical form"))
	}

	return &Envelope{
		License:   raw.License,
		Signature: sig,
		Algorithm: raw.Algorithm,
	}, nil
}

// Record decodes the signed payload. Call it only after the signature has been
// verified.
func (e *Envelope) Record() (*Record, error) {
	var rec Record
	if err := json.Unmarshal(e.License, &rec); err != nil {
		return nil, corrupt("decode record", err)
	}
	return &rec, nil
}

func knownAlgorithm(alg string) bool {
	switch alg {
	case AlgorithmEd25519, AlgorithmRS256, AlgorithmES256:
		return true
	}
	return false
}

func corrupt(op string, err error) error {
	return &Fault{Kind: FaultFileCorrupt, Op: op, Err: err}
}
