// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package signature

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"encoding/xml"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/autobrr/keeper/internal/license"
	"gopkg.in/square/go-jose.v2"
)

var ErrUnsupportedKey = errors.New("unsupported key")

// ParsePublicKey accepts a PEM block (PKIX or PKCS#1), a JSON Web Key or key set,
// or an RSAKeyValue XML document.
func ParsePublicKey(material string) (crypto.PublicKey, error) {
	material = strings.TrimSpace(material)

	var (
		pub crypto.PublicKey
		err error
	)
	switch {
	case material == "":
		return nil, errors.New("empty public key")
	case strings.HasPrefix(material, "<"):
		pub, err = parseRSAKeyValue(material)
	case strings.HasPrefix(material, "{"):
		pub, err = parseJWK(material)
	default:
		pub, err = parsePublicPEM(material)
	}
	if err != nil {
		return nil, err
	}

	if _, err := AlgorithmFor(pub); err != nil {
		return nil, err
	}
	return pub, nil
}

// AlgorithmFor returns the envelope algorithm name that matches a public key
func AlgorithmFor(pub crypto.PublicKey) (string, error) {
	switch k := pub.(type) {
	case ed25519.PublicKey:
		return license.AlgorithmEd25519, nil
	case *rsa.PublicKey:
		return license.AlgorithmRS256, nil
	case *ecdsa.PublicKey:
		if k.Curve != elliptic.P256() {
			return "", fmt.Errorf("%w: ecdsa curve %s", ErrUnsupportedKey, k.Curve.Params().Name)
		}
		return license.AlgorithmES256, nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedKey, pub)
	}
}

func parsePublicPEM(material string) (crypto.PublicKey, error) {
	block, _ := pem.Decode([]byte(material))
	if block == nil {
		return nil, errors.New("public key is not PEM encoded")
	}

	switch block.Type {
	case "PUBLIC KEY":
		return x509.ParsePKIXPublicKey(block.Bytes)
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	default:
		return nil, fmt.Errorf("%w: pem block %q", ErrUnsupportedKey, block.Type)
	}
}

func parseJWK(material string) (crypto.PublicKey, error) {
	if strings.Contains(material, `"keys"`) {
		var set jose.JSONWebKeySet
		if err := json.Unmarshal([]byte(material), &set); err != nil {
			return nil, fmt.Errorf("parse jwks: %w", err)
		}
		if len(set.Keys) == 0 {
			return nil, errors.New("jwks contains no keys")
		}
		return jwkPublic(set.Keys[0])
	}

	var key jose.JSONWebKey
	if err := key.UnmarshalJSON([]byte(material)); err != nil {
		return nil, fmt.Errorf("parse jwk: %w", err)
	}
	return jwkPublic(key)
}

func jwkPublic(key jose.JSONWebKey) (crypto.PublicKey, error) {
	if !key.Valid() {
		return nil, errors.New("invalid jwk")
	}
	if !key.IsPublic() {
		key = key.Public()
	}
	return key.Key, nil
}

type rsaKeyValue struct {
	XMLName  xml.Name `xml:"RSAKeyValue"`
	Modulus  string   `xml:"Modulus"`
	Exponent string   `xml:"Exponent"`
}

func parseRSAKeyValue(material string) (crypto.PublicKey, error) {
	var kv rsaKeyValue
	if err := xml.Unmarshal([]byte(material), &kv); err != nil {
		return nil, fmt.Errorf("parse RSAKeyValue: %w", err)
	}

	n, err := base64.StdEncoding.DecodeString(strings.TrimSpace(kv.Modulus))
	if err != nil || len(n) == 0 {
		return nil, errors.New("parse RSAKeyValue: invalid modulus")
	}
	e, err := base64.StdEncoding.DecodeString(strings.TrimSpace(kv.Exponent))
	if err != nil || len(e) == 0 || len(e) > 4 {
		return nil, errors.New("parse RSAKeyValue: invalid exponent")
	}

	exp := new(big.Int).SetBytes(e)
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}

// FormatRSAKeyValue renders an RSA public key as an RSAKeyValue document
func FormatRSAKeyValue(pub *rsa.PublicKey) string {
	e := big.NewInt(int64(pub.E)).Bytes()
	out, _ := xml.Marshal(rsaKeyValue{
		Modulus:  base64.StdEncoding.EncodeToString(pub.N.Bytes()),
		Exponent: base64.StdEncoding.EncodeToString(e),
	})
	return string(out)
}

// ParsePrivateKey accepts PKCS#8, PKCS#1 and SEC 1 PEM blocks
func ParsePrivateKey(material string) (crypto.Signer, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(material)))
	if block == nil {
		return nil, errors.New("private key is not PEM encoded")
	}

	var (
		key any
		err error
	)
	switch block.Type {
	case "PRIVATE KEY":
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		key, err = x509.ParseECPrivateKey(block.Bytes)
	default:
		return nil, fmt.Errorf("%w: pem block %q", ErrUnsupportedKey, block.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
	}
	return signer, nil
}

// EncodePublicKeyPEM renders a public key as a PKIX PEM block
func EncodePublicKeyPEM(pub crypto.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// EncodePrivateKeyPEM renders a private key as a PKCS#8 PEM block
func EncodePrivateKeyPEM(key crypto.Signer) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", fmt.Errorf("marshal private key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})), nil
}
