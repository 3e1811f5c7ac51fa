// Copyright 2024 The Keycard Shell Tools authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package signer provides the compact secp256k1 signing primitive shared by
// firmware and database signing, with local key and secure element backends.
package signer

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const (
	// SignatureSize is the length of a compact r||s signature.
	SignatureSize = 64
	// DigestSize is the length of the digests accepted by signers.
	DigestSize = 32
)

// Signer produces compact ECDSA signatures over 32 byte digests.
type Signer interface {
	Sign(ctx context.Context, digest []byte) ([]byte, error)
}

// Local signs with an in-memory secp256k1 private key.
type Local struct {
	key *ecdsa.PrivateKey
}

// NewLocal parses a hex encoded secp256k1 private key.
func NewLocal(hexKey string) (*Local, error) {
	k, err := ethcrypto.HexToECDSA(trimHex(hexKey))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %v", err)
	}
	return &Local{key: k}, nil
}

// LoadLocal reads a hex encoded secp256k1 private key from the given file.
func LoadLocal(path string) (*Local, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewLocal(string(b))
}

// PublicKey returns the uncompressed public key corresponding to this signer.
func (l *Local) PublicKey() []byte {
	return ethcrypto.FromECDSAPub(&l.key.PublicKey)
}

// Sign returns the compact signature over digest.
func (l *Local) Sign(_ context.Context, digest []byte) ([]byte, error) {
	if len(digest) != DigestSize {
		return nil, fmt.Errorf("digest must be %d bytes, got %d", DigestSize, len(digest))
	}
	sig, err := ethcrypto.Sign(digest, l.key)
	if err != nil {
		return nil, err
	}
	// Drop the recovery id.
	return sig[:SignatureSize], nil
}

// ParsePublicKey decodes a hex encoded secp256k1 public key. Compressed (33
// bytes), uncompressed (65 bytes) and raw X||Y (64 bytes) encodings are
// accepted, the result is always in uncompressed form.
func ParsePublicKey(hexKey string) ([]byte, error) {
	b, err := hex.DecodeString(trimHex(hexKey))
	if err != nil {
		return nil, fmt.Errorf("invalid public key: %v", err)
	}
	switch len(b) {
	case 33:
		pub, err := ethcrypto.DecompressPubkey(b)
		if err != nil {
			return nil, fmt.Errorf("invalid public key: %v", err)
		}
		return ethcrypto.FromECDSAPub(pub), nil
	case 64:
		b = append([]byte{0x04}, b...)
	}
	if _, err := ethcrypto.UnmarshalPubkey(b); err != nil {
		return nil, fmt.Errorf("invalid public key: %v", err)
	}
	return b, nil
}

// Verify reports whether sig is a valid compact signature of digest by pub.
func Verify(pub, digest, sig []byte) bool {
	if len(sig) != SignatureSize || len(digest) != DigestSize {
		return false
	}
	return ethcrypto.VerifySignature(pub, digest, sig)
}

func trimHex(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")
	return strings.TrimPrefix(s, "0X")
}
