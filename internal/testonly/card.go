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

// Package testonly provides fakes for the external collaborators used by the
// signing tools.
package testonly

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Card is an in-memory secure element.
type Card struct {
	Key *ecdsa.PrivateKey
	PIN string

	// Fail* make the corresponding command fail.
	FailSelect, FailPair, FailChannel bool

	Paired     bool
	PINChecks  int
	SignedPath string
}

// NewCard creates a card holding a fresh key and the given PIN.
func NewCard(t *testing.T, pin string) *Card {
	t.Helper()
	k, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return &Card{Key: k, PIN: pin}
}

// PublicKey returns the uncompressed public key of the card.
func (c *Card) PublicKey() []byte {
	return ethcrypto.FromECDSAPub(&c.Key.PublicKey)
}

func (c *Card) Select() error {
	if c.FailSelect {
		return errors.New("no card present")
	}
	return nil
}

func (c *Card) Pair(password string) (uint8, []byte, error) {
	if c.FailPair {
		return 0, nil, errors.New("no free pairing slots")
	}
	c.Paired = true
	return 1, []byte(password), nil
}

func (c *Card) OpenSecureChannel(index uint8, key []byte) error {
	if c.FailChannel || !c.Paired {
		return fmt.Errorf("secure channel with slot %d refused", index)
	}
	return nil
}

func (c *Card) VerifyPIN(pin string) (bool, error) {
	c.PINChecks++
	return pin == c.PIN, nil
}

// SignWithPath returns a 65 byte recoverable signature, as cards do.
func (c *Card) SignWithPath(digest []byte, path string) ([]byte, error) {
	c.SignedPath = path
	return ethcrypto.Sign(digest, c.Key)
}

func (c *Card) Unpair(index uint8) error {
	if !c.Paired {
		return fmt.Errorf("slot %d not paired", index)
	}
	c.Paired = false
	return nil
}
