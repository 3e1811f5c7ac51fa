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

// Package kcard adapts the Keycard applet command set to signer.Card.
package kcard

import (
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	keycard "github.com/status-im/keycard-go"
	kio "github.com/status-im/keycard-go/io"
	"github.com/status-im/keycard-go/types"
	"k8s.io/klog/v2"
)

var (
	curveN     = ethcrypto.S256().Params().N
	curveHalfN = new(big.Int).Rsh(curveN, 1)
)

// Transmitter exchanges raw APDUs with a card, e.g. a PC/SC connection.
type Transmitter interface {
	Transmit(cmd []byte) ([]byte, error)
}

// Card is a Keycard reached through a Transmitter.
type Card struct {
	cs *keycard.CommandSet
}

// New returns a Card talking to the card behind t.
func New(t Transmitter) *Card {
	return &Card{cs: keycard.NewCommandSet(kio.NewNormalChannel(t))}
}

func (c *Card) Select() error {
	return c.cs.Select()
}

func (c *Card) Pair(password string) (uint8, []byte, error) {
	if err := c.cs.Pair(password); err != nil {
		return 0, nil, err
	}
	p := c.cs.PairingInfo
	return uint8(p.Index), p.Key, nil
}

func (c *Card) OpenSecureChannel(index uint8, key []byte) error {
	c.cs.PairingInfo = &types.PairingInfo{Key: key, Index: int(index)}
	return c.cs.OpenSecureChannel()
}

func (c *Card) VerifyPIN(pin string) (bool, error) {
	return pinResult(c.cs.VerifyPIN(pin))
}

func (c *Card) SignWithPath(digest []byte, path string) ([]byte, error) {
	sig, err := c.cs.SignWithPath(digest, path)
	if err != nil {
		return nil, err
	}
	return compact(sig.R(), sig.S())
}

func (c *Card) Unpair(index uint8) error {
	return c.cs.Unpair(index)
}

// pinResult maps a wrong PIN response to a rejection rather than an error.
func pinResult(err error) (bool, error) {
	var wrong *keycard.WrongPINError
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &wrong):
		klog.V(1).Infof("PIN rejected, %d attempts left", wrong.RemainingAttempts)
		return false, nil
	default:
		return false, err
	}
}

// compact returns the 64 byte r||s encoding of a signature, with s in the
// lower half of the curve order.
func compact(r, s []byte) ([]byte, error) {
	ri := new(big.Int).SetBytes(r)
	si := new(big.Int).SetBytes(s)
	if ri.Sign() == 0 || si.Sign() == 0 || ri.Cmp(curveN) >= 0 || si.Cmp(curveN) >= 0 {
		return nil, fmt.Errorf("signature values out of range: r=%x s=%x", r, s)
	}
	if si.Cmp(curveHalfN) > 0 {
		si.Sub(curveN, si)
	}
	sig := make([]byte, 64)
	ri.FillBytes(sig[:32])
	si.FillBytes(sig[32:])
	return sig, nil
}
