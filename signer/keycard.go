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

package signer

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"
)

// Kind classifies secure element failures.
type Kind int

const (
	SecureElementUnavailable Kind = iota + 1
	PinRejected
	PairingFailed
	SigningFailed
)

func (k Kind) String() string {
	switch k {
	case SecureElementUnavailable:
		return "secure element unavailable"
	case PinRejected:
		return "PIN rejected"
	case PairingFailed:
		return "pairing failed"
	case SigningFailed:
		return "signing failed"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is returned by the secure element signer.
//
// Two errors match under errors.Is when their kinds are equal, so callers can
// test with e.g. errors.Is(err, &Error{Kind: PinRejected}).
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// DefaultPairingPassword is the pairing password cards ship with.
const DefaultPairingPassword = "KeycardDefaultPairing"

// DefaultPINAttempts is the number of PIN attempts made before giving up,
// matching the number of tries a card allows before blocking.
const DefaultPINAttempts = 3

// Card is the subset of the secure element command set used for signing.
type Card interface {
	// Select selects the signing applet.
	Select() error
	// Pair pairs with the card, returning the pairing slot and key.
	Pair(password string) (index uint8, key []byte, err error)
	// OpenSecureChannel opens an encrypted channel using an existing pairing.
	OpenSecureChannel(index uint8, key []byte) error
	// VerifyPIN returns false if the card rejected the PIN.
	VerifyPIN(pin string) (bool, error)
	// SignWithPath signs digest with the key derived at the given path.
	SignWithPath(digest []byte, path string) ([]byte, error)
	// Unpair releases the pairing slot.
	Unpair(index uint8) error
}

// PINPrompt asks the operator for the card PIN.
type PINPrompt func() (string, error)

// Keycard signs using a key held on a secure element.
type Keycard struct {
	Card Card
	// Path is the derivation path of the signing key.
	Path string
	// Prompt is called for each PIN attempt.
	Prompt PINPrompt
	// PairingPassword defaults to DefaultPairingPassword.
	PairingPassword string
	// PINAttempts defaults to DefaultPINAttempts.
	PINAttempts int
}

// Sign pairs with the card, opens a secure channel, verifies the PIN and signs
// digest. The pairing is always released before returning.
func (k *Keycard) Sign(_ context.Context, digest []byte) (sig []byte, err error) {
	if len(digest) != DigestSize {
		return nil, fmt.Errorf("digest must be %d bytes, got %d", DigestSize, len(digest))
	}
	if k.Card == nil {
		return nil, &Error{Kind: SecureElementUnavailable}
	}
	if err := k.Card.Select(); err != nil {
		return nil, &Error{Kind: SecureElementUnavailable, Err: err}
	}

	pw := k.PairingPassword
	if pw == "" {
		pw = DefaultPairingPassword
	}
	idx, key, err := k.Card.Pair(pw)
	if err != nil {
		return nil, &Error{Kind: PairingFailed, Err: err}
	}
	defer func() {
		if uerr := k.Card.Unpair(idx); uerr != nil {
			klog.Warningf("Failed to release pairing slot %d: %v", idx, uerr)
		}
	}()

	if err := k.Card.OpenSecureChannel(idx, key); err != nil {
		return nil, &Error{Kind: PairingFailed, Err: err}
	}

	if err := k.verifyPIN(); err != nil {
		return nil, err
	}

	sig, err = k.Card.SignWithPath(digest, k.Path)
	if err != nil {
		return nil, &Error{Kind: SigningFailed, Err: err}
	}
	switch len(sig) {
	case SignatureSize:
	case SignatureSize + 1:
		sig = sig[:SignatureSize]
	default:
		return nil, &Error{Kind: SigningFailed, Err: fmt.Errorf("unexpected signature length %d", len(sig))}
	}
	return sig, nil
}

func (k *Keycard) verifyPIN() error {
	if k.Prompt == nil {
		return &Error{Kind: PinRejected, Err: fmt.Errorf("no PIN prompt configured")}
	}
	attempts := k.PINAttempts
	if attempts <= 0 {
		attempts = DefaultPINAttempts
	}
	for i := 0; i < attempts; i++ {
		pin, err := k.Prompt()
		if err != nil {
			return &Error{Kind: PinRejected, Err: err}
		}
		ok, err := k.Card.VerifyPIN(pin)
		if err != nil {
			return &Error{Kind: SecureElementUnavailable, Err: err}
		}
		if ok {
			return nil
		}
		klog.Warningf("Wrong PIN (attempt %d/%d)", i+1, attempts)
	}
	return &Error{Kind: PinRejected, Err: fmt.Errorf("%d wrong PIN attempts", attempts)}
}
