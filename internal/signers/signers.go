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

// Package signers builds the signer selected on the command line: a local
// key file or a Keycard in a PC/SC reader.
package signers

import (
	"errors"
	"fmt"
	"os"

	"github.com/ebfe/scard"
	"github.com/keycard-tech/shell-tools/signer"
	"github.com/keycard-tech/shell-tools/signer/kcard"
	"golang.org/x/term"
	"k8s.io/klog/v2"
)

// Config selects a signer. At most one of SecretKeyFile and KeycardPath may
// be set.
type Config struct {
	// SecretKeyFile holds a hex encoded secp256k1 private key.
	SecretKeyFile string
	// KeycardPath is the derivation path of the Keycard signing key.
	KeycardPath string
	// Reader names the PC/SC reader, the first one found is used if empty.
	Reader string
}

// Enabled reports whether c selects a signer.
func (c Config) Enabled() bool {
	return c.SecretKeyFile != "" || c.KeycardPath != ""
}

// Open returns the signer selected by c, and a function releasing it. The
// signer is nil if c selects none.
func Open(c Config) (signer.Signer, func(), error) {
	switch {
	case c.SecretKeyFile != "" && c.KeycardPath != "":
		return nil, nil, errors.New("a secret key file and a Keycard path are mutually exclusive")
	case c.SecretKeyFile != "":
		s, err := signer.LoadLocal(c.SecretKeyFile)
		if err != nil {
			return nil, nil, fmt.Errorf("load signing key: %v", err)
		}
		return s, func() {}, nil
	case c.KeycardPath != "":
		return openKeycard(c)
	}
	return nil, func() {}, nil
}

func openKeycard(c Config) (signer.Signer, func(), error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, nil, &signer.Error{Kind: signer.SecureElementUnavailable, Err: err}
	}
	reader := c.Reader
	if reader == "" {
		readers, err := ctx.ListReaders()
		if err != nil || len(readers) == 0 {
			ctx.Release()
			return nil, nil, &signer.Error{Kind: signer.SecureElementUnavailable, Err: fmt.Errorf("no smart card reader found: %v", err)}
		}
		reader = readers[0]
	}
	klog.Infof("Using Keycard in %q", reader)
	card, err := ctx.Connect(reader, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		ctx.Release()
		return nil, nil, &signer.Error{Kind: signer.SecureElementUnavailable, Err: err}
	}
	release := func() {
		if err := card.Disconnect(scard.LeaveCard); err != nil {
			klog.Warningf("Disconnect: %v", err)
		}
		if err := ctx.Release(); err != nil {
			klog.Warningf("Release PC/SC context: %v", err)
		}
	}
	return &signer.Keycard{
		Card:   kcard.New(card),
		Path:   c.KeycardPath,
		Prompt: TerminalPIN,
	}, release, nil
}

// TerminalPIN reads the Keycard PIN from the terminal without echo.
func TerminalPIN() (string, error) {
	fmt.Fprint(os.Stderr, "Keycard PIN: ")
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
