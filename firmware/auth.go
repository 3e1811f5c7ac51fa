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

// Package firmware computes and verifies firmware authentication digests, and
// signs firmware ELF files by embedding the signature into their header.
//
// The firmware image starts with an IV/header window of flash.FirmwareIVSize
// bytes followed by a flash.SignatureSize byte signature slot. The digest
// covers the whole image except the signature slot so that the signature can
// be stored inside the data it authenticates.
package firmware

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/keycard-tech/shell-tools/flash"
	"github.com/keycard-tech/shell-tools/signer"
)

const (
	sigStart = flash.FirmwareIVSize
	sigEnd   = flash.FirmwareIVSize + flash.SignatureSize

	// HeaderTrailerSize is the number of image bytes following the signature
	// slot which belong to the header section.
	HeaderTrailerSize = 4
	// MinSize is the smallest acceptable firmware binary.
	MinSize = sigEnd + HeaderTrailerSize
	// BlockSize is the alignment required of flattened firmware binaries.
	BlockSize = 16
)

// ErrBadSignature is returned when a firmware signature does not verify.
var ErrBadSignature = errors.New("firmware signature verification failed")

// Load returns a full flash.FirmwareSize image containing bin, with the
// remainder of the image erased.
func Load(bin []byte) ([]byte, error) {
	if len(bin) < MinSize {
		return nil, fmt.Errorf("firmware too small: %d bytes, need at least %d", len(bin), MinSize)
	}
	if len(bin) > flash.FirmwareSize {
		return nil, &flash.RegionOverflowError{Region: flash.RegionFirmware, Size: len(bin), Max: flash.FirmwareSize}
	}
	img := bytes.Repeat([]byte{flash.Erased}, flash.FirmwareSize)
	copy(img, bin)
	return img, nil
}

// Digest returns the SHA-256 of img with the signature slot excluded.
func Digest(img []byte) ([sha256.Size]byte, error) {
	var d [sha256.Size]byte
	if len(img) < sigEnd {
		return d, fmt.Errorf("firmware too small: %d bytes, need at least %d", len(img), sigEnd)
	}
	h := sha256.New()
	h.Write(img[:sigStart])
	h.Write(img[sigEnd:])
	copy(d[:], h.Sum(nil))
	return d, nil
}

// Signature returns the contents of the signature slot of img.
func Signature(img []byte) ([]byte, error) {
	if len(img) < sigEnd {
		return nil, fmt.Errorf("firmware too small: %d bytes, need at least %d", len(img), sigEnd)
	}
	return img[sigStart:sigEnd], nil
}

// HeaderSection returns the contents of the firmware header section once
// signed: the signature followed by the image bytes which trail the slot.
func HeaderSection(img, sig []byte) ([]byte, error) {
	if len(sig) != flash.SignatureSize {
		return nil, fmt.Errorf("signature must be %d bytes, got %d", flash.SignatureSize, len(sig))
	}
	if len(img) < MinSize {
		return nil, fmt.Errorf("firmware too small: %d bytes, need at least %d", len(img), MinSize)
	}
	h := make([]byte, 0, flash.SignatureSize+HeaderTrailerSize)
	h = append(h, sig...)
	return append(h, img[sigEnd:sigEnd+HeaderTrailerSize]...), nil
}

// Verify checks the signature embedded in the firmware binary bin against
// the public key pub.
func Verify(bin, pub []byte) error {
	img, err := Load(bin)
	if err != nil {
		return err
	}
	d, err := Digest(img)
	if err != nil {
		return err
	}
	sig, _ := Signature(img)
	if !signer.Verify(pub, d[:], sig) {
		return ErrBadSignature
	}
	return nil
}

// PadBlock extends bin with erased bytes up to a multiple of BlockSize.
func PadBlock(bin []byte) []byte {
	if r := len(bin) % BlockSize; r != 0 {
		bin = append(bin, bytes.Repeat([]byte{flash.Erased}, BlockSize-r)...)
	}
	return bin
}
