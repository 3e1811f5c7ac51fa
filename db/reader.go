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

package db

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/keycard-tech/shell-tools/flash"
	"github.com/keycard-tech/shell-tools/signer"
)

// ErrBadSignature is returned when a signed database does not verify.
var ErrBadSignature = errors.New("database signature verification failed")

// MinSignedSize is the length of the smallest signed database: a header and
// a signature.
const MinSignedSize = RecordHeaderSize + 4 + signer.SignatureSize

// Database is a decoded database.
type Database struct {
	Version uint32
	// Records excludes the header.
	Records []Record
	// Signature is only set for signed databases.
	Signature []byte
}

// ParsePaged decodes a database in the paged layout.
func ParsePaged(b []byte, pageSize int) (*Database, error) {
	if err := checkPageSize(pageSize); err != nil {
		return nil, err
	}
	if len(b) == 0 || len(b)%pageSize != 0 {
		return nil, fmt.Errorf("database of %d bytes is not a whole number of %d byte pages", len(b), pageSize)
	}
	d := &Database{}
	for i := 0; i*pageSize < len(b); i++ {
		page := b[i*pageSize : (i+1)*pageSize]
		recs, err := parsePage(page)
		if err != nil {
			return nil, fmt.Errorf("page %d: %v", i, err)
		}
		if i == 0 {
			if len(recs) == 0 {
				return nil, errors.New("missing header")
			}
			h, ok := recs[0].(Header)
			if !ok {
				return nil, fmt.Errorf("first record has tag %#04x, want header", recs[0].Tag())
			}
			d.Version = h.Version
			recs = recs[1:]
		}
		d.Records = append(d.Records, recs...)
	}
	return d, nil
}

// parsePage decodes the records of one page, checking the padding run and
// erased fill which terminate it.
func parsePage(page []byte) ([]Record, error) {
	var recs []Record
	off := 0
	for off < len(page) && page[off]&padFlag == 0 {
		r, n, err := DecodeRecord(page[off:])
		if err != nil {
			return nil, fmt.Errorf("offset %d: %v", off, err)
		}
		recs = append(recs, r)
		off += n
	}
	if off >= len(page) {
		return nil, errors.New("missing padding run")
	}

	want := PadRun(off)
	if off+len(want) > len(page) {
		return nil, fmt.Errorf("padding run at %d overflows page", off)
	}
	for i, w := range want {
		if page[off+i] != w {
			return nil, fmt.Errorf("bad padding byte %#02x at %d, want %#02x", page[off+i], off+i, w)
		}
	}
	for i := off + len(want); i < len(page); i++ {
		if page[i] != flash.Erased {
			return nil, fmt.Errorf("non erased byte %#02x at %d", page[i], i)
		}
	}
	return recs, nil
}

// ParseSigned decodes a database in the signed layout. The signature is
// not verified, see VerifySigned.
func ParseSigned(b []byte) (*Database, error) {
	if len(b) < MinSignedSize {
		return nil, fmt.Errorf("signed database of %d bytes, need at least %d", len(b), MinSignedSize)
	}
	body := b[:len(b)-signer.SignatureSize]
	d := &Database{Signature: b[len(body):]}

	r, n, err := DecodeRecord(body)
	if err != nil {
		return nil, fmt.Errorf("header: %v", err)
	}
	h, ok := r.(Header)
	if !ok {
		return nil, fmt.Errorf("first record has tag %#04x, want header", r.Tag())
	}
	d.Version = h.Version

	for off := n; off < len(body); off += n {
		if r, n, err = DecodeRecord(body[off:]); err != nil {
			return nil, fmt.Errorf("offset %d: %v", off, err)
		}
		d.Records = append(d.Records, r)
	}
	return d, nil
}

// SignedDigest returns the digest covered by the signature of a database in
// the signed layout.
func SignedDigest(b []byte) ([sha256.Size]byte, error) {
	if len(b) < MinSignedSize {
		return [sha256.Size]byte{}, fmt.Errorf("signed database of %d bytes, need at least %d", len(b), MinSignedSize)
	}
	return sha256.Sum256(b[:len(b)-signer.SignatureSize]), nil
}

// VerifySigned checks the trailing signature of a database in the signed
// layout against pub.
func VerifySigned(b, pub []byte) error {
	d, err := SignedDigest(b)
	if err != nil {
		return err
	}
	if !signer.Verify(pub, d[:], b[len(b)-signer.SignatureSize:]) {
		return ErrBadSignature
	}
	return nil
}
