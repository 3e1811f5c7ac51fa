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
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"io"

	"github.com/keycard-tech/shell-tools/flash"
	"github.com/keycard-tech/shell-tools/signer"
	"k8s.io/klog/v2"
)

// Option configures an Encoder.
type Option func(*Encoder)

// WithSigner selects the signed layout: records are streamed without paging
// or padding, and a compact signature over the SHA-256 of everything written
// is appended on Close.
func WithSigner(s signer.Signer) Option {
	return func(e *Encoder) {
		e.signer = s
	}
}

// WithPageSize overrides flash.PageSize for the paged layout.
func WithPageSize(n int) Option {
	return func(e *Encoder) {
		e.pageSize = n
	}
}

// Encoder writes a database.
type Encoder struct {
	w        io.Writer
	signer   signer.Signer
	pageSize int

	// paged layout
	packer *Packer

	// signed layout
	hash   hash.Hash
	stream io.Writer

	written int64
	closed  bool
}

// NewEncoder starts a database of the given version on w.
func NewEncoder(w io.Writer, version uint32, opts ...Option) (*Encoder, error) {
	e := &Encoder{
		w:        w,
		pageSize: flash.PageSize,
	}
	for _, o := range opts {
		o(e)
	}

	hdr, err := Encode(Header{Version: version})
	if err != nil {
		return nil, err
	}

	if e.signer != nil {
		e.hash = sha256.New()
		e.stream = io.MultiWriter(w, e.hash)
		return e, e.write(hdr)
	}

	e.packer, err = NewPacker(e.pageSize, hdr, func(page []byte) error {
		n, err := e.w.Write(page)
		e.written += int64(n)
		return err
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Signed reports whether the encoder produces the signed layout.
func (e *Encoder) Signed() bool {
	return e.signer != nil
}

// Write encodes and appends r.
func (e *Encoder) Write(r Record) error {
	b, err := Encode(r)
	if err != nil {
		return err
	}
	return e.WriteEncoded(b)
}

// WriteEncoded appends an already encoded record.
func (e *Encoder) WriteEncoded(rec []byte) error {
	if e.closed {
		return errors.New("encoder closed")
	}
	if e.packer != nil {
		return e.packer.Add(rec)
	}
	return e.write(rec)
}

func (e *Encoder) write(b []byte) error {
	n, err := e.stream.Write(b)
	e.written += int64(n)
	return err
}

// Close completes the database: the last page is flushed in the paged
// layout, the signature is appended in the signed layout.
func (e *Encoder) Close(ctx context.Context) error {
	if e.closed {
		return nil
	}
	e.closed = true

	if e.packer != nil {
		if err := e.packer.Flush(); err != nil {
			return err
		}
		klog.V(1).Infof("Wrote %d pages", e.packer.Pages())
		return nil
	}

	digest := e.hash.Sum(nil)
	sig, err := e.signer.Sign(ctx, digest)
	if err != nil {
		return fmt.Errorf("sign database: %w", err)
	}
	if len(sig) != signer.SignatureSize {
		return fmt.Errorf("signer returned %d byte signature, want %d", len(sig), signer.SignatureSize)
	}
	klog.V(1).Infof("Database digest %x", digest)
	n, err := e.w.Write(sig)
	e.written += int64(n)
	return err
}

// Written returns the number of bytes written to the underlying writer.
func (e *Encoder) Written() int64 {
	return e.written
}

// EncodeCatalog writes the records of c as a database of the given version.
func EncodeCatalog(ctx context.Context, w io.Writer, c *Catalog, version uint32, opts ...Option) error {
	e, err := NewEncoder(w, version, opts...)
	if err != nil {
		return err
	}
	for _, r := range c.Records() {
		if err := e.Write(r); err != nil {
			return err
		}
	}
	return e.Close(ctx)
}
