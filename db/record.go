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

// Package db implements the reference data database loaded onto the device:
// the tagged record encoding, the greedy page packer and the paged and signed
// database file layouts.
//
// Every record, and the database header itself, starts with a four byte
// little endian {tag u16, length u16} prefix so that readers can skip record
// types they do not understand.
package db

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Record tags.
const (
	HeaderMagic = 0x4532
	ChainMagic  = 0x4348
	TokenMagic  = 0x3020
)

const (
	// RecordHeaderSize is the size of the {tag, length} prefix.
	RecordHeaderSize = 4
	// AddressLength is the size of a binary contract address.
	AddressLength = 20
	// addressStringLength is the length of a 0x prefixed hex address.
	addressStringLength = 2 + 2*AddressLength
)

var (
	// ErrTruncated is returned when decoding runs out of input.
	ErrTruncated = errors.New("truncated record")
	// ErrBadTag is returned for tags which would be mistaken for padding.
	ErrBadTag = errors.New("record tag low byte must not have the top bit set")
)

// AddressError is returned for token addresses which are not 0x followed by
// 40 hex digits.
type AddressError struct {
	Address string
	Err     error
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("invalid address %q: %v", e.Address, e.Err)
}

func (e *AddressError) Unwrap() error {
	return e.Err
}

// Record is a database entry.
type Record interface {
	// Tag identifies the record type.
	Tag() uint16
	// AppendPayload appends the encoded record body, without the
	// {tag, length} prefix, to b.
	AppendPayload(b []byte) ([]byte, error)
}

// Encode returns the tagged, length prefixed encoding of r.
func Encode(r Record) ([]byte, error) {
	if r.Tag()&0x80 != 0 {
		return nil, fmt.Errorf("tag %#04x: %w", r.Tag(), ErrBadTag)
	}
	b := make([]byte, RecordHeaderSize, 64)
	b, err := r.AppendPayload(b)
	if err != nil {
		return nil, err
	}
	l := len(b) - RecordHeaderSize
	if l > math.MaxUint16 {
		return nil, fmt.Errorf("record %#04x payload of %d bytes too large", r.Tag(), l)
	}
	binary.LittleEndian.PutUint16(b[0:], r.Tag())
	binary.LittleEndian.PutUint16(b[2:], uint16(l))
	return b, nil
}

// DecodeRecord decodes the record at the start of b, returning it along with
// the number of bytes consumed. Records with unknown tags are returned as Raw.
func DecodeRecord(b []byte) (Record, int, error) {
	if len(b) < RecordHeaderSize {
		return nil, 0, ErrTruncated
	}
	tag := binary.LittleEndian.Uint16(b[0:])
	l := int(binary.LittleEndian.Uint16(b[2:]))
	n := RecordHeaderSize + l
	if len(b) < n {
		return nil, 0, fmt.Errorf("record %#04x needs %d bytes, have %d: %w", tag, n, len(b), ErrTruncated)
	}
	p := b[RecordHeaderSize:n]

	var (
		r   Record
		err error
	)
	switch tag {
	case HeaderMagic:
		r, err = decodeHeader(p)
	case ChainMagic:
		r, err = decodeChain(p)
	case TokenMagic:
		r, err = decodeToken(p)
	default:
		r = Raw{Magic: tag, Payload: bytes.Clone(p)}
	}
	if err != nil {
		return nil, 0, fmt.Errorf("record %#04x: %w", tag, err)
	}
	return r, n, nil
}

// Header is the first block of every database.
type Header struct {
	// Version is the database version, by convention a YYYYMMDD date.
	Version uint32
}

func (Header) Tag() uint16 { return HeaderMagic }

func (h Header) AppendPayload(b []byte) ([]byte, error) {
	return binary.LittleEndian.AppendUint32(b, h.Version), nil
}

func decodeHeader(p []byte) (Header, error) {
	if len(p) < 4 {
		return Header{}, ErrTruncated
	}
	return Header{Version: binary.LittleEndian.Uint32(p)}, nil
}

// Chain describes an EVM chain.
type Chain struct {
	ID        uint32
	Ticker    string
	Name      string
	ShortName string
}

func (Chain) Tag() uint16 { return ChainMagic }

func (c Chain) AppendPayload(b []byte) ([]byte, error) {
	b = binary.LittleEndian.AppendUint32(b, c.ID)
	for _, s := range []string{c.Ticker, c.Name, c.ShortName} {
		var err error
		if b, err = appendCString(b, s); err != nil {
			return nil, fmt.Errorf("chain %d: %v", c.ID, err)
		}
	}
	return b, nil
}

func decodeChain(p []byte) (Chain, error) {
	if len(p) < 4 {
		return Chain{}, ErrTruncated
	}
	c := Chain{ID: binary.LittleEndian.Uint32(p)}
	p = p[4:]
	var err error
	for _, s := range []*string{&c.Ticker, &c.Name, &c.ShortName} {
		if *s, p, err = readCString(p); err != nil {
			return Chain{}, err
		}
	}
	return c, nil
}

// TokenAddress is the contract address of a token on a given chain.
type TokenAddress struct {
	ChainID uint32
	// Address is 0x followed by 40 hex digits.
	Address string
}

// Token describes a fungible token deployed on one or more chains.
type Token struct {
	// Addresses are encoded in order.
	Addresses []TokenAddress
	Decimals  uint8
	Ticker    string
}

func (Token) Tag() uint16 { return TokenMagic }

func (t Token) AppendPayload(b []byte) ([]byte, error) {
	if len(t.Addresses) > math.MaxUint8 {
		return nil, fmt.Errorf("token %s: too many addresses (%d)", t.Ticker, len(t.Addresses))
	}
	b = append(b, uint8(len(t.Addresses)))
	for _, a := range t.Addresses {
		addr, err := ParseAddress(a.Address)
		if err != nil {
			return nil, fmt.Errorf("token %s: %w", t.Ticker, err)
		}
		b = binary.LittleEndian.AppendUint32(b, a.ChainID)
		b = append(b, addr...)
	}
	b = append(b, t.Decimals)
	b, err := appendCString(b, t.Ticker)
	if err != nil {
		return nil, fmt.Errorf("token %s: %v", t.Ticker, err)
	}
	return b, nil
}

// SetAddress records the token address on a chain, replacing any previous
// address for that chain.
func (t *Token) SetAddress(chainID uint32, address string) {
	for i := range t.Addresses {
		if t.Addresses[i].ChainID == chainID {
			t.Addresses[i].Address = address
			return
		}
	}
	t.Addresses = append(t.Addresses, TokenAddress{ChainID: chainID, Address: address})
}

func decodeToken(p []byte) (Token, error) {
	if len(p) < 1 {
		return Token{}, ErrTruncated
	}
	n := int(p[0])
	p = p[1:]
	if len(p) < n*(4+AddressLength)+1 {
		return Token{}, ErrTruncated
	}
	t := Token{}
	for i := 0; i < n; i++ {
		t.Addresses = append(t.Addresses, TokenAddress{
			ChainID: binary.LittleEndian.Uint32(p),
			Address: hexutil.Encode(p[4 : 4+AddressLength]),
		})
		p = p[4+AddressLength:]
	}
	t.Decimals = p[0]
	var err error
	if t.Ticker, _, err = readCString(p[1:]); err != nil {
		return Token{}, err
	}
	return t, nil
}

// ParseAddress decodes a 0x prefixed, 40 hex digit address.
func ParseAddress(s string) ([]byte, error) {
	if len(s) != addressStringLength {
		return nil, &AddressError{Address: s, Err: fmt.Errorf("length %d, want %d", len(s), addressStringLength)}
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, &AddressError{Address: s, Err: err}
	}
	return b, nil
}

// ABI is an ABI description entry. Its payload is serialized by the caller.
type ABI struct {
	Magic   uint16
	Payload []byte
}

func (a ABI) Tag() uint16 { return a.Magic }

func (a ABI) AppendPayload(b []byte) ([]byte, error) {
	return append(b, a.Payload...), nil
}

// Raw is a record of a type unknown to this package.
type Raw struct {
	Magic   uint16
	Payload []byte
}

func (r Raw) Tag() uint16 { return r.Magic }

func (r Raw) AppendPayload(b []byte) ([]byte, error) {
	return append(b, r.Payload...), nil
}

func appendCString(b []byte, s string) ([]byte, error) {
	if !ValidASCII(s) {
		return nil, fmt.Errorf("string %q is not NUL free ASCII", s)
	}
	b = append(b, s...)
	return append(b, 0), nil
}

func readCString(p []byte) (string, []byte, error) {
	i := bytes.IndexByte(p, 0)
	if i < 0 {
		return "", nil, fmt.Errorf("unterminated string: %w", ErrTruncated)
	}
	return string(p[:i]), p[i+1:], nil
}

// ValidASCII reports whether s can be stored in a record string field.
func ValidASCII(s string) bool {
	return !strings.ContainsFunc(s, func(r rune) bool { return r == 0 || r >= 0x80 })
}
