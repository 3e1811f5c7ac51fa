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
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var usdcAddress = "0x" + strings.Repeat("11", 20)

func TestEncodeChain(t *testing.T) {
	b, err := Encode(Chain{ID: 1, Ticker: "ETH", Name: "Ethereum", ShortName: "eth"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{
		0x48, 0x43, 21, 0,
		1, 0, 0, 0,
		'E', 'T', 'H', 0,
		'E', 't', 'h', 'e', 'r', 'e', 'u', 'm', 0,
		'e', 't', 'h', 0,
	}
	if d := cmp.Diff(want, b); d != "" {
		t.Fatalf("Encode diff (-want +got):\n%s", d)
	}
}

func TestEncodeToken(t *testing.T) {
	b, err := Encode(Token{
		Addresses: []TokenAddress{{ChainID: 1, Address: usdcAddress}},
		Decimals:  18,
		Ticker:    "USDC",
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{0x20, 0x30, 31, 0, 1, 1, 0, 0, 0}
	want = append(want, bytes.Repeat([]byte{0x11}, 20)...)
	want = append(want, 18, 'U', 'S', 'D', 'C', 0)
	if d := cmp.Diff(want, b); d != "" {
		t.Fatalf("Encode diff (-want +got):\n%s", d)
	}
}

func TestEncodeHeader(t *testing.T) {
	b, err := Encode(Header{Version: 20240131})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// 20240131 = 0x0134d703
	want := []byte{0x32, 0x45, 4, 0, 0x03, 0xd7, 0x34, 0x01}
	if d := cmp.Diff(want, b); d != "" {
		t.Fatalf("Encode diff (-want +got):\n%s", d)
	}
}

func TestEncodeErrors(t *testing.T) {
	for _, test := range []struct {
		desc      string
		r         Record
		wantIs    error
		wantAddrE bool
	}{
		{
			desc:      "short address",
			r:         Token{Addresses: []TokenAddress{{ChainID: 1, Address: "0x1234"}}, Ticker: "X"},
			wantAddrE: true,
		}, {
			desc:      "non hex address",
			r:         Token{Addresses: []TokenAddress{{ChainID: 1, Address: "0x" + strings.Repeat("zz", 20)}}, Ticker: "X"},
			wantAddrE: true,
		}, {
			desc: "non ascii ticker",
			r:    Chain{ID: 1, Ticker: "Ξ", Name: "n", ShortName: "s"},
		}, {
			desc: "embedded nul",
			r:    Token{Ticker: "A\x00B"},
		}, {
			desc:   "padding tag",
			r:      ABI{Magic: 0x4180},
			wantIs: ErrBadTag,
		}, {
			desc: "payload too large",
			r:    ABI{Magic: 0x4142, Payload: make([]byte, 1<<16)},
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			_, err := Encode(test.r)
			if err == nil {
				t.Fatal("Encode: got nil error")
			}
			if test.wantIs != nil && !errors.Is(err, test.wantIs) {
				t.Errorf("Encode: got %v, want %v", err, test.wantIs)
			}
			var ae *AddressError
			if got := errors.As(err, &ae); got != test.wantAddrE {
				t.Errorf("Encode: AddressError = %t, want %t (%v)", got, test.wantAddrE, err)
			}
		})
	}
}

func TestDecodeRecord(t *testing.T) {
	for _, r := range []Record{
		Header{Version: 7},
		Chain{ID: 137, Ticker: "POL", Name: "Polygon Mainnet", ShortName: "matic"},
		Chain{ID: 10},
		Token{
			Addresses: []TokenAddress{
				{ChainID: 1, Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"},
				{ChainID: 137, Address: "0x3c499c542cef5e3811e1192ce70d8cc03d5c3359"},
			},
			Decimals: 6,
			Ticker:   "USDC",
		},
		Raw{Magic: 0x4142, Payload: []byte{1, 2, 3}},
	} {
		b, err := Encode(r)
		if err != nil {
			t.Fatalf("Encode(%v): %v", r, err)
		}
		got, n, err := DecodeRecord(append(b, 0xff, 0xff))
		if err != nil {
			t.Fatalf("DecodeRecord(%x): %v", b, err)
		}
		if n != len(b) {
			t.Errorf("DecodeRecord(%x) consumed %d bytes, want %d", b, n, len(b))
		}
		if d := cmp.Diff(r, got); d != "" {
			t.Errorf("DecodeRecord diff (-want +got):\n%s", d)
		}
	}
}

func TestDecodeRecordLowercasesAddress(t *testing.T) {
	b, err := Encode(Token{Addresses: []TokenAddress{{ChainID: 1, Address: "0xA0B86991C6218B36C1D19D4A2E9EB0CE3606EB48"}}, Ticker: "USDC"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	r, _, err := DecodeRecord(b)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if got, want := r.(Token).Addresses[0].Address, "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"; got != want {
		t.Errorf("got address %s, want %s", got, want)
	}
}

func TestDecodeRecordTruncated(t *testing.T) {
	b, err := Encode(Chain{ID: 1, Ticker: "ETH", Name: "Ethereum", ShortName: "eth"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for _, n := range []int{0, 3, 4, len(b) - 1} {
		if _, _, err := DecodeRecord(b[:n]); !errors.Is(err, ErrTruncated) {
			t.Errorf("DecodeRecord(%d bytes): got %v, want %v", n, err, ErrTruncated)
		}
	}
	// Length claims the string terminator is present, but it is not.
	bad := bytes.Clone(b)
	bad[len(bad)-1] = 'x'
	if _, _, err := DecodeRecord(bad); !errors.Is(err, ErrTruncated) {
		t.Errorf("DecodeRecord(unterminated): got %v, want %v", err, ErrTruncated)
	}
}

func TestSetAddress(t *testing.T) {
	tok := Token{Ticker: "USDT"}
	tok.SetAddress(1, "0x01")
	tok.SetAddress(56, "0x02")
	tok.SetAddress(1, "0x03")
	want := []TokenAddress{{ChainID: 1, Address: "0x03"}, {ChainID: 56, Address: "0x02"}}
	if d := cmp.Diff(want, tok.Addresses); d != "" {
		t.Errorf("Addresses diff (-want +got):\n%s", d)
	}
}
