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
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const chainListJSON = `[
  {
    "name": "Ethereum Mainnet",
    "chainId": 1,
    "shortName": "eth",
    "nativeCurrency": {"name": "Ether", "symbol": "ETH", "decimals": 18},
    "rpc": ["https://mainnet.infura.io/v3/"]
  },
  {
    "name": "Broken",
    "chainId": 99
  },
  {
    "name": "Polygon Mainnet",
    "chainId": 137,
    "shortName": "matic",
    "nativeCurrency": {"name": "POL", "symbol": "POL", "decimals": 18}
  },
  {
    "name": "Ethereum Duplicate",
    "chainId": 1,
    "shortName": "eth2",
    "nativeCurrency": {"name": "Ether", "symbol": "ETH2", "decimals": 18}
  }
]`

const tokenListJSON = `{
  "name": "Test List",
  "timestamp": "2024-01-01T00:00:00Z",
  "tokens": [
    {"chainId": 1, "address": "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", "name": "USD Coin", "symbol": "USDC", "decimals": 6},
    {"chainId": 137, "address": "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359", "name": "USD Coin", "symbol": "USDC", "decimals": 18},
    {"chainId": 1, "address": "0xdAC17F958D2ee523a2206206994597C13D831ec7", "name": "Tether", "symbol": "USDT", "decimals": 6},
    {"chainId": 137, "address": "0x1234", "name": "Short", "symbol": "BAD", "decimals": 6},
    {"chainId": 5000, "address": "0x09Bc4E0D864854c6aFB6eB9A9cdF58aC190D0dF9", "name": "Unknown chain", "symbol": "USDC", "decimals": 6},
    {"chainId": 1, "address": "0x0000000000000000000000000000000000000001", "name": "Override", "symbol": "USDT", "decimals": 18}
  ]
}`

func mustLists(t *testing.T) (*TokenList, []ChainInfo) {
	t.Helper()
	tl, err := ParseTokenList([]byte(tokenListJSON))
	if err != nil {
		t.Fatalf("ParseTokenList: %v", err)
	}
	cl, err := ParseChainList([]byte(chainListJSON))
	if err != nil {
		t.Fatalf("ParseChainList: %v", err)
	}
	return tl, cl
}

func TestBuildCatalog(t *testing.T) {
	tl, cl := mustLists(t)
	if got, want := tl.Name, "Test List"; got != want {
		t.Errorf("Got list name %q, want %q", got, want)
	}
	c, err := BuildCatalog(tl.Tokens, cl)
	if err != nil {
		t.Fatalf("BuildCatalog: %v", err)
	}

	wantChains := []Chain{
		{ID: 1, Ticker: "ETH", Name: "Ethereum Mainnet", ShortName: "eth"},
		{ID: 137, Ticker: "POL", Name: "Polygon Mainnet", ShortName: "matic"},
	}
	if d := cmp.Diff(wantChains, c.Chains()); d != "" {
		t.Errorf("chains diff (-want +got):\n%s", d)
	}

	wantTokens := []Token{
		{
			Ticker:   "USDC",
			Decimals: 6,
			Addresses: []TokenAddress{
				{ChainID: 1, Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"},
				{ChainID: 137, Address: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"},
				{ChainID: 5000, Address: "0x09Bc4E0D864854c6aFB6eB9A9cdF58aC190D0dF9"},
			},
		}, {
			Ticker:    "USDT",
			Decimals:  6,
			Addresses: []TokenAddress{{ChainID: 1, Address: "0x0000000000000000000000000000000000000001"}},
		},
	}
	if d := cmp.Diff(wantTokens, c.Tokens()); d != "" {
		t.Errorf("tokens diff (-want +got):\n%s", d)
	}

	recs := c.Records()
	if got, want := len(recs), 4; got != want {
		t.Fatalf("Got %d records, want %d", got, want)
	}
	if _, ok := recs[1].(Chain); !ok {
		t.Errorf("record 1 is %T, want Chain", recs[1])
	}
	if _, ok := recs[2].(Token); !ok {
		t.Errorf("record 2 is %T, want Token", recs[2])
	}
}

func TestBuildCatalogBrokenChain(t *testing.T) {
	_, cl := mustLists(t)
	id, addr, sym, dec := uint64(99), "0x0000000000000000000000000000000000000002", "X", uint8(1)
	_, err := BuildCatalog([]TokenInfo{{ChainID: &id, Address: &addr, Symbol: &sym, Decimals: &dec}}, cl)
	var fe *FieldError
	if !errors.As(err, &fe) {
		t.Fatalf("BuildCatalog: got %v, want FieldError", err)
	}
	if got, want := *fe, (FieldError{List: "chain list", Index: 1, Field: "shortName"}); got != want {
		t.Errorf("Got %+v, want %+v", got, want)
	}
}

func TestBuildCatalogLargeChainID(t *testing.T) {
	id, addr, sym, dec := uint64(1)<<40, "0x0000000000000000000000000000000000000002", "X", uint8(1)
	if _, err := BuildCatalog([]TokenInfo{{ChainID: &id, Address: &addr, Symbol: &sym, Decimals: &dec}}, nil); err == nil {
		t.Error("BuildCatalog succeeded with 40 bit chain id")
	}
}

func TestParseTokenListMissingField(t *testing.T) {
	for _, test := range []struct {
		desc string
		json string
		want FieldError
	}{
		{
			desc: "chainId",
			json: `{"tokens": [{"address": "0x00", "symbol": "A", "decimals": 1}]}`,
			want: FieldError{List: "token list", Index: 0, Field: "chainId"},
		}, {
			desc: "decimals",
			json: `{"tokens": [
				{"chainId": 1, "address": "0x00", "symbol": "A", "decimals": 1},
				{"chainId": 1, "address": "0x00", "symbol": "B"}
			]}`,
			want: FieldError{List: "token list", Index: 1, Field: "decimals"},
		}, {
			desc: "symbol",
			json: `{"tokens": [{"chainId": 1, "address": "0x00", "decimals": 1}]}`,
			want: FieldError{List: "token list", Index: 0, Field: "symbol"},
		}, {
			desc: "address",
			json: `{"tokens": [{"chainId": 1, "symbol": "A", "decimals": 1}]}`,
			want: FieldError{List: "token list", Index: 0, Field: "address"},
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			_, err := ParseTokenList([]byte(test.json))
			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("ParseTokenList: got %v, want FieldError", err)
			}
			if d := cmp.Diff(test.want, *fe); d != "" {
				t.Errorf("FieldError diff (-want +got):\n%s", d)
			}
		})
	}
}

func TestParseListsMalformed(t *testing.T) {
	if _, err := ParseTokenList([]byte(`{"tokens": [`)); err == nil {
		t.Error("ParseTokenList succeeded on truncated JSON")
	}
	if _, err := ParseTokenList([]byte(`{"tokens": [{"chainId": -1}]}`)); err == nil {
		t.Error("ParseTokenList succeeded on negative chain id")
	}
	if _, err := ParseChainList([]byte(`{}`)); err == nil {
		t.Error("ParseChainList succeeded on object")
	}
}

func TestEncodeCatalogRejectsBadHex(t *testing.T) {
	c := NewCatalog()
	c.AddToken("BAD", 1, 1, "0x"+"zz"+"00000000000000000000000000000000000000")
	err := EncodeCatalog(context.Background(), io.Discard, c, 1)
	var ae *AddressError
	if !errors.As(err, &ae) {
		t.Errorf("EncodeCatalog: got %v, want AddressError", err)
	}
}

func TestCatalogABIs(t *testing.T) {
	c := NewCatalog()
	c.AddChain(Chain{ID: 1, Ticker: "ETH", Name: "Ethereum", ShortName: "eth"})
	c.AddABI("erc721", ABI{Magic: 0x4241, Payload: []byte{1}})
	c.AddToken("USDC", 6, 1, "0x"+"11111111111111111111111111111111111111"+"11")
	c.AddABI("erc1155", ABI{Magic: 0x4241, Payload: []byte{2}})
	c.AddABI("erc721", ABI{Magic: 0x4241, Payload: []byte{3}})

	want := []ABI{
		{Magic: 0x4241, Payload: []byte{3}},
		{Magic: 0x4241, Payload: []byte{2}},
	}
	if d := cmp.Diff(want, c.ABIs()); d != "" {
		t.Errorf("ABIs diff (-want +got):\n%s", d)
	}

	var tags []uint16
	for _, r := range c.Records() {
		tags = append(tags, r.Tag())
	}
	if d := cmp.Diff([]uint16{ChainMagic, TokenMagic, 0x4241, 0x4241}, tags); d != "" {
		t.Errorf("record tags diff (-want +got):\n%s", d)
	}

	var buf bytes.Buffer
	if err := EncodeCatalog(context.Background(), &buf, c, 9, WithPageSize(256)); err != nil {
		t.Fatalf("EncodeCatalog: %v", err)
	}
	d, err := ParsePaged(buf.Bytes(), 256)
	if err != nil {
		t.Fatalf("ParsePaged: %v", err)
	}
	if got, want := d.Records[3], (Raw{Magic: 0x4241, Payload: []byte{2}}); !cmp.Equal(got, Record(want)) {
		t.Errorf("Got last record %v, want %v", got, want)
	}
}
