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
	"encoding/json"
	"fmt"
	"math"
)

// FieldError reports a required field missing from an input list entry.
type FieldError struct {
	// List names the input, "token list" or "chain list".
	List  string
	Index int
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s entry %d: missing required field %q", e.List, e.Index, e.Field)
}

// NativeCurrency is the currency of a chain.
type NativeCurrency struct {
	Name     string  `json:"name,omitempty"`
	Symbol   *string `json:"symbol"`
	Decimals *uint8  `json:"decimals"`
}

// ChainInfo is an entry of a chain list in the chainid.network format.
// Fields not used by the database are ignored.
type ChainInfo struct {
	ChainID        *uint64         `json:"chainId"`
	Name           *string         `json:"name"`
	ShortName      *string         `json:"shortName"`
	NativeCurrency *NativeCurrency `json:"nativeCurrency"`
}

// validate reports the first required field missing from c.
func (c ChainInfo) validate() string {
	switch {
	case c.ChainID == nil:
		return "chainId"
	case c.Name == nil:
		return "name"
	case c.ShortName == nil:
		return "shortName"
	case c.NativeCurrency == nil:
		return "nativeCurrency"
	case c.NativeCurrency.Symbol == nil:
		return "nativeCurrency.symbol"
	case c.NativeCurrency.Decimals == nil:
		return "nativeCurrency.decimals"
	}
	return ""
}

// Chain returns the database record for c, which must have all required
// fields.
func (c ChainInfo) Chain() (Chain, error) {
	if *c.ChainID > math.MaxUint32 {
		return Chain{}, fmt.Errorf("chain id %d does not fit in 32 bits", *c.ChainID)
	}
	return Chain{
		ID:        uint32(*c.ChainID),
		Ticker:    *c.NativeCurrency.Symbol,
		Name:      *c.Name,
		ShortName: *c.ShortName,
	}, nil
}

// TokenInfo is an entry of a token list in the Uniswap token list format.
type TokenInfo struct {
	ChainID  *uint64 `json:"chainId"`
	Address  *string `json:"address"`
	Name     string  `json:"name,omitempty"`
	Symbol   *string `json:"symbol"`
	Decimals *uint8  `json:"decimals"`
}

func (t TokenInfo) validate() string {
	switch {
	case t.ChainID == nil:
		return "chainId"
	case t.Address == nil:
		return "address"
	case t.Symbol == nil:
		return "symbol"
	case t.Decimals == nil:
		return "decimals"
	}
	return ""
}

// TokenList is a Uniswap format token list.
type TokenList struct {
	Name   string      `json:"name"`
	Tokens []TokenInfo `json:"tokens"`
}

// ParseTokenList decodes a token list. Every token must carry the fields
// used by the database.
func ParseTokenList(b []byte) (*TokenList, error) {
	l := &TokenList{}
	if err := json.Unmarshal(b, l); err != nil {
		return nil, fmt.Errorf("token list: %v", err)
	}
	for i, t := range l.Tokens {
		if f := t.validate(); f != "" {
			return nil, &FieldError{List: "token list", Index: i, Field: f}
		}
	}
	return l, nil
}

// ParseChainList decodes a chain list. Entries are validated when they are
// referenced by a token, see BuildCatalog.
func ParseChainList(b []byte) ([]ChainInfo, error) {
	var l []ChainInfo
	if err := json.Unmarshal(b, &l); err != nil {
		return nil, fmt.Errorf("chain list: %v", err)
	}
	return l, nil
}
