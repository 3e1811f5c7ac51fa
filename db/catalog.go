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
	"fmt"
	"math"

	"k8s.io/klog/v2"
)

// Catalog accumulates the chains, tokens and ABIs to be stored in a
// database.
//
// Chains are keyed by id, tokens by ticker and ABIs by name, all kept in the
// order they are first seen.
type Catalog struct {
	chains     map[uint32]*Chain
	chainOrder []uint32
	tokens     map[string]*Token
	tokenOrder []string
	abis       map[string]*ABI
	abiOrder   []string
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		chains: make(map[uint32]*Chain),
		tokens: make(map[string]*Token),
		abis:   make(map[string]*ABI),
	}
}

// BuildCatalog gathers tokens, and the chains they are deployed on, into a
// catalog.
//
// A chain is added the first time a token references it, using the first
// matching entry of chains. Tokens on chains missing from the chain list are
// kept. Tokens whose address is not 42 characters long are skipped. Tokens
// sharing a ticker are merged: the first decimals win and a later address on
// the same chain replaces the earlier one.
func BuildCatalog(tokens []TokenInfo, chains []ChainInfo) (*Catalog, error) {
	c := NewCatalog()
	for i, t := range tokens {
		if f := t.validate(); f != "" {
			return nil, &FieldError{List: "token list", Index: i, Field: f}
		}
		if *t.ChainID > math.MaxUint32 {
			return nil, fmt.Errorf("token %s: chain id %d does not fit in 32 bits", *t.Symbol, *t.ChainID)
		}
		id := uint32(*t.ChainID)

		if _, ok := c.chains[id]; !ok {
			if err := c.addChain(id, chains); err != nil {
				return nil, err
			}
		}

		if len(*t.Address) != addressStringLength {
			klog.Warningf("Skipping token %s on chain %d: malformed address %q", *t.Symbol, id, *t.Address)
			continue
		}
		c.AddToken(*t.Symbol, *t.Decimals, id, *t.Address)
	}
	return c, nil
}

func (c *Catalog) addChain(id uint32, chains []ChainInfo) error {
	for i, ci := range chains {
		if ci.ChainID == nil || *ci.ChainID != uint64(id) {
			continue
		}
		if f := ci.validate(); f != "" {
			return &FieldError{List: "chain list", Index: i, Field: f}
		}
		ch, err := ci.Chain()
		if err != nil {
			return err
		}
		c.AddChain(ch)
		return nil
	}
	klog.V(1).Infof("Chain %d not in chain list", id)
	return nil
}

// AddChain adds ch unless a chain with the same id is already present.
func (c *Catalog) AddChain(ch Chain) {
	if _, ok := c.chains[ch.ID]; ok {
		return
	}
	c.chains[ch.ID] = &ch
	c.chainOrder = append(c.chainOrder, ch.ID)
}

// AddToken records the address of the token with the given ticker on a
// chain, creating the token with the given decimals if needed.
func (c *Catalog) AddToken(ticker string, decimals uint8, chainID uint32, address string) {
	t, ok := c.tokens[ticker]
	if !ok {
		t = &Token{Ticker: ticker, Decimals: decimals}
		c.tokens[ticker] = t
		c.tokenOrder = append(c.tokenOrder, ticker)
	}
	t.SetAddress(chainID, address)
}

// AddABI records an ABI entry under name. A later entry with the same name
// replaces the payload but keeps the position of the first.
func (c *Catalog) AddABI(name string, a ABI) {
	a.Payload = append([]byte(nil), a.Payload...)
	if prev, ok := c.abis[name]; ok {
		*prev = a
		return
	}
	c.abis[name] = &a
	c.abiOrder = append(c.abiOrder, name)
}

// ABIs returns the ABI entries in insertion order.
func (c *Catalog) ABIs() []ABI {
	r := make([]ABI, 0, len(c.abiOrder))
	for _, n := range c.abiOrder {
		r = append(r, *c.abis[n])
	}
	return r
}

// Chains returns the chains in insertion order.
func (c *Catalog) Chains() []Chain {
	r := make([]Chain, 0, len(c.chainOrder))
	for _, id := range c.chainOrder {
		r = append(r, *c.chains[id])
	}
	return r
}

// Tokens returns the tokens in insertion order.
func (c *Catalog) Tokens() []Token {
	r := make([]Token, 0, len(c.tokenOrder))
	for _, s := range c.tokenOrder {
		t := *c.tokens[s]
		t.Addresses = append([]TokenAddress(nil), t.Addresses...)
		r = append(r, t)
	}
	return r
}

// Records returns all chains, then all tokens, then all ABIs.
func (c *Catalog) Records() []Record {
	r := make([]Record, 0, len(c.chainOrder)+len(c.tokenOrder)+len(c.abiOrder))
	for _, ch := range c.Chains() {
		r = append(r, ch)
	}
	for _, t := range c.Tokens() {
		r = append(r, t)
	}
	for _, a := range c.ABIs() {
		r = append(r, a)
	}
	return r
}
