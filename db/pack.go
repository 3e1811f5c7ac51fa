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
	"errors"
	"fmt"

	"github.com/keycard-tech/shell-tools/flash"
	"k8s.io/klog/v2"
)

// ErrRecordTooLarge is returned for records which cannot fit in a page.
var ErrRecordTooLarge = errors.New("record too large for page")

// padFlag marks a padding byte, the low bits count the padding bytes left.
const padFlag = 0x80

// PadRun returns the padding which follows n bytes of page content: between
// 1 and flash.WordSize bytes, valued padFlag|k for k counting down to 1, such
// that the padded content is word aligned.
func PadRun(n int) []byte {
	l := flash.WordSize - n%flash.WordSize
	r := make([]byte, l)
	for i := range r {
		r[i] = byte(padFlag | (l - i))
	}
	return r
}

// MaxRecordSize returns the size of the largest encoded record which fits on
// a page of pageSize bytes together with its padding run.
func MaxRecordSize(pageSize int) int {
	return pageSize - 1
}

func checkPageSize(pageSize int) error {
	if pageSize < 2*flash.WordSize || pageSize%flash.WordSize != 0 {
		return fmt.Errorf("page size %d must be a multiple of %d and at least %d", pageSize, flash.WordSize, 2*flash.WordSize)
	}
	return nil
}

// Packer greedily packs encoded records into fixed size pages.
//
// Records are kept in order and never split across pages. When a record does
// not fit in the current page, the page is terminated with a padding run,
// filled with erased bytes and emitted, and the record starts the next page.
type Packer struct {
	pageSize int
	buf      []byte
	emit     func(page []byte) error
	pages    int
}

// NewPacker returns a packer which starts the first page with header and
// passes each completed page to emit.
func NewPacker(pageSize int, header []byte, emit func(page []byte) error) (*Packer, error) {
	if err := checkPageSize(pageSize); err != nil {
		return nil, err
	}
	if len(header) > MaxRecordSize(pageSize) {
		return nil, fmt.Errorf("header of %d bytes: %w", len(header), ErrRecordTooLarge)
	}
	p := &Packer{
		pageSize: pageSize,
		buf:      make([]byte, 0, pageSize),
		emit:     emit,
	}
	p.buf = append(p.buf, header...)
	return p, nil
}

// Add appends an encoded record.
func (p *Packer) Add(rec []byte) error {
	if len(rec) > MaxRecordSize(p.pageSize) {
		return fmt.Errorf("%d byte record, page holds at most %d: %w", len(rec), MaxRecordSize(p.pageSize), ErrRecordTooLarge)
	}
	// The content must leave room for at least one padding byte.
	if len(p.buf)+len(rec) < p.pageSize {
		p.buf = append(p.buf, rec...)
		return nil
	}
	if err := p.flush(); err != nil {
		return err
	}
	p.buf = append(p.buf, rec...)
	return nil
}

// Flush emits the current page, if it holds anything.
func (p *Packer) Flush() error {
	if len(p.buf) == 0 {
		return nil
	}
	return p.flush()
}

// Pages returns the number of pages emitted so far.
func (p *Packer) Pages() int {
	return p.pages
}

func (p *Packer) flush() error {
	page := make([]byte, 0, p.pageSize)
	page = append(page, p.buf...)
	page = append(page, PadRun(len(p.buf))...)
	for len(page) < p.pageSize {
		page = append(page, flash.Erased)
	}
	klog.V(2).Infof("Page %d: %d bytes of content", p.pages, len(p.buf))
	p.buf = p.buf[:0]
	p.pages++
	return p.emit(page)
}

// Pack packs header and records into pages of pageSize bytes.
func Pack(pageSize int, header []byte, records [][]byte) ([][]byte, error) {
	var pages [][]byte
	p, err := NewPacker(pageSize, header, func(page []byte) error {
		pages = append(pages, page)
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if err := p.Add(r); err != nil {
			return nil, err
		}
	}
	if err := p.Flush(); err != nil {
		return nil, err
	}
	return pages, nil
}
