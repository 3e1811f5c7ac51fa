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

// Package flash describes the flash geometry of the device and assembles
// complete dual-bank flash images from their component parts.
package flash

import (
	"fmt"
	"sort"
)

const (
	// PageSize is the size in bytes of a single erasable flash page.
	PageSize = 8192
	// WordSize is the flash programming granularity.
	WordSize = 16

	BankPageCount       = 128
	BankSize            = BankPageCount * PageSize
	FlashSize           = 2 * BankSize
	FirmwarePageCount   = 76
	BootloaderPageCount = 4
	FirmwareSize        = FirmwarePageCount * PageSize
	BootloaderSize      = BootloaderPageCount * PageSize

	// FirmwareIVSize is the length of the firmware header window which
	// precedes the signature slot.
	FirmwareIVSize = 588
	// SignatureSize is the length of a compact r||s signature.
	SignatureSize = 64

	Firmware1Offset  = BootloaderSize
	Firmware2Offset  = BankSize + BootloaderSize
	FilesystemOffset = BootloaderSize + FirmwareSize

	// Erased is the value of an unwritten flash byte.
	Erased = 0xff
)

// Region names used by DefaultLayout.
const (
	RegionBootloader        = "bootloader"
	RegionFirmware          = "firmware"
	RegionFilesystem        = "filesystem"
	RegionBootloaderCopy    = "bootloader-copy"
	RegionFirmwareSecondary = "firmware-secondary"
)

// Region is a named, contiguous byte range of a flash image:
// [Offset, Offset+Length).
type Region struct {
	Name   string
	Offset int
	Length int
}

// End returns the first offset past the region.
func (r Region) End() int {
	return r.Offset + r.Length
}

// Layout describes the placement of regions within a flash image.
type Layout struct {
	// Size is the total size of the image in bytes.
	Size int
	// Regions lists the regions placed in the image. Regions need not be
	// contiguous, bytes not covered by any region are left erased.
	Regions []Region
}

// Validate checks that the layout is self-consistent: every region lies
// within the image and no two regions overlap.
func (l Layout) Validate() error {
	if l.Size <= 0 {
		return fmt.Errorf("invalid layout: size %d", l.Size)
	}
	seen := make(map[string]bool)
	rs := make([]Region, len(l.Regions))
	copy(rs, l.Regions)
	for _, r := range rs {
		if seen[r.Name] {
			return fmt.Errorf("invalid layout: duplicate region %q", r.Name)
		}
		seen[r.Name] = true
		if r.Offset < 0 || r.Length <= 0 || r.End() > l.Size {
			return fmt.Errorf("invalid layout: region %q [%#x, %#x) outside image of %#x bytes", r.Name, r.Offset, r.End(), l.Size)
		}
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].Offset < rs[j].Offset })
	for i := 1; i < len(rs); i++ {
		if rs[i].Offset < rs[i-1].End() {
			return fmt.Errorf("invalid layout: region %q overlaps %q", rs[i].Name, rs[i-1].Name)
		}
	}
	return nil
}

// Region returns the region with the given name.
func (l Layout) Region(name string) (Region, bool) {
	for _, r := range l.Regions {
		if r.Name == name {
			return r, true
		}
	}
	return Region{}, false
}

// DefaultLayout returns the layout of the device flash.
//
// Bank 0 holds the bootloader, the primary firmware and the filesystem which
// extends to the end of the bank. Bank 1 holds a copy of the bootloader and
// the secondary firmware.
func DefaultLayout() Layout {
	return Layout{
		Size: FlashSize,
		Regions: []Region{
			{Name: RegionBootloader, Offset: 0, Length: BootloaderSize},
			{Name: RegionFirmware, Offset: Firmware1Offset, Length: FirmwareSize},
			{Name: RegionFilesystem, Offset: FilesystemOffset, Length: BankSize - FilesystemOffset},
			{Name: RegionBootloaderCopy, Offset: BankSize, Length: BootloaderSize},
			{Name: RegionFirmwareSecondary, Offset: Firmware2Offset, Length: FirmwareSize},
		},
	}
}
