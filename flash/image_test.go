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

package flash

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLayoutValidate(t *testing.T) {
	for _, test := range []struct {
		name    string
		layout  Layout
		wantErr bool
	}{
		{
			name:   "default",
			layout: DefaultLayout(),
		}, {
			name: "gaps are fine",
			layout: Layout{
				Size:    100,
				Regions: []Region{{Name: "a", Offset: 0, Length: 10}, {Name: "b", Offset: 50, Length: 50}},
			},
		}, {
			name: "overlap",
			layout: Layout{
				Size:    100,
				Regions: []Region{{Name: "a", Offset: 40, Length: 20}, {Name: "b", Offset: 0, Length: 41}},
			},
			wantErr: true,
		}, {
			name: "past end",
			layout: Layout{
				Size:    100,
				Regions: []Region{{Name: "a", Offset: 90, Length: 11}},
			},
			wantErr: true,
		}, {
			name: "duplicate name",
			layout: Layout{
				Size:    100,
				Regions: []Region{{Name: "a", Offset: 0, Length: 1}, {Name: "a", Offset: 2, Length: 1}},
			},
			wantErr: true,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			err := test.layout.Validate()
			if gotErr := err != nil; gotErr != test.wantErr {
				t.Fatalf("Got %v, wantErr %t", err, test.wantErr)
			}
		})
	}
}

func TestDefaultLayoutOffsets(t *testing.T) {
	type span struct{ Offset, End int }
	got := map[string]span{}
	for _, r := range DefaultLayout().Regions {
		got[r.Name] = span{r.Offset, r.End()}
	}
	want := map[string]span{
		RegionBootloader:        {0, 0x8000},
		RegionFirmware:          {0x8000, 0xa0000},
		RegionFilesystem:        {0xa0000, 0x100000},
		RegionBootloaderCopy:    {0x100000, 0x108000},
		RegionFirmwareSecondary: {0x108000, 0x1a0000},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Got diff: %s", diff)
	}
}

func checkRange(t *testing.T, img []byte, start, end int, want byte) {
	t.Helper()
	for i := start; i < end; i++ {
		if img[i] != want {
			t.Fatalf("byte @ %#x = %#x, want %#x", i, img[i], want)
		}
	}
}

func TestAssemble(t *testing.T) {
	img, err := Assemble(Sources{
		Bootloader: make([]byte, BootloaderSize),
		Primary:    bytes.Repeat([]byte{0xaa}, FirmwareSize),
		Filesystem: bytes.Repeat([]byte{0x01}, 10),
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if got, want := len(img), FlashSize; got != want {
		t.Fatalf("Got image of %d bytes, want %d", got, want)
	}

	checkRange(t, img, 0, BootloaderSize, 0x00)
	checkRange(t, img, BootloaderSize, BootloaderSize+FirmwareSize, 0xaa)
	checkRange(t, img, FilesystemOffset, FilesystemOffset+10, 0x01)
	checkRange(t, img, FilesystemOffset+10, BankSize, Erased)
	checkRange(t, img, BankSize, BankSize+BootloaderSize, 0x00)
	checkRange(t, img, BankSize+BootloaderSize, BankSize+BootloaderSize+FirmwareSize, 0xaa)
	checkRange(t, img, Firmware2Offset+FirmwareSize, FlashSize, Erased)
}

func TestAssembleSecondary(t *testing.T) {
	img, err := Assemble(Sources{
		Bootloader: []byte{1, 2, 3},
		Primary:    []byte{0xaa, 0xaa},
		Secondary:  []byte{0xbb},
		Filesystem: []byte{},
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	checkRange(t, img, Firmware1Offset, Firmware1Offset+2, 0xaa)
	checkRange(t, img, Firmware2Offset, Firmware2Offset+1, 0xbb)
	checkRange(t, img, Firmware2Offset+1, Firmware2Offset+FirmwareSize, Erased)
	checkRange(t, img, FilesystemOffset, BankSize, Erased)
	if got, want := img[BankSize:BankSize+3], []byte{1, 2, 3}; !bytes.Equal(got, want) {
		t.Fatalf("Got bootloader copy %x, want %x", got, want)
	}
}

func TestAssembleErrors(t *testing.T) {
	ok := Sources{
		Bootloader: []byte{0},
		Primary:    []byte{0},
		Filesystem: []byte{0},
	}
	for _, test := range []struct {
		name         string
		mod          func(s *Sources)
		wantOverflow string
	}{
		{
			name: "missing bootloader",
			mod:  func(s *Sources) { s.Bootloader = nil },
		}, {
			name: "missing primary",
			mod:  func(s *Sources) { s.Primary = nil },
		}, {
			name: "missing filesystem",
			mod:  func(s *Sources) { s.Filesystem = nil },
		}, {
			name:         "bootloader too big",
			mod:          func(s *Sources) { s.Bootloader = make([]byte, BootloaderSize+1) },
			wantOverflow: RegionBootloader,
		}, {
			name:         "secondary too big",
			mod:          func(s *Sources) { s.Secondary = make([]byte, FirmwareSize+1) },
			wantOverflow: RegionFirmwareSecondary,
		}, {
			name:         "filesystem too big",
			mod:          func(s *Sources) { s.Filesystem = make([]byte, BankSize-FilesystemOffset+1) },
			wantOverflow: RegionFilesystem,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			s := ok
			test.mod(&s)
			_, err := Assemble(s)
			if err == nil {
				t.Fatal("Assemble succeeded, want error")
			}
			if test.wantOverflow == "" {
				return
			}
			var oe *RegionOverflowError
			if !errors.As(err, &oe) {
				t.Fatalf("Got %v, want RegionOverflowError", err)
			}
			if oe.Region != test.wantOverflow {
				t.Fatalf("Got overflow in %q, want %q", oe.Region, test.wantOverflow)
			}
		})
	}
}

func TestAssembleWithReportsFirstOverflow(t *testing.T) {
	l := DefaultLayout()
	inputs := map[string][]byte{
		RegionFirmwareSecondary: make([]byte, FirmwareSize+1),
		RegionFilesystem:        make([]byte, BankSize),
		RegionFirmware:          make([]byte, FirmwareSize+1),
		RegionBootloaderCopy:    make([]byte, BootloaderSize+1),
	}
	// Map iteration order varies between runs, the reported region must not.
	for i := 0; i < 20; i++ {
		_, err := AssembleWith(l, inputs)
		var oe *RegionOverflowError
		if !errors.As(err, &oe) {
			t.Fatalf("Got %v, want RegionOverflowError", err)
		}
		if oe.Region != RegionFirmware {
			t.Fatalf("Got overflow in %q, want %q", oe.Region, RegionFirmware)
		}
	}
}

func TestAssembleWithUnknownRegion(t *testing.T) {
	_, err := AssembleWith(DefaultLayout(), map[string][]byte{
		RegionBootloader: {0},
		"eeprom":         {0},
	})
	if err == nil {
		t.Fatal("AssembleWith succeeded with unknown region")
	}
	var oe *RegionOverflowError
	if errors.As(err, &oe) {
		t.Fatalf("Got %v, want unknown region error", err)
	}
}
