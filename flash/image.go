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
	"fmt"
	"sort"

	"k8s.io/klog/v2"
)

// RegionOverflowError is returned when an input is larger than the region
// it is destined for.
type RegionOverflowError struct {
	Region string
	Size   int
	Max    int
}

func (e *RegionOverflowError) Error() string {
	return fmt.Sprintf("%s: %d bytes exceeds region size of %d bytes", e.Region, e.Size, e.Max)
}

// Sources holds the component images making up a full flash image.
type Sources struct {
	Bootloader []byte
	Primary    []byte
	// Secondary is the firmware placed in bank 1. If nil, Primary is used.
	Secondary  []byte
	Filesystem []byte
}

// Assemble builds a complete flash image using DefaultLayout.
//
// The bootloader is written to both banks. Any input larger than its region
// is rejected, inputs shorter than their region leave the trailing bytes
// erased.
func Assemble(src Sources) ([]byte, error) {
	if src.Bootloader == nil {
		return nil, errors.New("missing bootloader")
	}
	if src.Primary == nil {
		return nil, errors.New("missing primary firmware")
	}
	if src.Filesystem == nil {
		return nil, errors.New("missing filesystem")
	}
	secondary := src.Secondary
	if secondary == nil {
		klog.V(1).Info("No secondary firmware, using primary for bank 1")
		secondary = src.Primary
	}

	return AssembleWith(DefaultLayout(), map[string][]byte{
		RegionBootloader:        src.Bootloader,
		RegionFirmware:          src.Primary,
		RegionFilesystem:        src.Filesystem,
		RegionBootloaderCopy:    src.Bootloader,
		RegionFirmwareSecondary: secondary,
	})
}

// AssembleWith builds an image of l.Size erased bytes and copies each input
// verbatim to the start of the region of the same name. Regions are filled
// in layout order, so the first overflowing region is the one reported.
func AssembleWith(l Layout, inputs map[string][]byte) ([]byte, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(inputs))
	for name := range inputs {
		if _, ok := l.Region(name); !ok {
			names = append(names, name)
		}
	}
	if len(names) > 0 {
		sort.Strings(names)
		return nil, fmt.Errorf("unknown regions %q", names)
	}

	image := bytes.Repeat([]byte{Erased}, l.Size)

	for _, r := range l.Regions {
		data, ok := inputs[r.Name]
		if !ok {
			continue
		}
		if len(data) > r.Length {
			return nil, &RegionOverflowError{Region: r.Name, Size: len(data), Max: r.Length}
		}
		klog.V(2).Infof("Placing %s (%d bytes) @ %#x", r.Name, len(data), r.Offset)
		copy(image[r.Offset:r.End()], data)
	}

	return image, nil
}
