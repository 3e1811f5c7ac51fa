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

// The mkimage tool assembles a full flash image, with the bootloader and
// firmware mirrored in both banks, for loading onto a device.
//
// This tool is for development only, not to be used for releases.
package main

import (
	"flag"
	"os"

	"github.com/keycard-tech/shell-tools/flash"
	"github.com/keycard-tech/shell-tools/internal/atomicfile"
	"k8s.io/klog/v2"
)

var (
	bootloader        = flag.String("bootloader", "", "Bootloader binary.")
	primaryFirmware   = flag.String("primary_firmware", "", "Firmware binary for the first bank.")
	secondaryFirmware = flag.String("secondary_firmware", "", "Firmware binary for the second bank, defaults to --primary_firmware.")
	filesystem        = flag.String("filesystem", "", "Filesystem image.")
	output            = flag.String("output", "", "File to write the flash image to.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	if *output == "" {
		klog.Exit("--output must be set")
	}

	src := flash.Sources{
		Bootloader: readOrDie(*bootloader, "bootloader"),
		Primary:    readOrDie(*primaryFirmware, "primary firmware"),
		Filesystem: readOrDie(*filesystem, "filesystem"),
	}
	if *secondaryFirmware != "" {
		src.Secondary = readOrDie(*secondaryFirmware, "secondary firmware")
	}

	img, err := flash.Assemble(src)
	if err != nil {
		klog.Exitf("Failed to assemble image: %v", err)
	}
	if err := atomicfile.WriteFile(*output, img); err != nil {
		klog.Exitf("Failed to write image: %v", err)
	}
	klog.Infof("Wrote %d byte flash image to %q", len(img), *output)
}

func readOrDie(p, thing string) []byte {
	if p == "" {
		klog.Exitf("No %s file given", thing)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		klog.Exitf("Failed to read %s %q: %v", thing, p, err)
	}
	return b
}
