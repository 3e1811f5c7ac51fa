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

// The blperso tool writes the firmware verification key into a bootloader
// ELF and converts it to a raw binary.
//
// This tool is for development only, not to be used for releases.
package main

import (
	"context"
	"flag"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/keycard-tech/shell-tools/firmware"
	"github.com/keycard-tech/shell-tools/internal/objcopy"
	"github.com/keycard-tech/shell-tools/signer"
	"k8s.io/klog/v2"
)

var (
	publicKey   = flag.String("public_key", "", "File holding the hex encoded firmware verification key.")
	elf         = flag.String("elf", "", "Bootloader ELF file.")
	output      = flag.String("output", "", "File to write the bootloader binary to.")
	persoELF    = flag.String("perso_elf", "", "File to write the personalised ELF to, by default --elf is updated in place.")
	section     = flag.String("section", firmware.HeaderSectionName, "ELF section holding the public key.")
	objcopyPath = flag.String("objcopy", objcopy.DefaultPath, "objcopy binary to use.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	ctx := context.Background()

	if *elf == "" || *output == "" {
		klog.Exit("--elf and --output must be set")
	}

	b, err := os.ReadFile(*publicKey)
	if err != nil {
		klog.Exitf("Failed to read public key %q: %v", *publicKey, err)
	}
	if _, err := signer.ParsePublicKey(string(b)); err != nil {
		klog.Exitf("Invalid public key %q: %v", *publicKey, err)
	}
	// The key is stored in the encoding it was given in.
	pub := common.FromHex(strings.TrimSpace(string(b)))

	if err := firmware.Personalize(ctx, firmware.PersoRequest{
		ELF:       *elf,
		Output:    *output,
		PersoELF:  *persoELF,
		Section:   *section,
		PublicKey: pub,
		Editor:    objcopy.New(*objcopyPath),
	}); err != nil {
		klog.Exitf("Failed to personalise bootloader: %v", err)
	}
	klog.Infof("Wrote bootloader with %d byte key to %q", len(pub), *output)
}
