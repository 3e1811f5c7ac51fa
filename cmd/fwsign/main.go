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

// The fwsign tool signs a firmware ELF and converts it to a raw binary ready
// for flashing.
//
// This tool is for development only, not to be used for releases.
package main

import (
	"context"
	"flag"
	"os"
	"strings"

	"github.com/keycard-tech/shell-tools/firmware"
	"github.com/keycard-tech/shell-tools/internal/atomicfile"
	"github.com/keycard-tech/shell-tools/internal/objcopy"
	"github.com/keycard-tech/shell-tools/internal/signers"
	"golang.org/x/mod/sumdb/note"
	"k8s.io/klog/v2"
)

var (
	secretKey      = flag.String("secret_key", "", "File holding the hex encoded secp256k1 signing key.")
	keycardPath    = flag.String("keycard_path", "", "Sign with the Keycard key at this derivation path instead of --secret_key.")
	reader         = flag.String("reader", "", "PC/SC reader holding the Keycard, defaults to the first one found.")
	elf            = flag.String("elf", "", "Firmware ELF file to sign.")
	output         = flag.String("output", "", "File to write the signed firmware binary to.")
	signedELF      = flag.String("signed_elf", "", "File to write the signed ELF to, by default --elf is updated in place.")
	section        = flag.String("section", firmware.HeaderSectionName, "ELF section holding the signature.")
	objcopyPath    = flag.String("objcopy", objcopy.DefaultPath, "objcopy binary to use.")
	releaseVersion = flag.String("release_version", "", "Semantic version of the release, required with --manifest_file.")
	manifestFile   = flag.String("manifest_file", "", "Optional file to write a release manifest to.")
	manifestKey    = flag.String("manifest_key_file", "", "Optional file holding a note signer key, the manifest is then written as a signed note.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	ctx := context.Background()

	if *elf == "" || *output == "" {
		klog.Exit("--elf and --output must be set")
	}
	if *manifestFile != "" && *releaseVersion == "" {
		klog.Exit("--release_version must be set with --manifest_file")
	}

	var ns note.Signer
	if *manifestKey != "" {
		ns = noteSignerOrDie(*manifestKey)
	}

	cfg := signers.Config{SecretKeyFile: *secretKey, KeycardPath: *keycardPath, Reader: *reader}
	if !cfg.Enabled() {
		klog.Exit("One of --secret_key or --keycard_path must be set")
	}
	s, release, err := signers.Open(cfg)
	if err != nil {
		klog.Exitf("Failed to open signer: %v", err)
	}
	defer release()

	res, err := firmware.Sign(ctx, firmware.SignRequest{
		ELF:       *elf,
		Output:    *output,
		SignedELF: *signedELF,
		Section:   *section,
		Editor:    objcopy.New(*objcopyPath),
		Signer:    s,
	})
	if err != nil {
		klog.Exitf("Failed to sign firmware: %v", err)
	}
	klog.Infof("Signed %d byte firmware, digest %x", res.Size, res.Digest)

	if *manifestFile == "" {
		return
	}
	m, err := firmware.NewManifest(*releaseVersion, res)
	if err != nil {
		klog.Exitf("Failed to create manifest: %v", err)
	}
	var b []byte
	if ns != nil {
		b, err = m.SignNote(ns)
	} else {
		b, err = m.Marshal()
	}
	if err != nil {
		klog.Exitf("Failed to marshal manifest: %v", err)
	}
	if err := atomicfile.WriteFile(*manifestFile, b); err != nil {
		klog.Exitf("Failed to write manifest: %v", err)
	}
	klog.Infof("Wrote release %s manifest to %q", m.Version, *manifestFile)
}

func noteSignerOrDie(p string) note.Signer {
	k, err := os.ReadFile(p)
	if err != nil {
		klog.Exitf("Failed to read manifest key %q: %v", p, err)
	}
	s, err := note.NewSigner(strings.TrimSpace(string(k)))
	if err != nil {
		klog.Exitf("Invalid manifest key: %v", err)
	}
	return s
}
