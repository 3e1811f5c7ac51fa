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

// The fwhash tool prints the digest of a firmware binary, and optionally
// verifies its embedded signature.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/keycard-tech/shell-tools/firmware"
	"github.com/keycard-tech/shell-tools/signer"
	"golang.org/x/mod/sumdb/note"
	"k8s.io/klog/v2"
)

var (
	binary    = flag.String("binary", "", "Firmware binary.")
	publicKey = flag.String("public_key", "", "Optional file holding the hex encoded public key to verify the signature with.")

	manifestFile       = flag.String("manifest_file", "", "Optional release manifest note to check the firmware against.")
	manifestPubKeyFile = flag.String("manifest_pubkey_file", "", "File containing a note verifier string to verify the manifest signature.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	bin, err := os.ReadFile(*binary)
	if err != nil {
		klog.Exitf("Failed to read firmware %q: %v", *binary, err)
	}
	img, err := firmware.Load(bin)
	if err != nil {
		klog.Exitf("Invalid firmware: %v", err)
	}
	d, err := firmware.Digest(img)
	if err != nil {
		klog.Exitf("Digest: %v", err)
	}
	fmt.Printf("%x\n", d)

	if *publicKey != "" {
		pub := publicKeyOrDie(*publicKey)
		if err := firmware.Verify(bin, pub); err != nil {
			klog.Exitf("Firmware does not verify: %v", err)
		}
		klog.Info("Signature OK")
	}

	if *manifestFile != "" {
		m := loadManifestOrDie(*manifestFile, verifierOrDie(*manifestPubKeyFile))
		if m.Digest != hex.EncodeToString(d[:]) {
			klog.Exitf("Firmware digest %x does not match release %s digest %s", d, m.Version, m.Digest)
		}
		klog.Infof("Firmware matches release %s", m.Version)
	}
}

func verifierOrDie(p string) note.Verifier {
	vs, err := os.ReadFile(p)
	if err != nil {
		klog.Exitf("Failed to read manifest pub key file %q: %v", p, err)
	}
	v, err := note.NewVerifier(strings.TrimSpace(string(vs)))
	if err != nil {
		klog.Exitf("Invalid note verifier string %q: %v", vs, err)
	}
	return v
}

func loadManifestOrDie(p string, v note.Verifier) *firmware.Manifest {
	b, err := os.ReadFile(p)
	if err != nil {
		klog.Exitf("Failed to read manifest %q: %v", p, err)
	}
	m, err := firmware.OpenManifest(b, v)
	if err != nil {
		klog.Exitf("Invalid manifest %q: %v", p, err)
	}
	return m
}

func publicKeyOrDie(p string) []byte {
	b, err := os.ReadFile(p)
	if err != nil {
		klog.Exitf("Failed to read public key %q: %v", p, err)
	}
	pub, err := signer.ParsePublicKey(string(b))
	if err != nil {
		klog.Exitf("Invalid public key %q: %v", p, err)
	}
	return pub
}
