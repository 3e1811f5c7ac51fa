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

// The dbhash tool prints the digest of a signed database, and optionally
// verifies its signature.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/keycard-tech/shell-tools/db"
	"github.com/keycard-tech/shell-tools/flash"
	"github.com/keycard-tech/shell-tools/signer"
	"k8s.io/klog/v2"
)

var (
	binary    = flag.String("binary", "", "Database file.")
	publicKey = flag.String("public_key", "", "Optional file holding the hex encoded public key to verify the signature with.")
	paged     = flag.Bool("paged", false, "The database is in the unsigned paged layout, only its version and record count are printed.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	b, err := os.ReadFile(*binary)
	if err != nil {
		klog.Exitf("Failed to read database %q: %v", *binary, err)
	}

	if *paged {
		d, err := db.ParsePaged(b, flash.PageSize)
		if err != nil {
			klog.Exitf("Invalid database: %v", err)
		}
		fmt.Printf("version %d, %d records in %d pages\n", d.Version, len(d.Records), len(b)/flash.PageSize)
		return
	}

	d, err := db.ParseSigned(b)
	if err != nil {
		klog.Exitf("Invalid database: %v", err)
	}
	h, err := db.SignedDigest(b)
	if err != nil {
		klog.Exitf("Digest: %v", err)
	}
	fmt.Printf("%x\n", h)
	klog.Infof("Database version %d with %d records", d.Version, len(d.Records))

	if *publicKey == "" {
		return
	}
	k, err := os.ReadFile(*publicKey)
	if err != nil {
		klog.Exitf("Failed to read public key %q: %v", *publicKey, err)
	}
	pub, err := signer.ParsePublicKey(string(k))
	if err != nil {
		klog.Exitf("Invalid public key %q: %v", *publicKey, err)
	}
	if err := db.VerifySigned(b, pub); err != nil {
		klog.Exitf("Database does not verify: %v", err)
	}
	klog.Info("Signature OK")
}
