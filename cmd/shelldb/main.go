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

// The shelldb tool builds the device database from a token list and a chain
// list.
//
// This tool is for development only, not to be used in production.
package main

import (
	"context"
	"flag"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/keycard-tech/shell-tools/db"
	"github.com/keycard-tech/shell-tools/internal/atomicfile"
	"github.com/keycard-tech/shell-tools/internal/fetch"
	"github.com/keycard-tech/shell-tools/internal/signers"
	"k8s.io/klog/v2"
)

var (
	tokenList = flag.String("token_list", "https://gateway.ipfs.io/ipns/tokens.uniswap.org", "Token list JSON, a path or URL.")
	chainList = flag.String("chain_list", "https://chainid.network/chains.json", "Chain list JSON, a path or URL.")
	version   = flag.String("version", time.Now().Format("20060102"), "Database version, in YYYYMMDD format.")
	output    = flag.String("output", "", "File to write the database to.")
	secretKey   = flag.String("secret_key", "", "Optional file holding the hex encoded signing key. If set, a signed database is written instead of a paged one.")
	keycardPath = flag.String("keycard_path", "", "Optional Keycard derivation path. If set, a database signed by the Keycard is written.")
	reader      = flag.String("reader", "", "PC/SC reader holding the Keycard, defaults to the first one found.")
	progress  = flag.Bool("progress", true, "Show a progress bar while encoding.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	ctx := context.Background()

	if *output == "" {
		klog.Exit("--output must be set")
	}
	v, err := strconv.ParseUint(*version, 10, 32)
	if err != nil || v > math.MaxUint32 {
		klog.Exitf("Invalid --version %q: %v", *version, err)
	}

	tl, err := db.ParseTokenList(fetchOrDie(ctx, *tokenList))
	if err != nil {
		klog.Exitf("Invalid token list: %v", err)
	}
	cl, err := db.ParseChainList(fetchOrDie(ctx, *chainList))
	if err != nil {
		klog.Exitf("Invalid chain list: %v", err)
	}
	klog.Infof("Loaded %d tokens from %q and %d chains", len(tl.Tokens), tl.Name, len(cl))

	c, err := db.BuildCatalog(tl.Tokens, cl)
	if err != nil {
		klog.Exitf("Failed to build catalog: %v", err)
	}

	var opts []db.Option
	s, release, err := signers.Open(signers.Config{SecretKeyFile: *secretKey, KeycardPath: *keycardPath, Reader: *reader})
	if err != nil {
		klog.Exitf("Failed to open signer: %v", err)
	}
	defer release()
	if s != nil {
		opts = append(opts, db.WithSigner(s))
	}

	recs := c.Records()
	var written int64
	err = atomicfile.Write(*output, func(w io.Writer) error {
		e, err := db.NewEncoder(w, uint32(v), opts...)
		if err != nil {
			return err
		}
		var bar *pb.ProgressBar
		if *progress {
			bar = pb.StartNew(len(recs))
		}
		for _, r := range recs {
			if err := e.Write(r); err != nil {
				return err
			}
			if bar != nil {
				bar.Increment()
			}
		}
		if bar != nil {
			bar.Finish()
		}
		if err := e.Close(ctx); err != nil {
			return err
		}
		written = e.Written()
		return nil
	})
	if err != nil {
		klog.Exitf("Failed to write database: %v", err)
	}
	klog.Infof("Wrote database version %d with %d chains and %d tokens, %d bytes, to %q", v, len(c.Chains()), len(c.Tokens()), written, *output)
}

func fetchOrDie(ctx context.Context, location string) []byte {
	b, err := fetch.Fetch(ctx, location)
	if err != nil {
		klog.Exitf("Failed to fetch %q: %v", location, err)
	}
	return b
}
