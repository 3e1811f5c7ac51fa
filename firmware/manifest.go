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

package firmware

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/coreos/go-semver/semver"
	"golang.org/x/mod/sumdb/note"
)

// Manifest describes a signed firmware release.
type Manifest struct {
	Version semver.Version `json:"version"`
	// Size is the length of the firmware binary before block padding.
	Size int `json:"size"`
	// Digest is the hex encoded firmware digest.
	Digest string `json:"digest"`
	// Signature is the hex encoded compact signature over Digest.
	Signature string `json:"signature"`
}

// NewManifest creates a release manifest for a signed firmware.
func NewManifest(version string, res *SignResult) (*Manifest, error) {
	v, err := semver.NewVersion(version)
	if err != nil {
		return nil, fmt.Errorf("invalid release version %q: %v", version, err)
	}
	return &Manifest{
		Version:   *v,
		Size:      res.Size,
		Digest:    hex.EncodeToString(res.Digest[:]),
		Signature: hex.EncodeToString(res.Signature),
	}, nil
}

// Marshal returns the JSON encoding of the manifest.
func (m *Manifest) Marshal() ([]byte, error) {
	return json.MarshalIndent(m, "", " ")
}

// ParseManifest decodes a JSON release manifest.
func ParseManifest(b []byte) (*Manifest, error) {
	m := &Manifest{}
	if err := json.Unmarshal(b, m); err != nil {
		return nil, err
	}
	if _, err := hex.DecodeString(m.Digest); err != nil {
		return nil, fmt.Errorf("invalid digest: %v", err)
	}
	if _, err := hex.DecodeString(m.Signature); err != nil {
		return nil, fmt.Errorf("invalid signature: %v", err)
	}
	return m, nil
}

// SignNote returns the manifest wrapped in a signed note.
func (m *Manifest) SignNote(signers ...note.Signer) ([]byte, error) {
	b, err := m.Marshal()
	if err != nil {
		return nil, err
	}
	return note.Sign(&note.Note{Text: string(b) + "\n"}, signers...)
}

// OpenManifest verifies a manifest note against v and decodes it.
func OpenManifest(b []byte, v note.Verifier) (*Manifest, error) {
	n, err := note.Open(b, note.VerifierList(v))
	if err != nil {
		return nil, fmt.Errorf("failed to verify manifest: %v", err)
	}
	return ParseManifest([]byte(n.Text))
}
