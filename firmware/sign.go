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
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/keycard-tech/shell-tools/flash"
	"github.com/keycard-tech/shell-tools/internal/atomicfile"
	"github.com/keycard-tech/shell-tools/signer"
	"k8s.io/klog/v2"
)

// HeaderSectionName is the ELF section holding the firmware signature, and
// the bootloader public key.
const HeaderSectionName = "header"

// SectionEditor edits ELF files. It is implemented by objcopy.Tool.
type SectionEditor interface {
	// UpdateSection replaces, in place, the named section of the ELF at
	// elfPath with the contents of contentPath.
	UpdateSection(ctx context.Context, elfPath, section, contentPath string) error
	// Flatten converts the ELF at elfPath to a raw binary at binPath, filling
	// gaps with fill.
	Flatten(ctx context.Context, elfPath, binPath string, fill byte) error
}

// SignRequest describes a firmware signing operation.
type SignRequest struct {
	// ELF is the firmware ELF file to sign.
	ELF string
	// Output is where the signed raw binary is written.
	Output string
	// SignedELF is where the signed ELF is written. If empty, ELF is
	// replaced.
	SignedELF string
	// Section defaults to HeaderSectionName.
	Section string

	Editor SectionEditor
	Signer signer.Signer
}

// SignResult describes a signed firmware.
type SignResult struct {
	// Size is the length of the flattened firmware before block padding.
	Size      int
	Digest    [sha256.Size]byte
	Signature []byte
}

// Sign signs a firmware ELF and writes the signed raw binary.
//
// All intermediate files are staged next to their destination and only
// renamed into place once every step succeeded, on failure neither the
// binary nor the ELF are modified.
func Sign(ctx context.Context, req SignRequest) (*SignResult, error) {
	if req.Editor == nil || req.Signer == nil {
		return nil, errors.New("firmware signing requires an editor and a signer")
	}
	section := req.Section
	if section == "" {
		section = HeaderSectionName
	}
	elfOut := req.SignedELF
	if elfOut == "" {
		elfOut = req.ELF
	}

	st := &staging{}
	defer st.cleanup()

	elfTmp, err := st.copy(req.ELF, elfOut)
	if err != nil {
		return nil, err
	}
	binTmp, err := st.create(req.Output, atomicfile.Mode)
	if err != nil {
		return nil, err
	}

	if err := req.Editor.Flatten(ctx, elfTmp.Name(), binTmp.Name(), flash.Erased); err != nil {
		return nil, fmt.Errorf("flatten: %v", err)
	}
	bin, err := os.ReadFile(binTmp.Name())
	if err != nil {
		return nil, err
	}
	img, err := Load(bin)
	if err != nil {
		return nil, err
	}

	res := &SignResult{Size: len(bin)}
	if res.Digest, err = Digest(img); err != nil {
		return nil, err
	}
	if res.Signature, err = req.Signer.Sign(ctx, res.Digest[:]); err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	klog.V(1).Infof("Firmware digest %x signature %x", res.Digest, res.Signature)

	hdr, err := HeaderSection(img, res.Signature)
	if err != nil {
		return nil, err
	}
	if err := st.updateSection(ctx, req.Editor, elfTmp.Name(), section, hdr, req.Output); err != nil {
		return nil, err
	}
	if err := req.Editor.Flatten(ctx, elfTmp.Name(), binTmp.Name(), flash.Erased); err != nil {
		return nil, fmt.Errorf("flatten: %v", err)
	}

	signed, err := os.ReadFile(binTmp.Name())
	if err != nil {
		return nil, err
	}
	if got, _ := Signature(signed); !bytes.Equal(got, res.Signature) {
		return nil, fmt.Errorf("section %q does not map to the signature slot at %#x", section, sigStart)
	}
	if err := os.WriteFile(binTmp.Name(), PadBlock(signed), atomicfile.Mode); err != nil {
		return nil, err
	}

	if err := st.commit(binTmp, elfTmp); err != nil {
		return nil, err
	}
	return res, nil
}

// PersoRequest describes a bootloader personalisation.
type PersoRequest struct {
	// ELF is the bootloader ELF file.
	ELF string
	// Output is where the raw bootloader binary is written.
	Output string
	// PersoELF is where the personalised ELF is written. If empty, ELF is
	// replaced.
	PersoELF string
	// Section defaults to HeaderSectionName.
	Section string
	// PublicKey is the firmware verification key written to the bootloader.
	PublicKey []byte

	Editor SectionEditor
}

// Personalize writes the firmware verification key into the bootloader
// header section and flattens the bootloader to a raw binary.
func Personalize(ctx context.Context, req PersoRequest) error {
	if req.Editor == nil {
		return errors.New("bootloader personalisation requires an editor")
	}
	if len(req.PublicKey) == 0 {
		return errors.New("missing public key")
	}
	section := req.Section
	if section == "" {
		section = HeaderSectionName
	}
	elfOut := req.PersoELF
	if elfOut == "" {
		elfOut = req.ELF
	}

	st := &staging{}
	defer st.cleanup()

	elfTmp, err := st.copy(req.ELF, elfOut)
	if err != nil {
		return err
	}
	if err := st.updateSection(ctx, req.Editor, elfTmp.Name(), section, req.PublicKey, req.Output); err != nil {
		return err
	}
	binTmp, err := st.create(req.Output, atomicfile.Mode)
	if err != nil {
		return err
	}
	if err := req.Editor.Flatten(ctx, elfTmp.Name(), binTmp.Name(), flash.Erased); err != nil {
		return fmt.Errorf("flatten: %v", err)
	}
	if fi, err := os.Stat(binTmp.Name()); err != nil {
		return err
	} else if fi.Size() > flash.BootloaderSize {
		return &flash.RegionOverflowError{Region: flash.RegionBootloader, Size: int(fi.Size()), Max: flash.BootloaderSize}
	}

	return st.commit(binTmp, elfTmp)
}

// staging tracks staged files, removing any which were not committed.
type staging struct {
	files []*atomicfile.File
}

// create stages a new empty file for dst.
func (s *staging) create(dst string, perm os.FileMode) (*atomicfile.File, error) {
	f, err := atomicfile.CreateMode(dst, perm)
	if err != nil {
		return nil, err
	}
	s.files = append(s.files, f)
	return f, nil
}

// copy stages a copy of src for later commit to dst, keeping the mode of src.
func (s *staging) copy(src, dst string) (*atomicfile.File, error) {
	in, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	fi, err := in.Stat()
	if err != nil {
		return nil, err
	}

	f, err := s.create(dst, fi.Mode().Perm())
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(f, in); err != nil {
		return nil, err
	}
	return f, f.Sync()
}

// updateSection stages content next to near and uses it to replace section
// in elf. The content file is never committed.
func (s *staging) updateSection(ctx context.Context, ed SectionEditor, elf, section string, content []byte, near string) error {
	f, err := s.create(near, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(content); err != nil {
		return err
	}
	if err := ed.UpdateSection(ctx, elf, section, f.Name()); err != nil {
		return fmt.Errorf("update section %q: %v", section, err)
	}
	return nil
}

// commit renames the staged binary and ELF into place. If the ELF cannot be
// committed the binary is removed again, so that no output is left without
// its matching ELF.
func (s *staging) commit(bin, elf *atomicfile.File) error {
	if err := bin.Commit(); err != nil {
		return err
	}
	if err := elf.Commit(); err != nil {
		if rerr := os.Remove(bin.Path()); rerr != nil {
			klog.Warningf("Failed to remove %q: %v", bin.Path(), rerr)
		}
		return err
	}
	return nil
}

func (s *staging) cleanup() {
	for _, f := range s.files {
		f.Abort()
	}
	s.files = nil
}
