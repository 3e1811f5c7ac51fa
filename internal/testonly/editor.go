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

package testonly

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Section is a named section of a fake ELF file.
type Section struct {
	Offset int
	Size   int
}

// SectionEditor treats "ELF" files as raw images in which each section is a
// fixed byte range, so that flattening is a plain copy.
type SectionEditor struct {
	Sections map[string]Section

	// FailUpdate makes UpdateSection fail.
	FailUpdate bool
	// Flattens counts calls to Flatten.
	Flattens int
}

// UpdateSection overwrites the byte range of the named section.
func (e *SectionEditor) UpdateSection(_ context.Context, elfPath, section, contentPath string) error {
	if e.FailUpdate {
		return errors.New("can't update section")
	}
	s, ok := e.Sections["."+section]
	if !ok {
		return fmt.Errorf("section .%s not found", section)
	}
	content, err := os.ReadFile(contentPath)
	if err != nil {
		return err
	}
	if len(content) != s.Size {
		return fmt.Errorf("section .%s is %d bytes, content is %d", section, s.Size, len(content))
	}
	elf, err := os.ReadFile(elfPath)
	if err != nil {
		return err
	}
	if s.Offset+s.Size > len(elf) {
		return fmt.Errorf("section .%s outside file", section)
	}
	copy(elf[s.Offset:], content)
	return os.WriteFile(elfPath, elf, 0o644)
}

// Flatten copies the fake ELF to binPath.
func (e *SectionEditor) Flatten(_ context.Context, elfPath, binPath string, _ byte) error {
	e.Flattens++
	b, err := os.ReadFile(elfPath)
	if err != nil {
		return err
	}
	return os.WriteFile(binPath, b, 0o644)
}
