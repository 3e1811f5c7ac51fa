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

// Package objcopy drives the GNU binutils objcopy tool to edit ELF sections
// and convert ELF files to flat binaries.
package objcopy

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"k8s.io/klog/v2"
)

// DefaultPath is the objcopy binary used for the device toolchain.
const DefaultPath = "arm-none-eabi-objcopy"

// Runner executes a command, returning its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Tool wraps an objcopy binary.
type Tool struct {
	// Path is the objcopy binary to run.
	Path string
	// Run executes commands, defaults to os/exec.
	Run Runner
}

// New returns a Tool running the objcopy binary at path, or DefaultPath if
// path is empty.
func New(path string) *Tool {
	if path == "" {
		path = DefaultPath
	}
	return &Tool{Path: path, Run: execRunner}
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

func (t *Tool) run(ctx context.Context, args ...string) error {
	run := t.Run
	if run == nil {
		run = execRunner
	}
	klog.V(2).Infof("%s %s", t.Path, strings.Join(args, " "))
	out, err := run(ctx, t.Path, args...)
	if err != nil {
		return fmt.Errorf("%s failed: %v: %s", t.Path, err, bytes.TrimSpace(out))
	}
	return nil
}

// UpdateSection replaces the contents of the named section of the ELF file at
// elfPath, in place, with the contents of the file at contentPath.
func (t *Tool) UpdateSection(ctx context.Context, elfPath, section, contentPath string) error {
	if !strings.HasPrefix(section, ".") {
		section = "." + section
	}
	return t.run(ctx, "--update-section", fmt.Sprintf("%s=%s", section, contentPath), elfPath, elfPath)
}

// Flatten writes the loadable contents of the ELF file at elfPath to binPath
// as a raw binary, filling gaps between sections with fill.
func (t *Tool) Flatten(ctx context.Context, elfPath, binPath string, fill byte) error {
	return t.run(ctx, "-O", "binary", fmt.Sprintf("--gap-fill=%d", fill), elfPath, binPath)
}
