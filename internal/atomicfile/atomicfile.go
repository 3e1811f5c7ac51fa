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

// Package atomicfile writes files which are either fully written or not
// there at all.
package atomicfile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"k8s.io/klog/v2"
)

// Mode is the mode of files created by Create.
const Mode os.FileMode = 0o644

// File is a file staged next to its final path.
type File struct {
	*renameio.PendingFile
	path string
	done bool
}

// Create stages a file for path with Mode permissions.
func Create(path string) (*File, error) {
	return CreateMode(path, Mode)
}

// CreateMode stages a file for path with the given permissions, regardless
// of the umask. Commit renames it into place, Abort removes it.
func CreateMode(path string, perm os.FileMode) (*File, error) {
	pf, err := renameio.NewPendingFile(path,
		renameio.WithTempDir(filepath.Dir(path)),
		renameio.WithPermissions(perm),
		renameio.IgnoreUmask())
	if err != nil {
		return nil, err
	}
	return &File{PendingFile: pf, path: path}, nil
}

// Path returns the final path of the file.
func (f *File) Path() string {
	return f.path
}

// Commit closes the staged file and atomically replaces its final path.
func (f *File) Commit() error {
	if f.done {
		return fmt.Errorf("%s already committed or aborted", f.path)
	}
	f.done = true
	if err := f.CloseAtomicallyReplace(); err != nil {
		f.cleanup()
		return err
	}
	return nil
}

// Abort removes the staged file. It does nothing after Commit, so it can be
// deferred.
func (f *File) Abort() {
	if f.done {
		return
	}
	f.done = true
	f.cleanup()
}

func (f *File) cleanup() {
	if err := f.Cleanup(); err != nil {
		klog.Warningf("Failed to remove staged %q: %v", f.Name(), err)
	}
}

// WriteFile writes data to path through a staged file.
func WriteFile(path string, data []byte) error {
	return Write(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// Write stages the output of fn and commits it to path if fn succeeds.
func Write(path string, fn func(w io.Writer) error) error {
	f, err := Create(path)
	if err != nil {
		return err
	}
	defer f.Abort()
	if err := fn(f); err != nil {
		return err
	}
	return f.Commit()
}
