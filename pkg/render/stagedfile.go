// Copyright The Dune Authors. All Rights Reserved.
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

package render

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// StagedFile is a file materialization unit: a source (template name or
// absolute path), a destination path, the in-memory payload, and an
// executable flag. The payload is loaded or rendered once and is immutable
// afterwards.
type StagedFile struct {
	Src  string
	Dst  string
	Data []byte
	Exec bool

	loaded bool
}

// Load reads the source path into the payload. It is a no-op once the
// payload has been loaded or rendered.
func (f *StagedFile) Load() error {
	if f.loaded {
		return nil
	}
	data, err := os.ReadFile(f.Src)
	if err != nil {
		return errors.Wrapf(err, "failed to load staged file %q", f.Src)
	}
	f.Data = data
	f.loaded = true
	return nil
}

// SetData installs an already-rendered payload.
func (f *StagedFile) SetData(data []byte) {
	if f.loaded {
		return
	}
	f.Data = data
	f.loaded = true
}

// Write writes the payload to the destination path. If the first write
// fails, the parent directory is created and the write retried exactly
// once.
func (f *StagedFile) Write() error {
	mode := os.FileMode(0644)
	if f.Exec {
		mode = 0755
	}

	err := os.WriteFile(f.Dst, f.Data, mode)
	if err != nil {
		if mkerr := os.MkdirAll(filepath.Dir(f.Dst), 0755); mkerr != nil {
			return errors.Wrapf(mkerr, "failed to create directory for %q", f.Dst)
		}
		err = os.WriteFile(f.Dst, f.Data, mode)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to write staged file %q", f.Dst)
	}

	if f.Exec {
		// WriteFile does not touch the mode of a pre-existing file.
		if err := os.Chmod(f.Dst, mode); err != nil {
			return errors.Wrapf(err, "failed to set mode of %q", f.Dst)
		}
	}
	return nil
}
