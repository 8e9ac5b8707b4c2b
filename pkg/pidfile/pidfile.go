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

// Package pidfile tracks the PIDs of launched pinned processes so that
// shutdown hooks and operators can locate them after the provisioning run
// has exited.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// defaultDir is where PID files are kept, one per node and process.
var defaultDir = "/run/dune"

// SetDir overrides the directory PID files are written under.
func SetDir(dir string) {
	defaultDir = dir
}

// Path returns the PID file path for the given node and process index.
func Path(node string, index int) string {
	return filepath.Join(defaultDir, node, fmt.Sprintf("pinned-%d.pid", index))
}

// Write records the PID of a launched process, creating parent directories
// as needed. An existing file is overwritten: a re-run of the provisioner
// supersedes stale state.
func Write(path string, pid int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "failed to create PID file directory")
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return errors.Wrap(err, "failed to write PID file")
	}
	return nil
}

// Read returns the PID recorded in the given file.
func Read(path string) (int, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return -1, errors.Wrap(err, "failed to read PID file")
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(buf)))
	if err != nil {
		return -1, errors.Wrapf(err, "invalid PID (%q) in PID file", string(buf))
	}
	return pid, nil
}

// Remove deletes the given PID file.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove PID file")
	}
	return nil
}
