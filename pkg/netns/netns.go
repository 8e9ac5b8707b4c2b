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

package netns

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pkg/errors"
	vishns "github.com/vishvananda/netns"

	logger "github.com/dune-emu/dune/pkg/log"
)

// our logger instance
var log = logger.NewLogger("netns")

var (
	// ErrNoNamespace indicates that a named namespace could not be located.
	ErrNoNamespace = errors.New("network namespace not found")
	// ErrTimeout indicates that an external operation exceeded its deadline.
	ErrTimeout = errors.New("operation timed out")
)

// DefaultTimeout bounds every external command run through this package.
const DefaultTimeout = 30 * time.Second

// RunLocked runs fn on a dedicated goroutine locked to its own OS thread
// and waits for it to finish. The thread is never unlocked: namespace
// membership and CPU affinity are thread-wide properties, so the runtime
// discards the thread when fn returns instead of handing a tainted thread
// back to the scheduler.
func RunLocked(fn func() error) error {
	errc := make(chan error, 1)
	go func() {
		runtime.LockOSThread()
		errc <- fn()
	}()
	return <-errc
}

// Create creates a named network namespace registered under the standard
// namespace registry (/run/netns). An already existing namespace of the
// same name is left untouched.
func Create(name string) error {
	if Exists(name) {
		log.Debug("namespace %q already exists", name)
		return nil
	}
	return RunLocked(func() error {
		// NewNamed binds the calling thread to the new namespace; the
		// thread is discarded by RunLocked on return.
		ns, err := vishns.NewNamed(name)
		if err != nil {
			return nsError("failed to create namespace %q: %v", name, err)
		}
		return ns.Close()
	})
}

// Exists reports whether a named network namespace exists.
func Exists(name string) bool {
	_, err := os.Stat(filepath.Join("/run/netns", name))
	return err == nil
}

// Execute runs fn with the target namespace bound to the execution context.
// The binding is thread-wide, so fn runs on a dedicated locked thread which
// is discarded on every exit path; processes spawned by fn inherit the
// namespace.
func Execute(name string, fn func() error) error {
	return RunLocked(func() error {
		ns, err := vishns.GetFromName(name)
		if err != nil {
			return errors.Wrapf(ErrNoNamespace, "%q", name)
		}
		defer ns.Close()

		if err := vishns.Set(ns); err != nil {
			return nsError("failed to enter namespace %q: %v", name, err)
		}
		return fn()
	})
}

// Shell synchronously runs a shell command with the given extra environment
// under DefaultTimeout, capturing combined output. Output is surfaced only
// on failure. The command inherits the namespace binding of the calling
// thread, so this is meant to be called from within Execute.
func Shell(command string, environ []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Env = append(os.Environ(), environ...)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return errors.Wrapf(ErrTimeout, "command %q", command)
	}
	if err != nil {
		return nsError("command %q failed: %v, output: %s",
			command, err, strings.TrimSpace(output.String()))
	}
	return nil
}

// nsError creates a package-specific formatted error.
func nsError(format string, args ...interface{}) error {
	return fmt.Errorf("netns: "+format, args...)
}
