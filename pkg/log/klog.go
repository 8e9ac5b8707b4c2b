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

package log

import (
	"flag"

	"k8s.io/klog/v2"
)

// klogBackend routes log messages to klog.
type klogBackend struct{}

var _ Backend = &klogBackend{}

// UseKlog activates the klog backend, initializing klog flags on the
// given flag set.
func UseKlog(flags *flag.FlagSet) {
	if flags != nil {
		klog.InitFlags(flags)
	}
	SetBackend(&klogBackend{})
}

// Name returns the name of the backend.
func (k *klogBackend) Name() string {
	return "klog"
}

// Log emits a single log message through klog.
func (k *klogBackend) Log(level Level, source, message string) {
	msg := "[" + source + "] " + message
	switch level {
	case LevelDebug:
		klog.V(1).Info(msg)
	case LevelInfo:
		klog.Info(msg)
	case LevelWarn:
		klog.Warning(msg)
	case LevelError:
		klog.Error(msg)
	}
}

// Flush flushes any pending klog output.
func Flush() {
	klog.Flush()
}
