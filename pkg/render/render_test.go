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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandString(t *testing.T) {
	ctx := Context{
		"node":   "r0",
		"core_0": uint(17),
	}
	tcases := []struct {
		name   string
		input  string
		result string
		fail   bool
	}{
		{
			name:   "plain string passes through",
			input:  "ip link set lo up",
			result: "ip link set lo up",
		},
		{
			name:   "variables are substituted",
			input:  "taskset -c {{.core_0}} bird -s /run/{{.node}}.ctl",
			result: "taskset -c 17 bird -s /run/r0.ctl",
		},
		{
			name:  "missing key fails",
			input: "echo {{.no_such_key}}",
			fail:  true,
		},
		{
			name:  "malformed template fails",
			input: "echo {{.node",
			fail:  true,
		},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := ExpandString(tc.input, ctx)
			if tc.fail {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.result, result)
		})
	}
}

func TestRenderTemplate(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "templates"), 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(base, "templates", "hostname.tmpl"),
		[]byte("{{.node}}\n"), 0644))

	r := NewRenderer(base)

	data, err := r.RenderTemplate("hostname.tmpl", Context{"node": "r0"})
	require.NoError(t, err)
	assert.Equal(t, "r0\n", string(data))

	_, err = r.RenderTemplate("hostname.tmpl", Context{})
	assert.Error(t, err)

	_, err = r.RenderTemplate("no-such.tmpl", Context{})
	assert.Error(t, err)
}

func TestStagedFileWrite(t *testing.T) {
	dir := t.TempDir()

	f := &StagedFile{
		Src: "inline",
		Dst: filepath.Join(dir, "deep", "nested", "frr.conf"),
	}
	f.SetData([]byte("router bgp 65000\n"))

	// The destination directory does not exist yet; Write creates it.
	require.NoError(t, f.Write())
	data, err := os.ReadFile(f.Dst)
	require.NoError(t, err)
	assert.Equal(t, "router bgp 65000\n", string(data))

	info, err := os.Stat(f.Dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())
}

func TestStagedFileExec(t *testing.T) {
	dir := t.TempDir()

	f := &StagedFile{
		Src:  "inline",
		Dst:  filepath.Join(dir, "up.sh"),
		Exec: true,
	}
	f.SetData([]byte("#!/bin/sh\n"))
	require.NoError(t, f.Write())

	info, err := os.Stat(f.Dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())
}

func TestStagedFileLoad(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "payload")
	require.NoError(t, os.WriteFile(src, []byte("payload\n"), 0644))

	f := &StagedFile{Src: src, Dst: filepath.Join(dir, "out")}
	require.NoError(t, f.Load())
	assert.Equal(t, "payload\n", string(f.Data))

	// Loading is one-shot; later source changes are not picked up.
	require.NoError(t, os.WriteFile(src, []byte("changed\n"), 0644))
	require.NoError(t, f.Load())
	assert.Equal(t, "payload\n", string(f.Data))

	missing := &StagedFile{Src: filepath.Join(dir, "no-such")}
	assert.Error(t, missing.Load())
}
