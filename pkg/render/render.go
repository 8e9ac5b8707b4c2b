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
	"bytes"
	"fmt"
	"path/filepath"
	"text/template"
)

// Context is the data bound into template rendering and string expansion.
type Context map[string]interface{}

// Renderer renders named templates from a base directory and expands
// template strings against a rendering context.
type Renderer struct {
	base string
}

// NewRenderer creates a Renderer loading templates from the "templates"
// subdirectory of the given base directory.
func NewRenderer(base string) *Renderer {
	return &Renderer{base: base}
}

// RenderTemplate renders the named template file against the given context.
// Referencing a key missing from the context is an error; the caller
// decides whether that is fatal.
func (r *Renderer) RenderTemplate(name string, ctx Context) ([]byte, error) {
	path := filepath.Join(r.base, "templates", name)
	tmpl, err := template.New(filepath.Base(path)).Option("missingkey=error").ParseFiles(path)
	if err != nil {
		return nil, renderError("failed to parse template %q: %v", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return nil, renderError("failed to render template %q: %v", name, err)
	}
	return buf.Bytes(), nil
}

// ExpandString expands a single template string against the given context.
func ExpandString(s string, ctx Context) (string, error) {
	tmpl, err := template.New("string").Option("missingkey=error").Parse(s)
	if err != nil {
		return "", renderError("failed to parse %q: %v", s, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", renderError("failed to expand %q: %v", s, err)
	}
	return buf.String(), nil
}

// renderError creates a package-specific formatted error.
func renderError(format string, args ...interface{}) error {
	return fmt.Errorf("render: "+format, args...)
}
