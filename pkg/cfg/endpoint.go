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

package cfg

import (
	"strings"
)

// Endpoint identifies one end of a link as a (node, interface) pair. Its
// canonical textual form is "<node>:<interface>".
type Endpoint struct {
	Node      string
	Interface string
}

// ParseEndpoint parses the canonical "<node>:<interface>" form. Any string
// not splitting into exactly two non-empty colon-separated segments is
// rejected.
func ParseEndpoint(s string) (Endpoint, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Endpoint{}, cfgError("malformed endpoint %q, expected \"<node>:<interface>\"", s)
	}
	return Endpoint{Node: parts[0], Interface: parts[1]}, nil
}

// String returns the canonical textual form of the endpoint.
func (e Endpoint) String() string {
	return e.Node + ":" + e.Interface
}

// MarshalText implements encoding.TextMarshaler.
func (e Endpoint) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Endpoint) UnmarshalText(text []byte) error {
	parsed, err := ParseEndpoint(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
