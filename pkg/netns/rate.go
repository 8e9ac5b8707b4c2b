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
	"strconv"
	"strings"
)

// rateUnits maps tc-style rate suffixes to bits per second.
var rateUnits = map[string]uint64{
	"bit":  1,
	"kbit": 1_000,
	"mbit": 1_000_000,
	"gbit": 1_000_000_000,
	"tbit": 1_000_000_000_000,
}

// ParseRate parses a tc-style rate string, e.g. "1gbit" or "500kbit", into
// bits per second. A bare number is taken as bits per second.
func ParseRate(s string) (uint64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, nsError("empty rate")
	}

	digits := strings.TrimRightFunc(s, func(r rune) bool {
		return r < '0' || r > '9'
	})
	unit := s[len(digits):]

	value, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, nsError("malformed rate %q: %v", s, err)
	}
	if unit == "" {
		return value, nil
	}
	multiplier, ok := rateUnits[unit]
	if !ok {
		return 0, nsError("unknown rate unit %q in %q", unit, s)
	}
	return value * multiplier, nil
}
