// Copyright 2025 The Prometheus Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package collector

import (
	"fmt"
	"strconv"
	"strings"
)

// hextable is encoding/hex's table in upper case, as RFC 2579 'x' output is
// conventionally rendered.
const hextable = "0123456789ABCDEF"

// octetFormat is one octet-format specification of an RFC 2579 DISPLAY-HINT.
type octetFormat struct {
	// Leading '*': the first octet of the value is a repeat count.
	repeat bool
	take   int
	// One of 'd', 'x', 'o', 'a' or 't'.
	verb byte
	// Separator and repeat terminator, zero when absent.
	sep, term byte
}

// displayHint is a parsed DISPLAY-HINT. The last specification applies to
// whatever data remains once the others are used up.
type displayHint []octetFormat

// parseDisplayHint parses hints such as "1x:", "1d.1d.1d.1d" or "255a".
func parseDisplayHint(hint string) (displayHint, error) {
	if hint == "" {
		return nil, fmt.Errorf("empty display hint")
	}
	var h displayHint
	for i := 0; i < len(hint); {
		var f octetFormat
		if hint[i] == '*' {
			f.repeat = true
			i++
		}
		start := i
		for i < len(hint) && isDigit(hint[i]) {
			i++
		}
		if start == i {
			return nil, fmt.Errorf("display hint %q: expected octet length at offset %d", hint, start)
		}
		take, err := strconv.Atoi(hint[start:i])
		if err != nil || take == 0 {
			return nil, fmt.Errorf("display hint %q: invalid octet length %q", hint, hint[start:i])
		}
		f.take = take
		if i == len(hint) {
			return nil, fmt.Errorf("display hint %q: missing format character", hint)
		}
		switch hint[i] {
		case 'd', 'x', 'o', 'a', 't':
			f.verb = hint[i]
		default:
			return nil, fmt.Errorf("display hint %q: invalid format character %q", hint, hint[i])
		}
		i++
		if i < len(hint) && isSeparator(hint[i]) {
			f.sep = hint[i]
			i++
		}
		if f.repeat && i < len(hint) && isSeparator(hint[i]) {
			f.term = hint[i]
			i++
		}
		h = append(h, f)
	}
	return h, nil
}

func mustParseDisplayHint(hint string) displayHint {
	h, err := parseDisplayHint(hint)
	if err != nil {
		panic(err)
	}
	return h
}

// format renders data. Trailing separators are suppressed.
func (h displayHint) format(data []byte) (string, error) {
	var b strings.Builder
	b.Grow(len(data) * 3)
	pos := 0
	for i := 0; pos < len(data); i++ {
		f := h[min(i, len(h)-1)]
		count := 1
		if f.repeat {
			count = int(data[pos])
			pos++
		}
		for r := 0; r < count && pos < len(data); r++ {
			end := min(pos+f.take, len(data))
			if err := writeOctets(&b, f.verb, data[pos:end]); err != nil {
				return "", err
			}
			pos = end
			if f.sep != 0 && pos < len(data) && (f.term == 0 || r != count-1) {
				b.WriteByte(f.sep)
			}
		}
		if f.term != 0 && pos < len(data) {
			b.WriteByte(f.term)
		}
	}
	return b.String(), nil
}

func writeOctets(b *strings.Builder, verb byte, chunk []byte) error {
	switch verb {
	case 'x':
		for _, v := range chunk {
			b.WriteByte(hextable[v>>4])
			b.WriteByte(hextable[v&0x0f])
		}
	case 'd', 'o':
		if len(chunk) > 8 {
			return fmt.Errorf("%d octets do not fit an integer", len(chunk))
		}
		var val uint64
		for _, v := range chunk {
			val = val<<8 | uint64(v)
		}
		base := 10
		if verb == 'o' {
			base = 8
		}
		var buf [24]byte
		b.Write(strconv.AppendUint(buf[:0], val, base))
	default:
		b.WriteString(strings.ToValidUTF8(string(chunk), "�"))
	}
	return nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isSeparator(c byte) bool {
	return !isDigit(c) && c != '*'
}
