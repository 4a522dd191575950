// Copyright 2018 The Prometheus Authors
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

package snmp

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gosnmp/gosnmp"
)

// VarBind is one (name, value) pair of a PDU. Value holds whatever gosnmp
// decoded for Type.
type VarBind struct {
	OID   OID
	Type  gosnmp.Asn1BER
	Value interface{}
}

// IsEndMarker reports whether the binding carries no value: a Null or one of
// the SNMPv2 exceptions an agent sends when it runs out of MIB view.
func (v VarBind) IsEndMarker() bool {
	switch v.Type {
	case gosnmp.Null, gosnmp.EndOfMibView, gosnmp.NoSuchObject, gosnmp.NoSuchInstance:
		return true
	}
	return false
}

// String renders the value. This mirrors decodeValue in gosnmp's helper.go.
func (v VarBind) String() string {
	switch val := v.Value.(type) {
	case int:
		return strconv.Itoa(val)
	case uint:
		return strconv.FormatUint(uint64(val), 10)
	case uint32:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case string:
		if v.Type == gosnmp.ObjectIdentifier {
			// Trim leading period.
			return strings.TrimPrefix(val, ".")
		}
		return strings.ToValidUTF8(val, "�")
	case []byte:
		return octetsAsString(val)
	case nil:
		return ""
	default:
		// This shouldn't happen.
		return fmt.Sprintf("%v", val)
	}
}

// octetsAsString returns printable octet strings as text and anything else
// as 0x-prefixed hex, so binary values such as MAC addresses survive the
// round trip through the string accumulator. Text that itself starts with
// the prefix is rendered as hex too, so ParseOctets is never ambiguous.
func octetsAsString(b []byte) string {
	if isPrintable(b) && !strings.HasPrefix(string(b), hexPrefix) {
		return string(b)
	}
	return hexPrefix + hex.EncodeToString(b)
}

const hexPrefix = "0x"

func isPrintable(b []byte) bool {
	if !utf8.Valid(b) {
		return false
	}
	for _, r := range string(b) {
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// ParseOctets reverses the hex rendering of String for binary octet strings.
func ParseOctets(s string) []byte {
	if h, ok := strings.CutPrefix(s, hexPrefix); ok {
		if b, err := hex.DecodeString(h); err == nil {
			return b
		}
	}
	return []byte(s)
}
