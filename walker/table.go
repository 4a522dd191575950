// Copyright 2026 The Prometheus Authors
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

package walker

import (
	"github.com/prometheus/snmp_ifpoller/snmp"
)

// Table holds the repeated part of a GETBULK response, one row per
// repetition with one binding per repeated column.
type Table [][]snmp.VarBind

// BuildTable splits the bindings of a GETBULK response into the non-repeater
// bindings and the table of repetitions. A trailing partial row, as left by
// an agent that truncated its response to fit a message, is dropped.
func BuildTable(vbs []snmp.VarBind, nonRepeaters, columns int) ([]snmp.VarBind, Table) {
	if nonRepeaters > len(vbs) {
		nonRepeaters = len(vbs)
	}
	head, rest := vbs[:nonRepeaters], vbs[nonRepeaters:]
	if columns <= 0 {
		return head, nil
	}
	table := make(Table, 0, len(rest)/columns)
	for len(rest) >= columns {
		table = append(table, rest[:columns])
		rest = rest[columns:]
	}
	return head, table
}

// LastRow returns the final row, or nil for an empty table.
func (t Table) LastRow() []snmp.VarBind {
	if len(t) == 0 {
		return nil
	}
	return t[len(t)-1]
}

// allEnd reports whether no binding in row carries a value within its
// column's subtree.
func allEnd(row []snmp.VarBind, roots []snmp.OID) bool {
	for i, vb := range row {
		if inSubtree(vb, roots[i]) {
			return false
		}
	}
	return true
}

func inSubtree(vb snmp.VarBind, root snmp.OID) bool {
	return !vb.IsEndMarker() && vb.OID.HasPrefix(root)
}
