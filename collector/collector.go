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

// Package collector assembles the flat result of a walk into interface
// records following the IF-MIB ifTable and ifXTable.
package collector

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/prometheus/snmp_ifpoller/snmp"
	"github.com/prometheus/snmp_ifpoller/walker"
)

var (
	ifEntry  = snmp.MustParseOID("1.3.6.1.2.1.2.2.1")
	ifXEntry = snmp.MustParseOID("1.3.6.1.2.1.31.1.1.1")
	sysName  = "1.3.6.1.2.1.1.5.0"
)

// Field is a column of the interface schema.
type Field int

const (
	IfIndex Field = iota
	IfDescr
	IfType
	IfMtu
	IfSpeed
	IfPhysAddress
	IfAdminStatus
	IfOperStatus
	IfLastChange
	IfInOctets
	IfInUcastPkts
	IfInNUcastPkts
	IfInDiscards
	IfInErrors
	IfInUnknownProtos
	IfOutOctets
	IfOutUcastPkts
	IfOutNUcastPkts
	IfOutDiscards
	IfOutErrors
	IfOutQLen
	IfSpecific
	IfHCInOctets
	IfHCInUcastPkts
	IfHCOutOctets
	IfHCOutUcastPkts

	numFields
)

type column struct {
	name string
	oid  snmp.OID
	hint displayHint
}

var schema = [numFields]column{
	IfIndex:           {name: "ifIndex", oid: ifEntry.Append(1)},
	IfDescr:           {name: "ifDescr", oid: ifEntry.Append(2)},
	IfType:            {name: "ifType", oid: ifEntry.Append(3)},
	IfMtu:             {name: "ifMtu", oid: ifEntry.Append(4)},
	IfSpeed:           {name: "ifSpeed", oid: ifEntry.Append(5)},
	IfPhysAddress:     {name: "ifPhysAddress", oid: ifEntry.Append(6), hint: mustParseDisplayHint("1x:")},
	IfAdminStatus:     {name: "ifAdminStatus", oid: ifEntry.Append(7)},
	IfOperStatus:      {name: "ifOperStatus", oid: ifEntry.Append(8)},
	IfLastChange:      {name: "ifLastChange", oid: ifEntry.Append(9)},
	IfInOctets:        {name: "ifInOctets", oid: ifEntry.Append(10)},
	IfInUcastPkts:     {name: "ifInUcastPkts", oid: ifEntry.Append(11)},
	IfInNUcastPkts:    {name: "ifInNUcastPkts", oid: ifEntry.Append(12)},
	IfInDiscards:      {name: "ifInDiscards", oid: ifEntry.Append(13)},
	IfInErrors:        {name: "ifInErrors", oid: ifEntry.Append(14)},
	IfInUnknownProtos: {name: "ifInUnknownProtos", oid: ifEntry.Append(15)},
	IfOutOctets:       {name: "ifOutOctets", oid: ifEntry.Append(16)},
	IfOutUcastPkts:    {name: "ifOutUcastPkts", oid: ifEntry.Append(17)},
	IfOutNUcastPkts:   {name: "ifOutNUcastPkts", oid: ifEntry.Append(18)},
	IfOutDiscards:     {name: "ifOutDiscards", oid: ifEntry.Append(19)},
	IfOutErrors:       {name: "ifOutErrors", oid: ifEntry.Append(20)},
	IfOutQLen:         {name: "ifOutQLen", oid: ifEntry.Append(21)},
	IfSpecific:        {name: "ifSpecific", oid: ifEntry.Append(22)},
	IfHCInOctets:      {name: "ifHCInOctets", oid: ifXEntry.Append(6)},
	IfHCInUcastPkts:   {name: "ifHCInUcastPkts", oid: ifXEntry.Append(7)},
	IfHCOutOctets:     {name: "ifHCOutOctets", oid: ifXEntry.Append(10)},
	IfHCOutUcastPkts:  {name: "ifHCOutUcastPkts", oid: ifXEntry.Append(11)},
}

func (f Field) String() string {
	if f < 0 || f >= numFields {
		return fmt.Sprintf("field(%d)", int(f))
	}
	return schema[f].name
}

// OID returns the column OID; instances append the interface index.
func (f Field) OID() snmp.OID {
	return schema[f].oid
}

// InterfaceRecord is one row of the interface tables.
type InterfaceRecord struct {
	Device string
	Index  uint32

	Descr           string
	Type            int64
	Mtu             int64
	Speed           uint64
	PhysAddress     string
	AdminStatus     int64
	OperStatus      int64
	LastChange      uint64
	InOctets        uint64
	InUcastPkts     uint64
	InNUcastPkts    uint64
	InDiscards      uint64
	InErrors        uint64
	InUnknownProtos uint64
	OutOctets       uint64
	OutUcastPkts    uint64
	OutNUcastPkts   uint64
	OutDiscards     uint64
	OutErrors       uint64
	OutQLen         uint64
	Specific        string
	HCInOctets      uint64
	HCInUcastPkts   uint64
	HCOutOctets     uint64
	HCOutUcastPkts  uint64
}

// IncompleteRecordError reports an interface whose columns could not all be
// found or parsed.
type IncompleteRecordError struct {
	Index   uint32
	Missing []Field
	Err     error
}

func (e *IncompleteRecordError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		names := make([]string, 0, len(e.Missing))
		for _, f := range e.Missing {
			names = append(names, f.String())
		}
		parts = append(parts, "missing "+strings.Join(names, ", "))
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return fmt.Sprintf("incomplete record for interface %d: %s", e.Index, strings.Join(parts, "; "))
}

func (e *IncompleteRecordError) Unwrap() error { return e.Err }

// columns holds the value of every schema column by interface index.
type columns [numFields]map[uint32]string

// indexColumns files every accumulated binding that belongs to a schema
// column under its field and interface index.
func indexColumns(acc walker.Accumulator) *columns {
	byOID := make(map[string]Field, numFields)
	for f := Field(0); f < numFields; f++ {
		byOID[schema[f].oid.String()] = f
	}
	var cols columns
	for f := range cols {
		cols[f] = map[uint32]string{}
	}
	for oid, value := range acc {
		i := strings.LastIndexByte(oid, '.')
		if i < 0 {
			continue
		}
		f, ok := byOID[oid[:i]]
		if !ok {
			continue
		}
		index, err := strconv.ParseUint(oid[i+1:], 10, 32)
		if err != nil {
			continue
		}
		cols[f][uint32(index)] = value
	}
	return &cols
}

// Assemble builds one record per interface listed in the ifDescr column,
// ordered by index. Interfaces with missing or malformed columns are
// skipped and reported as *IncompleteRecordError.
func Assemble(acc walker.Accumulator, device string, logger *slog.Logger) ([]InterfaceRecord, []error) {
	cols := indexColumns(acc)
	indexes := make([]uint32, 0, len(cols[IfDescr]))
	for index := range cols[IfDescr] {
		indexes = append(indexes, index)
	}
	slices.Sort(indexes)

	records := make([]InterfaceRecord, 0, len(indexes))
	var errs []error
	for _, index := range indexes {
		rec, err := cols.record(index, device)
		if err != nil {
			logger.Warn("Skipping interface", "ifindex", index, "err", err)
			errs = append(errs, err)
			continue
		}
		records = append(records, rec)
	}
	return records, errs
}

// DeviceName returns sysName.0 when the walk returned it, fallback otherwise.
func DeviceName(acc walker.Accumulator, fallback string) string {
	if name := acc[sysName]; name != "" {
		return name
	}
	return fallback
}

func (c *columns) record(index uint32, device string) (InterfaceRecord, error) {
	b := recordBuilder{cols: c, index: index}
	ifIndex := b.unsigned(IfIndex)
	rec := InterfaceRecord{
		Device:          device,
		Index:           index,
		Descr:           b.text(IfDescr),
		Type:            b.signed(IfType),
		Mtu:             b.signed(IfMtu),
		Speed:           b.unsigned(IfSpeed),
		PhysAddress:     b.octets(IfPhysAddress),
		AdminStatus:     b.signed(IfAdminStatus),
		OperStatus:      b.signed(IfOperStatus),
		LastChange:      b.unsigned(IfLastChange),
		InOctets:        b.unsigned(IfInOctets),
		InUcastPkts:     b.unsigned(IfInUcastPkts),
		InNUcastPkts:    b.unsigned(IfInNUcastPkts),
		InDiscards:      b.unsigned(IfInDiscards),
		InErrors:        b.unsigned(IfInErrors),
		InUnknownProtos: b.unsigned(IfInUnknownProtos),
		OutOctets:       b.unsigned(IfOutOctets),
		OutUcastPkts:    b.unsigned(IfOutUcastPkts),
		OutNUcastPkts:   b.unsigned(IfOutNUcastPkts),
		OutDiscards:     b.unsigned(IfOutDiscards),
		OutErrors:       b.unsigned(IfOutErrors),
		OutQLen:         b.unsigned(IfOutQLen),
		Specific:        b.text(IfSpecific),
		HCInOctets:      b.unsigned(IfHCInOctets),
		HCInUcastPkts:   b.unsigned(IfHCInUcastPkts),
		HCOutOctets:     b.unsigned(IfHCOutOctets),
		HCOutUcastPkts:  b.unsigned(IfHCOutUcastPkts),
	}
	if b.err == nil && len(b.missing) == 0 && ifIndex != uint64(index) {
		b.err = fmt.Errorf("ifIndex %d does not match instance %d", ifIndex, index)
	}
	if len(b.missing) > 0 || b.err != nil {
		return InterfaceRecord{}, &IncompleteRecordError{Index: index, Missing: b.missing, Err: b.err}
	}
	return rec, nil
}

// recordBuilder looks up the columns of one interface, remembering what was
// missing and the first value that failed to parse.
type recordBuilder struct {
	cols    *columns
	index   uint32
	missing []Field
	err     error
}

func (b *recordBuilder) text(f Field) string {
	v, ok := b.cols[f][b.index]
	if !ok {
		b.missing = append(b.missing, f)
	}
	// Text starting with 0x reaches the accumulator hex-encoded.
	if o := snmp.ParseOctets(v); len(o) != len(v) && strings.HasPrefix(string(o), "0x") && utf8.Valid(o) {
		return string(o)
	}
	return v
}

func (b *recordBuilder) signed(f Field) int64 {
	v, ok := b.cols[f][b.index]
	if !ok {
		b.missing = append(b.missing, f)
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("invalid %s %q: %w", f, v, err)
	}
	return n
}

func (b *recordBuilder) unsigned(f Field) uint64 {
	v, ok := b.cols[f][b.index]
	if !ok {
		b.missing = append(b.missing, f)
		return 0
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("invalid %s %q: %w", f, v, err)
	}
	return n
}

func (b *recordBuilder) octets(f Field) string {
	v, ok := b.cols[f][b.index]
	if !ok {
		b.missing = append(b.missing, f)
		return ""
	}
	s, err := schema[f].hint.format(snmp.ParseOctets(v))
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("invalid %s %q: %w", f, v, err)
	}
	return s
}
