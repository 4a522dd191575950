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

package collector

import (
	"math"
	"strconv"
	"time"

	"github.com/prometheus/snmp_ifpoller/sink"
)

// ToPoints converts records into sink points sharing the timestamp ts.
// Counters above math.MaxInt64 are clamped.
func ToPoints(records []InterfaceRecord, measurement string, ts time.Time) []sink.Point {
	points := make([]sink.Point, 0, len(records))
	for _, r := range records {
		tags := map[string]string{
			"devName":       r.Device,
			"ifindex":       strconv.FormatUint(uint64(r.Index), 10),
			"ifDescr":       r.Descr,
			"ifType":        strconv.FormatInt(r.Type, 10),
			"ifMTU":         strconv.FormatInt(r.Mtu, 10),
			"ifSpeed":       strconv.FormatUint(r.Speed, 10),
			"ifAdminStatus": strconv.FormatInt(r.AdminStatus, 10),
			"ifOperStatus":  strconv.FormatInt(r.OperStatus, 10),
		}
		for k, v := range tags {
			if v == "" {
				delete(tags, k)
			}
		}
		points = append(points, sink.Point{
			Measurement: measurement,
			Tags:        tags,
			Fields: map[string]int64{
				"ifInUcastPkts":    clamp(r.InUcastPkts),
				"ifInNUcastPkts":   clamp(r.InNUcastPkts),
				"ifInDiscards":     clamp(r.InDiscards),
				"ifInErrors":       clamp(r.InErrors),
				// Key kept as written by earlier pollers so existing series continue.
				"ifInUnknownPorts": clamp(r.InUnknownProtos),
				"ifOutUcastPkts":   clamp(r.OutUcastPkts),
				"ifOutNUcastPkts":  clamp(r.OutNUcastPkts),
				"ifOutDiscards":    clamp(r.OutDiscards),
				"ifOutErrors":      clamp(r.OutErrors),
				"ifOutQLen":        clamp(r.OutQLen),
				"bytes-in":         clamp(r.HCInOctets),
				"packets-in":       clamp(r.HCInUcastPkts),
				"bytes-out":        clamp(r.HCOutOctets),
				"packets-out":      clamp(r.HCOutUcastPkts),
			},
			Time: ts,
		})
	}
	return points
}

func clamp(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}
