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

package sink

import (
	"context"
	"fmt"
	"log/slog"

	client "github.com/influxdata/influxdb1-client/v2"
	"github.com/influxdata/line-protocol/v2/lineprotocol"

	"github.com/prometheus/snmp_ifpoller/config"
)

// InfluxDB writes points to an InfluxDB 1.x database.
type InfluxDB struct {
	client   client.Client
	database string
	logger   *slog.Logger
}

func NewInfluxDB(cfg config.InfluxDBConfig, logger *slog.Logger) (*InfluxDB, error) {
	c, err := client.NewHTTPClient(client.HTTPConfig{
		Addr:     cfg.URL,
		Username: cfg.Username,
		Password: string(cfg.Password),
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid influxdb url %q: %w", cfg.URL, err)
	}
	return &InfluxDB{client: c, database: cfg.Database, logger: logger}, nil
}

func (s *InfluxDB) Write(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	bp, err := s.batch(points)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.client.Write(bp); err != nil {
		return fmt.Errorf("influxdb write: %w", err)
	}
	s.logger.Debug("Wrote points", "points", len(points), "database", s.database)
	return nil
}

// batch converts points into a single batch with nanosecond precision.
func (s *InfluxDB) batch(points []Point) (client.BatchPoints, error) {
	bp, err := client.NewBatchPoints(client.BatchPointsConfig{
		Database:  s.database,
		Precision: "ns",
	})
	if err != nil {
		return nil, err
	}
	for _, p := range points {
		tags := make(map[string]string, len(p.Tags))
		for k, v := range p.Tags {
			if v != "" {
				tags[k] = v
			}
		}
		fields := make(map[string]interface{}, len(p.Fields))
		for k, v := range p.Fields {
			fields[k] = v
		}
		pt, err := client.NewPoint(p.Measurement, tags, fields, p.Time)
		if err != nil {
			return nil, fmt.Errorf("point for %v: %w", p.Tags, err)
		}
		bp.AddPoint(pt)
	}
	return bp, nil
}

func (s *InfluxDB) Close() error {
	return s.client.Close()
}

// EncodeLineProtocol renders points as InfluxDB line protocol with
// nanosecond timestamps, as the InfluxDB sink would write them. Empty tag
// values are omitted.
func EncodeLineProtocol(points []Point) ([]byte, error) {
	var enc lineprotocol.Encoder
	enc.SetPrecision(lineprotocol.Nanosecond)
	for _, p := range points {
		enc.StartLine(p.Measurement)
		// Tags must be added in key order.
		for _, k := range sortedKeys(p.Tags) {
			if p.Tags[k] == "" {
				continue
			}
			enc.AddTag(k, p.Tags[k])
		}
		for _, k := range sortedKeys(p.Fields) {
			enc.AddField(k, lineprotocol.IntValue(p.Fields[k]))
		}
		enc.EndLine(p.Time)
	}
	if err := enc.Err(); err != nil {
		return nil, fmt.Errorf("encoding line protocol: %w", err)
	}
	return enc.Bytes(), nil
}
