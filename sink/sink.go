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

// Package sink writes interface statistics to a time-series store.
// Every Write is a single batch that either lands as a whole or fails.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/prometheus/snmp_ifpoller/config"
)

// Point is one time-series sample: string tags and integer fields.
type Point struct {
	Measurement string            `json:"measurement"`
	Tags        map[string]string `json:"tags"`
	Fields      map[string]int64  `json:"fields"`
	Time        time.Time         `json:"time"`
}

type Sink interface {
	// Write stores points as one batch. Failures are not retried.
	Write(ctx context.Context, points []Point) error
	Close() error
}

// New returns the sink selected by cfg.Type.
func New(cfg config.SinkConfig, logger *slog.Logger) (Sink, error) {
	logger = logger.With("sink", cfg.Type)
	var (
		s   Sink
		err error
	)
	switch cfg.Type {
	case config.SinkInfluxDB:
		s, err = NewInfluxDB(cfg.InfluxDB, logger)
	case config.SinkRedis:
		s = NewRedis(cfg.Redis, logger)
	case config.SinkAMQP:
		s, err = DialAMQP(cfg.AMQP, logger)
	default:
		return nil, fmt.Errorf("unknown sink type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
