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
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/prometheus/snmp_ifpoller/config"
)

// Redis appends each point as an entry of a Redis stream. A batch is sent
// inside MULTI/EXEC.
type Redis struct {
	client *redis.Client
	stream string
	maxLen int64
	logger *slog.Logger
}

func NewRedis(cfg config.RedisConfig, logger *slog.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Network:  cfg.Network,
		Addr:     cfg.Address,
		DB:       cfg.DB,
		Password: string(cfg.Password),
	})
	return &Redis{
		client: client,
		stream: cfg.Stream,
		maxLen: cfg.MaxLen,
		logger: logger,
	}
}

func (s *Redis) Write(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	entries := s.entries(points)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, args := range entries {
			pipe.XAdd(ctx, args)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis XADD to %s: %w", s.stream, err)
	}
	s.logger.Debug("Wrote points", "points", len(points), "stream", s.stream)
	return nil
}

func (s *Redis) Close() error {
	return s.client.Close()
}

// entries flattens points into stream entries. Tags are stored under
// "tag.<name>" and fields under their own name.
func (s *Redis) entries(points []Point) []*redis.XAddArgs {
	out := make([]*redis.XAddArgs, 0, len(points))
	for _, p := range points {
		values := make([]interface{}, 0, 4+2*(len(p.Tags)+len(p.Fields)))
		values = append(values,
			"measurement", p.Measurement,
			"time", p.Time.UTC().Format(time.RFC3339Nano),
		)
		for _, k := range sortedKeys(p.Tags) {
			if p.Tags[k] == "" {
				continue
			}
			values = append(values, "tag."+k, p.Tags[k])
		}
		for _, k := range sortedKeys(p.Fields) {
			values = append(values, k, p.Fields[k])
		}
		out = append(out, &redis.XAddArgs{
			Stream: s.stream,
			MaxLen: s.maxLen,
			Approx: s.maxLen > 0,
			Values: values,
		})
	}
	return out
}
