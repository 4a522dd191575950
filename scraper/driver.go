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

package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/prometheus/snmp_ifpoller/walker"
)

const (
	DefaultTickInterval = 100 * time.Millisecond

	// Large enough for any UDP datagram.
	maxDatagramSize = 65535
)

// Driver pumps datagrams between a Conn and a Walker. Retries and timeouts
// are entirely the walker's business.
type Driver struct {
	Conn   Conn
	Walker *walker.Walker
	// How often the walker is given the chance to time out. Defaults to
	// DefaultTickInterval.
	TickInterval time.Duration
	Clock        clock.Clock
	Logger       *slog.Logger
}

// Run performs the walk. It returns once the walker reaches a terminal state,
// or early with the context's error if ctx is done.
func (d *Driver) Run(ctx context.Context) (walker.Accumulator, error) {
	clk := d.Clock
	if clk == nil {
		clk = clock.New()
	}
	interval := d.TickInterval
	if interval <= 0 {
		interval = DefaultTickInterval
	}

	out, err := d.Walker.Start()
	if err != nil {
		return nil, err
	}
	if err := d.Conn.Send(out); err != nil {
		return nil, err
	}

	buf := make([]byte, maxDatagramSize)
	// Ticks follow a fixed schedule so that a stream of unwanted datagrams
	// cannot postpone the timeout.
	nextTick := clk.Now().Add(interval)
	for !d.Walker.Terminal() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("walk cancelled after %d rounds: %w", d.Walker.Rounds(), err)
		}
		n, err := d.Conn.Receive(buf, nextTick)
		switch {
		case errors.Is(err, os.ErrDeadlineExceeded):
		case err != nil:
			return nil, fmt.Errorf("error receiving after %d rounds: %w", d.Walker.Rounds(), err)
		default:
			out, _ := d.Walker.HandleDatagram(buf[:n])
			if out != nil {
				if err := d.Conn.Send(out); err != nil {
					return nil, err
				}
			}
		}
		if now := clk.Now(); !now.Before(nextTick) {
			// Failures are recorded by the walker and surface through Result.
			_ = d.Walker.Tick(now)
			nextTick = now.Add(interval)
		}
	}

	acc, err := d.Walker.Result()
	if err != nil {
		return nil, err
	}
	d.Logger.Debug("Walk finished", "rounds", d.Walker.Rounds(), "varbinds", len(acc))
	return acc, nil
}
