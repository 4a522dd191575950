// Copyright 2024 The Prometheus Authors
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
	"time"
)

// Conn is a datagram connection to a single agent.
type Conn interface {
	Send([]byte) error
	// Receive reads one datagram into buf, waiting until deadline at most.
	// An expired deadline is reported as os.ErrDeadlineExceeded.
	Receive(buf []byte, deadline time.Time) (int, error)
	Close() error
}
