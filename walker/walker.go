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

// Package walker implements the GETBULK table walk as an explicit state
// machine. The walker never touches the network: it returns the bytes to
// send and is fed the datagrams received and the passage of time.
package walker

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gosnmp/gosnmp"

	"github.com/prometheus/snmp_ifpoller/snmp"
)

const DefaultTimeout = 3 * time.Second

var DefaultRoot = snmp.MustParseOID("1.3.6.1")

type State int

const (
	Idle State = iota
	AwaitingResponse
	Advancing
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingResponse:
		return "awaiting_response"
	case Advancing:
		return "advancing"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Params configure a walk. Zero values select the defaults. The request
// carries only the root OID, so a non-zero NonRepeaters leaves nothing to
// repeat and the walk ends after one round.
type Params struct {
	Root                   snmp.OID
	NonRepeaters           uint8
	MaxRepetitions         uint32
	Timeout                time.Duration
	AllowNonIncreasingOIDs bool
}

// Accumulator maps the string form of every OID returned during the walk to
// the string form of its value.
type Accumulator map[string]string

type Walker struct {
	params  Params
	codec   *snmp.Codec
	logger  *slog.Logger
	metrics *Metrics
	clock   clock.Clock

	state State
	err   error

	// Number of leading request bindings that are not repeated.
	nonRepeaters int
	// Subtree each repeated column is confined to.
	roots []snmp.OID

	request    snmp.Request
	roundStart time.Time
	rounds     int
	acc        Accumulator
}

func New(params Params, codec *snmp.Codec, logger *slog.Logger, metrics *Metrics, clk clock.Clock) *Walker {
	if len(params.Root) == 0 {
		params.Root = DefaultRoot
	}
	if params.MaxRepetitions == 0 {
		params.MaxRepetitions = snmp.DefaultMaxRepetitions
	}
	if params.Timeout <= 0 {
		params.Timeout = DefaultTimeout
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Walker{
		params:  params,
		codec:   codec,
		logger:  logger,
		metrics: metrics,
		clock:   clk,
		state:   Idle,
		acc:     Accumulator{},
	}
}

func (w *Walker) State() State { return w.state }

// Terminal reports whether the walk has finished, successfully or not.
func (w *Walker) Terminal() bool { return w.state == Done || w.state == Failed }

// Rounds returns the number of request/response rounds completed.
func (w *Walker) Rounds() int { return w.rounds }

// Outstanding returns the request currently awaiting a response.
func (w *Walker) Outstanding() snmp.Request { return w.request }

// Result returns the accumulated bindings of a finished walk, or the error
// that failed it.
func (w *Walker) Result() (Accumulator, error) {
	switch w.state {
	case Done:
		return w.acc, nil
	case Failed:
		return nil, w.err
	default:
		return nil, fmt.Errorf("walk not finished, state %s", w.state)
	}
}

// Start sends the first request, seeded with the root OID.
func (w *Walker) Start() ([]byte, error) {
	if w.state != Idle {
		return nil, fmt.Errorf("walk already started, state %s", w.state)
	}
	vbs := []snmp.OID{w.params.Root}
	w.nonRepeaters = min(int(w.params.NonRepeaters), len(vbs))
	w.roots = vbs[w.nonRepeaters:]
	w.logger.Debug("Starting walk", "oid", w.params.Root, "max_repetitions", w.params.MaxRepetitions, "timeout", w.params.Timeout)
	return w.send(vbs)
}

// HandleDatagram processes one received datagram. Responses to anything but
// the outstanding request are discarded. When the walk advances, the next
// request is returned for sending.
func (w *Walker) HandleDatagram(b []byte) ([]byte, error) {
	if w.state != AwaitingResponse {
		w.logger.Debug("Ignoring datagram, no request outstanding", "state", w.state, "bytes", len(b))
		return nil, nil
	}
	for {
		resp, rest, err := w.codec.Decode(b)
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, w.fail(err)
		}
		if resp.RequestID != w.request.RequestID {
			w.metrics.ResponsesDiscarded.Inc()
			w.logger.Debug("Discarding response to another request", "request_id", resp.RequestID, "outstanding", w.request.RequestID)
			b = rest
			continue
		}
		if len(rest) > 0 {
			w.logger.Debug("Discarding bytes after response", "request_id", resp.RequestID, "bytes", len(rest))
		}
		return w.handleResponse(resp)
	}
}

// Tick fails the walk if the outstanding request has been waiting longer
// than the timeout.
func (w *Walker) Tick(now time.Time) error {
	if w.state != AwaitingResponse {
		return nil
	}
	if elapsed := now.Sub(w.roundStart); elapsed > w.params.Timeout {
		return w.fail(&snmp.TimeoutError{Rounds: w.rounds, Elapsed: elapsed, Timeout: w.params.Timeout})
	}
	return nil
}

func (w *Walker) handleResponse(resp *snmp.Response) ([]byte, error) {
	elapsed := w.clock.Since(w.roundStart)
	if elapsed > w.params.Timeout {
		return nil, w.fail(&snmp.TimeoutError{Rounds: w.rounds, Elapsed: elapsed, Timeout: w.params.Timeout})
	}
	w.rounds++
	w.metrics.ResponsesReceived.Inc()
	w.metrics.RoundDuration.Observe(elapsed.Seconds())
	w.metrics.VarBindsReturned.Add(float64(len(resp.VarBinds)))

	// noSuchName is what an agent answering in SNMPv1 style reports at the
	// end of its MIB view.
	if resp.ErrorStatus != gosnmp.NoError && resp.ErrorStatus != gosnmp.NoSuchName {
		return nil, w.fail(w.agentError(resp))
	}

	head, table := BuildTable(resp.VarBinds, w.nonRepeaters, len(w.roots))
	if !w.params.AllowNonIncreasingOIDs {
		if err := w.checkIncreasing(table); err != nil {
			return nil, w.fail(err)
		}
	}
	for _, vb := range head {
		if !vb.IsEndMarker() {
			w.acc[vb.OID.String()] = vb.String()
		}
	}
	for _, row := range table {
		for i, vb := range row {
			if inSubtree(vb, w.roots[i]) {
				w.acc[vb.OID.String()] = vb.String()
			}
		}
	}

	last := table.LastRow()
	if last == nil || allEnd(last, w.roots) {
		w.state = Done
		w.logger.Debug("Walk completed", "rounds", w.rounds, "varbinds", len(w.acc))
		return nil, nil
	}

	w.state = Advancing
	next := make([]snmp.OID, 0, len(w.request.VarBinds))
	next = append(next, w.request.VarBinds[:w.nonRepeaters]...)
	for _, vb := range last {
		next = append(next, vb.OID)
	}
	return w.send(next)
}

// checkIncreasing verifies that every column moves strictly forward,
// starting from the OIDs of the request.
func (w *Walker) checkIncreasing(table Table) error {
	prev := slices.Clone(w.request.VarBinds[w.nonRepeaters:])
	for _, row := range table {
		for i, vb := range row {
			if vb.IsEndMarker() {
				continue
			}
			if vb.OID.Compare(prev[i]) <= 0 {
				return &snmp.NonIncreasingOIDError{Previous: prev[i], Returned: vb.OID}
			}
			prev[i] = vb.OID
		}
	}
	return nil
}

func (w *Walker) agentError(resp *snmp.Response) error {
	err := &snmp.AgentError{Status: resp.ErrorStatus, Index: resp.ErrorIndex}
	if i := int(resp.ErrorIndex); i > 0 && i <= len(w.request.VarBinds) {
		err.OID = w.request.VarBinds[i-1]
	}
	return err
}

func (w *Walker) send(vbs []snmp.OID) ([]byte, error) {
	w.request = snmp.Request{
		RequestID:      w.nextRequestID(),
		NonRepeaters:   uint8(w.nonRepeaters),
		MaxRepetitions: w.params.MaxRepetitions,
		VarBinds:       vbs,
	}
	b, err := w.codec.Encode(w.request)
	if err != nil {
		return nil, w.fail(err)
	}
	w.state = AwaitingResponse
	w.roundStart = w.clock.Now()
	w.metrics.PacketsSent.Inc()
	w.logger.Debug("Sending GETBULK request", "round", w.rounds+1, "request_id", w.request.RequestID, "oid", vbs[len(vbs)-1])
	return b, nil
}

// nextRequestID returns a positive 32 bit ID different from the previous one.
func (w *Walker) nextRequestID() uint32 {
	for {
		id := rand.Uint32() & 0x7fffffff
		if id != 0 && id != w.request.RequestID {
			return id
		}
	}
}

func (w *Walker) fail(err error) error {
	w.state = Failed
	w.err = err
	w.logger.Debug("Walk failed", "rounds", w.rounds, "err", err)
	return err
}
