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
	"os"
	"slices"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gosnmp/gosnmp"

	"github.com/prometheus/snmp_ifpoller/snmp"
)

// Responder produces the responses an agent sends for a request. Returning
// none simulates a lost packet.
type Responder func(req snmp.Request) []snmp.Response

// NewMockAgent returns an in-memory Conn. Every request sent is answered by
// responder, and reads with nothing queued advance clk to their deadline.
func NewMockAgent(codec *snmp.Codec, responder Responder, clk *clock.Mock) *MockAgent {
	return &MockAgent{
		codec:     codec,
		responder: responder,
		clock:     clk,
		requests:  make([]snmp.Request, 0),
	}
}

// MockAgent is a Conn backed by a Responder instead of a network agent.
type MockAgent struct {
	codec     *snmp.Codec
	responder Responder
	clock     *clock.Mock

	SendError    error
	ReceiveError error

	pending  [][]byte
	requests []snmp.Request
	closed   bool
}

func (m *MockAgent) Requests() []snmp.Request {
	return m.requests
}

func (m *MockAgent) Closed() bool {
	return m.closed
}

func (m *MockAgent) Send(b []byte) error {
	if m.SendError != nil {
		return m.SendError
	}
	req, _, err := m.codec.DecodeRequest(b)
	if err != nil {
		return err
	}
	m.requests = append(m.requests, *req)
	for _, resp := range m.responder(*req) {
		out, err := m.codec.EncodeResponse(resp)
		if err != nil {
			return err
		}
		m.pending = append(m.pending, out)
	}
	return nil
}

func (m *MockAgent) Receive(buf []byte, deadline time.Time) (int, error) {
	if m.ReceiveError != nil {
		return 0, m.ReceiveError
	}
	if len(m.pending) == 0 {
		if d := deadline.Sub(m.clock.Now()); d > 0 {
			m.clock.Add(d)
		}
		return 0, os.ErrDeadlineExceeded
	}
	b := m.pending[0]
	m.pending = m.pending[1:]
	return copy(buf, b), nil
}

func (m *MockAgent) Close() error {
	m.closed = true
	return nil
}

var _ Conn = (*MockAgent)(nil)

// MIBResponder answers GETBULK requests from mib, which must be sorted by
// OID. Past the end of mib it returns endOfMibView.
func MIBResponder(mib []snmp.VarBind) Responder {
	next := func(oid snmp.OID) snmp.VarBind {
		i, found := slices.BinarySearchFunc(mib, oid, func(vb snmp.VarBind, target snmp.OID) int {
			return vb.OID.Compare(target)
		})
		if found {
			i++
		}
		if i < len(mib) {
			return mib[i]
		}
		return snmp.VarBind{OID: oid, Type: gosnmp.EndOfMibView}
	}
	return func(req snmp.Request) []snmp.Response {
		nonRepeaters := min(int(req.NonRepeaters), len(req.VarBinds))
		var vbs []snmp.VarBind
		for _, oid := range req.VarBinds[:nonRepeaters] {
			vbs = append(vbs, next(oid))
		}
		cursors := slices.Clone(req.VarBinds[nonRepeaters:])
		if len(cursors) > 0 {
			for r := uint32(0); r < req.MaxRepetitions; r++ {
				for i, c := range cursors {
					vb := next(c)
					vbs = append(vbs, vb)
					cursors[i] = vb.OID
				}
			}
		}
		return []snmp.Response{{RequestID: req.RequestID, VarBinds: vbs}}
	}
}
