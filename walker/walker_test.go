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
	"errors"
	"fmt"
	"reflect"
	"slices"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gosnmp/gosnmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/prometheus/common/promslog"

	"github.com/prometheus/snmp_ifpoller/snmp"
)

// fakeAgent answers GETBULK requests from a sorted list of bindings.
type fakeAgent struct {
	t     *testing.T
	codec *snmp.Codec
	mib   []snmp.VarBind
	// Caps the rows returned per request below max-repetitions when set.
	rowsPerRound int
	// Type returned past the end of the MIB; EndOfMibView when unset.
	end gosnmp.Asn1BER
	// Called with the round number and the response about to be sent.
	mutate func(round int, resp *snmp.Response)

	requests []snmp.Request
}

func newFakeAgent(t *testing.T, codec *snmp.Codec, mib []snmp.VarBind) *fakeAgent {
	return &fakeAgent{t: t, codec: codec, mib: mib}
}

func (a *fakeAgent) answer(b []byte) []byte {
	a.t.Helper()
	req, _, err := a.codec.DecodeRequest(b)
	if err != nil {
		a.t.Fatalf("agent: decoding request: %v", err)
	}
	a.requests = append(a.requests, *req)
	resp := snmp.Response{RequestID: req.RequestID, VarBinds: a.bulk(*req)}
	if a.mutate != nil {
		a.mutate(len(a.requests), &resp)
	}
	out, err := a.codec.EncodeResponse(resp)
	if err != nil {
		a.t.Fatalf("agent: encoding response: %v", err)
	}
	return out
}

func (a *fakeAgent) bulk(req snmp.Request) []snmp.VarBind {
	rows := int(req.MaxRepetitions)
	if a.rowsPerRound > 0 && a.rowsPerRound < rows {
		rows = a.rowsPerRound
	}
	var out []snmp.VarBind
	for _, oid := range req.VarBinds[:req.NonRepeaters] {
		out = append(out, a.next(oid))
	}
	cursors := slices.Clone(req.VarBinds[req.NonRepeaters:])
	for r := 0; r < rows; r++ {
		for i, c := range cursors {
			vb := a.next(c)
			out = append(out, vb)
			cursors[i] = vb.OID
		}
	}
	return out
}

func (a *fakeAgent) next(oid snmp.OID) snmp.VarBind {
	for _, vb := range a.mib {
		if vb.OID.Compare(oid) > 0 {
			return vb
		}
	}
	end := a.end
	if end == 0 {
		end = gosnmp.EndOfMibView
	}
	return snmp.VarBind{OID: oid, Type: end}
}

// counterMIB returns n Counter32 bindings under 1.3.6.1.2.1.2.2.1.10.
func counterMIB(n int) []snmp.VarBind {
	mib := make([]snmp.VarBind, 0, n)
	for i := 1; i <= n; i++ {
		mib = append(mib, snmp.VarBind{
			OID:   snmp.MustParseOID(fmt.Sprintf("1.3.6.1.2.1.2.2.1.10.%d", i)),
			Type:  gosnmp.Counter32,
			Value: uint(1000 * i),
		})
	}
	return mib
}

func newTestWalker(params Params, clk clock.Clock) (*Walker, *snmp.Codec, *Metrics) {
	logger := promslog.NewNopLogger()
	codec := snmp.NewCodec("public", logger, false)
	metrics := NewMetrics(nil)
	return New(params, codec, logger, metrics, clk), codec, metrics
}

// drive runs the walk to completion against agent.
func drive(t *testing.T, w *Walker, agent *fakeAgent) (Accumulator, error) {
	t.Helper()
	b, err := w.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; !w.Terminal(); i++ {
		if i > 1000 {
			t.Fatalf("walk did not terminate")
		}
		if b == nil {
			t.Fatalf("walker in state %s returned nothing to send", w.State())
		}
		b, _ = w.HandleDatagram(agent.answer(b))
	}
	if b != nil {
		t.Errorf("terminal walker returned %d bytes to send", len(b))
	}
	return w.Result()
}

func TestWalkTwoRowsPerRound(t *testing.T) {
	w, codec, metrics := newTestWalker(Params{}, clock.NewMock())
	mib := counterMIB(6)
	agent := newFakeAgent(t, codec, mib)
	agent.rowsPerRound = 2
	agent.end = gosnmp.Null

	acc, err := drive(t, w, agent)
	if err != nil {
		t.Fatalf("walk failed: %v", err)
	}
	if w.State() != Done {
		t.Errorf("state: got %s, want done", w.State())
	}
	// Three rounds of data and one all-Null round.
	if w.Rounds() != 4 {
		t.Errorf("rounds: got %d, want 4", w.Rounds())
	}
	want := Accumulator{}
	for _, vb := range mib {
		want[vb.OID.String()] = vb.String()
	}
	if !reflect.DeepEqual(acc, want) {
		t.Errorf("accumulator:\n got %v\nwant %v", acc, want)
	}
	if got := testutil.ToFloat64(metrics.PacketsSent); got != 4 {
		t.Errorf("packets sent: got %v, want 4", got)
	}
	if got := testutil.ToFloat64(metrics.VarBindsReturned); got != 8 {
		t.Errorf("varbinds returned: got %v, want 8", got)
	}

	// Each round continues from the last OID of the previous one.
	wantCursor := []string{"1.3.6.1", "1.3.6.1.2.1.2.2.1.10.2", "1.3.6.1.2.1.2.2.1.10.4", "1.3.6.1.2.1.2.2.1.10.6"}
	for i, req := range agent.requests {
		if len(req.VarBinds) != 1 || req.VarBinds[0].String() != wantCursor[i] {
			t.Errorf("request %d: got %v, want [%s]", i, req.VarBinds, wantCursor[i])
		}
		if req.NonRepeaters != 0 || req.MaxRepetitions != 25 {
			t.Errorf("request %d: non-repeaters %d max-repetitions %d, want 0 and 25", i, req.NonRepeaters, req.MaxRepetitions)
		}
		if req.RequestID == 0 || req.RequestID > 0x7fffffff {
			t.Errorf("request %d: request id %d out of range", i, req.RequestID)
		}
		if i > 0 && req.RequestID == agent.requests[i-1].RequestID {
			t.Errorf("request %d: request id %d reused", i, req.RequestID)
		}
	}
}

func TestWalkRoundBound(t *testing.T) {
	cases := []struct {
		size, maxRepetitions int
	}{
		{0, 25},
		{1, 25},
		{24, 25},
		{25, 25},
		{60, 25},
		{60, 7},
		{100, 1},
	}
	for _, c := range cases {
		w, codec, _ := newTestWalker(Params{MaxRepetitions: uint32(c.maxRepetitions)}, clock.NewMock())
		acc, err := drive(t, w, newFakeAgent(t, codec, counterMIB(c.size)))
		if err != nil {
			t.Errorf("size %d: walk failed: %v", c.size, err)
			continue
		}
		if len(acc) != c.size {
			t.Errorf("size %d: got %d bindings", c.size, len(acc))
		}
		if bound := c.size/c.maxRepetitions + 1; w.Rounds() > bound {
			t.Errorf("size %d max-repetitions %d: %d rounds, want at most %d", c.size, c.maxRepetitions, w.Rounds(), bound)
		}
	}
}

func TestWalkLastRowDecidesEnd(t *testing.T) {
	w, codec, _ := newTestWalker(Params{}, clock.NewMock())
	b, err := w.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if b == nil {
		t.Fatal("Start returned nothing to send")
	}
	respond := func(vbs ...snmp.VarBind) ([]byte, error) {
		resp, err := codec.EncodeResponse(snmp.Response{RequestID: w.Outstanding().RequestID, VarBinds: vbs})
		if err != nil {
			t.Fatalf("EncodeResponse: %v", err)
		}
		return w.HandleDatagram(resp)
	}

	// A Null in an earlier row does not end the walk.
	b, err = respond(
		snmp.VarBind{OID: snmp.MustParseOID("1.3.6.1.2.1.1.1.0"), Type: gosnmp.Null},
		snmp.VarBind{OID: snmp.MustParseOID("1.3.6.1.2.1.1.5.0"), Type: gosnmp.OctetString, Value: []byte("sw1")},
	)
	if err != nil {
		t.Fatalf("round 1: %v", err)
	}
	if w.State() != AwaitingResponse || b == nil {
		t.Fatalf("round 1: state %s, want another round", w.State())
	}
	if got := w.Outstanding().VarBinds; len(got) != 1 || got[0].String() != "1.3.6.1.2.1.1.5.0" {
		t.Errorf("round 2 request: got %v, want [1.3.6.1.2.1.1.5.0]", got)
	}

	b, err = respond(snmp.VarBind{OID: snmp.MustParseOID("1.3.6.1.2.1.1.5.0"), Type: gosnmp.EndOfMibView})
	if err != nil {
		t.Fatalf("round 2: %v", err)
	}
	if w.State() != Done || b != nil {
		t.Fatalf("round 2: state %s, want done", w.State())
	}
	acc, err := w.Result()
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if want := (Accumulator{"1.3.6.1.2.1.1.5.0": "sw1"}); !reflect.DeepEqual(acc, want) {
		t.Errorf("accumulator: got %v, want %v", acc, want)
	}
}

func TestWalkEmptyResponseEnds(t *testing.T) {
	w, codec, _ := newTestWalker(Params{}, clock.NewMock())
	if _, err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	resp, err := codec.EncodeResponse(snmp.Response{RequestID: w.Outstanding().RequestID})
	if err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}
	if _, err := w.HandleDatagram(resp); err != nil {
		t.Fatalf("HandleDatagram: %v", err)
	}
	if w.State() != Done {
		t.Errorf("state: got %s, want done", w.State())
	}
}

func TestWalkDiscardsStaleResponses(t *testing.T) {
	w, codec, metrics := newTestWalker(Params{}, clock.NewMock())
	agent := newFakeAgent(t, codec, counterMIB(3))
	b, err := w.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	outstanding := w.Outstanding().RequestID

	stale, err := codec.EncodeResponse(snmp.Response{
		RequestID: outstanding ^ 1,
		VarBinds:  []snmp.VarBind{{OID: snmp.MustParseOID("1.3.6.1.4.1.99"), Type: gosnmp.Integer, Value: 1}},
	})
	if err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}
	next, err := w.HandleDatagram(stale)
	if err != nil || next != nil {
		t.Fatalf("stale response: got %d bytes, %v; want it ignored", len(next), err)
	}
	if w.State() != AwaitingResponse || w.Rounds() != 0 || w.Outstanding().RequestID != outstanding {
		t.Errorf("stale response changed the walk: state %s rounds %d", w.State(), w.Rounds())
	}
	if got := testutil.ToFloat64(metrics.ResponsesDiscarded); got != 1 {
		t.Errorf("responses discarded: got %v, want 1", got)
	}

	// A stale message ahead of the real answer in the same datagram.
	datagram := append(slices.Clone(stale), agent.answer(b)...)
	if _, err := w.HandleDatagram(datagram); err != nil {
		t.Fatalf("HandleDatagram: %v", err)
	}
	if w.State() != Done {
		t.Fatalf("state: got %s, want done", w.State())
	}
	acc, _ := w.Result()
	if _, ok := acc["1.3.6.1.4.1.99"]; ok {
		t.Errorf("stale binding was accumulated: %v", acc)
	}
	if len(acc) != 3 {
		t.Errorf("accumulator: got %d bindings, want 3", len(acc))
	}
	if got := testutil.ToFloat64(metrics.ResponsesDiscarded); got != 2 {
		t.Errorf("responses discarded: got %v, want 2", got)
	}

	// Once terminal, duplicates are ignored.
	if next, err := w.HandleDatagram(stale); next != nil || err != nil {
		t.Errorf("datagram after done: got %d bytes, %v", len(next), err)
	}
}

func TestWalkTimeout(t *testing.T) {
	clk := clock.NewMock()
	w, codec, _ := newTestWalker(Params{MaxRepetitions: 2}, clk)
	agent := newFakeAgent(t, codec, counterMIB(10))

	b, err := w.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	for round := 1; round <= 2; round++ {
		clk.Add(500 * time.Millisecond)
		if err := w.Tick(clk.Now()); err != nil {
			t.Fatalf("round %d: Tick: %v", round, err)
		}
		if b, err = w.HandleDatagram(agent.answer(b)); err != nil {
			t.Fatalf("round %d: HandleDatagram: %v", round, err)
		}
	}

	// The deadline restarts with each round.
	clk.Add(3 * time.Second)
	if err := w.Tick(clk.Now()); err != nil {
		t.Fatalf("Tick at the deadline: %v", err)
	}
	clk.Add(100 * time.Millisecond)
	err = w.Tick(clk.Now())
	var te *snmp.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("Tick after the deadline: got %v, want *TimeoutError", err)
	}
	if te.Rounds != 2 || te.Elapsed != 3100*time.Millisecond || te.Timeout != DefaultTimeout {
		t.Errorf("TimeoutError: got %+v", te)
	}
	if !w.Terminal() || w.State() != Failed {
		t.Errorf("state: got %s, want failed", w.State())
	}
	if acc, err := w.Result(); acc != nil || !errors.As(err, &te) {
		t.Errorf("Result: got %v, %v", acc, err)
	}
}

func TestWalkLateResponse(t *testing.T) {
	clk := clock.NewMock()
	w, codec, _ := newTestWalker(Params{Timeout: time.Second}, clk)
	agent := newFakeAgent(t, codec, counterMIB(3))
	b, err := w.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	clk.Add(2 * time.Second)
	_, err = w.HandleDatagram(agent.answer(b))
	var te *snmp.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("late response: got %v, want *TimeoutError", err)
	}
	if w.State() != Failed {
		t.Errorf("state: got %s, want failed", w.State())
	}
}

func TestWalkAgentError(t *testing.T) {
	w, codec, _ := newTestWalker(Params{MaxRepetitions: 2}, clock.NewMock())
	agent := newFakeAgent(t, codec, counterMIB(10))
	agent.mutate = func(round int, resp *snmp.Response) {
		if round == 2 {
			resp.ErrorStatus = gosnmp.GenErr
			resp.ErrorIndex = 1
		}
	}
	acc, err := drive(t, w, agent)
	var ae *snmp.AgentError
	if !errors.As(err, &ae) {
		t.Fatalf("got %v, want *AgentError", err)
	}
	if ae.Status != gosnmp.GenErr || ae.Index != 1 || ae.OID.String() != "1.3.6.1.2.1.2.2.1.10.2" {
		t.Errorf("AgentError: got %+v", ae)
	}
	if acc != nil {
		t.Errorf("failed walk returned bindings: %v", acc)
	}
	if w.Rounds() != 2 || len(agent.requests) != 2 {
		t.Errorf("got %d rounds and %d requests, want 2 each", w.Rounds(), len(agent.requests))
	}
}

func TestWalkNoSuchNameIsBenign(t *testing.T) {
	w, codec, _ := newTestWalker(Params{}, clock.NewMock())
	agent := newFakeAgent(t, codec, counterMIB(3))
	agent.mutate = func(round int, resp *snmp.Response) {
		if round == 2 {
			resp.ErrorStatus = gosnmp.NoSuchName
			resp.ErrorIndex = 1
		}
	}
	agent.end = gosnmp.Null
	agent.rowsPerRound = 3
	acc, err := drive(t, w, agent)
	if err != nil {
		t.Fatalf("walk failed: %v", err)
	}
	if len(acc) != 3 {
		t.Errorf("accumulator: got %d bindings, want 3", len(acc))
	}
}

func TestWalkNonIncreasingOIDs(t *testing.T) {
	loop := func(round int, resp *snmp.Response) {
		// Answer every request with the same two bindings.
		resp.VarBinds = []snmp.VarBind{
			{OID: snmp.MustParseOID("1.3.6.1.2.1.1.1.0"), Type: gosnmp.OctetString, Value: []byte("a")},
			{OID: snmp.MustParseOID("1.3.6.1.2.1.1.5.0"), Type: gosnmp.OctetString, Value: []byte("b")},
		}
		if round > 2 {
			resp.VarBinds = []snmp.VarBind{{OID: snmp.MustParseOID("1.3.6.1.2.1.1.5.0"), Type: gosnmp.EndOfMibView}}
		}
	}

	w, codec, _ := newTestWalker(Params{}, clock.NewMock())
	agent := newFakeAgent(t, codec, nil)
	agent.mutate = loop
	_, err := drive(t, w, agent)
	var ne *snmp.NonIncreasingOIDError
	if !errors.As(err, &ne) {
		t.Fatalf("got %v, want *NonIncreasingOIDError", err)
	}
	if ne.Previous.String() != "1.3.6.1.2.1.1.5.0" || ne.Returned.String() != "1.3.6.1.2.1.1.1.0" {
		t.Errorf("NonIncreasingOIDError: got %+v", ne)
	}
	if w.Rounds() != 2 {
		t.Errorf("rounds: got %d, want 2", w.Rounds())
	}

	w, codec, _ = newTestWalker(Params{AllowNonIncreasingOIDs: true}, clock.NewMock())
	agent = newFakeAgent(t, codec, nil)
	agent.mutate = loop
	acc, err := drive(t, w, agent)
	if err != nil {
		t.Fatalf("walk with non-increasing OIDs allowed: %v", err)
	}
	if w.Rounds() != 3 || len(acc) != 2 {
		t.Errorf("got %d rounds and %d bindings, want 3 and 2", w.Rounds(), len(acc))
	}
}

func TestWalkStaysInSubtree(t *testing.T) {
	w, codec, _ := newTestWalker(Params{Root: snmp.MustParseOID("1.3.6.1.2.1.2.2.1.10")}, clock.NewMock())
	mib := append(counterMIB(4), snmp.VarBind{OID: snmp.MustParseOID("1.3.6.1.2.1.2.2.1.11.1"), Type: gosnmp.Counter32, Value: uint(5)})
	agent := newFakeAgent(t, codec, mib)
	agent.rowsPerRound = 4
	acc, err := drive(t, w, agent)
	if err != nil {
		t.Fatalf("walk failed: %v", err)
	}
	if len(acc) != 4 {
		t.Errorf("accumulator: got %v, want the 4 bindings under the root", acc)
	}
	if _, ok := acc["1.3.6.1.2.1.2.2.1.11.1"]; ok {
		t.Errorf("binding outside the root was accumulated")
	}
	if w.Rounds() != 2 {
		t.Errorf("rounds: got %d, want 2", w.Rounds())
	}
}

func TestWalkDecodeError(t *testing.T) {
	w, _, _ := newTestWalker(Params{}, clock.NewMock())
	if _, err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_, err := w.HandleDatagram([]byte{0x30, 0x10, 0x02})
	var de *snmp.DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("got %v, want *DecodeError", err)
	}
	if w.State() != Failed {
		t.Errorf("state: got %s, want failed", w.State())
	}
}

func TestWalkerLifecycle(t *testing.T) {
	w, _, _ := newTestWalker(Params{}, clock.NewMock())
	if w.State() != Idle || w.Terminal() {
		t.Fatalf("new walker: state %s", w.State())
	}
	if _, err := w.Result(); err == nil {
		t.Errorf("Result before start: want error")
	}
	if err := w.Tick(time.Now().Add(time.Hour)); err != nil || w.State() != Idle {
		t.Errorf("Tick while idle: %v, state %s", err, w.State())
	}
	if b, err := w.HandleDatagram([]byte{0x30, 0x00}); b != nil || err != nil {
		t.Errorf("datagram while idle: got %d bytes, %v", len(b), err)
	}
	if _, err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := w.Start(); err == nil {
		t.Errorf("second Start: want error")
	}
}
