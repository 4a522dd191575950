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

// Package snmp encodes SNMPv2c GETBULK requests and decodes the agent's
// responses. The BER work is done by gosnmp; this package owns message
// framing and the conversion to and from the walker's types.
package snmp

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/gosnmp/gosnmp"
)

const (
	DefaultNonRepeaters   = 0
	DefaultMaxRepetitions = 25
)

// Request is a GETBULK request. Values are always sent as Null.
type Request struct {
	RequestID      uint32
	NonRepeaters   uint8
	MaxRepetitions uint32
	VarBinds       []OID
}

// Response is a decoded GetResponse PDU.
type Response struct {
	Community   string
	RequestID   uint32
	ErrorStatus gosnmp.SNMPError
	ErrorIndex  uint8
	VarBinds    []VarBind
}

type Codec struct {
	community string
	g         *gosnmp.GoSNMP
}

// NewCodec returns a codec for SNMPv2c messages with the given community.
// With debug set, gosnmp's packet level logging goes to logger.
func NewCodec(community string, logger *slog.Logger, debug bool) *Codec {
	g := &gosnmp.GoSNMP{
		Version:   gosnmp.Version2c,
		Community: community,
	}
	if debug && logger != nil {
		g.Logger = gosnmp.NewLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))
	}
	return &Codec{community: community, g: g}
}

// Encode marshals req into a complete SNMPv2c message.
func (c *Codec) Encode(req Request) ([]byte, error) {
	vars := make([]gosnmp.SnmpPDU, 0, len(req.VarBinds))
	for _, oid := range req.VarBinds {
		vars = append(vars, gosnmp.SnmpPDU{Name: "." + oid.String(), Type: gosnmp.Null})
	}
	packet := &gosnmp.SnmpPacket{
		Version:        gosnmp.Version2c,
		Community:      c.community,
		PDUType:        gosnmp.GetBulkRequest,
		RequestID:      req.RequestID,
		NonRepeaters:   req.NonRepeaters,
		MaxRepetitions: req.MaxRepetitions,
		Variables:      vars,
		Logger:         c.g.Logger,
	}
	b, err := packet.MarshalMsg()
	if err != nil {
		return nil, fmt.Errorf("encoding GETBULK request %d: %w", req.RequestID, err)
	}
	return b, nil
}

// EncodeResponse marshals a GetResponse message, as an agent would send it.
func (c *Codec) EncodeResponse(resp Response) ([]byte, error) {
	vars := make([]gosnmp.SnmpPDU, 0, len(resp.VarBinds))
	for _, vb := range resp.VarBinds {
		vars = append(vars, gosnmp.SnmpPDU{Name: "." + vb.OID.String(), Type: vb.Type, Value: vb.Value})
	}
	community := resp.Community
	if community == "" {
		community = c.community
	}
	packet := &gosnmp.SnmpPacket{
		Version:    gosnmp.Version2c,
		Community:  community,
		PDUType:    gosnmp.GetResponse,
		RequestID:  resp.RequestID,
		Error:      resp.ErrorStatus,
		ErrorIndex: resp.ErrorIndex,
		Variables:  vars,
		Logger:     c.g.Logger,
	}
	b, err := packet.MarshalMsg()
	if err != nil {
		return nil, fmt.Errorf("encoding response %d: %w", resp.RequestID, err)
	}
	return b, nil
}

// Decode decodes the first message in b and returns the bytes following it.
// It returns io.EOF when b is empty. All other failures are *DecodeError.
func (c *Codec) Decode(b []byte) (*Response, []byte, error) {
	packet, rest, err := c.decodePacket(b, gosnmp.GetResponse)
	if err != nil {
		return nil, nil, err
	}
	resp := &Response{
		Community:   packet.Community,
		RequestID:   packet.RequestID,
		ErrorStatus: packet.Error,
		ErrorIndex:  packet.ErrorIndex,
		VarBinds:    make([]VarBind, 0, len(packet.Variables)),
	}
	for _, v := range packet.Variables {
		oid, err := ParseOID(v.Name)
		if err != nil {
			return nil, nil, &DecodeError{Reason: "bad variable binding name", Err: err}
		}
		resp.VarBinds = append(resp.VarBinds, VarBind{OID: oid, Type: v.Type, Value: v.Value})
	}
	return resp, rest, nil
}

// DecodeRequest is the agent side counterpart of Decode: it accepts only
// GETBULK requests.
func (c *Codec) DecodeRequest(b []byte) (*Request, []byte, error) {
	packet, rest, err := c.decodePacket(b, gosnmp.GetBulkRequest)
	if err != nil {
		return nil, nil, err
	}
	req := &Request{
		RequestID:      packet.RequestID,
		NonRepeaters:   packet.NonRepeaters,
		MaxRepetitions: packet.MaxRepetitions,
		VarBinds:       make([]OID, 0, len(packet.Variables)),
	}
	for _, v := range packet.Variables {
		oid, err := ParseOID(v.Name)
		if err != nil {
			return nil, nil, &DecodeError{Reason: "bad variable binding name", Err: err}
		}
		req.VarBinds = append(req.VarBinds, oid)
	}
	return req, rest, nil
}

func (c *Codec) decodePacket(b []byte, want gosnmp.PDUType) (*gosnmp.SnmpPacket, []byte, error) {
	if len(b) == 0 {
		return nil, nil, io.EOF
	}
	n, err := messageLength(b)
	if err != nil {
		return nil, nil, err
	}
	msg, rest := b[:n], b[n:]

	packet, err := c.g.SnmpDecodePacket(msg)
	if err != nil {
		return nil, nil, &DecodeError{Reason: "malformed message", Err: err}
	}
	if packet.Version != gosnmp.Version2c {
		return nil, nil, &DecodeError{Reason: fmt.Sprintf("unsupported SNMP version %s", packet.Version)}
	}
	if packet.PDUType != want {
		return nil, nil, &DecodeError{Reason: fmt.Sprintf("unexpected PDU type %s, want %s", packet.PDUType, want)}
	}
	return packet, rest, nil
}

// messageLength returns the size of the BER SEQUENCE at the start of b,
// header included.
func messageLength(b []byte) (int, error) {
	if gosnmp.PDUType(b[0]) != gosnmp.Sequence {
		return 0, &DecodeError{Reason: fmt.Sprintf("invalid message header %#x", b[0])}
	}
	if len(b) < 2 {
		return 0, &DecodeError{Reason: "truncated length", Err: io.ErrUnexpectedEOF}
	}
	header, length := 2, int(b[1])
	if b[1] >= 0x80 {
		octets := int(b[1] & 0x7f)
		if octets == 0 {
			return 0, &DecodeError{Reason: "indefinite length is not allowed"}
		}
		if octets > 4 {
			return 0, &DecodeError{Reason: fmt.Sprintf("length of %d octets is too large", octets)}
		}
		if len(b) < 2+octets {
			return 0, &DecodeError{Reason: "truncated length", Err: io.ErrUnexpectedEOF}
		}
		length = 0
		for _, o := range b[2 : 2+octets] {
			length = length<<8 | int(o)
		}
		header += octets
	}
	total := header + length
	if total > len(b) || total < header {
		return 0, &DecodeError{Reason: fmt.Sprintf("truncated message: have %d of %d bytes", len(b), total), Err: io.ErrUnexpectedEOF}
	}
	return total, nil
}
