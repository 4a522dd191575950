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

package snmp

import (
	"fmt"
	"time"

	"github.com/gosnmp/gosnmp"
)

// DecodeError reports malformed or unsupported data received from the wire.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decoding SNMP message: %s: %v", e.Reason, e.Err)
	}
	return "decoding SNMP message: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// AgentError is a non-benign error-status reported by the agent.
type AgentError struct {
	Status gosnmp.SNMPError
	Index  uint8
	// OID of the offending variable binding, if Index pointed at one.
	OID OID
}

func (e *AgentError) Error() string {
	at := "?"
	if e.OID != nil {
		at = e.OID.String()
	}
	return fmt.Sprintf("agent reported %s (error status %d) at index %d (%s)", e.Status, e.Status, e.Index, at)
}

// TimeoutError means no matching response arrived within the round deadline.
type TimeoutError struct {
	Rounds  int
	Elapsed time.Duration
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out after %s (timeout %s, %d rounds completed)", e.Elapsed, e.Timeout, e.Rounds)
}

// NonIncreasingOIDError means the agent returned an OID that does not follow
// the one requested for its column, which would make the walk loop forever.
type NonIncreasingOIDError struct {
	Previous OID
	Returned OID
}

func (e *NonIncreasingOIDError) Error() string {
	return fmt.Sprintf("OID not increasing: %s returned after %s", e.Returned, e.Previous)
}
