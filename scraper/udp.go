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
	"fmt"
	"net"
	"strings"
	"time"
)

const defaultPort = "161"

type UDPConn struct {
	c      *net.UDPConn
	target string
}

// DialUDP opens a socket on an ephemeral local port connected to target,
// given as host or host:port with an optional "udp4://" or "udp6://" prefix.
// A non-empty srcAddress selects the local address to send from.
func DialUDP(target, srcAddress string) (*UDPConn, error) {
	network := "udp4"
	if s := strings.SplitN(target, "://", 2); len(s) == 2 {
		switch s[0] {
		case "udp", "udp4", "udp6":
			network = s[0]
		default:
			return nil, fmt.Errorf("unsupported transport %q for target %q", s[0], target)
		}
		target = s[1]
	}
	host, port := target, defaultPort
	if h, p, err := net.SplitHostPort(target); err == nil {
		host, port = h, p
	}
	raddr, err := net.ResolveUDPAddr(network, net.JoinHostPort(host, port))
	if err != nil {
		return nil, fmt.Errorf("error resolving target %s: %w", target, err)
	}
	var laddr *net.UDPAddr
	if srcAddress != "" {
		if _, _, err := net.SplitHostPort(srcAddress); err != nil {
			srcAddress = net.JoinHostPort(srcAddress, "0")
		}
		laddr, err = net.ResolveUDPAddr(network, srcAddress)
		if err != nil {
			return nil, fmt.Errorf("error resolving source address %s: %w", srcAddress, err)
		}
	}
	c, err := net.DialUDP(network, laddr, raddr)
	if err != nil {
		return nil, fmt.Errorf("error connecting to target %s: %w", target, err)
	}
	return &UDPConn{c: c, target: raddr.String()}, nil
}

func (u *UDPConn) Send(b []byte) error {
	if _, err := u.c.Write(b); err != nil {
		return fmt.Errorf("error sending to target %s: %w", u.target, err)
	}
	return nil
}

func (u *UDPConn) Receive(buf []byte, deadline time.Time) (int, error) {
	if err := u.c.SetReadDeadline(deadline); err != nil {
		return 0, err
	}
	return u.c.Read(buf)
}

func (u *UDPConn) Close() error {
	return u.c.Close()
}

// Target returns the resolved address of the agent.
func (u *UDPConn) Target() string {
	return u.target
}

// LocalAddr returns the address the socket is bound to.
func (u *UDPConn) LocalAddr() net.Addr {
	return u.c.LocalAddr()
}
