//
// Copyright 2015 Gregory Trubetskoy. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package agent

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/kineticmon/kinetic/monitor"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const (
	protocolICMP     = 1
	protocolIPv6ICMP = 58
)

// ICMPProber sends ICMP echo requests over a raw socket, which
// usually requires privileges.
type ICMPProber struct {
	Timeout time.Duration
}

var resolveIPAddr = func(ctx context.Context, host string) (net.IP, error) {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no address for %q", host)
	}
	return addrs[0].IP, nil
}

func (p *ICMPProber) Probe(ctx context.Context, job *monitor.JobSpec, tos, seq int) (time.Duration, error) {
	ip, err := resolveIPAddr(ctx, job.Address)
	if err != nil {
		return 0, err
	}

	network, proto := "ip4:icmp", protocolICMP
	echoType, replyType := icmp.Type(ipv4.ICMPTypeEcho), icmp.Type(ipv4.ICMPTypeEchoReply)
	if ip.To4() == nil {
		network, proto = "ip6:ipv6-icmp", protocolIPv6ICMP
		echoType, replyType = icmp.Type(ipv6.ICMPTypeEchoRequest), icmp.Type(ipv6.ICMPTypeEchoReply)
	}

	conn, err := icmp.ListenPacket(network, "")
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	if tos != 0 {
		if proto == protocolICMP {
			err = conn.IPv4PacketConn().SetTOS(tos)
		} else {
			err = conn.IPv6PacketConn().SetTrafficClass(tos)
		}
		if err != nil {
			return 0, fmt.Errorf("setting tos %d: %v", tos, err)
		}
	}

	id := rand.Intn(0xffff)
	msg := icmp.Message{
		Type: echoType,
		Body: &icmp.Echo{
			ID:   id,
			Seq:  seq,
			Data: []byte("kinetic"),
		},
	}
	payload, err := msg.Marshal(nil)
	if err != nil {
		return 0, err
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return 0, err
	}

	start := time.Now()
	if _, err := conn.WriteTo(payload, &net.IPAddr{IP: ip}); err != nil {
		return 0, err
	}

	buf := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			return 0, err
		}
		if ipAddr, ok := peer.(*net.IPAddr); ok && ipAddr.IP != nil && !ipAddr.IP.Equal(ip) {
			continue
		}
		parsed, err := icmp.ParseMessage(proto, buf[:n])
		if err != nil || parsed.Type != replyType {
			continue
		}
		if echo, ok := parsed.Body.(*icmp.Echo); ok && echo.ID == id && echo.Seq == seq {
			return time.Since(start), nil
		}
	}
}
