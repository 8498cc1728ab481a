// Package addr parses the server-address grammar used to pick a transport:
// "[scheme://]host[:port]", where "http://" selects HTTP/WebSocket and
// "asio://" (or no scheme) selects the proprietary TCP transport.
/*
 * Copyright (c) 2024-2026, DeGirum Corp. All rights reserved.
 */
package addr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/degirum/gosdk/cmn"
)

// Transport identifies which wire protocol a ServerAddress resolves to.
type Transport int

const (
	TcpProprietary Transport = iota
	HttpWebsocket
)

func (t Transport) String() string {
	if t == HttpWebsocket {
		return "HttpWebsocket"
	}
	return "TcpProprietary"
}

// DefaultPort is used whenever the URL omits an explicit ":port".
const DefaultPort = 8778

// ServerAddress is the parsed, immutable form of a server URL.
type ServerAddress struct {
	Host      string
	Port      int
	Transport Transport
}

const (
	httpPrefix = "http://"
	asioPrefix = "asio://"
)

// Parse recognizes "http://host[:port]" (HTTP/WS), "asio://host[:port]"
// (TCP), and bare "host[:port]" (TCP, default).
func Parse(s string) (ServerAddress, error) {
	rest := s
	transport := TcpProprietary

	switch {
	case strings.HasPrefix(s, httpPrefix):
		rest = s[len(httpPrefix):]
		transport = HttpWebsocket
	case strings.HasPrefix(s, asioPrefix):
		rest = s[len(asioPrefix):]
		transport = TcpProprietary
	}

	if rest == "" {
		return ServerAddress{}, cmn.NewBadParameter("empty server address %q", s)
	}

	host := rest
	port := DefaultPort
	if idx := strings.LastIndex(rest, ":"); idx >= 0 {
		host = rest[:idx]
		portStr := rest[idx+1:]
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return ServerAddress{}, cmn.NewBadParameter("invalid port %q in %q", portStr, s)
		}
		if p < 1 || p > 65535 {
			return ServerAddress{}, cmn.NewBadParameter("port %d out of range in %q", p, s)
		}
		port = p
	}

	if host == "" {
		return ServerAddress{}, cmn.NewBadParameter("empty host in %q", s)
	}

	return ServerAddress{Host: host, Port: port, Transport: transport}, nil
}

// String renders the address back to its canonical URL form: default port
// made explicit, scheme prefix preserved for HTTP and elided for TCP.
func (a ServerAddress) String() string {
	hostport := fmt.Sprintf("%s:%d", a.Host, a.Port)
	if a.Transport == HttpWebsocket {
		return httpPrefix + hostport
	}
	return hostport
}

// HostPort returns "host:port" suitable for net.Dial.
func (a ServerAddress) HostPort() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}
