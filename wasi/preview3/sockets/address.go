package sockets

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
)

// IPAddressFamily is fixed when a socket is created.
type IPAddressFamily uint8

const (
	IPv4 IPAddressFamily = iota
	IPv6
)

func (f IPAddressFamily) String() string {
	switch f {
	case IPv4:
		return "ipv4"
	case IPv6:
		return "ipv6"
	default:
		return fmt.Sprintf("family(%d)", uint8(f))
	}
}

func (f IPAddressFamily) valid() bool {
	return f == IPv4 || f == IPv6
}

type IPv4SocketAddress struct {
	Address [4]uint8
	Port    uint16
}

type IPv6SocketAddress struct {
	Address  [8]uint16
	Port     uint16
	FlowInfo uint32
	ScopeID  uint32
}

// IPSocketAddress is a tagged union; Tag selects IPv4 or IPv6.
type IPSocketAddress struct {
	IPv6 IPv6SocketAddress
	IPv4 IPv4SocketAddress
	Tag  IPAddressFamily
}

// NewIPv4 builds a v4 address.
func NewIPv4(a, b, c, d uint8, port uint16) IPSocketAddress {
	return IPSocketAddress{
		Tag:  IPv4,
		IPv4: IPv4SocketAddress{Address: [4]uint8{a, b, c, d}, Port: port},
	}
}

// NewIPv6 builds a v6 address from its eight groups.
func NewIPv6(groups [8]uint16, port uint16) IPSocketAddress {
	return IPSocketAddress{
		Tag:  IPv6,
		IPv6: IPv6SocketAddress{Address: groups, Port: port},
	}
}

// FromAddrPort converts a netip address. An IPv4-mapped v6 address stays v6.
func FromAddrPort(ap netip.AddrPort) IPSocketAddress {
	addr := ap.Addr()
	if addr.Is4() {
		b := addr.As4()
		return NewIPv4(b[0], b[1], b[2], b[3], ap.Port())
	}

	b := addr.As16()
	var groups [8]uint16
	for i := range groups {
		groups[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
	out := NewIPv6(groups, ap.Port())
	if zone := addr.Zone(); zone != "" {
		if ifi, err := net.InterfaceByName(zone); err == nil {
			out.IPv6.ScopeID = uint32(ifi.Index)
		} else if n, err := strconv.ParseUint(zone, 10, 32); err == nil {
			out.IPv6.ScopeID = uint32(n)
		}
	}
	return out
}

// Addr returns the IP without the port.
func (a IPSocketAddress) Addr() netip.Addr {
	if a.Tag == IPv4 {
		return netip.AddrFrom4(a.IPv4.Address)
	}
	var b [16]byte
	for i, g := range a.IPv6.Address {
		b[2*i] = byte(g >> 8)
		b[2*i+1] = byte(g)
	}
	addr := netip.AddrFrom16(b)
	if a.IPv6.ScopeID != 0 {
		addr = addr.WithZone(strconv.FormatUint(uint64(a.IPv6.ScopeID), 10))
	}
	return addr
}

func (a IPSocketAddress) Port() uint16 {
	if a.Tag == IPv4 {
		return a.IPv4.Port
	}
	return a.IPv6.Port
}

func (a IPSocketAddress) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(a.Addr(), a.Port())
}

// Serialize renders the address without the port, e.g. "127.0.0.1" or
// "::1".
func (a IPSocketAddress) Serialize() string {
	return a.Addr().WithZone("").String()
}

// String renders a.b.c.d:port or [x:..]:port.
func (a IPSocketAddress) String() string {
	return net.JoinHostPort(a.Serialize(), strconv.Itoa(int(a.Port())))
}

func (a IPSocketAddress) udpAddr() *net.UDPAddr {
	return net.UDPAddrFromAddrPort(a.AddrPort())
}

// IsMulticast reports 224.0.0.0/4 and ff00::/8.
func IsMulticast(a IPSocketAddress) bool {
	if a.Tag == IPv4 {
		return a.IPv4.Address[0]&0xf0 == 0xe0
	}
	return a.IPv6.Address[0]&0xff00 == 0xff00
}

// IsUnicast reports addresses that are neither multicast nor the IPv4
// limited broadcast address.
func IsUnicast(a IPSocketAddress) bool {
	if IsMulticast(a) {
		return false
	}
	if a.Tag == IPv4 {
		return a.IPv4.Address != [4]uint8{255, 255, 255, 255}
	}
	return true
}

// IsWildcard reports the unspecified address of either family.
func IsWildcard(a IPSocketAddress) bool {
	if a.Tag == IPv4 {
		return a.IPv4.Address == [4]uint8{}
	}
	return a.IPv6.Address == [8]uint16{}
}

// IsIPv4Mapped reports ::ffff:a.b.c.d.
func IsIPv4Mapped(a IPSocketAddress) bool {
	if a.Tag != IPv6 {
		return false
	}
	g := a.IPv6.Address
	return g[0] == 0 && g[1] == 0 && g[2] == 0 && g[3] == 0 && g[4] == 0 && g[5] == 0xffff
}

// IsValidLocal reports whether a may be bound by a socket of family.
func IsValidLocal(a IPSocketAddress, family IPAddressFamily) bool {
	return a.Tag == family && IsUnicast(a) && !IsIPv4Mapped(a)
}

// IsValidRemote reports whether a socket of family may connect to a.
func IsValidRemote(a IPSocketAddress, family IPAddressFamily) bool {
	return a.Tag == family &&
		a.Port() != 0 &&
		IsUnicast(a) &&
		!IsWildcard(a) &&
		!IsIPv4Mapped(a)
}

// Wildcard returns the unspecified address of family with port 0.
func Wildcard(family IPAddressFamily) IPSocketAddress {
	if family == IPv6 {
		return NewIPv6([8]uint16{}, 0)
	}
	return NewIPv4(0, 0, 0, 0, 0)
}
