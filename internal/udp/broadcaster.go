package udp

import (
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
)

type udpConn interface {
	Write(p []byte) (int, error)
	Close() error
}

type resolveFunc func(network, address string) (*net.UDPAddr, error)
type dialFunc func(network string, laddr, raddr *net.UDPAddr) (udpConn, error)

// Broadcaster writes telemetry datagrams to a fixed destination, unicast or
// multicast.
type Broadcaster struct {
	dest string
	conn udpConn
}

// NewBroadcaster dials dest. For a multicast group, ttl > 0 sets the
// multicast hop limit.
func NewBroadcaster(dest string, ttl int) (*Broadcaster, error) {
	dial := func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		conn, err := net.DialUDP(network, laddr, raddr)
		if err != nil {
			return nil, err
		}
		if raddr.IP.IsMulticast() && ttl > 0 {
			if err := ipv4.NewPacketConn(conn).SetMulticastTTL(ttl); err != nil {
				_ = conn.Close()
				return nil, fmt.Errorf("set multicast ttl: %w", err)
			}
		}
		return conn, nil
	}
	return newBroadcaster(dest, net.ResolveUDPAddr, dial)
}

func newBroadcaster(dest string, resolve resolveFunc, dial dialFunc) (*Broadcaster, error) {
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("resolve dest: %w", err)
	}

	// DialUDP selects a suitable local address automatically.
	conn, err := dial("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}

	return &Broadcaster{
		dest: dest,
		conn: conn,
	}, nil
}

func (b *Broadcaster) Dest() string { return b.dest }

func (b *Broadcaster) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	_, err := b.conn.Write(payload)
	return err
}

func (b *Broadcaster) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}
