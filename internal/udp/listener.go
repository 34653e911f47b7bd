package udp

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/net/ipv4"
)

// Listener receives datagrams on a port, joining the group first when the
// address is multicast.
type Listener struct {
	conn  *ipv4.PacketConn
	group net.IP
}

// Listen binds addr ("224.23.23.1:2323", "127.0.0.1:0", ...). A multicast
// address binds the wildcard address on that port and joins the group on the
// default interface.
func Listen(addr string) (*Listener, error) {
	ua, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve listen addr: %w", err)
	}
	bind := ua.String()
	if ua.IP.IsMulticast() {
		bind = net.JoinHostPort("0.0.0.0", strconv.Itoa(ua.Port))
	}
	c, err := net.ListenPacket("udp4", bind)
	if err != nil {
		return nil, fmt.Errorf("listen udp: %w", err)
	}
	p := ipv4.NewPacketConn(c)
	l := &Listener{conn: p}
	if ua.IP.IsMulticast() {
		if err := p.JoinGroup(nil, &net.UDPAddr{IP: ua.IP}); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("join group %s: %w", ua.IP, err)
		}
		l.group = ua.IP
	}
	return l, nil
}

func (l *Listener) Addr() net.Addr { return l.conn.LocalAddr() }

// Recv blocks for the next datagram or until ctx ends.
func (l *Listener) Recv(ctx context.Context, buf []byte) (int, net.Addr, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, nil, err
		}
		_ = l.conn.SetReadDeadline(time.Now().Add(250 * time.Millisecond))
		n, _, src, err := l.conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return 0, nil, err
		}
		return n, src, nil
	}
}

func (l *Listener) Close() error {
	if l.group != nil {
		_ = l.conn.LeaveGroup(nil, &net.UDPAddr{IP: l.group})
	}
	return l.conn.Close()
}
