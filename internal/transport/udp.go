package transport

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/1ureka/netchan/internal/protocol"
	"github.com/1ureka/netchan/internal/util"
)

// UDP is a datagram socket over a single UDP port.
type UDP struct {
	conn  *net.UDPConn
	inbox Inbox
}

// ListenUDP binds addr (":0" for any port) and delivers to inbox.
func ListenUDP(addr string, inbox Inbox) (*UDP, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", addr, err)
	}
	return &UDP{conn: conn, inbox: inbox}, nil
}

// Run reads datagrams until ctx is cancelled or the socket is closed.
func (u *UDP) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		u.conn.Close()
	}()

	buf := make([]byte, protocol.MaxPacketLen+1)
	for {
		n, addr, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read udp: %w", err)
		}
		if n > protocol.MaxPacketLen {
			util.LogDebug("%s: oversize datagram", addr)
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		u.inbox.push(Datagram{Addr: addr, Data: data})
	}
}

// Send writes one datagram to addr.
func (u *UDP) Send(addr net.Addr, data []byte) error {
	if _, err := u.conn.WriteTo(data, addr); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return ErrClosed
		}
		return err
	}
	return nil
}

// LocalAddr is the bound address.
func (u *UDP) LocalAddr() net.Addr { return u.conn.LocalAddr() }

// Close releases the port.
func (u *UDP) Close() error { return u.conn.Close() }
