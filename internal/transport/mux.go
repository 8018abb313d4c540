package transport

import (
	"net"
	"sync"

	"github.com/1ureka/netchan/internal/util"
)

// Sender is anything that can send a datagram.
type Sender interface {
	Send(addr net.Addr, data []byte) error
}

// Route is a socket that lives until done is closed.
type Route interface {
	Sender
	Done() <-chan struct{}
}

// Mux routes sends by address: WebRTC peers by their PeerAddr, everything
// else to the fallback socket, typically UDP. All sockets share one inbox,
// so the owner sees a single stream of datagrams.
type Mux struct {
	fallback Sender

	mu     sync.Mutex
	routes map[string]Route
}

// NewMux returns a mux that sends non-peer addresses through fallback,
// which may be nil.
func NewMux(fallback Sender) *Mux {
	return &Mux{
		fallback: fallback,
		routes:   make(map[string]Route),
	}
}

// Add registers a peer under addr and removes it once the peer is done.
func (m *Mux) Add(addr net.Addr, r Route) {
	key := addr.String()

	m.mu.Lock()
	m.routes[key] = r
	m.mu.Unlock()

	go func() {
		<-r.Done()
		m.mu.Lock()
		if m.routes[key] == r {
			delete(m.routes, key)
		}
		m.mu.Unlock()
		util.LogDebug("%s: route removed", key)
	}()
}

// AddPeer registers a WebRTC peer.
func (m *Mux) AddPeer(p *Peer) { m.Add(p.Addr(), p) }

// Len returns the number of registered peers.
func (m *Mux) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.routes)
}

// Send implements netchan.Socket.
func (m *Mux) Send(addr net.Addr, data []byte) error {
	if _, ok := addr.(PeerAddr); ok {
		m.mu.Lock()
		r, ok := m.routes[addr.String()]
		m.mu.Unlock()
		if !ok {
			return ErrUnknownPeer
		}
		return r.Send(addr, data)
	}

	if m.fallback == nil {
		return ErrUnknownPeer
	}
	return m.fallback.Send(addr, data)
}
