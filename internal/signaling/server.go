package signaling

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/1ureka/netchan/internal/transport"
	"github.com/1ureka/netchan/internal/util"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server accepts signaling WebSockets and turns each into a WebRTC peer.
// It is an http.Handler; mount it on a router.
type Server struct {
	ctx    context.Context
	pin    string
	inbox  transport.Inbox
	onPeer func(*transport.Peer)
	nextID atomic.Uint32
}

// NewServer returns a handler that authenticates clients by pin (empty
// accepts anyone), builds peers delivering to inbox, and hands every peer
// whose DataChannel opened to onPeer. Peers live until ctx ends.
func NewServer(ctx context.Context, pin string, inbox transport.Inbox, onPeer func(*transport.Peer)) *Server {
	return &Server{
		ctx:    ctx,
		pin:    pin,
		inbox:  inbox,
		onPeer: onPeer,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.pin != "" && r.URL.Query().Get("pin") != s.pin {
		http.Error(w, "Invalid PIN", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	addr := transport.PeerAddr(fmt.Sprintf("webrtc-%d", s.nextID.Add(1)))
	util.LogDebug("%s: signaling from %s", addr, r.RemoteAddr)

	peer, err := transport.NewPeer(s.ctx, addr, s.inbox)
	if err != nil {
		util.LogError("%s: create peer: %v", addr, err)
		return
	}

	if err := exchange(r.Context(), conn, peer, true); err != nil {
		util.LogWarning("%s: %v", addr, err)
		return
	}
	s.onPeer(peer)
}

// GeneratePIN returns a random numeric PIN of the specified length.
func GeneratePIN(length int) string {
	digits := make([]byte, length)
	for i := range digits {
		n, _ := rand.Int(rand.Reader, big.NewInt(10))
		digits[i] = byte('0') + byte(n.Int64())
	}
	return string(digits)
}
