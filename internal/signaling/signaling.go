// Package signaling runs the WebSocket offer/answer/ICE exchange that turns a
// WebSocket connection into a ready transport.Peer. The server side offers,
// the client side answers; once the DataChannel opens the WebSocket is
// closed and the peer carries netchan datagrams.
package signaling

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/netchan/internal/transport"
	"github.com/1ureka/netchan/internal/util"
)

// exchange wires peer and conn together and blocks until the DataChannel
// opens, the exchange fails, or ctx ends. The offering side introduces
// itself and sends the offer first. On failure the peer is closed.
func exchange(ctx context.Context, conn *websocket.Conn, peer *transport.Peer, offer bool) error {
	s := &session{peer: peer, conn: conn}

	peer.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c != nil {
			// a lost candidate only narrows the candidate set
			s.sendCandidate(c)
		}
	})

	// exits when the caller closes conn
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.watch()
	}()

	if offer {
		if err := s.sendHello(); err != nil {
			peer.Close()
			return fmt.Errorf("send hello: %w", err)
		}
		if err := s.describe(msgOffer); err != nil {
			peer.Close()
			return fmt.Errorf("send offer: %w", err)
		}
	}

	select {
	case <-peer.Ready():
		util.LogDebug("%s: datachannel open, closing signaling", peer.Addr())
		return nil

	case err := <-errCh:
		peer.Close()
		return fmt.Errorf("signaling: %w", err)

	case <-ctx.Done():
		peer.Close()
		return ctx.Err()
	}
}
