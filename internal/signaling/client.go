package signaling

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/1ureka/netchan/internal/transport"
)

// Dial connects to a signaling server and answers its offer. The returned
// peer is open and delivers to inbox under the address "server". A server
// on another protocol version fails with ErrVersion.
//
// The URL should include the PIN as a query parameter, e.g.:
//
//	ws://example.net:27911/ws?pin=1234
func Dial(ctx context.Context, url string, inbox transport.Inbox) (*transport.Peer, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to signaling server: %w", err)
	}
	defer conn.Close()

	peer, err := transport.NewPeer(ctx, ServerAddr, inbox)
	if err != nil {
		return nil, fmt.Errorf("create peer: %w", err)
	}

	if err := exchange(ctx, conn, peer, false); err != nil {
		return nil, err
	}
	return peer, nil
}

// ServerAddr is the address a client's peer gives the server.
const ServerAddr = transport.PeerAddr("server")
