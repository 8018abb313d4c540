package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/netchan/internal/protocol"
	"github.com/1ureka/netchan/internal/transport"
	"github.com/1ureka/netchan/internal/util"
)

// ErrVersion is returned by Dial when the server speaks another protocol
// version.
var ErrVersion = errors.New("signaling: protocol version mismatch")

// session drives one signaling WebSocket for a peer. Writes are serialized;
// reads happen only in watch.
type session struct {
	peer *transport.Peer
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *session) send(m message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(m)
}

func (s *session) sendHello() error {
	return s.send(message{
		Type:    msgHello,
		Version: protocol.Version,
		Peer:    s.peer.Addr().String(),
	})
}

// describe creates the local offer or answer, applies it and sends it.
func (s *session) describe(t msgType) error {
	var (
		sdp webrtc.SessionDescription
		err error
	)
	if t == msgOffer {
		sdp, err = s.peer.CreateOffer()
	} else {
		sdp, err = s.peer.CreateAnswer()
	}
	if err != nil {
		return fmt.Errorf("create %s: %w", t, err)
	}

	if err := s.peer.SetLocalDescription(sdp); err != nil {
		return fmt.Errorf("set local %s: %w", t, err)
	}
	return s.send(message{Type: t, SDP: sdp.SDP})
}

func (s *session) sendCandidate(c *webrtc.ICECandidate) error {
	data, err := json.Marshal(c.ToJSON())
	if err != nil {
		return err
	}
	return s.send(message{Type: msgCandidate, Candidate: string(data)})
}

// watch applies inbound messages until the WebSocket fails or closes.
func (s *session) watch() error {
	for {
		var m message
		if err := s.conn.ReadJSON(&m); err != nil {
			return fmt.Errorf("read signaling message: %w", err)
		}
		if err := s.apply(m); err != nil {
			return err
		}
	}
}

func (s *session) apply(m message) error {
	switch m.Type {
	case msgHello:
		if m.Version != protocol.Version {
			return fmt.Errorf("%w: server %d, client %d", ErrVersion, m.Version, protocol.Version)
		}
		util.LogDebug("signaling: server calls us %s", m.Peer)

	case msgOffer:
		if err := s.peer.SetRemoteDescription(webrtc.SessionDescription{
			Type: webrtc.SDPTypeOffer, SDP: m.SDP,
		}); err != nil {
			return fmt.Errorf("apply offer: %w", err)
		}
		return s.describe(msgAnswer)

	case msgAnswer:
		if err := s.peer.SetRemoteDescription(webrtc.SessionDescription{
			Type: webrtc.SDPTypeAnswer, SDP: m.SDP,
		}); err != nil {
			return fmt.Errorf("apply answer: %w", err)
		}

	case msgCandidate:
		var init webrtc.ICECandidateInit
		if err := json.Unmarshal([]byte(m.Candidate), &init); err != nil {
			return fmt.Errorf("parse ICE candidate: %w", err)
		}
		if err := s.peer.AddICECandidate(init); err != nil {
			return err
		}

	default:
		util.LogDebug("signaling: ignoring %q message", m.Type)
	}
	return nil
}
