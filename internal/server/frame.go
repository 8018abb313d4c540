package server

import (
	"time"

	"github.com/1ureka/netchan/internal/delta"
	"github.com/1ureka/netchan/internal/msg"
	"github.com/1ureka/netchan/internal/protocol"
	"github.com/1ureka/netchan/internal/util"
)

// packetEntities returns the entities a client can be sent.
func packetEntities(all []delta.EntityState) []delta.EntityState {
	out := make([]delta.EntityState, 0, len(all))
	for _, e := range all {
		if delta.IsPacketEntity(e.Number) {
			out = append(out, e)
		}
	}
	return out
}

// sendFrame writes the current frame for cl, compressed against the last
// frame it acknowledged, and transmits it.
func (s *Server) sendFrame(cl *client, entities, visible []delta.EntityState, now time.Time) error {
	if cl.ch.FragmentPending {
		_, err := cl.ch.TransmitNextFragment()
		return err
	}

	num := s.world.Frame()
	ps, _ := s.world.PlayerState(cl.slot)

	var (
		fromPlayer   *delta.PlayerState
		fromEntities []delta.EntityState
		deltaNum     = -1
	)
	if from := cl.deltaFrame(num); from != nil {
		fromPlayer = &from.player
		fromEntities = from.entities
		deltaNum = from.num
	}

	b := s.frameMsg
	b.Clear()
	b.WriteUint8(int(protocol.SvcFrame))
	b.WriteInt32(num)
	b.WriteInt32(deltaNum)

	sent, _, err := delta.WriteDeltaPlayer(b, fromPlayer, &ps, 0)
	if err == nil {
		err = delta.WritePacketEntities(b, fromEntities, entities, s.baselines, 0)
	}
	if err == nil {
		err = s.writeAmbients(cl, b, num)
	}
	if err == nil && len(s.shots) > 0 {
		b.WriteUint8(int(protocol.SvcShots))
		err = delta.WriteShots(b, s.shots)
	}

	if err != nil {
		util.LogWarning("%s: dumped frame %d: %v", cl.name(), num, err)
		_, err = cl.ch.Transmit(nil, 1)
		return err
	}

	f := &cl.frames[num%frameHistory]
	f.num = num
	f.sentAt = now
	f.player = sent
	f.entities = visible

	s.obs.FrameSent(b.Len())
	_, err = cl.ch.Transmit(b.Bytes(), 1)
	return err
}

// writeAmbients appends an ambient resync when cl is behind. The set is
// partial when cl holds the previous id and full otherwise, and is repeated
// every few frames until cl reports the current id.
func (s *Server) writeAmbients(cl *client, b *msg.Buffer, num int) error {
	if !cl.moved || cl.ambientAck == s.ambientID {
		return nil
	}
	if cl.ambientSentFrame > 0 && num-cl.ambientSentFrame < ambientResendFrames {
		return nil
	}

	partial := s.prevAmbients != nil && cl.ambientAck == (s.ambientID-1)&0xFF
	var last []delta.EntityState
	if partial {
		last = s.prevAmbients
	}

	b.WriteUint8(int(protocol.SvcAmbient))
	if err := delta.WriteAmbients(b, s.ambientID, last, s.ambients, !partial); err != nil {
		return err
	}
	cl.ambientSentFrame = num
	s.obs.AmbientResync()
	return nil
}
