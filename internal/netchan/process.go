package netchan

import (
	"encoding/binary"

	"github.com/1ureka/netchan/internal/msg"
	"github.com/1ureka/netchan/internal/protocol"
	"github.com/1ureka/netchan/internal/util"
)

// Process validates one sequenced datagram from the peer. It returns a
// reader over the delivered payload and true when the packet was accepted
// and completes a message. Stale, duplicated, forged and malformed packets
// and incomplete fragment sequences return false without an error.
//
// The payload is the reliable bytes, if they are new, followed by the
// unreliable bytes. The reader stays valid until the next call to Process.
func (c *Channel) Process(packet []byte) (*msg.Buffer, bool) {
	hdr, n, err := protocol.DecodeHeader(packet, c.Side == Server)
	if err != nil {
		c.reject("short packet")
		return nil, false
	}

	if c.Side == Server && hdr.QPort != c.QPort {
		c.reject("qport mismatch")
		return nil, false
	}

	if util.DebugEnabled() {
		util.LogDebug("recv %4d : s=%d ack=%d rack=%v reliable=%v fragment=%v offset=%d more=%v",
			len(packet), hdr.Sequence, hdr.Ack, hdr.AckParity, hdr.Reliable, hdr.Fragmented, hdr.FragmentOffset, hdr.MoreFragments)
	}

	if hdr.Sequence <= c.IncomingSequence {
		util.LogDebug("%s: out of order packet %d at %d", c.RemoteAddr, hdr.Sequence, c.IncomingSequence)
		c.reject("stale")
		return nil, false
	}

	c.Dropped = int(hdr.Sequence - c.IncomingSequence - 1)
	if c.Dropped > 0 {
		util.LogDebug("%s: dropped %d packets at %d", c.RemoteAddr, c.Dropped, hdr.Sequence)
	}

	// the in-flight payload is delivered once the peer echoes its parity
	c.incomingReliableAcknowledged = hdr.AckParity
	if hdr.AckParity == c.reliableSequence {
		c.reliableLen = 0
	}

	body := packet[n:]
	if hdr.Fragmented {
		if c.fragmentSequence != hdr.Sequence {
			c.fragmentSequence = hdr.Sequence
			c.fragmentIn = c.fragmentIn[:0]
		}

		if hdr.FragmentOffset != len(c.fragmentIn) {
			util.LogDebug("%s: fragment offset %d, expected %d at %d",
				c.RemoteAddr, hdr.FragmentOffset, len(c.fragmentIn), hdr.Sequence)
			c.fragmentIn = c.fragmentIn[:0]
			c.reject("fragment out of sequence")
			return nil, false
		}

		if len(c.fragmentIn)+len(body) > maxPayload {
			util.LogDebug("%s: oversize fragment at %d", c.RemoteAddr, hdr.Sequence)
			c.fragmentIn = c.fragmentIn[:0]
			c.reject("oversize fragment")
			return nil, false
		}

		c.fragmentIn = append(c.fragmentIn, body...)
		if hdr.MoreFragments {
			return nil, false
		}

		c.assembled = append(c.assembled[:0], c.fragmentIn...)
		c.fragmentIn = c.fragmentIn[:0]
		body = c.assembled
	}

	if hdr.Reliable {
		if len(body) < protocol.ReliablePrefixSize {
			c.reject("missing reliable prefix")
			return nil, false
		}
		size, parity := protocol.DecodePrefix(binary.LittleEndian.Uint16(body))
		if protocol.ReliablePrefixSize+size > len(body) {
			c.reject("reliable length past end")
			return nil, false
		}

		c.reliableAckPending = true
		if parity != c.incomingReliableSequence {
			c.incomingReliableSequence = parity
			body = body[protocol.ReliablePrefixSize:]
		} else {
			util.LogDebug("%s: duplicate reliable payload at %d", c.RemoteAddr, hdr.Sequence)
			body = body[protocol.ReliablePrefixSize+size:]
		}
	}

	c.IncomingSequence = hdr.Sequence
	c.IncomingAcknowledged = hdr.Ack
	c.LastReceived = c.now()

	c.TotalDropped += c.Dropped
	c.TotalReceived += c.Dropped + 1

	c.obs.PacketReceived(len(packet))
	util.Stats.AddRecv(len(packet))
	if c.Dropped > 0 {
		c.obs.PacketsDropped(c.Dropped)
		util.Stats.AddLost(c.Dropped)
	}

	c.reader.Reset(body)
	return c.reader, true
}

func (c *Channel) reject(reason string) {
	c.obs.PacketRejected(reason)
}
