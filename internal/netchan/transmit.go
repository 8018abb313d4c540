package netchan

import (
	"encoding/binary"
	"fmt"

	"github.com/1ureka/netchan/internal/protocol"
	"github.com/1ureka/netchan/internal/util"
)

// maxPayload is the largest logical message fragment offsets can describe.
const maxPayload = protocol.MaxMsgLen - 1

// Transmit sends one packet carrying the reliable payload, if one is due,
// followed by data. numPackets sends the same datagram several times to
// hedge against loss. When the message does not fit the packet budget it is
// fragmented and only the first fragment goes out; later calls continue the
// fragment sequence before anything else is sent.
//
// It returns the number of bytes handed to the socket.
func (c *Channel) Transmit(data []byte, numPackets int) (int, error) {
	if c.fatal != nil {
		return 0, c.fatal
	}

	if c.Message.Overflowed {
		util.LogWarning("%s: outgoing reliable message overflow", c.RemoteAddr)
		return 0, c.setFatal("reliable message overflowed", ErrReliableOverflow)
	}
	if err := c.Message.Err(); err != nil {
		return 0, c.setFatal("reliable message", err)
	}

	if c.FragmentPending {
		return c.TransmitNextFragment()
	}

	sendReliable := false

	// the peer saw a packet sent after the payload but still acks the old parity
	if c.reliableLen > 0 &&
		c.IncomingAcknowledged > c.lastReliableSequence &&
		c.incomingReliableAcknowledged != c.reliableSequence {
		sendReliable = true
		c.obs.Retransmitted()
	}

	if c.reliableLen == 0 && c.Message.Len() > 0 {
		sendReliable = true
		c.reliableLen = copy(c.reliableBuf, c.Message.Bytes())
		c.Message.Clear()
		c.reliableSequence = !c.reliableSequence
	}

	payload := c.payload[:0]
	if sendReliable {
		if protocol.ReliablePrefixSize+c.reliableLen > maxPayload {
			return 0, c.setFatal("reliable payload too large", ErrFragmentOverflow)
		}
		c.lastReliableSequence = c.OutgoingSequence
		payload = binary.LittleEndian.AppendUint16(payload,
			protocol.EncodePrefix(c.reliableLen, c.reliableSequence))
		payload = append(payload, c.reliableBuf[:c.reliableLen]...)
	}

	if len(payload)+len(data) <= maxPayload {
		payload = append(payload, data...)
	} else {
		util.LogWarning("%s: dumped unreliable", c.RemoteAddr)
	}
	c.payload = payload

	if len(payload) > c.MaxPacketLen {
		c.fragmentOut = append(c.fragmentOut[:0], payload...)
		c.fragmentOffset = 0
		c.fragmentReliable = sendReliable
		c.FragmentPending = true
		return c.TransmitNextFragment()
	}

	hdr := c.header(sendReliable)
	pkt := protocol.AppendHeader(c.sendBuf[:0], &hdr)
	pkt = append(pkt, payload...)
	c.sendBuf = pkt

	if util.DebugEnabled() {
		util.LogDebug("send %4d : s=%d ack=%d rack=%v reliable=%v",
			len(pkt), c.OutgoingSequence, c.IncomingSequence, c.incomingReliableSequence, sendReliable)
	}

	numPackets = max(numPackets, 1)
	var sendErr error
	for range numPackets {
		if err := c.send(pkt); err != nil && sendErr == nil {
			sendErr = err
		}
	}

	c.OutgoingSequence++
	c.reliableAckPending = false
	c.LastSent = c.now()

	return len(pkt) * numPackets, sendErr
}

// TransmitNextFragment sends the next piece of the pending fragmented
// message. After the last piece the outgoing sequence advances.
func (c *Channel) TransmitNextFragment() (int, error) {
	if c.fatal != nil {
		return 0, c.fatal
	}
	if !c.FragmentPending {
		return 0, nil
	}

	length := min(len(c.fragmentOut)-c.fragmentOffset, c.MaxPacketLen)
	more := c.fragmentOffset+length < len(c.fragmentOut)

	hdr := c.header(c.fragmentReliable)
	hdr.Fragmented = true
	hdr.FragmentOffset = c.fragmentOffset
	hdr.MoreFragments = more

	pkt := protocol.AppendHeader(c.sendBuf[:0], &hdr)
	pkt = append(pkt, c.fragmentOut[c.fragmentOffset:c.fragmentOffset+length]...)
	c.sendBuf = pkt

	if util.DebugEnabled() {
		util.LogDebug("send %4d : s=%d ack=%d rack=%v fragment_offset=%d more_fragments=%v",
			len(pkt), c.OutgoingSequence, c.IncomingSequence, c.incomingReliableSequence, c.fragmentOffset, more)
	}

	c.fragmentOffset += length
	c.FragmentPending = more
	c.obs.FragmentSent()

	if !more {
		c.OutgoingSequence++
		c.reliableAckPending = false
		c.LastSent = c.now()
		c.fragmentOut = c.fragmentOut[:0]
		c.fragmentOffset = 0
	}

	return len(pkt), c.send(pkt)
}

func (c *Channel) header(reliable bool) protocol.Header {
	return protocol.Header{
		Sequence:  c.OutgoingSequence,
		Reliable:  reliable,
		Ack:       c.IncomingSequence,
		AckParity: c.incomingReliableSequence,
		HasQPort:  c.Side == Client,
		QPort:     c.QPort,
	}
}

func (c *Channel) send(pkt []byte) error {
	c.obs.PacketSent(len(pkt))
	util.Stats.AddSent(len(pkt))
	if err := c.sock.Send(c.RemoteAddr, pkt); err != nil {
		return fmt.Errorf("send to %s: %w", c.RemoteAddr, err)
	}
	return nil
}
