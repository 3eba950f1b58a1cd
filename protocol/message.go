package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// MessageVersion is the current canonical message format version.
const MessageVersion = 3

// encodedHeaderSize is the fixed-width prefix of an encoded message:
// version(1) + nonce(4) + origin(4) + sender(32) + destination(4) + recipient(32).
const encodedHeaderSize = 77

// Message is the chain-agnostic cross-chain message. Nonce is the intrinsic
// sequence number assigned by the origin mailbox at dispatch time.
type Message struct {
	Version     uint8     `json:"version"`
	Nonce       uint32    `json:"nonce"`
	Origin      Domain    `json:"origin"`
	Sender      Bytes32   `json:"sender"`
	Destination Domain    `json:"destination"`
	Recipient   Bytes32   `json:"recipient"`
	Body        ByteSlice `json:"body"`
}

// Encode returns the canonical encoding of this message. Matches the onchain
// Message library format: a fixed big-endian header followed by the raw body.
func (m *Message) Encode() []byte {
	var buf bytes.Buffer
	buf.Grow(encodedHeaderSize + len(m.Body))

	_ = buf.WriteByte(m.Version)
	// binary.Write on fixed-width integers cannot fail against a bytes.Buffer.
	_ = binary.Write(&buf, binary.BigEndian, m.Nonce)
	_ = binary.Write(&buf, binary.BigEndian, uint32(m.Origin))
	_, _ = buf.Write(m.Sender[:])
	_ = binary.Write(&buf, binary.BigEndian, uint32(m.Destination))
	_, _ = buf.Write(m.Recipient[:])
	_, _ = buf.Write(m.Body)

	return buf.Bytes()
}

// ID returns the keccak256 digest of the canonical encoding. It uniquely
// identifies the message across chains.
func (m *Message) ID() Bytes32 {
	return Keccak256(m.Encode())
}

// DecodeMessage decodes a Message from its canonical encoding.
func DecodeMessage(data []byte) (*Message, error) {
	if len(data) < encodedHeaderSize {
		return nil, fmt.Errorf("%w: message too short (%d bytes)", ErrProtocolDecode, len(data))
	}

	reader := bytes.NewReader(data)
	msg := &Message{}

	version, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read version: %w", ErrProtocolDecode, err)
	}
	msg.Version = version

	if err := binary.Read(reader, binary.BigEndian, &msg.Nonce); err != nil {
		return nil, fmt.Errorf("%w: failed to read nonce: %w", ErrProtocolDecode, err)
	}

	var origin uint32
	if err := binary.Read(reader, binary.BigEndian, &origin); err != nil {
		return nil, fmt.Errorf("%w: failed to read origin: %w", ErrProtocolDecode, err)
	}
	msg.Origin = Domain(origin)

	if _, err := io.ReadFull(reader, msg.Sender[:]); err != nil {
		return nil, fmt.Errorf("%w: failed to read sender: %w", ErrProtocolDecode, err)
	}

	var destination uint32
	if err := binary.Read(reader, binary.BigEndian, &destination); err != nil {
		return nil, fmt.Errorf("%w: failed to read destination: %w", ErrProtocolDecode, err)
	}
	msg.Destination = Domain(destination)

	if _, err := io.ReadFull(reader, msg.Recipient[:]); err != nil {
		return nil, fmt.Errorf("%w: failed to read recipient: %w", ErrProtocolDecode, err)
	}

	if reader.Len() > 0 {
		msg.Body = make(ByteSlice, reader.Len())
		if _, err := io.ReadFull(reader, msg.Body); err != nil {
			return nil, fmt.Errorf("%w: failed to read body: %w", ErrProtocolDecode, err)
		}
	}

	return msg, nil
}

func (m *Message) String() string {
	return fmt.Sprintf("Message{id: %s, nonce: %d, origin: %d, destination: %d}",
		m.ID(), m.Nonce, uint32(m.Origin), uint32(m.Destination))
}
