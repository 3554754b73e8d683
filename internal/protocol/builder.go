package protocol

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/energizer-project/blazer/internal/tdf"
)

// AppendPacket appends the wire form of p to dst.
func AppendPacket(dst []byte, p Packet) []byte {
	dst = binary.BigEndian.AppendUint16(dst, p.Component)
	dst = binary.BigEndian.AppendUint16(dst, p.Command)
	dst = binary.BigEndian.AppendUint16(dst, uint16(p.Error))
	dst = append(dst, byte(p.Type))
	dst = binary.BigEndian.AppendUint16(dst, p.Correlation)
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(p.Body)))
	return append(dst, p.Body...)
}

// WritePacket writes p to w in a single Write call.
func WritePacket(w io.Writer, p Packet) error {
	buf := AppendPacket(make([]byte, 0, p.Size()), p)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write packet: %w", err)
	}
	return nil
}

// Response builds the reply to req, keeping its correlation id.
func Response(req Packet, body []byte) Packet {
	return Packet{
		Component:   req.Component,
		Command:     req.Command,
		Type:        TypeResponse,
		Correlation: req.Correlation,
		Body:        body,
	}
}

// ErrorResponse builds an error reply to req, keeping its correlation id.
func ErrorResponse(req Packet, code ErrorCode, body []byte) Packet {
	return Packet{
		Component:   req.Component,
		Command:     req.Command,
		Error:       code,
		Type:        TypeError,
		Correlation: req.Correlation,
		Body:        body,
	}
}

// Notification builds an unsolicited server push. Notifications always carry
// correlation id 0.
func Notification(component, command uint16, body []byte) Packet {
	return Packet{
		Component: component,
		Command:   command,
		Type:      TypeNotification,
		Body:      body,
	}
}

// PingReply answers a keep-alive ping.
func PingReply(ping Packet) Packet {
	return Packet{
		Component:   ping.Component,
		Command:     ping.Command,
		Type:        TypePingReply,
		Correlation: ping.Correlation,
	}
}

// PacketBuilder assembles a packet whose body is a tagged-value struct.
type PacketBuilder struct {
	pkt  Packet
	body *tdf.Struct
}

// NewPacketBuilder creates a builder for a request to component/command.
func NewPacketBuilder(component, command uint16) *PacketBuilder {
	return &PacketBuilder{pkt: Packet{Component: component, Command: command}}
}

// Type sets the packet type.
func (b *PacketBuilder) Type(t PacketType) *PacketBuilder {
	b.pkt.Type = t
	return b
}

// Correlation sets the correlation id.
func (b *PacketBuilder) Correlation(id uint16) *PacketBuilder {
	b.pkt.Correlation = id
	return b
}

// Error sets the error code.
func (b *PacketBuilder) Error(code ErrorCode) *PacketBuilder {
	b.pkt.Error = code
	return b
}

// Body sets the struct encoded as the packet body.
func (b *PacketBuilder) Body(s *tdf.Struct) *PacketBuilder {
	b.body = s
	return b
}

// Build encodes the body and returns the packet.
func (b *PacketBuilder) Build() (Packet, error) {
	p := b.pkt
	if b.body != nil {
		raw, err := tdf.EncodePayload(b.body)
		if err != nil {
			return Packet{}, fmt.Errorf("failed to encode %s body: %w", CommandName(p.Component, p.Command, p.Type == TypeNotification), err)
		}
		p.Body = raw
	}
	return p, nil
}

// Bytes builds the packet and returns its wire form.
func (b *PacketBuilder) Bytes() ([]byte, error) {
	p, err := b.Build()
	if err != nil {
		return nil, err
	}
	return AppendPacket(nil, p), nil
}
