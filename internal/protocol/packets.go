// Package protocol implements the packet framing used between game clients
// and the blazer server. Every packet is a 13-byte big-endian header followed
// by a tagged-value body:
//
//	[component:2][command:2][error:2][type:1][correlation:2][length:4][body...]
package protocol

import "fmt"

// HeaderSize is the fixed size of a packet header in bytes.
const HeaderSize = 13

// DefaultMaxPayload bounds the declared body length when no limit is
// configured.
const DefaultMaxPayload = 1 << 20

// PacketType distinguishes requests from replies and server pushes.
type PacketType uint8

const (
	TypeRequest      PacketType = 0x0
	TypeResponse     PacketType = 0x1
	TypeNotification PacketType = 0x2
	TypeError        PacketType = 0x3
	TypePing         PacketType = 0x4 // Client keep-alive
	TypePingReply    PacketType = 0x5 // Server keep-alive answer
)

var packetTypeNames = map[PacketType]string{
	TypeRequest:      "request",
	TypeResponse:     "response",
	TypeNotification: "notification",
	TypeError:        "error",
	TypePing:         "ping",
	TypePingReply:    "ping_reply",
}

func (t PacketType) String() string {
	if name, ok := packetTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(0x%02x)", uint8(t))
}

// Valid reports whether t is a known packet type.
func (t PacketType) Valid() bool {
	_, ok := packetTypeNames[t]
	return ok
}

// Packet is one framed message.
type Packet struct {
	Component   uint16
	Command     uint16
	Error       ErrorCode
	Type        PacketType
	Correlation uint16
	Body        []byte
}

// Size returns the encoded size of the packet.
func (p Packet) Size() int {
	return HeaderSize + len(p.Body)
}

func (p Packet) String() string {
	return fmt.Sprintf("%s %s corr=%d err=%s len=%d",
		p.Type, CommandName(p.Component, p.Command, p.Type == TypeNotification), p.Correlation, p.Error, len(p.Body))
}
