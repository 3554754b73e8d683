package protocol

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/blazer/internal/tdf"
)

// header is the decoded fixed part of a packet.
type header struct {
	component   uint16
	command     uint16
	errCode     ErrorCode
	typ         PacketType
	correlation uint16
	length      uint32
}

// parseHeader decodes the first HeaderSize bytes of b. The caller must
// guarantee len(b) >= HeaderSize.
func parseHeader(b []byte, maxPayload int) (header, error) {
	h := header{
		component:   binary.BigEndian.Uint16(b[0:2]),
		command:     binary.BigEndian.Uint16(b[2:4]),
		errCode:     ErrorCode(binary.BigEndian.Uint16(b[4:6])),
		typ:         PacketType(b[6]),
		correlation: binary.BigEndian.Uint16(b[7:9]),
		length:      binary.BigEndian.Uint32(b[9:13]),
	}
	if !h.typ.Valid() {
		return h, fmt.Errorf("%w: unknown packet type 0x%02x", ErrMalformedHeader, uint8(h.typ))
	}
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	if uint64(h.length) > uint64(maxPayload) {
		return h, fmt.Errorf("%w: declared %d bytes (max %d)", ErrPayloadTooLarge, h.length, maxPayload)
	}
	return h, nil
}

func (h header) packet(body []byte) Packet {
	return Packet{
		Component:   h.component,
		Command:     h.command,
		Error:       h.errCode,
		Type:        h.typ,
		Correlation: h.correlation,
		Body:        body,
	}
}

// Frame extracts every complete packet from buf and returns them with the
// bytes not yet consumed. Packet bodies are copied, so buf may be reused.
// On a header error the packets decoded so far are returned with the error.
func Frame(buf []byte, maxPayload int) ([]Packet, []byte, error) {
	var packets []Packet
	for len(buf) >= HeaderSize {
		h, err := parseHeader(buf, maxPayload)
		if err != nil {
			return packets, buf, err
		}
		total := HeaderSize + int(h.length)
		if len(buf) < total {
			break
		}
		body := make([]byte, h.length)
		copy(body, buf[HeaderSize:total])
		packets = append(packets, h.packet(body))
		buf = buf[total:]
	}
	return packets, buf, nil
}

// ReadPacket reads exactly one packet from r, blocking until the header and
// the declared body have arrived.
func ReadPacket(r io.Reader, maxPayload int) (Packet, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Packet{}, fmt.Errorf("failed to read packet header: %w", err)
	}

	h, err := parseHeader(hdr[:], maxPayload)
	if err != nil {
		return Packet{}, err
	}

	body := make([]byte, h.length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Packet{}, fmt.Errorf("failed to read packet body (%d bytes): %w", h.length, err)
	}
	return h.packet(body), nil
}

// BodyParser decodes packet bodies with a fixed nesting limit and traces
// them at the lowest log level.
type BodyParser struct {
	logger   zerolog.Logger
	maxDepth int
}

// NewBodyParser creates a parser. maxDepth below 1 selects the codec default.
func NewBodyParser(maxDepth int) *BodyParser {
	if maxDepth < 1 {
		maxDepth = tdf.DefaultMaxDepth
	}
	return &BodyParser{
		logger:   log.With().Str("component", "body_parser").Logger(),
		maxDepth: maxDepth,
	}
}

// Parse decodes the body of p.
func (bp *BodyParser) Parse(p Packet) (*tdf.Struct, error) {
	body, err := tdf.DecodePayload(p.Body, tdf.WithMaxDepth(bp.maxDepth))
	if err != nil {
		bp.logger.Debug().
			Err(err).
			Str("command", CommandName(p.Component, p.Command, false)).
			Int("body_len", len(p.Body)).
			Msg("undecodable packet body")
		return nil, err
	}

	if e := bp.logger.Trace(); e.Enabled() {
		e.Str("command", CommandName(p.Component, p.Command, p.Type == TypeNotification)).
			Uint16("correlation", p.Correlation).
			Str("body", tdf.DumpPayload(body)).
			Msg("decoded packet")
	}
	return body, nil
}
