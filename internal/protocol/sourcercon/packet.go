// Package sourcercon implements the Source engine RCON wire protocol: a
// TCP-framed request/response packet format, grounded directly on
// squad-rcon-go's byteParser/Encode-Decode pair.
package sourcercon

import (
	"encoding/binary"

	"github.com/codycody31/rcon-sentinel/internal/rconerrors"
)

// Packet types per spec.md §4.1.
const (
	TypeAuth          int32 = 3
	TypeExecCommand   int32 = 2
	TypeResponseValue int32 = 0
	TypeAuthResponse  int32 = 2
)

// Reserved ids used by the reassembly trick: an empty EXECCOMMAND sent right
// after a real one causes the server to echo back an empty RESPONSE_VALUE
// that marks "no more fragments follow" for the preceding response.
const emptyPacketID int32 = 100

// Packet is one decoded Source RCON frame.
type Packet struct {
	ID   int32
	Type int32
	Body string
}

// headerLen is the id+type prefix that precedes the body in the on-wire size.
const headerLen = 8

// Encode serializes a packet the way it goes on the wire:
// size(int32 LE) | id(int32 LE) | type(int32 LE) | body(ascii) | 0x00 | 0x00.
// size excludes the size field itself, i.e. size = 4 + 4 + len(body) + 2.
func Encode(id, typ int32, body string) []byte {
	size := int32(headerLen + len(body) + 2)
	buf := make([]byte, 4+size)

	binary.LittleEndian.PutUint32(buf[0:4], uint32(size))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(id))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(typ))
	copy(buf[12:12+len(body)], body)
	// trailing 0x00 0x00 already present from make's zero-value

	return buf
}

// Decode parses a single whole frame (the caller has already sliced exactly
// `size+4` bytes off the read buffer via PacketSize). It trims the two
// trailing NUL bytes from the body.
func Decode(frame []byte) (Packet, error) {
	if len(frame) < 4+headerLen+2 {
		return Packet{}, rconerrors.New(rconerrors.KindInvalidResponse, "short source rcon frame: %d bytes", len(frame))
	}

	id := int32(binary.LittleEndian.Uint32(frame[4:8]))
	typ := int32(binary.LittleEndian.Uint32(frame[8:12]))
	body := frame[12 : len(frame)-2]

	return Packet{ID: id, Type: typ, Body: string(body)}, nil
}

// PacketSize reads the leading size prefix and reports the number of bytes
// the full frame occupies on the wire (4 + size). It returns ok=false if buf
// does not yet contain the 4-byte size prefix.
func PacketSize(buf []byte) (total int, ok bool) {
	if len(buf) < 4 {
		return 0, false
	}
	size := int32(binary.LittleEndian.Uint32(buf[:4]))
	return int(size) + 4, true
}

// IsFragmentTerminator reports whether a decoded packet is the synthetic
// empty RESPONSE_VALUE used to mark the end of a (possibly multi-packet)
// command response.
func IsFragmentTerminator(p Packet) bool {
	return p.Type == TypeResponseValue && p.ID == emptyPacketID && p.Body == ""
}
