// Package goldsource implements the GoldSource engine RCON wire protocol:
// a single UDP socket, a challenge handshake, and fragmented-reply
// reassembly. Grounded on the wire shapes in spec.md §4.2/§6 and, for the
// general shape of a bare UDP RCON client struct, other_examples' PlutoRCON
// reference (read as design inspiration only, never copied).
package goldsource

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/codycody31/rcon-sentinel/internal/rconerrors"
)

// outOfBandPrefix precedes every single, unfragmented datagram.
var outOfBandPrefix = []byte{0xFF, 0xFF, 0xFF, 0xFF}

// splitPrefix marks a datagram as one fragment of a multi-packet reply.
var splitPrefix = []byte{0xFE, 0xFF, 0xFF, 0xFF}

const legacyResponseType = 0x6C

// EncodeChallengeRequest builds the datagram that asks for a fresh
// challenge token.
func EncodeChallengeRequest() []byte {
	return append(append([]byte{}, outOfBandPrefix...), []byte("challenge rcon\n")...)
}

// ParseChallengeResponse extracts the challenge digits from
// "\xFF\xFF\xFF\xFFchallenge rcon <digits>\n".
func ParseChallengeResponse(datagram []byte) (string, error) {
	if !bytes.HasPrefix(datagram, outOfBandPrefix) {
		return "", rconerrors.New(rconerrors.KindInvalidResponse, "goldsource: challenge response missing out-of-band prefix")
	}
	body := strings.TrimRight(string(datagram[len(outOfBandPrefix):]), "\n")
	const marker = "challenge rcon "
	idx := strings.Index(body, marker)
	if idx < 0 {
		return "", rconerrors.New(rconerrors.KindInvalidResponse, "goldsource: unexpected challenge response %q", body)
	}
	digits := strings.TrimSpace(body[idx+len(marker):])
	if digits == "" {
		return "", rconerrors.New(rconerrors.KindInvalidResponse, "goldsource: empty challenge token")
	}
	if _, err := strconv.Atoi(digits); err != nil {
		return "", rconerrors.New(rconerrors.KindInvalidResponse, "goldsource: non-numeric challenge token %q", digits)
	}
	return digits, nil
}

// EncodeExecRequest builds the "rcon <challenge> <password> <command>\n"
// datagram. Per spec.md §4.2 the command is trimmed but otherwise sent
// verbatim — no escaping, since the engine treats the remainder of the
// line as one token.
func EncodeExecRequest(challenge, password, command string) []byte {
	trimmed := strings.TrimSpace(command)
	body := fmt.Sprintf("rcon %s %s %s\n", challenge, password, trimmed)
	return append(append([]byte{}, outOfBandPrefix...), []byte(body)...)
}

// fragment is one piece of a split reply.
type fragment struct {
	requestID int32
	index     int
	total     int
	payload   []byte
}

// decodeFragment parses a split-packet datagram:
// 0xFE 0xFF 0xFF 0xFF | requestID(int32 LE) | packetNumber(1 byte, high
// nibble = total count, low nibble = index) | payload.
func decodeFragment(datagram []byte) (fragment, error) {
	const headerLen = 4 + 4 + 1
	if len(datagram) < headerLen {
		return fragment{}, rconerrors.New(rconerrors.KindInvalidResponse, "goldsource: short fragment header")
	}
	requestID := int32(datagram[4]) | int32(datagram[5])<<8 | int32(datagram[6])<<16 | int32(datagram[7])<<24
	packetNumber := datagram[8]
	return fragment{
		requestID: requestID,
		index:     int(packetNumber & 0x0F),
		total:     int(packetNumber >> 4),
		payload:   datagram[headerLen:],
	}, nil
}

// isFragment reports whether a datagram is a split-packet fragment rather
// than a complete single-datagram reply.
func isFragment(datagram []byte) bool {
	return bytes.HasPrefix(datagram, splitPrefix)
}

// decodeSingleReply strips the out-of-band prefix and the legacy response
// type byte from a complete, unfragmented reply.
func decodeSingleReply(datagram []byte) (string, error) {
	if !bytes.HasPrefix(datagram, outOfBandPrefix) {
		return "", rconerrors.New(rconerrors.KindInvalidResponse, "goldsource: reply missing out-of-band prefix")
	}
	rest := datagram[len(outOfBandPrefix):]
	if len(rest) > 0 && rest[0] == legacyResponseType {
		rest = rest[1:]
	}
	return string(rest), nil
}
