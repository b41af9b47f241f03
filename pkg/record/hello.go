package record

import (
	"fmt"

	"golang.org/x/crypto/cryptobyte"
)

const (
	handshakeTypeServerHello = 2
	extSupportedVersions     = 43

	// handshakeHeaderSize is the msg_type byte plus the uint24 length.
	handshakeHeaderSize = 4
)

// MaxServerHelloLength bounds the ServerHello body a HelloReader buffers.
const MaxServerHelloLength = MaxPlaintextLength

// ErrHelloTooLarge indicates a ServerHello longer than MaxServerHelloLength.
var ErrHelloTooLarge = fmt.Errorf("%w: server hello too large", ErrFormat)

// HelloReader reassembles the first server handshake message from
// handshake record payloads, which may split it at any byte.
type HelloReader struct {
	buf     []byte
	done    bool
	version Version
}

// Feed appends one handshake record payload. done reports that the
// first handshake message is complete; version is then the ServerHello
// selection, or 0 when the message is not a well-formed ServerHello.
// Payloads fed after done are ignored.
func (h *HelloReader) Feed(payload []byte) (version Version, done bool, err error) {
	if h.done {
		return h.version, true, nil
	}
	h.buf = append(h.buf, payload...)
	if len(h.buf) < handshakeHeaderSize {
		return 0, false, nil
	}

	n := int(h.buf[1])<<16 | int(h.buf[2])<<8 | int(h.buf[3])
	if n > MaxServerHelloLength {
		h.buf = nil
		return 0, false, fmt.Errorf("%w: %d > %d", ErrHelloTooLarge, n, MaxServerHelloLength)
	}
	if len(h.buf) < handshakeHeaderSize+n {
		return 0, false, nil
	}

	h.version, _ = ServerHelloVersion(h.buf[:handshakeHeaderSize+n])
	h.done = true
	h.buf = nil
	return h.version, true, nil
}

// Done reports whether the first handshake message has been seen.
func (h *HelloReader) Done() bool {
	return h.done
}

// ServerHelloVersion inspects a handshake record payload that starts
// with a ServerHello and returns the negotiated protocol version: the
// supported_versions selection when present, else legacy_version.
// ok is false when the payload does not start with a complete
// ServerHello.
//
// TLS 1.3 carries the rest of the handshake inside application_data
// records, so a handshake driver needs the version before the engine
// reports it.
func ServerHelloVersion(payload []byte) (Version, bool) {
	s := cryptobyte.String(payload)

	var (
		msgType uint8
		body    cryptobyte.String
	)
	if !s.ReadUint8(&msgType) || msgType != handshakeTypeServerHello {
		return 0, false
	}
	if !s.ReadUint24LengthPrefixed(&body) {
		return 0, false
	}

	var (
		legacy    uint16
		sessionID cryptobyte.String
		suite     uint16
		comp      uint8
	)
	if !body.ReadUint16(&legacy) ||
		!body.Skip(32) ||
		!body.ReadUint8LengthPrefixed(&sessionID) ||
		!body.ReadUint16(&suite) ||
		!body.ReadUint8(&comp) {
		return 0, false
	}
	if body.Empty() {
		return Version(legacy), true
	}

	var exts cryptobyte.String
	if !body.ReadUint16LengthPrefixed(&exts) {
		return 0, false
	}
	for !exts.Empty() {
		var (
			typ  uint16
			data cryptobyte.String
		)
		if !exts.ReadUint16(&typ) || !exts.ReadUint16LengthPrefixed(&data) {
			return 0, false
		}
		if typ != extSupportedVersions {
			continue
		}
		var selected uint16
		if !data.ReadUint16(&selected) {
			return 0, false
		}
		return Version(selected), true
	}
	return Version(legacy), true
}
