package record

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
)

// Record layer constants.
const (
	// HeaderSize is the size of the record header in bytes.
	HeaderSize = 5

	// MaxPlaintextLength is the maximum plaintext payload of a single record.
	MaxPlaintextLength = 1 << 14

	// MaxCiphertextLength is the largest payload length accepted off the wire.
	MaxCiphertextLength = MaxPlaintextLength + 2048

	// MinVersion is the lowest record version accepted (SSL 3.0).
	MinVersion Version = 0x0300

	// MaxVersion is the first record version no longer accepted.
	MaxVersion Version = 0x0500
)

// Format errors. All of them match ErrFormat with errors.Is.
var (
	// ErrFormat is the parent of every framing error.
	ErrFormat = errors.New("malformed TLS record")

	// ErrInvalidType indicates a content type outside [20,24].
	ErrInvalidType = fmt.Errorf("%w: invalid content type", ErrFormat)

	// ErrInvalidVersion indicates a version outside [0x0300,0x0500).
	ErrInvalidVersion = fmt.Errorf("%w: invalid version", ErrFormat)

	// ErrRecordTooLarge indicates a length above MaxCiphertextLength.
	ErrRecordTooLarge = fmt.Errorf("%w: record too large", ErrFormat)
)

// ContentType is the record content type (first header byte).
type ContentType uint8

const (
	TypeChangeCipherSpec ContentType = 20
	TypeAlert            ContentType = 21
	TypeHandshake        ContentType = 22
	TypeApplicationData  ContentType = 23
	TypeHeartbeat        ContentType = 24
)

// String returns the content type name.
func (t ContentType) String() string {
	switch t {
	case TypeChangeCipherSpec:
		return "CHANGE_CIPHER_SPEC"
	case TypeAlert:
		return "ALERT"
	case TypeHandshake:
		return "HANDSHAKE"
	case TypeApplicationData:
		return "APPLICATION_DATA"
	case TypeHeartbeat:
		return "HEARTBEAT"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
}

// Valid reports whether t lies in the accepted range.
func (t ContentType) Valid() bool {
	return t >= TypeChangeCipherSpec && t <= TypeHeartbeat
}

// Version is the record-layer protocol version.
type Version uint16

const (
	VersionSSL30 Version = 0x0300
	VersionTLS10 Version = 0x0301
	VersionTLS11 Version = 0x0302
	VersionTLS12 Version = 0x0303
	VersionTLS13 Version = 0x0304
)

// String returns the version name.
func (v Version) String() string {
	switch v {
	case VersionSSL30:
		return "SSL3.0"
	case VersionTLS10:
		return "TLS1.0"
	case VersionTLS11:
		return "TLS1.1"
	case VersionTLS12:
		return "TLS1.2"
	case VersionTLS13:
		return "TLS1.3"
	default:
		return fmt.Sprintf("0x%04x", uint16(v))
	}
}

// Valid reports whether v lies in [MinVersion, MaxVersion).
func (v Version) Valid() bool {
	return v >= MinVersion && v < MaxVersion
}

// Header is a decoded record header.
type Header struct {
	Type    ContentType
	Version Version
	Length  uint16
}

// Record is one complete record sliced from an input buffer.
// Raw aliases the input buffer and covers header plus payload.
type Record struct {
	Header
	Raw []byte
}

// Payload returns the bytes following the header.
func (r Record) Payload() []byte {
	return r.Raw[HeaderSize:]
}

// Size returns the total record size including the header.
func (r Record) Size() int {
	return len(r.Raw)
}

// ParseHeader decodes and validates the first HeaderSize bytes of b.
// b must hold at least HeaderSize bytes.
func ParseHeader(b []byte) (Header, error) {
	var (
		typ     uint8
		version uint16
		length  uint16
	)
	s := cryptobyte.String(b[:HeaderSize])
	if !s.ReadUint8(&typ) || !s.ReadUint16(&version) || !s.ReadUint16(&length) {
		return Header{}, fmt.Errorf("%w: short header", ErrFormat)
	}

	h := Header{Type: ContentType(typ), Version: Version(version), Length: length}
	if !h.Type.Valid() {
		return Header{}, fmt.Errorf("%w: %d", ErrInvalidType, typ)
	}
	if !h.Version.Valid() {
		return Header{}, fmt.Errorf("%w: 0x%04x", ErrInvalidVersion, version)
	}
	if int(h.Length) > MaxCiphertextLength {
		return Header{}, fmt.Errorf("%w: %d > %d", ErrRecordTooLarge, h.Length, MaxCiphertextLength)
	}
	return h, nil
}

// TryFrame attempts to slice exactly one record off the front of buf.
// ok is false when buf does not yet hold a complete record; a non-nil
// error is a fatal format error. TryFrame never modifies buf.
func TryFrame(buf []byte) (rec Record, ok bool, err error) {
	if len(buf) < HeaderSize {
		return Record{}, false, nil
	}

	h, err := ParseHeader(buf)
	if err != nil {
		return Record{}, false, err
	}

	size := HeaderSize + int(h.Length)
	if len(buf) < size {
		return Record{}, false, nil
	}

	return Record{Header: h, Raw: buf[:size:size]}, true, nil
}

// Cursor walks records in an accumulating buffer.
// Callers loop Next until it reports incomplete, then await more input
// and release Consumed bytes from their buffer.
type Cursor struct {
	buf []byte
	off int
}

// NewCursor creates a cursor positioned at the start of buf.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Next returns the next complete record and advances past it.
// On incomplete input or error the cursor does not move.
func (c *Cursor) Next() (Record, bool, error) {
	rec, ok, err := TryFrame(c.buf[c.off:])
	if err != nil || !ok {
		return Record{}, false, err
	}
	c.off += rec.Size()
	return rec, true, nil
}

// Consumed returns the number of bytes covered by returned records.
func (c *Cursor) Consumed() int {
	return c.off
}

// Remaining returns the bytes not yet framed.
func (c *Cursor) Remaining() []byte {
	return c.buf[c.off:]
}
