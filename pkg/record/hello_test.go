package record

import (
	"errors"
	"testing"

	"golang.org/x/crypto/cryptobyte"
)

func buildServerHello(legacy uint16, selected uint16) []byte {
	var b cryptobyte.Builder
	b.AddUint8(handshakeTypeServerHello)
	b.AddUint24LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddUint16(legacy)
		b.AddBytes(make([]byte, 32))
		b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddBytes([]byte{1, 2, 3, 4})
		})
		b.AddUint16(0x1301)
		b.AddUint8(0)
		if selected == 0 {
			return
		}
		b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
			// key_share first so the walk has to skip an extension.
			b.AddUint16(51)
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddBytes([]byte{0, 29, 0, 0})
			})
			b.AddUint16(extSupportedVersions)
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddUint16(selected)
			})
		})
	})
	return b.BytesOrPanic()
}

func TestServerHelloVersion(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    Version
		ok      bool
	}{
		{"TLS 1.3 via supported_versions", buildServerHello(0x0303, 0x0304), VersionTLS13, true},
		{"TLS 1.2 without extensions", buildServerHello(0x0303, 0), VersionTLS12, true},
		{"not a ServerHello", []byte{1, 0, 0, 0}, 0, false},
		{"truncated", buildServerHello(0x0303, 0x0304)[:20], 0, false},
		{"empty", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ServerHelloVersion(tt.payload)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ServerHelloVersion() = %v, %v; want %v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestHelloReaderAcrossRecords(t *testing.T) {
	msg := buildServerHello(0x0303, 0x0304)

	for split := 1; split < len(msg); split++ {
		var h HelloReader
		if v, done, err := h.Feed(msg[:split]); err != nil || done || v != 0 {
			t.Fatalf("split %d: first Feed() = %v, %v, %v; want incomplete", split, v, done, err)
		}
		v, done, err := h.Feed(msg[split:])
		if err != nil || !done || v != VersionTLS13 {
			t.Fatalf("split %d: second Feed() = %v, %v, %v; want TLS 1.3", split, v, done, err)
		}
		if !h.Done() {
			t.Fatalf("split %d: Done() = false", split)
		}
	}
}

func TestHelloReaderFollowedByOtherMessages(t *testing.T) {
	payload := append(buildServerHello(0x0303, 0), 11, 0, 0, 1, 0xff)

	var h HelloReader
	v, done, err := h.Feed(payload)
	if err != nil || !done || v != VersionTLS12 {
		t.Fatalf("Feed() = %v, %v, %v; want TLS 1.2", v, done, err)
	}

	// Later payloads do not change the outcome.
	v, done, _ = h.Feed(buildServerHello(0x0303, 0x0304))
	if !done || v != VersionTLS12 {
		t.Errorf("Feed() after done = %v, %v", v, done)
	}
}

func TestHelloReaderNotServerHello(t *testing.T) {
	var h HelloReader
	v, done, err := h.Feed([]byte{11, 0, 0, 2, 0, 0})
	if err != nil || !done || v != 0 {
		t.Errorf("Feed() = %v, %v, %v; want done with version 0", v, done, err)
	}
}

func TestHelloReaderTooLarge(t *testing.T) {
	var h HelloReader
	_, _, err := h.Feed([]byte{handshakeTypeServerHello, 0xff, 0xff, 0xff})
	if !errors.Is(err, ErrHelloTooLarge) || !errors.Is(err, ErrFormat) {
		t.Errorf("Feed() error = %v, want ErrHelloTooLarge", err)
	}
}
