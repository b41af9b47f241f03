// Package record frames TLS records out of an accumulating byte buffer.
//
// # Wire Format
//
//	┌──────┬─────────────┬─────────────┬──────────────────┐
//	│ type │ version (2) │ length (2)  │ payload (length) │
//	└──────┴─────────────┴─────────────┴──────────────────┘
//
// Both 16-bit fields are big-endian. Accepted content types are 20..24
// (change_cipher_spec, alert, handshake, application_data, heartbeat);
// accepted versions are 0x0300 up to but excluding 0x0500.
//
// Framing is pure: TryFrame and Cursor.Next never copy payload bytes and
// never consume a partial record. An incomplete record is not an error;
// an invalid header is, and it is not retryable.
package record
