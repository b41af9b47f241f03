package log

import (
	"time"
)

// Event represents a protocol log event captured at any layer of the pipeline.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the pipeline (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates data flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// RemoteAddr is the peer address (IP:port), if known.
	RemoteAddr string `cbor:"6,keyasint,omitempty"`

	// ServerName is the SNI host name the client asked for.
	ServerName string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Record      *RecordEvent      `cbor:"10,keyasint,omitempty"` // Transport layer
	Shim        *ShimEvent        `cbor:"11,keyasint,omitempty"` // Engine layer
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Pipeline layer
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of data flow.
type Direction uint8

const (
	// DirectionIn indicates data received from the peer.
	DirectionIn Direction = 0
	// DirectionOut indicates data sent to the peer.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which part of the pipeline captured the event.
type Layer uint8

const (
	// LayerTransport is the record framing layer (ciphertext).
	LayerTransport Layer = 0
	// LayerEngine is the memory bridge between pipeline and TLS engine.
	LayerEngine Layer = 1
	// LayerPipeline is the handshake state machine and pumps.
	LayerPipeline Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerEngine:
		return "ENGINE"
	case LayerPipeline:
		return "PIPELINE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryRecord indicates a framed TLS record.
	CategoryRecord Category = 0
	// CategoryShim indicates a read or write shim invocation.
	CategoryShim Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryRecord:
		return "RECORD"
	case CategoryShim:
		return "SHIM"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// RecordEvent captures one TLS record at the transport layer.
type RecordEvent struct {
	// ContentType is the record content type (20..24).
	ContentType uint8 `cbor:"1,keyasint"`

	// Version is the record-layer version field.
	Version uint16 `cbor:"2,keyasint"`

	// Size is the record size in bytes (including the 5-byte header).
	Size int `cbor:"3,keyasint"`

	// Data is the raw record bytes (may be truncated for large records).
	Data []byte `cbor:"4,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"5,keyasint,omitempty"`
}

// ShimEvent captures one invocation of the read or write shim.
type ShimEvent struct {
	// Op is the shim direction.
	Op ShimOp `cbor:"1,keyasint"`

	// Requested is the buffer length the engine passed in.
	Requested int `cbor:"2,keyasint"`

	// Transferred is the number of bytes actually moved.
	Transferred int `cbor:"3,keyasint"`

	// WouldBlock indicates the read shim had no input to offer.
	WouldBlock bool `cbor:"4,keyasint,omitempty"`
}

// ShimOp identifies the shim direction.
type ShimOp uint8

const (
	// ShimRead is an engine read served from bound input.
	ShimRead ShimOp = 0
	// ShimWrite is an engine write into the bound output.
	ShimWrite ShimOp = 1
)

// String returns the shim op name.
func (s ShimOp) String() string {
	switch s {
	case ShimRead:
		return "READ"
	case ShimWrite:
		return "WRITE"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures pipeline lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityHandshake indicates a handshake state change.
	StateEntityHandshake StateEntity = 0
	// StateEntityInbound indicates the inbound pump started or stopped.
	StateEntityInbound StateEntity = 1
	// StateEntityOutbound indicates the outbound pump started or stopped.
	StateEntityOutbound StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityHandshake:
		return "HANDSHAKE"
	case StateEntityInbound:
		return "INBOUND"
	case StateEntityOutbound:
		return "OUTBOUND"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the engine.Code of a failed engine step, if the error
	// came from one.
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
