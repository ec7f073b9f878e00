package log

import (
	"time"
)

// Event is one journal record.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred.
	Timestamp time.Time `cbor:"1,keyasint"`

	// BootID identifies the boot (UUID) the event belongs to.
	BootID string `cbor:"2,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"3,keyasint"`

	// Mode is the operating mode when the event occurred.
	Mode string `cbor:"4,keyasint,omitempty"`

	// RemoteAddr is the peer address for request events.
	RemoteAddr string `cbor:"5,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	StateChange *StateChangeEvent `cbor:"10,keyasint,omitempty"`
	Request     *RequestEvent     `cbor:"11,keyasint,omitempty"`
	Storage     *StorageEvent     `cbor:"12,keyasint,omitempty"`
	Radio       *RadioEvent       `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryState indicates a boot state transition.
	CategoryState Category = 0
	// CategoryRequest indicates a handled HTTP request.
	CategoryRequest Category = 1
	// CategoryStorage indicates a write to the persistent record.
	CategoryStorage Category = 2
	// CategoryRadio indicates a radio operation.
	CategoryRadio Category = 3
	// CategoryError indicates an error event.
	CategoryError Category = 4
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryState:
		return "STATE"
	case CategoryRequest:
		return "REQUEST"
	case CategoryStorage:
		return "STORAGE"
	case CategoryRadio:
		return "RADIO"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseCategory parses a category name as returned by String.
func ParseCategory(s string) (Category, bool) {
	for c := CategoryState; c <= CategoryError; c++ {
		if c.String() == s {
			return c, true
		}
	}
	return 0, false
}

// StateChangeEvent captures a boot state transition.
type StateChangeEvent struct {
	// OldState is the previous state.
	OldState string `cbor:"1,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"2,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"3,keyasint,omitempty"`
}

// RequestEvent captures a handled HTTP request.
type RequestEvent struct {
	Method string `cbor:"1,keyasint"`
	Path   string `cbor:"2,keyasint"`

	// Host is the request Host header.
	Host string `cbor:"3,keyasint,omitempty"`

	// Status is the response status code.
	Status int `cbor:"4,keyasint"`

	// Duration from dispatch to response. Stored as nanoseconds.
	Duration time.Duration `cbor:"5,keyasint,omitempty"`
}

// StorageOp identifies a persistent record operation.
type StorageOp uint8

const (
	StorageOpInitDefaults StorageOp = iota
	StorageOpWriteCredentials
	StorageOpWriteSettings
	StorageOpErase
	StorageOpCommit
)

// String returns the operation name.
func (o StorageOp) String() string {
	switch o {
	case StorageOpInitDefaults:
		return "INIT_DEFAULTS"
	case StorageOpWriteCredentials:
		return "WRITE_CREDENTIALS"
	case StorageOpWriteSettings:
		return "WRITE_SETTINGS"
	case StorageOpErase:
		return "ERASE"
	case StorageOpCommit:
		return "COMMIT"
	default:
		return "UNKNOWN"
	}
}

// StorageEvent captures a write to the persistent record.
type StorageEvent struct {
	Op StorageOp `cbor:"1,keyasint"`

	// Bytes written, when known.
	Bytes int `cbor:"2,keyasint,omitempty"`
}

// RadioOp identifies a radio operation.
type RadioOp uint8

const (
	RadioOpJoin RadioOp = iota
	RadioOpAccessPoint
	RadioOpScan
	RadioOpDisconnect
)

// String returns the operation name.
func (o RadioOp) String() string {
	switch o {
	case RadioOpJoin:
		return "JOIN"
	case RadioOpAccessPoint:
		return "ACCESS_POINT"
	case RadioOpScan:
		return "SCAN"
	case RadioOpDisconnect:
		return "DISCONNECT"
	default:
		return "UNKNOWN"
	}
}

// RadioEvent captures a radio operation and its outcome.
type RadioEvent struct {
	Op RadioOp `cbor:"1,keyasint"`

	// SSID of the joined network or the access point name.
	SSID string `cbor:"2,keyasint,omitempty"`

	// Status is the final link status for joins.
	Status string `cbor:"3,keyasint,omitempty"`

	// Attempts is the number of status polls for joins, or the number of
	// networks found for scans.
	Attempts int `cbor:"4,keyasint,omitempty"`
}

// ErrorEventData captures an error.
type ErrorEventData struct {
	// Message is the error message.
	Message string `cbor:"1,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"2,keyasint,omitempty"`
}
