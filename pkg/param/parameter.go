package param

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
)

// Parameter errors.
var (
	ErrInvalidName   = errors.New("invalid name")
	ErrDuplicateName = errors.New("duplicate name")
	ErrNotWritable   = errors.New("parameter is not writable")
	ErrValueType     = errors.New("invalid value type for parameter")
	ErrValueTooLong  = errors.New("value exceeds maximum length")
	ErrInvalidChoice = errors.New("value is not one of the choices")
)

// Access flags for parameters.
type Access uint8

const (
	// AccessRead exposes the parameter in documents.
	AccessRead Access = 1 << iota

	// AccessWrite allows documents to change the parameter.
	AccessWrite

	// AccessReadWrite is read and write.
	AccessReadWrite = AccessRead | AccessWrite
)

// CanRead returns true if reading is allowed.
func (a Access) CanRead() bool { return a&AccessRead != 0 }

// CanWrite returns true if writing is allowed.
func (a Access) CanWrite() bool { return a&AccessWrite != 0 }

// String returns the schema name of the access mode.
func (a Access) String() string {
	switch {
	case a.CanRead() && a.CanWrite():
		return "read-write"
	case a.CanRead():
		return "read"
	case a.CanWrite():
		return "write"
	default:
		return "none"
	}
}

// ParseAccess parses a schema access name.
func ParseAccess(s string) (Access, error) {
	switch s {
	case "read":
		return AccessRead, nil
	case "write":
		return AccessWrite, nil
	case "read-write":
		return AccessReadWrite, nil
	}
	return 0, fmt.Errorf("unknown access mode %q", s)
}

// Kind is the value kind of a parameter.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindEnum
)

// String returns the schema type name.
func (k Kind) String() string {
	names := []string{"unknown", "bool", "int", "float", "string", "enum"}
	if int(k) < len(names) {
		return names[k]
	}
	return "unknown"
}

// Parameter is a typed setting bound to application storage.
type Parameter struct {
	name   string
	access Access
	kind   Kind

	b *bool
	i *int64
	f *float64
	s *string

	choices []string
	maxLen  int
}

// Bool declares a boolean parameter bound to v. A nil v allocates storage.
func Bool(name string, v *bool, access Access) *Parameter {
	if v == nil {
		v = new(bool)
	}
	return &Parameter{name: name, access: access, kind: KindBool, b: v}
}

// Int declares an integer parameter bound to v.
func Int(name string, v *int64, access Access) *Parameter {
	if v == nil {
		v = new(int64)
	}
	return &Parameter{name: name, access: access, kind: KindInt, i: v}
}

// Float declares a floating point parameter bound to v.
func Float(name string, v *float64, access Access) *Parameter {
	if v == nil {
		v = new(float64)
	}
	return &Parameter{name: name, access: access, kind: KindFloat, f: v}
}

// String declares a string parameter bound to v.
func String(name string, v *string, access Access) *Parameter {
	if v == nil {
		v = new(string)
	}
	return &Parameter{name: name, access: access, kind: KindString, s: v}
}

// Enum declares a string parameter restricted to choices.
func Enum(name string, v *string, access Access, choices ...string) *Parameter {
	if v == nil {
		v = new(string)
	}
	return &Parameter{name: name, access: access, kind: KindEnum, s: v, choices: slices.Clone(choices)}
}

// WithMaxLength limits string values to n bytes. Longer values are rejected.
func (p *Parameter) WithMaxLength(n int) *Parameter {
	p.maxLen = n
	return p
}

// Name returns the parameter name.
func (p *Parameter) Name() string { return p.name }

// Access returns the access mode.
func (p *Parameter) Access() Access { return p.access }

// Kind returns the value kind.
func (p *Parameter) Kind() Kind { return p.kind }

// Choices returns the allowed values of an enum parameter.
func (p *Parameter) Choices() []string { return slices.Clone(p.choices) }

// MaxLength returns the string length limit, 0 when unlimited.
func (p *Parameter) MaxLength() int { return p.maxLen }

func (p *Parameter) isNode() {}

// Value returns the current bound value.
func (p *Parameter) Value() any {
	switch p.kind {
	case KindBool:
		return *p.b
	case KindInt:
		return *p.i
	case KindFloat:
		return *p.f
	case KindString, KindEnum:
		return *p.s
	}
	return nil
}

// Set converts v to the parameter kind and stores it.
// Returns ErrNotWritable for parameters without write access.
func (p *Parameter) Set(v any) error {
	if !p.access.CanWrite() {
		return ErrNotWritable
	}
	return p.assign(v)
}

// assign stores v without checking access. Used when restoring the blob.
func (p *Parameter) assign(v any) error {
	switch p.kind {
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("%w: expected bool, got %T", ErrValueType, v)
		}
		*p.b = b

	case KindInt:
		n, ok := toInt64(v)
		if !ok {
			return fmt.Errorf("%w: expected integer, got %v", ErrValueType, v)
		}
		*p.i = n

	case KindFloat:
		f, ok := toFloat64(v)
		if !ok {
			return fmt.Errorf("%w: expected number, got %T", ErrValueType, v)
		}
		*p.f = f

	case KindString, KindEnum:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("%w: expected string, got %T", ErrValueType, v)
		}
		if p.maxLen > 0 && len(s) > p.maxLen {
			return fmt.Errorf("%w: %d > %d", ErrValueTooLong, len(s), p.maxLen)
		}
		if p.kind == KindEnum && !slices.Contains(p.choices, s) {
			return fmt.Errorf("%w: %q", ErrInvalidChoice, s)
		}
		*p.s = s

	default:
		return ErrValueType
	}
	return nil
}

// Helper functions for value conversion.

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		if n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		// Whole numbers written as 3.0 or 1e3.
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return toInt64(f)
	default:
		return 0, false
	}
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}
