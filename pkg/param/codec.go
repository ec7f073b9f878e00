package param

import (
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// ErrBlobTooLarge is returned when the encoded values do not fit the blob.
var ErrBlobTooLarge = errors.New("settings do not fit blob")

// blobHeaderSize is the big-endian length prefix of a blob.
const blobHeaderSize = 2

// encMode encodes value snapshots deterministically.
var encMode cbor.EncMode

// decMode decodes snapshots into map[string]any trees.
var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:      cbor.DupMapKeyQuiet,
		IndefLength:    cbor.IndefLengthAllowed,
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// MarshalBinary encodes every value, write-only included, as CBOR.
func (r *Registry) MarshalBinary() ([]byte, error) {
	return encMode.Marshal(r.snapshot())
}

// UnmarshalBinary restores values from MarshalBinary output. Entries that no
// longer match a declared parameter are skipped and reported.
func (r *Registry) UnmarshalBinary(data []byte) error {
	var snap map[string]any
	if err := decMode.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decoding settings: %w", err)
	}
	return r.restore(snap)
}

// EncodeBlob returns a size-byte blob: a 2-byte big-endian length, the CBOR
// encoding, then zero padding.
func (r *Registry) EncodeBlob(size int) ([]byte, error) {
	data, err := r.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if len(data) > 0xFFFF || blobHeaderSize+len(data) > size {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrBlobTooLarge, blobHeaderSize+len(data), size)
	}

	blob := make([]byte, size)
	binary.BigEndian.PutUint16(blob, uint16(len(data)))
	copy(blob[blobHeaderSize:], data)
	return blob, nil
}

// DecodeBlob restores values from an EncodeBlob image. A zero or out of range
// length means nothing was stored and leaves the declared values in place.
func (r *Registry) DecodeBlob(blob []byte) error {
	if len(blob) < blobHeaderSize {
		return nil
	}
	n := int(binary.BigEndian.Uint16(blob))
	if n == 0 || blobHeaderSize+n > len(blob) {
		return nil
	}
	return r.UnmarshalBinary(blob[blobHeaderSize : blobHeaderSize+n])
}
