package log

import (
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// A journal file is a bare sequence of CBOR data items, one per event.
// Each event is appended with a single write, so a device that loses power
// mid-append leaves at most one partial item at the end of the file.

// ErrTruncated reports a partial event at the end of a journal.
var ErrTruncated = errors.New("journal ends in a partial event")

var (
	eventEnc cbor.EncMode
	eventDec cbor.DecMode
)

func init() {
	var err error
	eventEnc, err = cbor.EncOptions{
		Sort:        cbor.SortCoreDeterministic,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("journal encoder: %v", err))
	}

	// Events nest two levels deep; anything deeper is corruption.
	eventDec, err = cbor.DecOptions{
		MaxNestedLevels: 8,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("journal decoder: %v", err))
	}
}

// EncodeEvent returns the journal record of event.
func EncodeEvent(event Event) ([]byte, error) {
	return eventEnc.Marshal(event)
}

// DecodeEvent decodes a single journal record.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	if err := eventDec.Unmarshal(data, &event); err != nil {
		return Event{}, err
	}
	return event, nil
}

// readEvent decodes the next record from dec. A clean end of stream is
// io.EOF and a partial trailing record is ErrTruncated.
func readEvent(dec *cbor.Decoder) (Event, error) {
	var event Event
	err := dec.Decode(&event)
	switch {
	case err == nil:
		return event, nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		return Event{}, ErrTruncated
	case errors.Is(err, io.EOF):
		return Event{}, io.EOF
	default:
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
}

// DecodeAll decodes every event in r. When the stream ends in a partial
// record the complete events are returned with ErrTruncated.
func DecodeAll(r io.Reader) ([]Event, error) {
	dec := eventDec.NewDecoder(r)
	var events []Event
	for {
		event, err := readEvent(dec)
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, event)
	}
}
