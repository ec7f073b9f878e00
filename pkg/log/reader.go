package log

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter specifies criteria for selecting journal events.
// Empty/nil fields match all events for that criterion.
type Filter struct {
	// BootID filters by exact boot ID.
	BootID string

	// Category filters by event category.
	Category *Category

	// Mode filters by operating mode name.
	Mode string

	// TimeStart filters events at or after this time.
	TimeStart *time.Time

	// TimeEnd filters events before this time.
	TimeEnd *time.Time
}

// Matches returns true if the event matches all filter criteria.
func (f *Filter) Matches(event Event) bool {
	if f.BootID != "" && event.BootID != f.BootID {
		return false
	}
	if f.Category != nil && event.Category != *f.Category {
		return false
	}
	if f.Mode != "" && event.Mode != f.Mode {
		return false
	}
	if f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart) {
		return false
	}
	if f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd) {
		return false
	}
	return true
}

// Reader streams events from a journal file.
type Reader struct {
	file      *os.File
	decoder   *cbor.Decoder
	filter    Filter
	truncated bool
}

// NewReader creates a Reader that returns every event in the file.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader creates a Reader that returns events matching filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{
		file:    f,
		decoder: eventDec.NewDecoder(f),
		filter:  filter,
	}, nil
}

// Next returns the next matching event, or io.EOF at the end of the file.
// A partial event at the end of the file also ends the stream; Truncated
// reports it afterwards.
func (r *Reader) Next() (Event, error) {
	for {
		event, err := readEvent(r.decoder)
		if errors.Is(err, ErrTruncated) {
			r.truncated = true
			return Event{}, io.EOF
		}
		if err != nil {
			return Event{}, err
		}
		if r.filter.Matches(event) {
			return event, nil
		}
	}
}

// Truncated reports whether the file ended in a partial event.
func (r *Reader) Truncated() bool {
	return r.truncated
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
