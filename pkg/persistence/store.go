package persistence

import (
	"bytes"
	"fmt"
	"unicode/utf8"
)

// Record layout.
const (
	MarkerOffset = 0
	MarkerSize   = 2

	NetworkIDOffset = MarkerOffset + MarkerSize
	NetworkIDSize   = 32

	SecretOffset = NetworkIDOffset + NetworkIDSize
	SecretSize   = 64

	SettingsOffset = SecretOffset + SecretSize

	// DefaultSettingsSize is the settings blob width used when none is configured.
	DefaultSettingsSize = 512
)

// Marker identifies an initialized record.
var Marker = [MarkerSize]byte{'C', 'M'}

// Credentials are the network join credentials.
type Credentials struct {
	NetworkID string
	Secret    string
}

// Empty reports whether no network is configured.
func (c Credentials) Empty() bool {
	return c.NetworkID == ""
}

// RequiredSize returns the region size needed for a settings blob of n bytes.
func RequiredSize(settingsSize int) int {
	return SettingsOffset + settingsSize
}

// Store reads and writes the provisioning record over a Driver.
type Store struct {
	drv          Driver
	settingsSize int
}

// New creates a Store. It fails with ErrCapacity when the driver region cannot
// hold the layout with the requested settings blob width.
func New(drv Driver, settingsSize int) (*Store, error) {
	if settingsSize < 0 {
		return nil, fmt.Errorf("%w: negative settings size %d", ErrCapacity, settingsSize)
	}
	if need := RequiredSize(settingsSize); drv.Len() < need {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrCapacity, need, drv.Len())
	}
	return &Store{drv: drv, settingsSize: settingsSize}, nil
}

// SettingsSize returns the width of the settings blob.
func (s *Store) SettingsSize() int {
	return s.settingsSize
}

// ReadMarker reports whether the record carries a valid marker.
func (s *Store) ReadMarker() (bool, error) {
	var m [MarkerSize]byte
	if _, err := s.drv.ReadAt(m[:], MarkerOffset); err != nil {
		return false, err
	}
	return m == Marker, nil
}

// WriteMarkerAndDefaults initializes a fresh record: empty credentials, the
// given default settings blob, then the marker.
func (s *Store) WriteMarkerAndDefaults(defaults []byte) error {
	if err := s.writeCredentialFields(Credentials{}); err != nil {
		return err
	}
	if err := s.writeSettingsField(defaults); err != nil {
		return err
	}
	return s.writeMarker()
}

// ReadCredentials returns the stored credentials, or empty credentials when
// the marker is invalid.
func (s *Store) ReadCredentials() (Credentials, error) {
	ok, err := s.ReadMarker()
	if err != nil || !ok {
		return Credentials{}, err
	}

	id, err := s.readString(NetworkIDOffset, NetworkIDSize)
	if err != nil {
		return Credentials{}, err
	}
	secret, err := s.readString(SecretOffset, SecretSize)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{NetworkID: id, Secret: secret}, nil
}

// WriteCredentials stores credentials and rewrites the marker.
// Values longer than their field are truncated at a UTF-8 boundary.
func (s *Store) WriteCredentials(c Credentials) error {
	if err := s.writeCredentialFields(c); err != nil {
		return err
	}
	return s.writeMarker()
}

// ReadSettingsBlob returns the settings blob, or a zeroed blob when the
// marker is invalid.
func (s *Store) ReadSettingsBlob() ([]byte, error) {
	blob := make([]byte, s.settingsSize)
	ok, err := s.ReadMarker()
	if err != nil || !ok {
		return blob, err
	}
	if _, err := s.drv.ReadAt(blob, SettingsOffset); err != nil {
		return nil, err
	}
	return blob, nil
}

// WriteSettingsBlob stores the settings blob and rewrites the marker.
// Blobs shorter than the field are zero padded.
func (s *Store) WriteSettingsBlob(blob []byte) error {
	if err := s.writeSettingsField(blob); err != nil {
		return err
	}
	return s.writeMarker()
}

// EraseMarker invalidates the record. Other fields are left in place but are
// no longer returned by reads.
func (s *Store) EraseMarker() error {
	var zero [MarkerSize]byte
	_, err := s.drv.WriteAt(zero[:], MarkerOffset)
	return err
}

// Commit makes staged writes durable.
func (s *Store) Commit() error {
	return s.drv.Commit()
}

func (s *Store) writeMarker() error {
	_, err := s.drv.WriteAt(Marker[:], MarkerOffset)
	return err
}

func (s *Store) writeCredentialFields(c Credentials) error {
	if _, err := s.drv.WriteAt(padField(c.NetworkID, NetworkIDSize), NetworkIDOffset); err != nil {
		return err
	}
	_, err := s.drv.WriteAt(padField(c.Secret, SecretSize), SecretOffset)
	return err
}

func (s *Store) writeSettingsField(blob []byte) error {
	if len(blob) > s.settingsSize {
		return fmt.Errorf("%w: settings blob %d bytes, field %d", ErrBufferSize, len(blob), s.settingsSize)
	}
	field := make([]byte, s.settingsSize)
	copy(field, blob)
	_, err := s.drv.WriteAt(field, SettingsOffset)
	return err
}

func (s *Store) readString(off int64, width int) (string, error) {
	buf := make([]byte, width)
	if _, err := s.drv.ReadAt(buf, off); err != nil {
		return "", err
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf), nil
}

// padField returns s as a NUL-padded field of the given width.
func padField(s string, width int) []byte {
	field := make([]byte, width)
	copy(field, Truncate(s, width))
	return field
}

// Truncate shortens s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
