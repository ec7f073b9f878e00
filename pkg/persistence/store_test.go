package persistence

import (
	"bytes"
	"errors"
	"testing"
)

// recordingDriver records the offset of every write.
type recordingDriver struct {
	*MemoryDriver
	offsets []int64
}

func (d *recordingDriver) WriteAt(p []byte, off int64) (int, error) {
	d.offsets = append(d.offsets, off)
	return d.MemoryDriver.WriteAt(p, off)
}

func newTestStore(t *testing.T, settingsSize int) (*Store, *MemoryDriver) {
	t.Helper()
	drv := NewMemoryDriver(RequiredSize(settingsSize))
	s, err := New(drv, settingsSize)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s, drv
}

func TestLayoutOffsets(t *testing.T) {
	if NetworkIDOffset != 2 {
		t.Errorf("NetworkIDOffset = %d, want 2", NetworkIDOffset)
	}
	if SecretOffset != 34 {
		t.Errorf("SecretOffset = %d, want 34", SecretOffset)
	}
	if SettingsOffset != 98 {
		t.Errorf("SettingsOffset = %d, want 98", SettingsOffset)
	}
}

func TestNew(t *testing.T) {
	t.Run("Capacity", func(t *testing.T) {
		_, err := New(NewMemoryDriver(RequiredSize(64)-1), 64)
		if !errors.Is(err, ErrCapacity) {
			t.Errorf("New() error = %v, want ErrCapacity", err)
		}
	})

	t.Run("ExactFit", func(t *testing.T) {
		s, err := New(NewMemoryDriver(RequiredSize(64)), 64)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if s.SettingsSize() != 64 {
			t.Errorf("SettingsSize() = %d, want 64", s.SettingsSize())
		}
	})
}

func TestStoreFreshRegion(t *testing.T) {
	s, drv := newTestStore(t, 16)

	// Garbage that must be ignored while the marker is absent.
	drv.WriteAt([]byte("Garbage"), NetworkIDOffset)
	drv.WriteAt([]byte{1, 2, 3}, SettingsOffset)

	ok, err := s.ReadMarker()
	if err != nil {
		t.Fatalf("ReadMarker() error = %v", err)
	}
	if ok {
		t.Error("ReadMarker() = true, want false")
	}

	creds, err := s.ReadCredentials()
	if err != nil {
		t.Fatalf("ReadCredentials() error = %v", err)
	}
	if creds != (Credentials{}) {
		t.Errorf("ReadCredentials() = %+v, want empty", creds)
	}

	blob, err := s.ReadSettingsBlob()
	if err != nil {
		t.Fatalf("ReadSettingsBlob() error = %v", err)
	}
	if !bytes.Equal(blob, make([]byte, 16)) {
		t.Errorf("ReadSettingsBlob() = %v, want zeros", blob)
	}
}

func TestStoreWriteCredentials(t *testing.T) {
	rec := &recordingDriver{MemoryDriver: NewMemoryDriver(RequiredSize(8))}
	s, err := New(rec, 8)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := s.WriteCredentials(Credentials{NetworkID: "Home", Secret: "secret123"}); err != nil {
		t.Fatalf("WriteCredentials() error = %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if last := rec.offsets[len(rec.offsets)-1]; last != MarkerOffset {
		t.Errorf("last write offset = %d, want marker offset %d", last, MarkerOffset)
	}

	img := rec.Committed()
	if !bytes.Equal(img[:2], []byte("CM")) {
		t.Errorf("marker = %q, want \"CM\"", img[:2])
	}
	wantID := append([]byte("Home"), make([]byte, NetworkIDSize-4)...)
	if !bytes.Equal(img[NetworkIDOffset:SecretOffset], wantID) {
		t.Errorf("network id field = %q", img[NetworkIDOffset:SecretOffset])
	}
	wantSecret := append([]byte("secret123"), make([]byte, SecretSize-9)...)
	if !bytes.Equal(img[SecretOffset:SettingsOffset], wantSecret) {
		t.Errorf("secret field = %q", img[SecretOffset:SettingsOffset])
	}

	got, err := s.ReadCredentials()
	if err != nil {
		t.Fatalf("ReadCredentials() error = %v", err)
	}
	if got.NetworkID != "Home" || got.Secret != "secret123" {
		t.Errorf("ReadCredentials() = %+v", got)
	}
}

func TestStoreTruncatesLongValues(t *testing.T) {
	s, _ := newTestStore(t, 0)

	long := bytes.Repeat([]byte("a"), 31)
	// 31 ASCII bytes + a 2-byte rune straddles the 32 byte boundary.
	id := string(long) + "é"
	if err := s.WriteCredentials(Credentials{NetworkID: id}); err != nil {
		t.Fatalf("WriteCredentials() error = %v", err)
	}
	got, _ := s.ReadCredentials()
	if got.NetworkID != string(long) {
		t.Errorf("NetworkID = %q, want %q", got.NetworkID, long)
	}

	full := string(bytes.Repeat([]byte("b"), NetworkIDSize))
	s.WriteCredentials(Credentials{NetworkID: full + "extra"})
	got, _ = s.ReadCredentials()
	if got.NetworkID != full {
		t.Errorf("NetworkID = %q, want %q", got.NetworkID, full)
	}
}

func TestStoreSettingsBlob(t *testing.T) {
	t.Run("RoundTripPadded", func(t *testing.T) {
		s, _ := newTestStore(t, 8)
		if err := s.WriteSettingsBlob([]byte{9, 8, 7}); err != nil {
			t.Fatalf("WriteSettingsBlob() error = %v", err)
		}
		got, err := s.ReadSettingsBlob()
		if err != nil {
			t.Fatalf("ReadSettingsBlob() error = %v", err)
		}
		want := []byte{9, 8, 7, 0, 0, 0, 0, 0}
		if !bytes.Equal(got, want) {
			t.Errorf("ReadSettingsBlob() = %v, want %v", got, want)
		}
	})

	t.Run("TooLarge", func(t *testing.T) {
		s, _ := newTestStore(t, 4)
		err := s.WriteSettingsBlob(make([]byte, 5))
		if !errors.Is(err, ErrBufferSize) {
			t.Errorf("WriteSettingsBlob() error = %v, want ErrBufferSize", err)
		}
	})

	t.Run("MarkerLast", func(t *testing.T) {
		rec := &recordingDriver{MemoryDriver: NewMemoryDriver(RequiredSize(4))}
		s, _ := New(rec, 4)
		s.WriteSettingsBlob([]byte{1})
		if got := rec.offsets; len(got) != 2 || got[0] != SettingsOffset || got[1] != MarkerOffset {
			t.Errorf("write offsets = %v, want [%d %d]", got, SettingsOffset, MarkerOffset)
		}
	})
}

func TestStoreWriteMarkerAndDefaults(t *testing.T) {
	s, drv := newTestStore(t, 4)
	drv.WriteAt([]byte("stale"), NetworkIDOffset)

	if err := s.WriteMarkerAndDefaults([]byte{0, 1, 42}); err != nil {
		t.Fatalf("WriteMarkerAndDefaults() error = %v", err)
	}

	ok, _ := s.ReadMarker()
	if !ok {
		t.Fatal("ReadMarker() = false after defaults")
	}
	creds, _ := s.ReadCredentials()
	if !creds.Empty() {
		t.Errorf("ReadCredentials() = %+v, want empty", creds)
	}
	blob, _ := s.ReadSettingsBlob()
	if !bytes.Equal(blob, []byte{0, 1, 42, 0}) {
		t.Errorf("ReadSettingsBlob() = %v", blob)
	}
}

func TestStoreEraseMarker(t *testing.T) {
	s, drv := newTestStore(t, 4)
	s.WriteCredentials(Credentials{NetworkID: "Home"})
	s.Commit()

	if err := s.EraseMarker(); err != nil {
		t.Fatalf("EraseMarker() error = %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	creds, _ := s.ReadCredentials()
	if !creds.Empty() {
		t.Errorf("ReadCredentials() = %+v after erase, want empty", creds)
	}
	if drv.Commits() != 2 {
		t.Errorf("Commits() = %d, want 2", drv.Commits())
	}
}

func TestStoreUncommittedLostOnReset(t *testing.T) {
	s, drv := newTestStore(t, 4)
	s.WriteCredentials(Credentials{NetworkID: "Home"})
	drv.Reset()

	ok, _ := s.ReadMarker()
	if ok {
		t.Error("ReadMarker() = true after reset without commit")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"abc", 5, "abc"},
		{"abcdef", 3, "abc"},
		{"aé", 2, "a"},
		{"日本", 4, "日"},
		{"", 0, ""},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
