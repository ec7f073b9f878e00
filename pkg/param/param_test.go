package param

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

type settings struct {
	Hostname string
	Port     int64
	Interval float64
	Enabled  bool
	Level    string
	Token    string
	Serial   string
	Debug    bool
}

func newTestRegistry(t *testing.T) (*Registry, *settings) {
	t.Helper()
	s := &settings{
		Hostname: "device",
		Port:     1883,
		Interval: 2.5,
		Enabled:  true,
		Level:    "info",
		Serial:   "SN-001",
	}

	network := NewGroup("network", WithLabel("Network"), WithDescription("Broker connection"))
	network.MustAdd(
		String("hostname", &s.Hostname, AccessReadWrite).WithMaxLength(16),
		Int("port", &s.Port, AccessReadWrite),
		String("token", &s.Token, AccessWrite),
		Float("interval", &s.Interval, AccessReadWrite),
	)

	system := NewGroup("system")
	system.MustAdd(
		Bool("enabled", &s.Enabled, AccessReadWrite),
		Enum("level", &s.Level, AccessReadWrite, "debug", "info", "warn"),
		String("serial", &s.Serial, AccessRead),
		NewGroup("advanced").MustAdd(Bool("debug", &s.Debug, AccessReadWrite)),
	)

	r := NewRegistry()
	if err := r.Add(network, system); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	return r, s
}

// decodeJSON mirrors how an HTTP request body reaches FromDocument.
func decodeJSON(t *testing.T, s string) map[string]any {
	t.Helper()
	var doc map[string]any
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	return doc
}

func TestAccessString(t *testing.T) {
	tests := []struct {
		a    Access
		want string
	}{
		{AccessRead, "read"},
		{AccessWrite, "write"},
		{AccessReadWrite, "read-write"},
		{0, "none"},
	}
	for _, tt := range tests {
		if got := tt.a.String(); got != tt.want {
			t.Errorf("Access(%d).String() = %q, want %q", tt.a, got, tt.want)
		}
		if tt.a == 0 {
			continue
		}
		parsed, err := ParseAccess(tt.want)
		if err != nil || parsed != tt.a {
			t.Errorf("ParseAccess(%q) = %v, %v, want %v", tt.want, parsed, err, tt.a)
		}
	}
}

func TestDuplicateNames(t *testing.T) {
	t.Run("Parameter", func(t *testing.T) {
		g := NewGroup("g")
		if err := g.Add(Bool("a", nil, AccessRead)); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
		err := g.Add(Int("a", nil, AccessRead))
		if !errors.Is(err, ErrDuplicateName) {
			t.Errorf("Add() error = %v, want ErrDuplicateName", err)
		}
		if len(g.Children()) != 1 {
			t.Errorf("Children() len = %d, want 1", len(g.Children()))
		}
	})

	t.Run("GroupVsParameter", func(t *testing.T) {
		g := NewGroup("g")
		g.MustAdd(NewGroup("x"))
		if err := g.Add(Bool("x", nil, AccessRead)); !errors.Is(err, ErrDuplicateName) {
			t.Errorf("Add() error = %v, want ErrDuplicateName", err)
		}
	})

	t.Run("Registry", func(t *testing.T) {
		r := NewRegistry()
		r.Add(NewGroup("g"))
		if err := r.Add(NewGroup("g")); !errors.Is(err, ErrDuplicateName) {
			t.Errorf("Add() error = %v, want ErrDuplicateName", err)
		}
	})

	t.Run("EmptyName", func(t *testing.T) {
		if err := NewRegistry().Add(NewGroup("")); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Add() error = %v, want ErrInvalidName", err)
		}
	})
}

func TestSchema(t *testing.T) {
	r, _ := newTestRegistry(t)

	data, err := json.Marshal(r.Schema())
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	want := `[` +
		`{"name":"network","label":"Network","description":"Broker connection","params":[` +
		`{"name":"hostname","type":"string","access":"read-write","maxLength":16},` +
		`{"name":"port","type":"int","access":"read-write"},` +
		`{"name":"token","type":"string","access":"write"},` +
		`{"name":"interval","type":"float","access":"read-write"}]},` +
		`{"name":"system","params":[` +
		`{"name":"enabled","type":"bool","access":"read-write"},` +
		`{"name":"level","type":"enum","access":"read-write","choices":["debug","info","warn"]},` +
		`{"name":"serial","type":"string","access":"read"},` +
		`{"name":"advanced","params":[{"name":"debug","type":"bool","access":"read-write"}]}]}` +
		`]`
	if string(data) != want {
		t.Errorf("Schema() =\n%s\nwant\n%s", data, want)
	}
}

func TestSchemaEmptyGroup(t *testing.T) {
	r := NewRegistry()
	r.Add(NewGroup("empty"))

	data, _ := json.Marshal(r.Schema())
	if got, want := string(data), `[{"name":"empty","params":[]}]`; got != want {
		t.Errorf("Schema() = %s, want %s", got, want)
	}
}

func TestDocument(t *testing.T) {
	r, _ := newTestRegistry(t)
	doc := r.Document()

	network := doc["network"].(map[string]any)
	if _, ok := network["token"]; ok {
		t.Error("Document() contains write-only parameter token")
	}
	if network["port"] != int64(1883) {
		t.Errorf("network.port = %v, want 1883", network["port"])
	}

	system := doc["system"].(map[string]any)
	if system["serial"] != "SN-001" {
		t.Errorf("system.serial = %v, want SN-001", system["serial"])
	}
	advanced := system["advanced"].(map[string]any)
	if advanced["debug"] != false {
		t.Errorf("system.advanced.debug = %v, want false", advanced["debug"])
	}
}

func TestFromDocument(t *testing.T) {
	t.Run("AppliesAllKinds", func(t *testing.T) {
		r, s := newTestRegistry(t)
		doc := decodeJSON(t, `{
			"network": {"hostname": "kitchen", "port": 8883, "token": "t0k", "interval": 10},
			"system": {"enabled": false, "level": "debug", "advanced": {"debug": true}}
		}`)

		if err := r.FromDocument(doc); err != nil {
			t.Fatalf("FromDocument() error = %v", err)
		}
		want := settings{
			Hostname: "kitchen", Port: 8883, Interval: 10, Enabled: false,
			Level: "debug", Token: "t0k", Serial: "SN-001", Debug: true,
		}
		if *s != want {
			t.Errorf("settings = %+v, want %+v", *s, want)
		}
	})

	t.Run("PartialDocument", func(t *testing.T) {
		r, s := newTestRegistry(t)
		before := *s

		if err := r.FromDocument(decodeJSON(t, `{"system": {"level": "warn"}}`)); err != nil {
			t.Fatalf("FromDocument() error = %v", err)
		}
		want := before
		want.Level = "warn"
		if *s != want {
			t.Errorf("settings = %+v, want %+v", *s, want)
		}
	})

	t.Run("GroupNotObject", func(t *testing.T) {
		r, s := newTestRegistry(t)
		before := *s

		err := r.FromDocument(decodeJSON(t, `{"network": 5, "system": {"enabled": false}}`))
		var fe *FieldError
		if !errors.As(err, &fe) || fe.Path != "network" {
			t.Errorf("FromDocument() error = %v, want FieldError for network", err)
		}
		if s.Hostname != before.Hostname || s.Enabled {
			t.Errorf("settings = %+v", *s)
		}
	})

	t.Run("MismatchesSkipped", func(t *testing.T) {
		r, s := newTestRegistry(t)

		err := r.FromDocument(decodeJSON(t, `{"network": {
			"hostname": "this-name-is-far-too-long",
			"port": 1.5,
			"interval": "fast"
		}, "system": {"level": "verbose", "enabled": "yes", "advanced": {"debug": true}}}`))
		if err == nil {
			t.Fatal("FromDocument() error = nil, want skipped fields")
		}
		for _, field := range []string{"network.hostname", "network.port", "network.interval", "system.level", "system.enabled"} {
			if !strings.Contains(err.Error(), field) {
				t.Errorf("error %q does not mention %s", err, field)
			}
		}
		if !errors.Is(err, ErrValueType) || !errors.Is(err, ErrValueTooLong) || !errors.Is(err, ErrInvalidChoice) {
			t.Errorf("error %v missing a sentinel", err)
		}
		if s.Hostname != "device" || s.Port != 1883 || s.Level != "info" || !s.Enabled {
			t.Errorf("mismatched fields changed: %+v", *s)
		}
		if !s.Debug {
			t.Error("valid nested field not applied")
		}
	})

	t.Run("ReadOnlyIgnored", func(t *testing.T) {
		r, s := newTestRegistry(t)
		if err := r.FromDocument(decodeJSON(t, `{"system": {"serial": "hacked"}}`)); err != nil {
			t.Fatalf("FromDocument() error = %v", err)
		}
		if s.Serial != "SN-001" {
			t.Errorf("serial = %q, want unchanged", s.Serial)
		}
	})

	t.Run("UnknownKeysIgnored", func(t *testing.T) {
		r, _ := newTestRegistry(t)
		if err := r.FromDocument(decodeJSON(t, `{"other": {"x": 1}, "network": {"nope": 1}}`)); err != nil {
			t.Errorf("FromDocument() error = %v", err)
		}
	})

	t.Run("JSONNumber", func(t *testing.T) {
		r, s := newTestRegistry(t)
		doc := map[string]any{"network": map[string]any{"port": json.Number("42"), "interval": json.Number("0.25")}}
		if err := r.FromDocument(doc); err != nil {
			t.Fatalf("FromDocument() error = %v", err)
		}
		if s.Port != 42 || s.Interval != 0.25 {
			t.Errorf("port, interval = %d, %v", s.Port, s.Interval)
		}
	})

	t.Run("WholeNumberForms", func(t *testing.T) {
		for _, tc := range []struct {
			in   string
			want int64
			ok   bool
		}{
			{"3.0", 3, true},
			{"1e3", 1000, true},
			{"-2E1", -20, true},
			{"2.5", 0, false},
			{"1e30", 0, false},
		} {
			r, s := newTestRegistry(t)
			before := s.Port
			err := r.FromDocument(map[string]any{"network": map[string]any{"port": json.Number(tc.in)}})
			if tc.ok {
				if err != nil || s.Port != tc.want {
					t.Errorf("port %s: got %d, err %v; want %d", tc.in, s.Port, err, tc.want)
				}
				continue
			}
			if err == nil || s.Port != before {
				t.Errorf("port %s: got %d, err %v; want skipped", tc.in, s.Port, err)
			}
		}
	})
}

func TestDocumentRoundTrip(t *testing.T) {
	r, s := newTestRegistry(t)
	s.Hostname = "porch"
	s.Port = 1
	s.Debug = true
	doc := r.Document()

	data, _ := json.Marshal(doc)
	r2, s2 := newTestRegistry(t)
	if err := r2.FromDocument(decodeJSON(t, string(data))); err != nil {
		t.Fatalf("FromDocument() error = %v", err)
	}
	if !reflect.DeepEqual(r2.Document(), doc) {
		t.Errorf("Document() after round trip = %v, want %v", r2.Document(), doc)
	}
	if s2.Hostname != "porch" || s2.Port != 1 || !s2.Debug {
		t.Errorf("settings = %+v", *s2)
	}

	// Applying the same document twice is a no-op.
	first := *s2
	r2.FromDocument(decodeJSON(t, string(data)))
	if *s2 != first {
		t.Errorf("second apply changed settings: %+v -> %+v", first, *s2)
	}
}

func TestLookup(t *testing.T) {
	r, _ := newTestRegistry(t)

	tests := []struct {
		path string
		want string
	}{
		{"network.port", "port"},
		{"system.advanced.debug", "debug"},
		{"system.advanced", ""},
		{"missing.port", ""},
		{"network", ""},
	}
	for _, tt := range tests {
		p := r.Lookup(tt.path)
		got := ""
		if p != nil {
			got = p.Name()
		}
		if got != tt.want {
			t.Errorf("Lookup(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestParameterSet(t *testing.T) {
	p := String("serial", nil, AccessRead)
	if err := p.Set("x"); !errors.Is(err, ErrNotWritable) {
		t.Errorf("Set() error = %v, want ErrNotWritable", err)
	}

	i := Int("n", nil, AccessReadWrite)
	if err := i.Set(float64(1 << 62)); err != nil {
		t.Errorf("Set(2^62) error = %v", err)
	}
	if err := i.Set(1e300); !errors.Is(err, ErrValueType) {
		t.Errorf("Set(1e300) error = %v, want ErrValueType", err)
	}
}
