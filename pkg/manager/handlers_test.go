package manager

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leegang/WifiConfig/pkg/log"
	"github.com/leegang/WifiConfig/pkg/persistence"
	"github.com/leegang/WifiConfig/pkg/radio"
)

const homePage = "<html><body>setup</body></html>"

// provisioningFixture boots a fresh device into provisioning mode.
func provisioningFixture(t *testing.T, configure ...func(*Config)) *fixture {
	t.Helper()
	configure = append([]func(*Config){func(c *Config) {
		c.Assets = fstest.MapFS{"index.html": {Data: []byte(homePage)}}
	}}, configure...)
	f := newFixture(t, configure...)
	require.NoError(t, f.m.Setup(context.Background()))
	require.Equal(t, ModeProvisioning, f.m.Mode())
	return f
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.m.HTTPServer().Router().ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Host = "192.168.1.1"
	return req
}

func TestHandleRoot(t *testing.T) {
	t.Run("Asset", func(t *testing.T) {
		f := provisioningFixture(t)
		rec := f.do(t, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/html", rec.Header().Get("Content-Type"))
		assert.Equal(t, homePage, rec.Body.String())
	})

	t.Run("Missing", func(t *testing.T) {
		f := provisioningFixture(t, func(c *Config) { c.AssetPath = "setup.html" })
		rec := f.do(t, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "File not found", rec.Body.String())
	})

	t.Run("NoAssets", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.m.Setup(context.Background()))
		rec := f.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandleNetworkMode(t *testing.T) {
	f := provisioningFixture(t)
	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/wifi", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"mode":"ap","connected":false}`, rec.Body.String())
}

func TestHandleScan(t *testing.T) {
	f := provisioningFixture(t)
	f.radio.SetNetworks([]radio.SimulatedNetwork{
		homeNetwork,
		{Network: radio.Network{SSID: "Guest", Channel: 11, Strength: -71, Open: true}},
	})
	scan := func() string {
		rec := f.do(t, httptest.NewRequest(http.MethodGet, "/wifi/scan", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		return rec.Body.String()
	}

	// The first request starts a scan that has not completed yet.
	assert.JSONEq(t, `[]`, scan())

	// Within the scan interval no new scan starts and results appear.
	f.clock.Add(time.Second)
	assert.JSONEq(t, `[
		{"ssid":"Home","channel":6,"strength":-48,"open":false},
		{"ssid":"Guest","channel":11,"strength":-71,"open":true}
	]`, scan())
	assert.Len(t, f.journal.byCategory(log.CategoryRadio), 2, "access point + one scan")

	// After the interval a fresh scan discards the old results.
	f.clock.Add(DefaultScanInterval)
	assert.JSONEq(t, `[]`, scan())
	assert.Len(t, f.journal.byCategory(log.CategoryRadio), 3)
}

func TestHandleConnect(t *testing.T) {
	t.Run("JSON", func(t *testing.T) {
		f := provisioningFixture(t)
		commits := f.drv.Commits()

		rec := f.do(t, jsonRequest(http.MethodPost, "/wifi/connect", `{"ssid":"Home","password":"secret123"}`))
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, commits+1, f.drv.Commits())

		committed := f.drv.Committed()
		assert.Equal(t, []byte("CM"), committed[persistence.MarkerOffset:persistence.MarkerOffset+persistence.MarkerSize])
		assert.Equal(t, "Home", strings.TrimRight(string(committed[persistence.NetworkIDOffset:persistence.NetworkIDOffset+persistence.NetworkIDSize]), "\x00"))
		assert.Equal(t, "secret123", strings.TrimRight(string(committed[persistence.SecretOffset:persistence.SecretOffset+persistence.SecretSize]), "\x00"))

		// The restart follows once the loop hands the response back.
		assert.True(t, f.m.RestartPending())
		assert.Empty(t, f.system.Restarts())
		f.m.Loop()
		assert.Equal(t, []string{"credentials changed"}, f.system.Restarts())
	})

	t.Run("Form", func(t *testing.T) {
		f := provisioningFixture(t)
		form := url.Values{"ssid": {"Cafe"}, "password": {""}}
		req := httptest.NewRequest(http.MethodPost, "/wifi/connect", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		rec := f.do(t, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		creds, err := f.store.ReadCredentials()
		require.NoError(t, err)
		assert.Equal(t, persistence.Credentials{NetworkID: "Cafe"}, creds)
	})

	t.Run("Truncated", func(t *testing.T) {
		f := provisioningFixture(t)
		long := strings.Repeat("é", 20) // 40 bytes
		rec := f.do(t, jsonRequest(http.MethodPost, "/wifi/connect", `{"ssid":"`+long+`"}`))
		assert.Equal(t, http.StatusNoContent, rec.Code)

		creds, err := f.store.ReadCredentials()
		require.NoError(t, err)
		assert.Equal(t, strings.Repeat("é", 16), creds.NetworkID)
	})

	invalid := []struct {
		name string
		body string
	}{
		{"EmptySSID", `{"ssid":"","password":"x"}`},
		{"MissingSSID", `{"password":"x"}`},
		{"Malformed", `{"ssid":`},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			f := provisioningFixture(t)
			commits := f.drv.Commits()

			rec := f.do(t, jsonRequest(http.MethodPost, "/wifi/connect", tt.body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "Invalid ssid.", rec.Body.String())
			assert.Equal(t, commits, f.drv.Commits())
			assert.False(t, f.m.RestartPending())
		})
	}

	t.Run("CommitFailure", func(t *testing.T) {
		f := provisioningFixture(t)
		f.drv.CommitErr = errors.New("flash worn out")

		rec := f.do(t, jsonRequest(http.MethodPost, "/wifi/connect", `{"ssid":"Home"}`))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.True(t, f.m.RestartPending(), "restart falls back to the durable record")
	})
}

func TestHandleDisconnect(t *testing.T) {
	f := newFixture(t)
	f.storeCredentials(t, persistence.Credentials{NetworkID: "Home", Secret: "secret123"})
	require.NoError(t, f.m.Setup(context.Background()))
	require.Equal(t, ModeApplication, f.m.Mode())

	rec := f.do(t, httptest.NewRequest(http.MethodPost, "/wifi/disconnect", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, radio.StatusDisconnected, f.radio.Status())

	creds, err := f.store.ReadCredentials()
	require.NoError(t, err)
	assert.True(t, creds.Empty())
	valid, err := f.store.ReadMarker()
	require.NoError(t, err)
	assert.True(t, valid, "record stays valid with empty credentials")

	f.m.Loop()
	assert.Equal(t, []string{"credentials cleared"}, f.system.Restarts())
}

func TestHandleSchema(t *testing.T) {
	f := provisioningFixture(t)
	rec := f.do(t, httptest.NewRequest(http.MethodOptions, "/settings", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[
		{"name":"mqtt","label":"MQTT","params":[
			{"name":"broker","type":"string","access":"read-write"},
			{"name":"port","type":"int","access":"read-write"},
			{"name":"password","type":"string","access":"write"}
		]},
		{"name":"device","params":[
			{"name":"name","type":"string","access":"read-write"},
			{"name":"level","type":"enum","access":"read-write","choices":["debug","info","warn"]}
		]}
	]`, rec.Body.String())
}

func TestHandleSettings(t *testing.T) {
	f := provisioningFixture(t)

	for _, target := range []string{"/settings", "/settings/"} {
		rec := f.do(t, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusOK, rec.Code, target)
		assert.JSONEq(t, `{
			"mqtt":{"broker":"mqtt.local","port":1883},
			"device":{"name":"sensor","level":"info"}
		}`, rec.Body.String(), target)
	}
}

func TestHandleApplySettings(t *testing.T) {
	t.Run("Partial", func(t *testing.T) {
		f := provisioningFixture(t)

		rec := f.do(t, jsonRequest(http.MethodPost, "/settings", `{"mqtt":{"port":8883,"password":"s3cret"}}`))
		assert.Equal(t, http.StatusNoContent, rec.Code)

		assert.Equal(t, int64(8883), f.settings.Port)
		assert.Equal(t, "s3cret", f.settings.Password)
		assert.Equal(t, "mqtt.local", f.settings.Broker)
		assert.Equal(t, "sensor", f.settings.Name, "absent group untouched")

		blob, err := f.store.ReadSettingsBlob()
		require.NoError(t, err)
		fresh, got := newAppRegistry(t)
		require.NoError(t, fresh.DecodeBlob(blob))
		assert.Equal(t, int64(8883), got.Port)
		assert.Equal(t, "s3cret", got.Password)

		f.m.Loop()
		assert.Equal(t, []string{"settings changed"}, f.system.Restarts())
	})

	t.Run("MismatchedFieldSkipped", func(t *testing.T) {
		f := provisioningFixture(t)

		rec := f.do(t, jsonRequest(http.MethodPost, "/settings", `{"device":{"level":"trace","name":"porch"}}`))
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "info", f.settings.Level)
		assert.Equal(t, "porch", f.settings.Name)
	})

	t.Run("WholeNumberForInt", func(t *testing.T) {
		f := provisioningFixture(t)

		rec := f.do(t, jsonRequest(http.MethodPost, "/settings", `{"mqtt":{"port":8.883e3}}`))
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, int64(8883), f.settings.Port)
	})

	for _, body := range []string{`{"mqtt":`, `[1,2]`, ``, `null`, `{"mqtt":{"port":9999}} not json`, `{"mqtt":{"port":9999}}{}`} {
		t.Run("Malformed "+body, func(t *testing.T) {
			f := provisioningFixture(t)
			before := f.drv.Committed()

			rec := f.do(t, jsonRequest(http.MethodPost, "/settings", body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, before, f.drv.Committed())
			assert.Equal(t, int64(1883), f.settings.Port)
			assert.False(t, f.m.RestartPending())
		})
	}

	t.Run("TooLarge", func(t *testing.T) {
		f := provisioningFixture(t)
		big := strings.Repeat("x", persistence.DefaultSettingsSize)

		rec := f.do(t, jsonRequest(http.MethodPost, "/settings", `{"device":{"name":"`+big+`"}}`))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		errs := f.journal.byCategory(log.CategoryError)
		require.NotEmpty(t, errs)
		assert.Equal(t, "encode settings", errs[0].Error.Context)
		assert.True(t, f.m.RestartPending())
	})
}

func TestHandleDeleteSettings(t *testing.T) {
	f := provisioningFixture(t)

	rec := f.do(t, httptest.NewRequest(http.MethodDelete, "/settings", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	valid, err := f.store.ReadMarker()
	require.NoError(t, err)
	assert.False(t, valid)
	assert.Equal(t, []byte{0, 0}, f.drv.Committed()[:persistence.MarkerSize])

	f.m.Loop()
	assert.Equal(t, []string{"settings erased"}, f.system.Restarts())
}

func TestHandleReboot(t *testing.T) {
	f := provisioningFixture(t)

	rec := f.do(t, httptest.NewRequest(http.MethodPost, "/reboot", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	f.m.Loop()
	assert.Equal(t, []string{"reboot requested"}, f.system.Restarts())
}

func TestHandleNotFound(t *testing.T) {
	tests := []struct {
		name         string
		host         string
		path         string
		wantStatus   int
		wantRedirect bool
	}{
		{"ForeignHost", "connectivitycheck.gstatic.com", "/generate_204", http.StatusFound, true},
		{"ForeignHostWithPort", "captive.apple.com:80", "/hotspot-detect.html", http.StatusFound, true},
		{"DeviceAddress", "192.168.1.1", "/missing", http.StatusNotFound, false},
		{"IPv6Literal", "[fe80::1]:80", "/missing", http.StatusNotFound, false},
	}
	f := provisioningFixture(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Host = tt.host
			rec := f.do(t, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "close", rec.Header().Get("Connection"))
			if tt.wantRedirect {
				assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "http://192.168.1.1"),
					"Location = %q", rec.Header().Get("Location"))
			}
		})
	}
}

func TestHandleNotFoundApplicationMode(t *testing.T) {
	f := newFixture(t)
	f.storeCredentials(t, persistence.Credentials{NetworkID: "Home", Secret: "secret123"})
	require.NoError(t, f.m.Setup(context.Background()))

	req := httptest.NewRequest(http.MethodGet, "/generate_204", nil)
	req.Host = "connectivitycheck.gstatic.com"
	rec := f.do(t, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerHooks(t *testing.T) {
	var calls []string
	f := newFixture(t)
	f.m.OnProvisioningServer(func(r chi.Router) {
		calls = append(calls, "provisioning")
		r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "setup"})
		})
	})
	f.m.OnApplicationServer(func(chi.Router) { calls = append(calls, "application") })

	require.NoError(t, f.m.Setup(context.Background()))
	assert.Equal(t, []string{"provisioning"}, calls)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.JSONEq(t, `{"status":"setup"}`, rec.Body.String())
}

func TestRequestsJournaled(t *testing.T) {
	f := provisioningFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/wifi", nil)
	req.RemoteAddr = "192.168.1.23:50312"
	f.do(t, req)
	f.do(t, jsonRequest(http.MethodPost, "/wifi/connect", `{}`))

	reqs := f.journal.byCategory(log.CategoryRequest)
	require.Len(t, reqs, 2)
	assert.Equal(t, "192.168.1.23:50312", reqs[0].RemoteAddr)
	assert.Equal(t, "PROVISIONING", reqs[0].Mode)
	assert.Equal(t, log.RequestEvent{Method: "GET", Path: "/wifi", Host: "example.com", Status: 200}, *reqs[0].Request)
	assert.Equal(t, http.StatusBadRequest, reqs[1].Request.Status)
}

func TestServeOverLoop(t *testing.T) {
	f := provisioningFixture(t)
	addr := f.m.HTTPServer().Addr().String()

	type result struct {
		status int
		body   map[string]any
		err    error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := http.Get("http://" + addr + "/wifi")
		if err != nil {
			done <- result{err: err}
			return
		}
		defer resp.Body.Close()
		var body map[string]any
		err = json.NewDecoder(resp.Body).Decode(&body)
		done <- result{status: resp.StatusCode, body: body, err: err}
	}()

	deadline := time.Now().Add(3 * time.Second)
	for {
		f.m.Loop()
		select {
		case res := <-done:
			require.NoError(t, res.err)
			assert.Equal(t, http.StatusOK, res.status)
			assert.Equal(t, "ap", res.body["mode"])
			return
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("request never served")
		}
		time.Sleep(time.Millisecond)
	}
}
