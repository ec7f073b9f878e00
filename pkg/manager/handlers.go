package manager

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tidwall/gjson"

	"github.com/leegang/WifiConfig/pkg/log"
	"github.com/leegang/WifiConfig/pkg/persistence"
	"github.com/leegang/WifiConfig/pkg/radio"
)

const (
	mimeHTML  = "text/html"
	mimeJSON  = "application/json"
	mimePlain = "text/plain"
)

// routes registers the configuration API. Hooks may add routes afterwards
// but must not add middleware.
func (m *Manager) routes(r chi.Router) {
	r.Use(middleware.StripSlashes)
	r.Use(m.journalRequests)

	r.Get("/", m.handleRoot)

	r.Get("/wifi", m.handleNetworkMode)
	r.Get("/wifi/scan", m.handleScan)
	r.Post("/wifi/connect", m.handleConnect)
	r.Post("/wifi/disconnect", m.handleDisconnect)

	r.Options("/settings", m.handleSchema)
	r.Get("/settings", m.handleSettings)
	r.Post("/settings", m.handleApplySettings)
	r.Delete("/settings", m.handleDeleteSettings)

	r.Post("/reboot", m.handleReboot)

	r.NotFound(m.handleNotFound)
}

// journalRequests records every handled request in the journal.
func (m *Manager) journalRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := m.clock.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.journal.Request(r.RemoteAddr, log.RequestEvent{
			Method:   r.Method,
			Path:     r.URL.Path,
			Host:     r.Host,
			Status:   status,
			Duration: m.clock.Now().Sub(start),
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", mimeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", mimePlain)
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

// handleRoot streams the home page asset.
func (m *Manager) handleRoot(w http.ResponseWriter, r *http.Request) {
	if m.cfg.Assets == nil {
		writeText(w, http.StatusNotFound, "File not found")
		return
	}
	f, err := m.cfg.Assets.Open(m.cfg.AssetPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			m.logger.Warn("open asset", "path", m.cfg.AssetPath, "error", err)
		}
		writeText(w, http.StatusNotFound, "File not found")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", mimeHTML)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		m.logger.Debug("stream asset", "error", err)
	}
}

// networkModeResponse is the body of GET /wifi.
type networkModeResponse struct {
	Mode      string `json:"mode"`
	Connected bool   `json:"connected"`
}

func (m *Manager) handleNetworkMode(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, networkModeResponse{
		Mode:      m.radio.Mode().String(),
		Connected: m.radio.Status() == radio.StatusConnected,
	})
}

// handleScan starts a scan at most once per ScanInterval and returns the
// last completed results.
func (m *Manager) handleScan(w http.ResponseWriter, r *http.Request) {
	now := m.clock.Now()
	if m.lastScan.IsZero() || now.Sub(m.lastScan) >= m.cfg.ScanInterval {
		err := m.radio.StartScan()
		switch {
		case err == nil:
			m.lastScan = now
			m.journal.Radio(log.RadioEvent{Op: log.RadioOpScan})
		case errors.Is(err, radio.ErrScanInProgress):
		default:
			m.logger.Warn("start scan", "error", err)
		}
	}

	networks, done := m.radio.ScanResults()
	if !done || networks == nil {
		networks = []radio.Network{}
	}
	writeJSON(w, http.StatusOK, networks)
}

// connectFields reads ssid and password from a JSON or form body.
func connectFields(w http.ResponseWriter, r *http.Request) (ssid, password string) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), mimeJSON) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
		if err != nil || !gjson.ValidBytes(body) {
			return "", ""
		}
		res := gjson.GetManyBytes(body, "ssid", "password")
		return res[0].String(), res[1].String()
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	return r.PostFormValue("ssid"), r.PostFormValue("password")
}

func (m *Manager) handleConnect(w http.ResponseWriter, r *http.Request) {
	ssid, password := connectFields(w, r)
	if ssid == "" {
		writeText(w, http.StatusBadRequest, "Invalid ssid.")
		return
	}

	creds := persistence.Credentials{NetworkID: ssid, Secret: password}
	if err := m.SaveCredentials(creds); err != nil {
		writeText(w, http.StatusInternalServerError, "Could not save credentials.")
	} else {
		m.logger.Info("credentials saved", "ssid", ssid)
		w.WriteHeader(http.StatusNoContent)
	}
	m.requestRestart("credentials changed")
}

func (m *Manager) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := m.radio.Disconnect(); err != nil && !errors.Is(err, radio.ErrNotConnected) {
		m.logger.Warn("station disconnect", "error", err)
	}
	m.journal.Radio(log.RadioEvent{Op: log.RadioOpDisconnect, SSID: m.creds.NetworkID})

	if err := m.SaveCredentials(persistence.Credentials{}); err != nil {
		writeText(w, http.StatusInternalServerError, "Could not clear credentials.")
	} else {
		w.WriteHeader(http.StatusNoContent)
	}
	m.requestRestart("credentials cleared")
}

func (m *Manager) handleSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, m.registry.Schema())
}

func (m *Manager) handleSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, m.registry.Document())
}

// handleApplySettings applies a settings document, persists it and restarts.
// A body that is not a JSON object is rejected before anything changes.
func (m *Manager) handleApplySettings(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil || doc == nil || !atEOF(dec) {
		writeText(w, http.StatusBadRequest, "Invalid settings document.")
		return
	}

	if err := m.registry.FromDocument(doc); err != nil {
		m.logger.Warn("settings fields skipped", "error", err)
	}

	if err := m.Save(); err != nil {
		writeText(w, http.StatusInternalServerError, "Could not save settings.")
	} else {
		w.WriteHeader(http.StatusNoContent)
	}
	m.requestRestart("settings changed")
}

// atEOF reports whether only whitespace follows the decoded value.
func atEOF(dec *json.Decoder) bool {
	_, err := dec.Token()
	return errors.Is(err, io.EOF)
}

func (m *Manager) handleDeleteSettings(w http.ResponseWriter, r *http.Request) {
	if err := m.EraseSettings(); err != nil {
		writeText(w, http.StatusInternalServerError, "Could not erase settings.")
	} else {
		w.WriteHeader(http.StatusNoContent)
	}
	m.requestRestart("settings erased")
}

func (m *Manager) handleReboot(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
	m.requestRestart("reboot requested")
}

// handleNotFound redirects clients that asked for a foreign host to the
// access point while provisioning. The connection is closed after either
// response.
func (m *Manager) handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Connection", "close")
	if m.mode == ModeProvisioning && !isIPHost(r.Host) {
		w.Header().Set("Location", m.portalURL())
		w.WriteHeader(http.StatusFound)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

// portalURL is the captive portal address.
func (m *Manager) portalURL() string {
	host := m.cfg.APAddress.Addr().String()
	if port := m.webPort(); port != 0 && port != 80 {
		host = net.JoinHostPort(host, strconv.Itoa(int(port)))
	}
	return "http://" + host
}

// isIPHost reports whether a Host header names an IP literal.
func isIPHost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	_, err := netip.ParseAddr(host)
	return err == nil
}
