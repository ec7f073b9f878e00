package web

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	s := New(cfg)
	return s
}

type response struct {
	status int
	body   string
	err    error
}

func get(url string) <-chan response {
	ch := make(chan response, 1)
	go func() {
		resp, err := http.Get(url)
		if err != nil {
			ch <- response{err: err}
			return
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		ch <- response{status: resp.StatusCode, body: string(body)}
	}()
	return ch
}

func TestHandleClientServesOnCallingGoroutine(t *testing.T) {
	s := startServer(t, Config{})
	calls := 0
	s.Router().Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte("pong"))
	})
	require.NoError(t, s.Begin())
	defer s.Close()

	assert.False(t, s.HandleClient(), "HandleClient() with empty queue")

	ch := get("http://" + s.Addr().String() + "/ping")

	deadline := time.After(3 * time.Second)
	for {
		select {
		case resp := <-ch:
			require.NoError(t, resp.err)
			assert.Equal(t, http.StatusOK, resp.status)
			assert.Equal(t, "pong", resp.body)
			assert.Equal(t, 1, calls)
			return
		case <-deadline:
			t.Fatal("no response")
		default:
			s.HandleClient()
			time.Sleep(time.Millisecond)
		}
	}
}

func TestAbandonedRequestIsNotServed(t *testing.T) {
	s := startServer(t, Config{RequestTimeout: 50 * time.Millisecond})
	calls := 0
	s.Router().Get("/slow", func(w http.ResponseWriter, r *http.Request) {
		calls++
	})
	require.NoError(t, s.Begin())
	defer s.Close()

	resp := <-get("http://" + s.Addr().String() + "/slow")
	require.NoError(t, resp.err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.status)

	assert.False(t, s.HandleClient(), "HandleClient() served an abandoned request")
	assert.Equal(t, 0, calls)
}

func TestNotFoundThroughRouter(t *testing.T) {
	s := startServer(t, Config{})
	s.Router().NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Connection", "close")
		w.WriteHeader(http.StatusNotFound)
	})
	require.NoError(t, s.Begin())
	defer s.Close()

	ch := get("http://" + s.Addr().String() + "/missing")
	deadline := time.After(3 * time.Second)
	for {
		select {
		case resp := <-ch:
			require.NoError(t, resp.err)
			assert.Equal(t, http.StatusNotFound, resp.status)
			return
		case <-deadline:
			t.Fatal("no response")
		default:
			s.HandleClient()
			time.Sleep(time.Millisecond)
		}
	}
}

func TestBeginTwice(t *testing.T) {
	s := startServer(t, Config{})
	require.NoError(t, s.Begin())
	defer s.Close()

	assert.True(t, s.Running())
	assert.ErrorIs(t, s.Begin(), ErrAlreadyStarted)
}

func TestCloseBeforeBegin(t *testing.T) {
	s := startServer(t, Config{})
	assert.NoError(t, s.Close())
	assert.False(t, s.Running())
	assert.Nil(t, s.Addr())
}
