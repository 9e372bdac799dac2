// internal/server/server_test.go
package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shark-minister/atlas-bey/internal/protocol"
	"github.com/shark-minister/atlas-bey/internal/session"
	"github.com/shark-minister/atlas-bey/internal/transport/sim"
)

type fixture struct {
	dev  *sim.Device
	sess *session.Session
	hub  *WSHub
	srv  *httptest.Server
}

func newFixture(t *testing.T, version uint16) *fixture {
	t.Helper()

	dev := sim.New(version)
	hub := NewWSHub()
	sess := session.New(sim.NewTransport(dev), session.WithObserver(hub.Observe))
	t.Cleanup(sess.Close)

	s := New(sess, hub, Config{OpTimeout: time.Second, ScanTimeout: time.Second}, zerolog.Nop())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	return &fixture{dev: dev, sess: sess, hub: hub, srv: srv}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()

	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func TestHealth(t *testing.T) {
	f := newFixture(t, protocol.Version130)

	resp, body := f.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var h HealthResponse
	require.NoError(t, json.Unmarshal(body, &h))
	assert.True(t, h.OK)
}

func TestNotConnectedIsConflict(t *testing.T) {
	f := newFixture(t, protocol.Version130)

	resp, body := f.do(t, http.MethodGet, "/api/params", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var e APIError
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, uint16(3), e.Code)
}

func TestConnectReadWriteParams(t *testing.T) {
	f := newFixture(t, 0x1205)

	resp, body := f.do(t, http.MethodPost, "/api/connect", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var info DeviceInfoResponse
	require.NoError(t, json.Unmarshal(body, &info))
	assert.Equal(t, "1.2+", info.Generation)
	assert.Equal(t, "1.2.5", info.Version)

	resp, _ = f.do(t, http.MethodGet, "/api/params", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// partial body patches the cached block
	resp, body = f.do(t, http.MethodPost, "/api/params", map[string]interface{}{"launchLatencyMs": 1500})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var p protocol.Parameters
	require.NoError(t, json.Unmarshal(body, &p))
	assert.Equal(t, uint32(1500), p.LaunchLatencyMs)
	assert.Equal(t, uint32(10000), p.Launcher1.ShootPower)

	assert.Equal(t, byte(150), f.dev.Params()[1])
}

func TestEncodeInvariantIsBadRequest(t *testing.T) {
	f := newFixture(t, protocol.Version130)
	f.do(t, http.MethodPost, "/api/connect", nil)

	resp, _ := f.do(t, http.MethodPost, "/api/params", map[string]interface{}{"launchLatencyMs": 1505})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatistics(t *testing.T) {
	f := newFixture(t, protocol.Version130)
	f.do(t, http.MethodPost, "/api/connect", nil)

	f.dev.Shoot(8000)
	f.dev.Shoot(8200)

	resp, body := f.do(t, http.MethodGet, "/api/statistics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var st StatisticsResponse
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, uint16(2), st.Statistics.TotalShots)
	assert.Equal(t, []uint32{1, 1}, st.Histogram.Counts)
	assert.Equal(t, uint32(2), st.Summary.Shots)
}

func TestIncompleteHistogramKeepsHeader(t *testing.T) {
	f := newFixture(t, protocol.Version130)
	f.do(t, http.MethodPost, "/api/connect", nil)

	f.dev.Shoot(9000)
	f.dev.FailChunk(2)

	resp, body := f.do(t, http.MethodGet, "/api/statistics", nil)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var st StatisticsResponse
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, uint16(1), st.Statistics.TotalShots)
	assert.Contains(t, st.Error, "incomplete histogram")
}

func TestCommands(t *testing.T) {
	f := newFixture(t, protocol.Version130)
	f.do(t, http.MethodPost, "/api/connect", nil)

	resp, _ := f.do(t, http.MethodPost, "/api/auto-mode", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, f.dev.AutoMode())

	resp, _ = f.do(t, http.MethodGet, "/api/launch", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/disconnect", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/launch", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestEventStream(t *testing.T) {
	f := newFixture(t, protocol.Version130)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws/events"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.Eventually(t, func() bool { return f.hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	resp, _ := f.do(t, http.MethodPost, "/api/scan", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, "session.selected", msg.Type)
}

func TestBroadcastDropsClosedClient(t *testing.T) {
	f := newFixture(t, protocol.Version130)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws/events"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, ws.Close())
	require.Eventually(t, func() bool {
		f.hub.Broadcast(WSMessage{Type: "ping"})
		return f.hub.Len() == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestWriteParamsBeforeReadIsRefused(t *testing.T) {
	f := newFixture(t, protocol.Version130)
	f.do(t, http.MethodPost, "/api/connect", nil)
	f.dev.ResetWrites()

	resp, _ := f.do(t, http.MethodPost, "/api/params", map[string]interface{}{"shootDelayMs": 100})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Empty(t, f.dev.Writes())
}
