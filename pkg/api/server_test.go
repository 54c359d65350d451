package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepdrone/deepdrone/pkg/chat"
	"github.com/deepdrone/deepdrone/pkg/config"
	"github.com/deepdrone/deepdrone/pkg/drone"
	"github.com/deepdrone/deepdrone/pkg/model"
	"github.com/deepdrone/deepdrone/pkg/sandbox"
	"github.com/deepdrone/deepdrone/pkg/telemetry"
)

type cannedCompleter struct {
	reply string
}

func (c *cannedCompleter) Chat(_ context.Context, _ []model.Message) string {
	return c.reply
}

type apiRig struct {
	server *httptest.Server
	sess   *drone.Session
	hub    *telemetry.Hub
}

func newAPIRig(t *testing.T, reply string) *apiRig {
	t.Helper()
	appCfg := config.DefaultConfig()
	hub := telemetry.NewHub()
	sess := drone.NewSession(drone.DialSim(drone.DefaultSimConfig()), nil, hub)
	sess.SetSettleDelay(0)
	exec := sandbox.NewExecutor(sandbox.DefaultConfig(), drone.Capabilities(sess), nil)
	coord := chat.NewCoordinator(chat.Config{
		ConnectionString: appCfg.Drone.ConnectionString,
	}, &cannedCompleter{reply: reply}, sess, exec, nil, hub)

	srv := NewServer(appCfg, coord, sess, nil, hub, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	t.Cleanup(hub.Close)
	return &apiRig{server: ts, sess: sess, hub: hub}
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func TestChatEndpointRunsSnippets(t *testing.T) {
	rig := newAPIRig(t, "Taking off.\n\n```python\nconnect_drone('tcp:127.0.0.1:5762')\ntakeoff(30)\n```")

	resp := postJSON(t, rig.server.URL+"/api/chat", map[string]string{"message": "take off to 30m"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result chat.TurnResult
	decodeBody(t, resp, &result)
	assert.Contains(t, result.AssistantText, "Taking off.")
	require.Len(t, result.Executions, 1)
	assert.Equal(t, drone.StateAirborne, rig.sess.State())
}

func TestChatEndpointRejectsEmptyMessage(t *testing.T) {
	rig := newAPIRig(t, "unused")

	resp := postJSON(t, rig.server.URL+"/api/chat", map[string]string{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExecuteEndpoint(t *testing.T) {
	rig := newAPIRig(t, "unused")

	resp := postJSON(t, rig.server.URL+"/api/execute", map[string]string{
		"code": "print('hello from sandbox')",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result executeResponse
	decodeBody(t, resp, &result)
	assert.Equal(t, "hello from sandbox", result.Output)
	assert.Empty(t, result.Error)
}

func TestConnectAndDisconnectEndpoints(t *testing.T) {
	rig := newAPIRig(t, "unused")

	resp := postJSON(t, rig.server.URL+"/api/drone/connect", map[string]string{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var connected map[string]any
	decodeBody(t, resp, &connected)
	assert.Equal(t, config.DefaultConnectionString, connected["connection_string"])
	assert.True(t, rig.sess.Connected())

	resp = postJSON(t, rig.server.URL+"/api/drone/disconnect", map[string]string{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	assert.False(t, rig.sess.Connected())
	assert.Equal(t, drone.StateStandby, rig.sess.State())
}

func TestMissionEndpointValidation(t *testing.T) {
	rig := newAPIRig(t, "unused")
	require.True(t, rig.sess.Connect(context.Background(), "tcp:127.0.0.1:5762"))
	require.True(t, rig.sess.Takeoff(context.Background(), 30))

	resp := postJSON(t, rig.server.URL+"/api/drone/mission", map[string]any{
		"waypoints": []map[string]float64{{"lat": 1, "lon": 2}},
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, rig.server.URL+"/api/drone/mission", map[string]any{
		"waypoints": []map[string]float64{
			{"lat": -35.36, "lon": 149.16, "alt": 30},
			{"lat": -35.37, "lon": 149.17, "alt": 30},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result drone.MissionResult
	decodeBody(t, resp, &result)
	assert.Equal(t, drone.MissionComplete, result.Status)
	assert.Equal(t, 2, result.Completed)
}

func TestInterruptEndpoint(t *testing.T) {
	rig := newAPIRig(t, "unused")
	require.True(t, rig.sess.Connect(context.Background(), "tcp:127.0.0.1:5762"))

	resp := postJSON(t, rig.server.URL+"/api/interrupt", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.False(t, rig.sess.Connected())
	assert.True(t, rig.sess.InterruptPending())
}

func TestStatusEndpoint(t *testing.T) {
	rig := newAPIRig(t, "unused")
	require.True(t, rig.sess.Connect(context.Background(), "tcp:127.0.0.1:5762"))

	resp, err := http.Get(rig.server.URL + "/api/status")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Drone drone.Snapshot `json:"drone"`
	}
	decodeBody(t, resp, &payload)
	assert.True(t, payload.Drone.Connected)
	assert.Equal(t, drone.StateConnected, payload.Drone.State)
}

func TestListModelsEndpoint(t *testing.T) {
	rig := newAPIRig(t, "unused")

	resp, err := http.Get(rig.server.URL + "/api/models")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Models []modelSummary `json:"models"`
	}
	decodeBody(t, resp, &payload)
	require.NotEmpty(t, payload.Models)

	names := make(map[string]bool, len(payload.Models))
	for _, m := range payload.Models {
		names[m.Name] = true
	}
	assert.True(t, names[config.DefaultModel], "default catalog model should be listed")
}

func TestMetricsEndpoint(t *testing.T) {
	rig := newAPIRig(t, "unused")

	resp, err := http.Get(rig.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebSocketStreamsTelemetry(t *testing.T) {
	rig := newAPIRig(t, "unused")

	wsURL := "ws" + strings.TrimPrefix(rig.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the handler a moment to register its hub subscription.
	time.Sleep(100 * time.Millisecond)
	require.True(t, rig.sess.Connect(context.Background(), "tcp:127.0.0.1:5762"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev telemetry.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, telemetry.EventVehicleConnected, ev.Type)
}
