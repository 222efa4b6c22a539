package http

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heartfail/ml"
)

func dialLive(t *testing.T, hub *LiveHub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(NewHandler(DefaultServerConfig(), hub))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/classify"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readLive(t *testing.T, conn *websocket.Conn) liveMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg liveMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestLiveClassify(t *testing.T) {
	setup(t, &ml.Model{Classifier: fixedClassifier{label: 1}, Version: "v3"})
	hub := NewLiveHub()
	go hub.Run()
	t.Cleanup(hub.Stop)
	conn := dialLive(t, hub)

	require.NoError(t, conn.WriteJSON(map[string]any{"measurements": map[string]any{"age": 40}}))
	msg := readLive(t, conn)
	assert.Equal(t, "update", msg.Type)
	require.NotNil(t, msg.Report)
	assert.Equal(t, "40", msg.Report.Rows[0].Display)
	assert.Nil(t, msg.Result)

	require.NoError(t, conn.WriteJSON(map[string]any{"classify": true}))
	msg = readLive(t, conn)
	require.NotNil(t, msg.Result)
	assert.Equal(t, "Indikasi gagal jantung", msg.Result.Result)
	assert.Equal(t, "v3", msg.Result.ModelVersion)

	require.NoError(t, conn.WriteJSON(map[string]any{"measurements": map[string]any{"serum_sodium": 0}}))
	msg = readLive(t, conn)
	require.NotNil(t, msg.Error)
	assert.Equal(t, "VALIDATION_ERROR", msg.Error.Code)
}

func TestLiveModelNotice(t *testing.T) {
	setup(t, nil)
	hub := NewLiveHub()
	go hub.Run()
	t.Cleanup(hub.Stop)
	conn := dialLive(t, hub)

	assert.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	health := serve(NewHandler(DefaultServerConfig(), hub), "GET", "/api/health", "")
	var status struct {
		LiveClients int `json:"live_clients"`
	}
	require.NoError(t, json.Unmarshal(health.Body.Bytes(), &status))
	assert.Equal(t, 1, status.LiveClients)

	require.NoError(t, conn.WriteJSON(map[string]any{"classify": true}))
	msg := readLive(t, conn)
	require.NotNil(t, msg.Error)
	assert.Equal(t, "MODEL_UNAVAILABLE", msg.Error.Code)

	hub.NotifyModel(&ml.Model{Version: "v4"})
	msg = readLive(t, conn)
	assert.Equal(t, "model_reloaded", msg.Type)
	assert.Equal(t, "v4", msg.ModelVersion)
}
