package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sheetflow/backend/internal/models"
	"github.com/sheetflow/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialStatusFeed(t *testing.T, srv *testServer, token string) *websocket.Conn {
	t.Helper()
	httpSrv := httptest.NewServer(srv.e)
	t.Cleanup(httpSrv.Close)

	url := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/api/ws"
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	ws, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { ws.Close() })

	msg := readMessage(t, ws)
	require.Equal(t, MsgTypeConnected, msg.Type)
	return ws
}

func readMessage(t *testing.T, ws *websocket.Conn) WSMessage {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg WSMessage
	require.NoError(t, ws.ReadJSON(&msg))
	return msg
}

func statusPayload(t *testing.T, msg WSMessage) models.FileStatusView {
	t.Helper()
	require.Equal(t, MsgTypeStatus, msg.Type, string(msg.Payload))
	var view models.FileStatusView
	require.NoError(t, json.Unmarshal(msg.Payload, &view))
	return view
}

func TestStatusSocket_RequiresAuth(t *testing.T) {
	srv := newTestServer(t, serverOptions{})
	httpSrv := httptest.NewServer(srv.e)
	defer httpSrv.Close()

	url := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/api/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestStatusSocket_RejectsForeignOrigin(t *testing.T) {
	srv := newTestServer(t, serverOptions{})
	httpSrv := httptest.NewServer(srv.e)
	defer httpSrv.Close()

	url := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/api/ws"
	header := http.Header{}
	header.Set("Authorization", "Bearer "+srv.token)
	header.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", httpSrv.URL)
	ws, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	resp.Body.Close()
	ws.Close()
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin header", nil, "", true},
		{"same origin", nil, "http://api.local:5000", true},
		{"foreign origin, same-origin only", nil, "https://evil.example", false},
		{"listed origin", []string{"https://app.example/"}, "https://APP.example", true},
		{"unlisted origin", []string{"https://app.example"}, "https://evil.example", false},
		{"wildcard", []string{"https://app.example", "*"}, "https://evil.example", true},
		{"malformed origin", []string{"https://app.example"}, "://bad", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://api.local:5000/api/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, originChecker(tt.allowed)(req))
		})
	}
}

func TestStatusSocket_PingAndUnknown(t *testing.T) {
	srv := newTestServer(t, serverOptions{})
	ws := dialStatusFeed(t, srv, srv.token)

	require.NoError(t, ws.WriteJSON(WSMessage{Type: MsgTypePing}))
	assert.Equal(t, MsgTypePong, readMessage(t, ws).Type)

	require.NoError(t, ws.WriteJSON(WSMessage{Type: "upload:init"}))
	msg := readMessage(t, ws)
	assert.Equal(t, MsgTypeError, msg.Type)
	assert.Contains(t, string(msg.Payload), "INVALID_TYPE")
}

func TestStatusSocket_Subscribe(t *testing.T) {
	srv := newTestServer(t, serverOptions{pollInterval: 5 * time.Millisecond})
	other, _ := srv.newUser(t, "other@example.com")
	ws := dialStatusFeed(t, srv, srv.token)

	t.Run("other user's file", func(t *testing.T) {
		theirs := testutil.CreatePendingFile(t, srv.store, other.ID, "theirs.csv", MimeCSV, 1)
		require.NoError(t, ws.WriteJSON(WSMessage{Type: MsgTypeSubscribe, ID: theirs.ID}))
		msg := readMessage(t, ws)
		assert.Equal(t, MsgTypeError, msg.Type)
		assert.Equal(t, theirs.ID, msg.ID)
	})

	t.Run("follows a file to completion", func(t *testing.T) {
		file := testutil.CreatePendingFile(t, srv.store, srv.user.ID, "mine.csv", MimeCSV, 1)
		require.NoError(t, ws.WriteJSON(WSMessage{Type: MsgTypeSubscribe, ID: file.ID}))
		assert.Equal(t, models.FileStatusPending, statusPayload(t, readMessage(t, ws)).Status)

		ctx := context.Background()
		_, err := srv.store.UpdateDataFileStatus(ctx, file.ID, models.StatusUpdate{Status: models.FileStatusProcessing})
		require.NoError(t, err)
		assert.Equal(t, models.FileStatusProcessing, statusPayload(t, readMessage(t, ws)).Status)

		n := 4
		_, err = srv.store.UpdateDataFileStatus(ctx, file.ID, models.StatusUpdate{Status: models.FileStatusCompleted, RecordCount: &n})
		require.NoError(t, err)
		view := statusPayload(t, readMessage(t, ws))
		assert.Equal(t, models.FileStatusCompleted, view.Status)
		assert.Equal(t, 4, view.RecordCount)
	})
}
