package main

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kwv/wifisurvey/survey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialLive(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) survey.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev survey.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestLiveHub_StreamsSessionEvents(t *testing.T) {
	api, backend := newFakeAPI(t)
	api.seedFloorPlan(t, 160, 120)
	session := newTestSession(t, backend)

	hub := NewLiveHub()
	session.AddObserver(hub)
	srv := httptest.NewServer(newHTTPServer(session, nil, hub, nil))
	defer srv.Close()
	defer hub.Close()

	conn := dialLive(t, srv.URL)

	initial := readEvent(t, conn)
	assert.Equal(t, survey.EventStatus, initial.Kind)
	assert.Equal(t, "ready", initial.Snapshot.Phase)
	assert.Equal(t, 1, hub.ClientCount())

	session.Resize(320, 240)
	ev := readEvent(t, conn)
	assert.Equal(t, survey.EventResize, ev.Kind)
	assert.Equal(t, 320.0, ev.Snapshot.Viewport.ContainerWidth)

	_, err := session.Click(t.Context(), survey.Point{X: 160, Y: 120})
	require.NoError(t, err)

	// Measuring status, then the measurement itself
	assert.Equal(t, survey.EventStatus, readEvent(t, conn).Kind)
	measured := readEvent(t, conn)
	assert.Equal(t, survey.EventMeasurement, measured.Kind)
	require.NotNil(t, measured.Measurement)
	assert.Equal(t, -55, measured.Measurement.RSSI)
}

func TestLiveHub_Close(t *testing.T) {
	_, backend := newFakeAPI(t)
	session := newTestSession(t, backend)

	hub := NewLiveHub()
	srv := httptest.NewServer(newHTTPServer(session, nil, hub, nil))
	defer srv.Close()

	conn := dialLive(t, srv.URL)
	readEvent(t, conn)

	hub.Close()
	assert.Equal(t, 0, hub.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	// A closed hub refuses new clients
	conn2 := dialLive(t, srv.URL)
	require.NoError(t, conn2.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn2.ReadMessage()
	assert.Error(t, err)
}

func TestLiveHub_DropsDisconnectedClients(t *testing.T) {
	_, backend := newFakeAPI(t)
	session := newTestSession(t, backend)

	hub := NewLiveHub()
	session.AddObserver(hub)
	srv := httptest.NewServer(newHTTPServer(session, nil, hub, nil))
	defer srv.Close()
	defer hub.Close()

	conn := dialLive(t, srv.URL)
	readEvent(t, conn)
	require.Equal(t, 1, hub.ClientCount())

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()

	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 5*time.Second, 10*time.Millisecond)

	// Broadcasting with no clients is a no-op
	session.Resize(10, 10)
}
