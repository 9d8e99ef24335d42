package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ride-dispatch/internal/general/logger"
)

// dialPair upgrades one client/server connection pair through httptest.
func dialPair(t *testing.T) (server *websocket.Conn, client *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	conns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		conns <- c
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case server = <-conns:
	case <-time.After(time.Second):
		t.Fatal("server side never upgraded")
	}
	t.Cleanup(func() { server.Close() })
	return server, client
}

func readFrame(t *testing.T, c *websocket.Conn) eventFrame {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(time.Second))
	_, payload, err := c.ReadMessage()
	require.NoError(t, err)

	var frame eventFrame
	require.NoError(t, json.Unmarshal(payload, &frame))
	return frame
}

func TestRegistry_SendFansOutToAllConnections(t *testing.T) {
	reg := NewRegistry(logger.New("ws-test"))

	phoneSrv, phoneClient := dialPair(t)
	tabletSrv, tabletClient := dialPair(t)

	reg.add("drv-1", &session{conn: phoneSrv})
	reg.add("drv-1", &session{conn: tabletSrv})

	require.True(t, reg.IsOnline("drv-1"))
	assert.Equal(t, 1, reg.Count())

	ok := reg.Send("drv-1", "ride:request:new", map[string]string{"offer_id": "offer-1"})
	assert.True(t, ok)

	for _, client := range []*websocket.Conn{phoneClient, tabletClient} {
		frame := readFrame(t, client)
		assert.Equal(t, "ride:request:new", frame.Type)
	}
}

func TestRegistry_SendToOfflineUser(t *testing.T) {
	reg := NewRegistry(logger.New("ws-test"))

	assert.False(t, reg.IsOnline("nobody"))
	assert.False(t, reg.Send("nobody", "ride:status:update", nil),
		"sending to a user with no connections is a non-delivery")
}

func TestRegistry_RemoveClearsUser(t *testing.T) {
	reg := NewRegistry(logger.New("ws-test"))

	srv1, _ := dialPair(t)
	srv2, _ := dialPair(t)
	s1 := &session{conn: srv1}
	s2 := &session{conn: srv2}

	reg.add("drv-1", s1)
	reg.add("drv-1", s2)

	reg.remove("drv-1", s1)
	assert.True(t, reg.IsOnline("drv-1"), "one connection still live")

	reg.remove("drv-1", s2)
	assert.False(t, reg.IsOnline("drv-1"))
	assert.Equal(t, 0, reg.Count())
}

func TestRegistry_SendSkipsDeadConnection(t *testing.T) {
	reg := NewRegistry(logger.New("ws-test"))

	deadSrv, _ := dialPair(t)
	liveSrv, liveClient := dialPair(t)

	reg.add("drv-1", &session{conn: deadSrv})
	reg.add("drv-1", &session{conn: liveSrv})

	require.NoError(t, deadSrv.Close())

	ok := reg.Send("drv-1", "ride:request:new", nil)
	assert.True(t, ok, "delivery to the remaining live connection still counts")

	frame := readFrame(t, liveClient)
	assert.Equal(t, "ride:request:new", frame.Type)
}
