package notify

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gomodule/redigo/redis"
	"github.com/gorilla/websocket"
	"github.com/lagrangedao/go-bounty-coordinator/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	commands [][]interface{}
}

func (c *fakeConn) Close() error { return nil }
func (c *fakeConn) Err() error   { return nil }
func (c *fakeConn) Do(cmd string, args ...interface{}) (interface{}, error) {
	if cmd == "" {
		return nil, nil
	}
	c.commands = append(c.commands, append([]interface{}{cmd}, args...))
	return int64(1), nil
}
func (c *fakeConn) Send(cmd string, args ...interface{}) error { return nil }
func (c *fakeConn) Flush() error                                { return nil }
func (c *fakeConn) Receive() (interface{}, error)               { return nil, nil }

type failingSink struct{}

func (failingSink) Publish(e *models.EventLog) error {
	return errors.New("sink down")
}

type countingSink struct {
	n int
}

func (s *countingSink) Publish(e *models.EventLog) error {
	s.n++
	return nil
}

func createdEvent(bountyId string, nodeIds ...string) *models.EventLog {
	return models.NewEventLog(models.EventBountyCreated, &models.BountyCreatedLog{
		CoordinatorId: "coordinator",
		BountyId:      bountyId,
		NodeIds:       nodeIds,
	})
}

func TestRedisPublisher(t *testing.T) {
	conn := &fakeConn{}
	pool := &redis.Pool{Dial: func() (redis.Conn, error) { return conn, nil }}
	p := NewRedisPublisher(pool, "coordinator:events")

	require.NoError(t, p.Publish(createdEvent("0-1.bounty.bob", "a.node.alice")))
	require.Len(t, conn.commands, 1)
	cmd := conn.commands[0]
	assert.Equal(t, "PUBLISH", cmd[0])
	assert.Equal(t, "coordinator:events", cmd[1])

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(cmd[2].([]byte), &decoded))
	assert.Equal(t, "bounty_created", decoded["event"])
	assert.Equal(t, "bounty-coordinator", decoded["standard"])
}

func TestFanOutKeepsDelivering(t *testing.T) {
	counter := &countingSink{}
	fan := FanOut{LogSink{}, failingSink{}, counter}

	err := fan.Publish(createdEvent("0-1.bounty.bob"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink down")
	assert.Equal(t, 1, counter.n)
}

func dialHub(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubFiltersByNode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	r := gin.New()
	r.GET("/events", hub.ServeWs)
	srv := httptest.NewServer(r)
	defer srv.Close()
	defer hub.Close()

	all := dialHub(t, srv, "")
	mine := dialHub(t, srv, "?node_id=b.node.alice")
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(createdEvent("0-1.bounty.bob", "a.node.alice")))
	require.NoError(t, hub.Publish(createdEvent("1-1.bounty.bob", "b.node.alice")))

	var got models.EventLog
	require.NoError(t, all.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, all.ReadJSON(&got))
	assert.Equal(t, models.EventBountyCreated, got.Event)
	require.NoError(t, all.ReadJSON(&got))

	require.NoError(t, mine.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := mine.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"bounty_id":"1-1.bounty.bob"`)
}

func TestHubForgetsClosedClients(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	r := gin.New()
	r.GET("/events", hub.ServeWs)
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn := dialHub(t, srv, "?bounty_id=0-1.bounty.bob")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 5*time.Second, 10*time.Millisecond)
}
