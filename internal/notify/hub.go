package notify

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/filswan/go-mcs-sdk/mcs/api/common/logs"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/lagrangedao/go-bounty-coordinator/internal/models"
)

const (
	PingMsg = "ping"

	pingInterval   = 3 * time.Second
	writeWait      = 5 * time.Second
	clientBuffered = 16
)

var upgrade = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub streams events to websocket subscribers. A subscriber may narrow the
// stream to one node or one bounty.
type Hub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*wsClient]struct{})}
}

type wsClient struct {
	hub      *Hub
	conn     *websocket.Conn
	message  chan wsMessage
	stopCh   chan struct{}
	stopOnce sync.Once
	nodeId   string
	bountyId string
}

type wsMessage struct {
	data    []byte
	msgType int
}

// ServeWs upgrades the request. Optional query parameters node_id and bounty_id filter the stream.
func (h *Hub) ServeWs(c *gin.Context) {
	conn, err := upgrade.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logs.GetLogger().Errorf("failed to upgrade event subscription, error: %+v", err)
		return
	}
	client := &wsClient{
		hub:      h,
		conn:     conn,
		message:  make(chan wsMessage, clientBuffered),
		stopCh:   make(chan struct{}),
		nodeId:   c.Query("node_id"),
		bountyId: c.Query("bounty_id"),
	}
	conn.SetCloseHandler(func(code int, text string) error {
		logs.GetLogger().Infof("event subscriber closed the connection, code: %d", code)
		client.Close()
		return nil
	})

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	client.readMessage()
	client.writeMessage()
}

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) Publish(e *models.EventLog) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	nodeIds := models.NewIdSet(e.NodeIds()...)
	bountyId := e.BountyId()

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if client.nodeId != "" && !nodeIds.Contains(client.nodeId) {
			continue
		}
		if client.bountyId != "" && client.bountyId != bountyId {
			continue
		}
		select {
		case client.message <- wsMessage{data: data, msgType: websocket.TextMessage}:
		default:
			logs.GetLogger().Warnf("event subscriber %s is too slow, dropping it", client.conn.RemoteAddr())
			go client.Close()
		}
	}
	return nil
}

func (h *Hub) Close() error {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
	return nil
}

func (ws *wsClient) Close() {
	ws.stopOnce.Do(func() {
		ws.hub.mu.Lock()
		delete(ws.hub.clients, ws)
		ws.hub.mu.Unlock()
		close(ws.stopCh)
		ws.conn.Close()
	})
}

func (ws *wsClient) writeMessage() {
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			var msg wsMessage
			select {
			case msg = <-ws.message:
			case <-ticker.C:
				msg = wsMessage{data: []byte(PingMsg), msgType: websocket.PingMessage}
			case <-ws.stopCh:
				return
			}
			ws.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.conn.WriteMessage(msg.msgType, msg.data); err != nil {
				logs.GetLogger().Warnf("failed to write to event subscriber, error: %+v", err)
				ws.Close()
				return
			}
		}
	}()
}

// readMessage drains the connection so close frames and pongs are processed.
func (ws *wsClient) readMessage() {
	go func() {
		for {
			if _, _, err := ws.conn.ReadMessage(); err != nil {
				ws.Close()
				return
			}
		}
	}()
}
