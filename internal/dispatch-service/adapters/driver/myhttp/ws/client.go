package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	websocketdto "medilink/internal/dispatch-service/core/domain/websocket_dto"

	"github.com/gorilla/websocket"
)

const (
	readLimit    = 4096
	authDeadline = 5 * time.Second
	writeWait    = 10 * time.Second
)

// ChannelKind tells which side of the dispatch flow a connection
// belongs to.
type ChannelKind string

const (
	ChannelCandidate ChannelKind = "candidate"
	ChannelRequester ChannelKind = "requester"
)

type Client struct {
	ctx         context.Context
	cancel      context.CancelFunc
	conn        *websocket.Conn
	dis         *Dispatcher
	egress      chan websocketdto.Event
	principalID string
	kind        ChannelKind

	mu     sync.Mutex
	authed bool
	role   string
}

func NewClient(ctx context.Context, conn *websocket.Conn, dis *Dispatcher, principalID string, kind ChannelKind) *Client {
	cctx, cancel := context.WithCancel(ctx)
	return &Client{
		ctx:         cctx,
		cancel:      cancel,
		conn:        conn,
		dis:         dis,
		egress:      make(chan websocketdto.Event, 16),
		principalID: principalID,
		kind:        kind,
	}
}

func (c *Client) Authed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authed
}

func (c *Client) Role() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

func (c *Client) setAuthed(role string) {
	c.mu.Lock()
	c.authed = true
	c.role = role
	c.mu.Unlock()
}

// Send queues an event for the write pump. Events are dropped rather
// than blocking when the client cannot keep up.
func (c *Client) Send(event websocketdto.Event) bool {
	select {
	case c.egress <- event:
		return true
	default:
		return false
	}
}

func (c *Client) Close() {
	c.cancel()
}

// ReadMessage is the read pump: it decodes incoming events and routes
// them until the connection drops. An unauthenticated client is closed
// after the auth deadline.
func (c *Client) ReadMessage() {
	defer func() {
		c.dis.RemoveClient(c)
		c.cancel()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)

	authTimer := time.AfterFunc(authDeadline, func() {
		if !c.Authed() {
			c.conn.Close()
		}
	})
	defer authTimer.Stop()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.dis.log.Action("ws_read").Warn("unexpected close", "principal_id", c.principalID, "err", err.Error())
			}
			return
		}

		var event websocketdto.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			c.dis.handler.ReplyError(c, "", err)
			continue
		}

		c.dis.handler.Route(c, event)
	}
}

// WriteMessage is the write pump.
func (c *Client) WriteMessage() {
	for {
		select {
		case <-c.ctx.Done():
			c.conn.Close()
			return
		case event, ok := <-c.egress:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(event); err != nil {
				c.dis.log.Action("ws_write").Warn("write failed", "principal_id", c.principalID, "err", err.Error())
				c.cancel()
				return
			}
		}
	}
}
