package ws

import (
	"context"
	"net/http"
	"sync"

	"medilink/internal/applog"
	websocketdto "medilink/internal/dispatch-service/core/domain/websocket_dto"

	"github.com/gorilla/websocket"
)

// websocketUpgrader upgrades incoming HTTP requests into a persistent
// websocket connection.
var websocketUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Dispatcher owns the per-principal websocket channels: one logical
// connection per authenticated user.
type Dispatcher struct {
	mu      sync.RWMutex
	clients map[string]*Client
	log     applog.Logger
	handler *EventHandler
}

func NewDispatcher(log applog.Logger, handler *EventHandler) *Dispatcher {
	return &Dispatcher{
		clients: make(map[string]*Client),
		log:     log,
		handler: handler,
	}
}

// WsHandler upgrades the connection for the principal named in the
// path. The client must authenticate with its first frame; until then
// it receives no pushes.
func (d *Dispatcher) WsHandler(pathParam string, kind ChannelKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := d.log.Action("ws_connect")
		principalID := r.PathValue(pathParam)

		if principalID == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		conn, err := websocketUpgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error("cannot upgrade", err)
			return
		}

		client := NewClient(context.Background(), conn, d, principalID, kind)
		go client.ReadMessage()
		go client.WriteMessage()
	}
}

// AddClient registers an authenticated client, replacing any previous
// connection for the same principal.
func (d *Dispatcher) AddClient(client *Client) {
	d.mu.Lock()
	old, ok := d.clients[client.principalID]
	d.clients[client.principalID] = client
	d.mu.Unlock()

	if ok && old != client {
		old.Close()
	}
}

func (d *Dispatcher) RemoveClient(client *Client) {
	d.mu.Lock()
	if current, ok := d.clients[client.principalID]; ok && current == client {
		delete(d.clients, client.principalID)
	}
	d.mu.Unlock()
}

// Notify pushes an event to the principal's channel if connected.
// Fire-and-forget: a missing or slow client never blocks the caller.
func (d *Dispatcher) Notify(principalID string, event websocketdto.Event) {
	d.mu.RLock()
	client, ok := d.clients[principalID]
	d.mu.RUnlock()

	if !ok {
		return
	}
	if !client.Send(event) {
		d.log.Action("ws_notify").Warn("client egress full, event dropped", "principal_id", principalID, "type", event.Type)
	}
}
