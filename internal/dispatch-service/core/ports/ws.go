package ports

import (
	websocketdto "medilink/internal/dispatch-service/core/domain/websocket_dto"
)

// INotifyWebsocket pushes an event to the principal's websocket
// channel, if connected. Fire-and-forget.
type INotifyWebsocket interface {
	Notify(principalID string, event websocketdto.Event)
}
