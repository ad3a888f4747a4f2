// Command helper is a candidate simulator for manual end-to-end runs:
// it connects to the dispatch websocket, authenticates, goes online at
// a fixed location and auto-accepts the first offer it receives.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"sync"
	"time"

	websocketdto "medilink/internal/dispatch-service/core/domain/websocket_dto"

	"github.com/gorilla/websocket"
)

const completeAfter = 15 * time.Second

func main() {
	candidateID := flag.String("candidate_id", "", "candidate id to connect as")
	token := flag.String("token", "", "access token from the auth service")
	host := flag.String("host", "localhost:3002", "dispatch service host:port")
	lat := flag.Float64("lat", 43.238949, "simulated latitude")
	lon := flag.Float64("lon", 76.889709, "simulated longitude")
	flag.Parse()

	if *candidateID == "" || *token == "" {
		log.Fatal("candidate_id and token are required")
	}

	wsURL := fmt.Sprintf("ws://%s/ws/candidates/%s", *host, *candidateID)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Fatalf("cannot connect to %s: %v", wsURL, err)
	}
	defer conn.Close()
	log.Printf("connected to %s", wsURL)

	var writeMu sync.Mutex
	send := func(eventType string, payload any) {
		writeMu.Lock()
		defer writeMu.Unlock()
		data, err := json.Marshal(payload)
		if err != nil {
			log.Printf("marshal %s: %v", eventType, err)
			return
		}
		if err := conn.WriteJSON(websocketdto.Event{Type: eventType, Data: data}); err != nil {
			log.Printf("send %s: %v", eventType, err)
			return
		}
		log.Printf("sent %s %s", eventType, data)
	}

	send(websocketdto.EventAuth, websocketdto.AuthMessage{Token: *token})
	send(websocketdto.EventGoOnline, map[string]any{
		"latitude":  *lat,
		"longitude": *lon,
		"address":   "simulated position",
	})

	for {
		var event websocketdto.Event
		if err := conn.ReadJSON(&event); err != nil {
			log.Fatalf("read: %v", err)
		}
		log.Printf("received %s %s", event.Type, event.Data)

		switch event.Type {
		case websocketdto.EventRequestOffer:
			var offer websocketdto.OfferPayload
			if err := json.Unmarshal(event.Data, &offer); err != nil {
				log.Printf("decode offer: %v", err)
				continue
			}
			send(websocketdto.EventAcceptRequest, map[string]string{"request_id": offer.RequestID})

		case websocketdto.EventRequestAssigned:
			var status websocketdto.RequestStatusPayload
			if err := json.Unmarshal(event.Data, &status); err != nil {
				log.Printf("decode status: %v", err)
				continue
			}
			log.Printf("assigned request %s, completing in %s", status.RequestID, completeAfter)
			go func(requestID string) {
				time.Sleep(completeAfter)
				send(websocketdto.EventCompleteRequest, map[string]string{"request_id": requestID})
			}(status.RequestID)
		}
	}
}
