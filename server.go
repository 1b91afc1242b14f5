package main

import (
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// WebSocket clients
var (
	wsClients   = make(map[*Client]bool)
	wsClientsMu sync.RWMutex
)

type Client struct {
	conn *websocket.Conn
	send chan interface{}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	defer func() {
		c.conn.Close()
	}()
	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// runServer exposes the instrument over HTTP and pushes state changes
// to websocket subscribers.
func runServer(port int) {
	upgrader := websocket.Upgrader{
		CheckOrigin:     func(r *http.Request) bool { return true },
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
	}

	// Instrument and channel endpoints
	http.HandleFunc("/api/state", handleState)
	http.HandleFunc("/api/channel/function", handleFunction)
	http.HandleFunc("/api/channel/frequency", handleFrequency)
	http.HandleFunc("/api/channel/amplitude", handleAmplitude)
	http.HandleFunc("/api/channel/offset", handleOffset)
	http.HandleFunc("/api/channel/phase", handlePhase)
	http.HandleFunc("/api/channel/duty", handleDuty)
	http.HandleFunc("/api/channel/load", handleLoad)
	http.HandleFunc("/api/channel/output", handleOutput)
	http.HandleFunc("/api/channel/modulation", handleModulation)
	http.HandleFunc("/api/channel/burst", handleBurst)

	// Waveform store endpoints
	http.HandleFunc("/api/waveform/upload", handleWaveformUpload)
	http.HandleFunc("/api/waveform/list", handleWaveformList)
	http.HandleFunc("/api/waveform/delete", handleWaveformDelete)
	http.HandleFunc("/api/waveform/select", handleWaveformSelect)
	http.HandleFunc("/api/waveform/rate", handleWaveformRate)

	// WebSocket state feed
	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("Upgrade:", err)
			return
		}

		log.Println("Client connected")
		client := &Client{conn: conn, send: make(chan interface{}, 64)}

		wsClientsMu.Lock()
		wsClients[client] = true
		wsClientsMu.Unlock()

		go client.writePump()

		defer func() {
			wsClientsMu.Lock()
			delete(wsClients, client)
			wsClientsMu.Unlock()
			close(client.send) // This will stop writePump
			log.Println("Client disconnected")
		}()

		// The feed is one-way; drain the connection until it drops.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	addr := fmt.Sprintf(":%d", port)
	serverState.mu.RLock()
	log.Printf("DG control server listening on http://localhost%s", addr)
	log.Printf("Instrument: %s (%s)", serverState.Identity, serverState.Resource)
	serverState.mu.RUnlock()
	log.Fatal(http.ListenAndServe(addr, nil))
}

func broadcastJSON(msg interface{}) {
	wsClientsMu.RLock()
	defer wsClientsMu.RUnlock()

	for client := range wsClients {
		select {
		case client.send <- msg:
		default:
		}
	}
}
