package transport

import (
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/DayanCabrera2003/Link-Chat/internal/util"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub is the relay side of the Bridge transport: it stands in for the
// shared Ethernet segment, routing dst ++ src ++ payload messages between
// registered clients. Broadcast goes to everyone except the sender.
// Unroutable frames are dropped silently, exactly like a real segment.
type Hub struct {
	listener net.Listener

	mu      sync.Mutex
	clients map[string]*hubClient
}

type hubClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *hubClient) write(msg []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, msg)
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*hubClient)}
}

// Start begins listening on addr (e.g. ":7748"). Returns the bound port.
func (h *Hub) Start(addr string) (int, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("failed to start bridge hub: %w", err)
	}
	h.listener = listener
	port := listener.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	mux.HandleFunc("/frames", h.handleWS)

	go func() {
		_ = http.Serve(listener, mux)
	}()

	return port, nil
}

// Close shuts down the listener and every client connection.
func (h *Hub) Close() {
	if h.listener != nil {
		h.listener.Close()
	}
	h.mu.Lock()
	for _, c := range h.clients {
		c.conn.Close()
	}
	h.mu.Unlock()
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	// First message is the client's 6-byte address.
	_, reg, err := conn.ReadMessage()
	if err != nil || len(reg) != 6 {
		conn.Close()
		return
	}
	addr := net.HardwareAddr(reg).String()

	client := &hubClient{conn: conn}
	h.mu.Lock()
	if prev, ok := h.clients[addr]; ok {
		prev.conn.Close()
	}
	h.clients[addr] = client
	h.mu.Unlock()

	util.LogInfo("bridge client registered: %s", addr)
	h.serve(addr, client)
}

// serve routes frames from one client until its connection drops.
func (h *Hub) serve(addr string, client *hubClient) {
	defer func() {
		h.mu.Lock()
		if h.clients[addr] == client {
			delete(h.clients, addr)
		}
		h.mu.Unlock()
		client.conn.Close()
		util.LogInfo("bridge client gone: %s", addr)
	}()

	for {
		_, msg, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		if len(msg) < bridgeHeaderSize {
			continue
		}

		dst := net.HardwareAddr(msg[0:6]).String()
		if dst == Broadcast.String() {
			h.mu.Lock()
			for a, c := range h.clients {
				if a == addr {
					continue
				}
				if err := c.write(msg); err != nil {
					util.LogDebug("broadcast to %s failed: %v", a, err)
				}
			}
			h.mu.Unlock()
			continue
		}

		h.mu.Lock()
		target, ok := h.clients[dst]
		h.mu.Unlock()
		if !ok {
			// No such host on the segment; the frame just disappears.
			continue
		}
		if err := target.write(msg); err != nil {
			util.LogDebug("relay to %s failed: %v", dst, err)
		}
	}
}
