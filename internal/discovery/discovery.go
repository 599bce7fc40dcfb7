// Package discovery implements peer discovery on the local segment:
// a broadcast DISCOVERY_REQUEST carrying the asker's username, answered
// by unicast DISCOVERY_RESPONSEs, with both sides recording who they saw.
package discovery

import (
	"net"
	"sort"
	"sync"
	"time"

	"github.com/DayanCabrera2003/Link-Chat/internal/protocol"
	"github.com/DayanCabrera2003/Link-Chat/internal/transport"
	"github.com/DayanCabrera2003/Link-Chat/internal/util"
)

// Peer is one discovered neighbor.
type Peer struct {
	Addr     net.HardwareAddr
	Name     string
	LastSeen time.Time
}

// Table tracks discovered peers and answers discovery requests.
type Table struct {
	conn     transport.Conn
	username string

	mu    sync.Mutex
	peers map[string]Peer
}

// NewTable creates a Table answering requests with username.
func NewTable(conn transport.Conn, username string) *Table {
	return &Table{
		conn:     conn,
		username: username,
		peers:    make(map[string]Peer),
	}
}

// Announce broadcasts a discovery request to the whole segment.
// Responses arrive asynchronously through Handle.
func (t *Table) Announce() error {
	frame, err := protocol.Encode(protocol.DiscoveryRequest{Name: t.username})
	if err != nil {
		return err
	}
	return t.conn.Send(transport.Broadcast, frame)
}

// Handle processes one decoded discovery packet from src.
func (t *Table) Handle(src net.HardwareAddr, m protocol.Message) {
	switch m := m.(type) {
	case protocol.DiscoveryRequest:
		t.remember(src, m.Name)
		util.LogInfo("discovery request from '%s' [%s]", m.Name, src)

		frame, err := protocol.Encode(protocol.DiscoveryResponse{Name: t.username})
		if err != nil {
			util.LogError("encoding discovery response: %v", err)
			return
		}
		if err := t.conn.Send(src, frame); err != nil {
			util.LogWarning("answering discovery request from %s: %v", src, err)
		}

	case protocol.DiscoveryResponse:
		t.remember(src, m.Name)
		util.LogInfo("peer '%s' is at [%s]", m.Name, src)
	}
}

// Peers returns a snapshot of the table, sorted by name.
func (t *Table) Peers() []Peer {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Peer, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup resolves a username to its address, if known.
func (t *Table) Lookup(name string) (Peer, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, p := range t.peers {
		if p.Name == name {
			return p, true
		}
	}
	return Peer{}, false
}

func (t *Table) remember(src net.HardwareAddr, name string) {
	addr := make(net.HardwareAddr, len(src))
	copy(addr, src)

	t.mu.Lock()
	t.peers[src.String()] = Peer{Addr: addr, Name: name, LastSeen: time.Now()}
	t.mu.Unlock()
}
