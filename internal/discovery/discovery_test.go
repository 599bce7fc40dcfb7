package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/DayanCabrera2003/Link-Chat/internal/protocol"
	"github.com/DayanCabrera2003/Link-Chat/internal/transport"
)

var (
	macA = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x0A}
	macB = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x0B}
)

func recvMessage(t *testing.T, c transport.Conn) (net.HardwareAddr, protocol.Message) {
	t.Helper()
	select {
	case fr, ok := <-c.Frames():
		if !ok {
			t.Fatal("frame channel closed")
		}
		m, err := protocol.Decode(fr.Payload)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		return fr.Source, m
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}
	return nil, nil
}

// TestDiscoveryExchange walks the full handshake: A broadcasts a request,
// B answers unicast, and both tables end up knowing the other side.
func TestDiscoveryExchange(t *testing.T) {
	connA, connB := transport.NewPipe(macA, macB)
	defer connA.Close()
	defer connB.Close()

	tableA := NewTable(connA, "ana")
	tableB := NewTable(connB, "beto")

	if err := tableA.Announce(); err != nil {
		t.Fatalf("Announce failed: %v", err)
	}

	// B receives the broadcast request and answers.
	src, m := recvMessage(t, connB)
	if _, ok := m.(protocol.DiscoveryRequest); !ok {
		t.Fatalf("B received %T, want DiscoveryRequest", m)
	}
	tableB.Handle(src, m)

	// A receives the unicast response.
	src, m = recvMessage(t, connA)
	resp, ok := m.(protocol.DiscoveryResponse)
	if !ok {
		t.Fatalf("A received %T, want DiscoveryResponse", m)
	}
	if resp.Name != "beto" {
		t.Errorf("response name = %q, want beto", resp.Name)
	}
	tableA.Handle(src, m)

	// Both sides learned each other.
	if p, ok := tableA.Lookup("beto"); !ok || p.Addr.String() != macB.String() {
		t.Errorf("A's table: Lookup(beto) = %+v, %v", p, ok)
	}
	if p, ok := tableB.Lookup("ana"); !ok || p.Addr.String() != macA.String() {
		t.Errorf("B's table: Lookup(ana) = %+v, %v", p, ok)
	}
}

// TestPeersSortedAndRefreshed: Peers lists by name and a repeat sighting
// updates rather than duplicates.
func TestPeersSortedAndRefreshed(t *testing.T) {
	connA, connB := transport.NewPipe(macA, macB)
	defer connA.Close()
	defer connB.Close()

	table := NewTable(connA, "me")
	macC := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x0C}

	table.Handle(macC, protocol.DiscoveryResponse{Name: "zoe"})
	table.Handle(macB, protocol.DiscoveryResponse{Name: "abe"})
	table.Handle(macC, protocol.DiscoveryResponse{Name: "zoe"})

	peers := table.Peers()
	if len(peers) != 2 {
		t.Fatalf("peers = %d, want 2", len(peers))
	}
	if peers[0].Name != "abe" || peers[1].Name != "zoe" {
		t.Errorf("order = [%s, %s], want [abe, zoe]", peers[0].Name, peers[1].Name)
	}
}
