// Package app wires the Link-Chat components together: one listener loop
// pulls frames from the transport and dispatches them by kind, while the
// send-side use cases (chat, file, folder, discovery) run on top of the
// same connection.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/DayanCabrera2003/Link-Chat/internal/config"
	"github.com/DayanCabrera2003/Link-Chat/internal/discovery"
	"github.com/DayanCabrera2003/Link-Chat/internal/protocol"
	"github.com/DayanCabrera2003/Link-Chat/internal/transfer"
	"github.com/DayanCabrera2003/Link-Chat/internal/transport"
	"github.com/DayanCabrera2003/Link-Chat/internal/util"
)

// App owns one transport connection and every protocol role on top of it.
type App struct {
	conn     transport.Conn
	sender   *transfer.Sender
	receiver *transfer.Receiver
	peers    *discovery.Table

	// OnText, if set, replaces the default log line for inbound chat
	// messages.
	OnText func(src net.HardwareAddr, body string)
}

// New assembles an App over conn. Received files land under
// cfg.DownloadDir; onComplete, if non-nil, fires for every finished
// inbound transfer.
func New(conn transport.Conn, cfg *config.Config, onComplete func(transfer.Completion)) *App {
	return &App{
		conn:     conn,
		sender:   transfer.NewSender(conn, cfg.Transfer),
		receiver: transfer.NewReceiver(conn, NewDiskStore(cfg.DownloadDir), onComplete),
		peers:    discovery.NewTable(conn, cfg.Username),
	}
}

// Run is the listener loop: it decodes every inbound frame and routes it
// to the component that owns its kind. Blocks until ctx is cancelled or
// the transport shuts down.
func (a *App) Run(ctx context.Context) error {
	for {
		select {
		case fr, ok := <-a.conn.Frames():
			if !ok {
				return nil // transport closed
			}
			a.dispatch(fr)

		case <-ctx.Done():
			return nil
		}
	}
}

// dispatch routes one frame. Undecodable frames are dropped: they may
// belong to some other user of the channel and are never a transfer
// failure.
func (a *App) dispatch(fr transport.Frame) {
	m, err := protocol.Decode(fr.Payload)
	if err != nil {
		var malformed *protocol.MalformedHeaderError
		if errors.As(err, &malformed) {
			util.LogDebug("dropping frame from %s: %v", fr.Source, err)
		} else {
			util.LogWarning("dropping frame from %s: %v", fr.Source, err)
		}
		return
	}

	switch m := m.(type) {
	case protocol.Ack:
		a.sender.Resolve(fr.Source, m.Seq, true)

	case protocol.Nack:
		a.sender.Resolve(fr.Source, m.Seq, false)

	case protocol.Text:
		if a.OnText != nil {
			a.OnText(fr.Source, m.Body)
			return
		}
		util.LogInfo("message from [%s]: %s", fr.Source, m.Body)

	case protocol.DiscoveryRequest, protocol.DiscoveryResponse:
		a.peers.Handle(fr.Source, m)

	default:
		// FILE_* and FOLDER_* all belong to the receiver.
		a.receiver.Handle(fr.Source, m)
	}
}

// ---------------------------------------------------------------------------
// Use cases
// ---------------------------------------------------------------------------

// SendText sends one chat message to dst (or everyone, with the broadcast
// address).
func (a *App) SendText(dst net.HardwareAddr, body string) error {
	return a.send(dst, protocol.Text{Body: body})
}

// SendFile reliably transfers the file at local path to dst.
func (a *App) SendFile(ctx context.Context, dst net.HardwareAddr, path string) (*transfer.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return a.sender.SendFile(ctx, dst, filepath.Base(path), data)
}

// Discover broadcasts a discovery request. Responses show up in Peers.
func (a *App) Discover() error {
	return a.peers.Announce()
}

// Peers returns the discovered-peer snapshot.
func (a *App) Peers() []discovery.Peer {
	return a.peers.Peers()
}

// Lookup resolves a username from the peer table.
func (a *App) Lookup(name string) (discovery.Peer, bool) {
	return a.peers.Lookup(name)
}

// send encodes and transmits one fire-and-forget packet.
func (a *App) send(dst net.HardwareAddr, m protocol.Message) error {
	frame, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	return a.conn.Send(dst, frame)
}
