package transfer

import (
	"io"
	"net"
	"path"
	"strings"
	"sync"

	"github.com/DayanCabrera2003/Link-Chat/internal/checksum"
	"github.com/DayanCabrera2003/Link-Chat/internal/protocol"
	"github.com/DayanCabrera2003/Link-Chat/internal/transport"
	"github.com/DayanCabrera2003/Link-Chat/internal/util"
)

// Store abstracts where received files land. The receiver hands it
// sanitized slash-separated paths relative to the download root; the
// disk implementation lives in the app layer.
type Store interface {
	Create(rel string, size uint64) (io.WriteCloser, error)
	Mkdir(rel string) error
}

// Receiver consumes inbound file-transfer packets: it validates fragment
// integrity, reassembles in sequence order, answers with ACK/NACK, and
// reports completions. State is scoped per source peer; transfers from
// different peers never share anything.
type Receiver struct {
	conn  transport.Conn
	store Store

	onComplete func(Completion)

	mu    sync.Mutex
	peers map[string]*peerState
}

// peerState is everything the receiver tracks for one source peer: the
// open transfer, if any, and the folder stack of an in-progress folder
// transfer.
type peerState struct {
	transfer *incoming
	dirs     []string
}

// incoming is the receiver-side transfer state, created on FILE_START and
// destroyed on FILE_END or abandonment.
type incoming struct {
	name     string // sender's file name, for reporting
	rel      string // sanitized path the sink was created under
	expected uint64
	received uint64
	nextSeq  uint32
	sink     io.WriteCloser
}

// NewReceiver creates a Receiver writing into store. onComplete, if
// non-nil, is invoked for every finished transfer.
func NewReceiver(conn transport.Conn, store Store, onComplete func(Completion)) *Receiver {
	return &Receiver{
		conn:       conn,
		store:      store,
		onComplete: onComplete,
		peers:      make(map[string]*peerState),
	}
}

// Handle processes one decoded file-transfer packet from src. Unexpected
// packets (data without an open transfer, stray folder ends) are logged
// and ignored; the sender's retry discipline recovers anything that
// matters.
func (r *Receiver) Handle(src net.HardwareAddr, m protocol.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch m := m.(type) {
	case protocol.FileStart:
		r.handleFileStart(src, m)
	case protocol.FileData:
		r.handleFileData(src, m)
	case protocol.FileEnd:
		r.handleFileEnd(src)
	case protocol.FolderStart:
		r.handleFolderStart(src, m)
	case protocol.FolderEnd:
		r.handleFolderEnd(src)
	}
}

func (r *Receiver) state(src net.HardwareAddr) *peerState {
	key := src.String()
	st, ok := r.peers[key]
	if !ok {
		st = &peerState{}
		r.peers[key] = st
	}
	return st
}

// handleFileStart opens a new transfer, discarding any prior incomplete
// one from the same peer (last-FILE_START-wins).
func (r *Receiver) handleFileStart(src net.HardwareAddr, m protocol.FileStart) {
	st := r.state(src)

	if t := st.transfer; t != nil {
		util.LogWarning("new FILE_START from %s discards incomplete transfer '%s' (%d/%d bytes)",
			src, t.name, t.received, t.expected)
		t.sink.Close()
		st.transfer = nil
	}

	name, ok := safeName(m.Name)
	if !ok {
		util.LogWarning("rejecting FILE_START from %s with unsafe name %q", src, m.Name)
		return
	}

	rel := name
	if len(st.dirs) > 0 {
		rel = path.Join(st.dirs[len(st.dirs)-1], name)
	}

	sink, err := r.store.Create(rel, m.Size)
	if err != nil {
		util.LogError("cannot open sink for '%s' from %s: %v", rel, src, err)
		return
	}

	st.transfer = &incoming{
		name:     m.Name,
		rel:      rel,
		expected: m.Size,
		sink:     sink,
	}
	util.LogInfo("receiving '%s' (%d bytes) from %s", rel, m.Size, src)
}

// handleFileData validates and appends one fragment. A corrupt fragment is
// never written and never positively acknowledged.
func (r *Receiver) handleFileData(src net.HardwareAddr, m protocol.FileData) {
	st := r.state(src)
	t := st.transfer
	if t == nil {
		// FILE_START never arrived (or the transfer was abandoned).
		// Withholding the ACK makes the sender retry and eventually fail.
		util.LogDebug("FILE_DATA %d from %s without an open transfer, ignoring", m.Seq, src)
		return
	}

	if !checksum.Verify(m.Data, m.Checksum) {
		util.LogWarning("checksum mismatch on fragment %d from %s, requesting retransmit", m.Seq, src)
		r.reply(src, protocol.Nack{Seq: m.Seq})
		return
	}

	switch {
	case m.Seq < t.nextSeq:
		// Duplicate of an already-written fragment: our ACK was lost.
		// Re-acknowledge, write nothing.
		util.LogDebug("duplicate fragment %d from %s, re-acknowledging", m.Seq, src)
		r.reply(src, protocol.Ack{Seq: m.Seq})

	case m.Seq > t.nextSeq:
		// A gap cannot happen under stop-and-wait unless frames from a
		// stale transfer are arriving. Withhold the ACK.
		util.LogWarning("fragment %d from %s ahead of expected %d, ignoring", m.Seq, src, t.nextSeq)

	default:
		if _, err := t.sink.Write(m.Data); err != nil {
			// The sink is broken; abandon so the sender's retries fail
			// loudly instead of acknowledging data we did not keep.
			util.LogError("write failed for '%s' from %s: %v, abandoning transfer", t.rel, src, err)
			t.sink.Close()
			st.transfer = nil
			return
		}
		t.received += uint64(len(m.Data))
		t.nextSeq++
		r.reply(src, protocol.Ack{Seq: m.Seq})
	}
}

// handleFileEnd closes the transfer and reports it.
func (r *Receiver) handleFileEnd(src net.HardwareAddr) {
	st := r.state(src)
	t := st.transfer
	if t == nil {
		util.LogDebug("FILE_END from %s without an open transfer, ignoring", src)
		return
	}
	st.transfer = nil

	if err := t.sink.Close(); err != nil {
		util.LogError("closing '%s' from %s: %v", t.rel, src, err)
	}

	if t.received != t.expected {
		util.LogWarning("transfer '%s' from %s closed with %d of %d bytes",
			t.rel, src, t.received, t.expected)
	} else {
		util.LogInfo("received '%s' (%d bytes) from %s", t.rel, t.received, src)
	}

	if r.onComplete != nil {
		r.onComplete(Completion{
			Peer:     src,
			Name:     t.rel,
			Received: t.received,
			Expected: t.expected,
		})
	}
}

// handleFolderStart creates the announced directory and makes it the
// current target for subsequent FILE_STARTs from this peer.
func (r *Receiver) handleFolderStart(src net.HardwareAddr, m protocol.FolderStart) {
	st := r.state(src)

	rel, ok := safeRel(m.Path)
	if !ok {
		util.LogWarning("rejecting FOLDER_START from %s with unsafe path %q", src, m.Path)
		return
	}

	if rel != "" {
		if err := r.store.Mkdir(rel); err != nil {
			util.LogError("cannot create folder '%s' from %s: %v", rel, src, err)
			return
		}
	}
	st.dirs = append(st.dirs, rel)
}

func (r *Receiver) handleFolderEnd(src net.HardwareAddr) {
	st := r.state(src)
	if len(st.dirs) == 0 {
		util.LogDebug("FOLDER_END from %s without an open folder, ignoring", src)
		return
	}
	st.dirs = st.dirs[:len(st.dirs)-1]
}

// reply sends one acknowledgment packet back to src. A lost or failed
// acknowledgment is not an error here; the sender times out and
// retransmits.
func (r *Receiver) reply(src net.HardwareAddr, m protocol.Message) {
	frame, err := protocol.Encode(m)
	if err != nil {
		util.LogError("encoding %s: %v", m.Kind(), err)
		return
	}
	if err := r.conn.Send(src, frame); err != nil {
		util.LogWarning("sending %s to %s: %v", m.Kind(), src, err)
	}
}

// ---------------------------------------------------------------------------
// Path sanitization
// ---------------------------------------------------------------------------

// safeName accepts a file name only if it is a single path element: no
// separators, no traversal.
func safeName(name string) (string, bool) {
	if name == "" || name == "." || name == ".." {
		return "", false
	}
	if strings.ContainsAny(name, "/\\") {
		return "", false
	}
	return name, true
}

// safeRel normalizes a slash-separated relative path and rejects anything
// escaping the download root. The empty path (the transfer root itself)
// is allowed.
func safeRel(p string) (string, bool) {
	if p == "" {
		return "", true
	}
	p = path.Clean(strings.ReplaceAll(p, "\\", "/"))
	if p == "." {
		return "", true
	}
	if strings.HasPrefix(p, "/") || p == ".." || strings.HasPrefix(p, "../") {
		return "", false
	}
	return p, true
}
