package transfer

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math/rand"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/DayanCabrera2003/Link-Chat/internal/config"
	"github.com/DayanCabrera2003/Link-Chat/internal/protocol"
	"github.com/DayanCabrera2003/Link-Chat/internal/transport"
)

var (
	senderMAC   = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	receiverMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

func testConfig() config.Transfer {
	return config.Transfer{
		FragmentSize: 1024,
		AckTimeout:   config.Duration{Duration: 50 * time.Millisecond},
		MaxRetries:   5,
	}
}

// ---------------------------------------------------------------------------
// In-memory store
// ---------------------------------------------------------------------------

type memStore struct {
	mu    sync.Mutex
	files map[string]*bytes.Buffer
	dirs  []string
}

func newMemStore() *memStore {
	return &memStore{files: make(map[string]*bytes.Buffer)}
}

type memFile struct {
	st  *memStore
	buf *bytes.Buffer
}

func (f *memFile) Write(p []byte) (int, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	return f.buf.Write(p)
}

func (f *memFile) Close() error { return nil }

func (s *memStore) Create(rel string, size uint64) (io.WriteCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := &bytes.Buffer{}
	s.files[rel] = buf
	return &memFile{st: s, buf: buf}, nil
}

func (s *memStore) Mkdir(rel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirs = append(s.dirs, rel)
	return nil
}

func (s *memStore) contents(rel string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf, ok := s.files[rel]
	if !ok {
		return nil
	}
	return append([]byte(nil), buf.Bytes()...)
}

// ---------------------------------------------------------------------------
// Harness: a sender and receiver joined by a lossy in-memory segment
// ---------------------------------------------------------------------------

type harness struct {
	sender   *Sender
	receiver *Receiver
	store    *memStore

	senderConn *transport.Pipe // filter here to tamper with outbound data
	recvConn   *transport.Pipe // filter here to tamper with acknowledgments

	completions chan Completion
}

func newHarness(t *testing.T, cfg config.Transfer) *harness {
	t.Helper()

	senderConn, recvConn := transport.NewPipe(senderMAC, receiverMAC)
	t.Cleanup(func() {
		senderConn.Close()
		recvConn.Close()
	})

	h := &harness{
		store:       newMemStore(),
		senderConn:  senderConn,
		recvConn:    recvConn,
		completions: make(chan Completion, 4),
	}
	h.sender = NewSender(senderConn, cfg)
	h.receiver = NewReceiver(recvConn, h.store, func(c Completion) {
		h.completions <- c
	})

	// Receiver side: dispatch inbound file-transfer packets.
	go func() {
		for fr := range recvConn.Frames() {
			m, err := protocol.Decode(fr.Payload)
			if err != nil {
				continue
			}
			h.receiver.Handle(fr.Source, m)
		}
	}()

	// Sender side: feed acknowledgments back into the delivery loop.
	go func() {
		for fr := range senderConn.Frames() {
			m, err := protocol.Decode(fr.Payload)
			if err != nil {
				continue
			}
			switch m := m.(type) {
			case protocol.Ack:
				h.sender.Resolve(fr.Source, m.Seq, true)
			case protocol.Nack:
				h.sender.Resolve(fr.Source, m.Seq, false)
			}
		}
	}()

	return h
}

func (h *harness) waitCompletion(t *testing.T) Completion {
	t.Helper()
	select {
	case c := <-h.completions:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for transfer completion")
	}
	return Completion{}
}

// fileDataSeq extracts the sequence number if frame is a FILE_DATA packet.
func fileDataSeq(frame []byte) (uint32, bool) {
	if len(frame) < 11 || protocol.Kind(frame[0]) != protocol.KindFileData {
		return 0, false
	}
	return binary.BigEndian.Uint32(frame[3:7]), true
}

func makePayload(n int) []byte {
	data := make([]byte, n)
	rng := rand.New(rand.NewSource(7))
	rng.Read(data)
	return data
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

// TestSendFileLossless: over a clean channel the transfer completes, the
// receiver's bytes match, and fragments arrive strictly in ascending
// sequence order with no gaps (stop-and-wait never pipelines).
func TestSendFileLossless(t *testing.T) {
	h := newHarness(t, testConfig())
	data := makePayload(10 * 1024)

	var mu sync.Mutex
	var observed []uint32
	h.senderConn.SetFilter(func(frame []byte) ([]byte, bool) {
		if seq, ok := fileDataSeq(frame); ok {
			mu.Lock()
			observed = append(observed, seq)
			mu.Unlock()
		}
		return frame, true
	})

	report, err := h.sender.SendFile(context.Background(), receiverMAC, "blob.bin", data)
	if err != nil {
		t.Fatalf("SendFile failed: %v", err)
	}
	if report.Fragments != 10 {
		t.Errorf("fragments = %d, want 10", report.Fragments)
	}
	if report.Retransmits != 0 {
		t.Errorf("retransmits = %d, want 0 on a lossless channel", report.Retransmits)
	}

	c := h.waitCompletion(t)
	if c.Received != uint64(len(data)) || c.Expected != uint64(len(data)) {
		t.Errorf("completion = %d/%d bytes, want %d/%d", c.Received, c.Expected, len(data), len(data))
	}
	if !bytes.Equal(h.store.contents("blob.bin"), data) {
		t.Error("received bytes differ from sent bytes")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, seq := range observed {
		if seq != uint32(i) {
			t.Fatalf("fragment order violated: position %d carried seq %d", i, seq)
		}
	}
}

// TestLossRecovery: dropping one FILE_DATA frame and one of its first two
// retransmissions still completes the transfer intact within the retry
// budget.
func TestLossRecovery(t *testing.T) {
	h := newHarness(t, testConfig())
	data := makePayload(4 * 1024)

	drops := 0
	h.senderConn.SetFilter(func(frame []byte) ([]byte, bool) {
		if seq, ok := fileDataSeq(frame); ok && seq == 2 && drops < 2 {
			drops++
			return nil, false
		}
		return frame, true
	})

	report, err := h.sender.SendFile(context.Background(), receiverMAC, "blob.bin", data)
	if err != nil {
		t.Fatalf("SendFile failed: %v", err)
	}
	if report.Retransmits != 2 {
		t.Errorf("retransmits = %d, want 2", report.Retransmits)
	}

	h.waitCompletion(t)
	if !bytes.Equal(h.store.contents("blob.bin"), data) {
		t.Error("received bytes differ from sent bytes")
	}
}

// TestRetryCeiling: a fragment dropped on every attempt aborts the
// transfer with RetryCeilingError naming it, and FILE_END never goes out.
func TestRetryCeiling(t *testing.T) {
	cfg := testConfig()
	cfg.AckTimeout = config.Duration{Duration: 10 * time.Millisecond}
	cfg.MaxRetries = 3
	h := newHarness(t, cfg)

	var mu sync.Mutex
	var kinds []protocol.Kind
	h.senderConn.SetFilter(func(frame []byte) ([]byte, bool) {
		mu.Lock()
		kinds = append(kinds, protocol.Kind(frame[0]))
		mu.Unlock()
		if seq, ok := fileDataSeq(frame); ok && seq == 1 {
			return nil, false
		}
		return frame, true
	})

	_, err := h.sender.SendFile(context.Background(), receiverMAC, "blob.bin", makePayload(3*1024))
	var ceiling *RetryCeilingError
	if !errors.As(err, &ceiling) {
		t.Fatalf("SendFile error = %v, want *RetryCeilingError", err)
	}
	if ceiling.Seq != 1 {
		t.Errorf("failing sequence = %d, want 1", ceiling.Seq)
	}
	if ceiling.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", ceiling.Attempts)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, k := range kinds {
		if k == protocol.KindFileEnd {
			t.Error("FILE_END was transmitted despite the aborted transfer")
		}
	}
}

// TestCorruptionDetection: a bit-flipped fragment is never written; the
// receiver NACKs it and the clean retransmission lands.
func TestCorruptionDetection(t *testing.T) {
	h := newHarness(t, testConfig())
	data := makePayload(2 * 1024)

	corrupted := false
	h.senderConn.SetFilter(func(frame []byte) ([]byte, bool) {
		if _, ok := fileDataSeq(frame); ok && !corrupted {
			corrupted = true
			mangled := append([]byte(nil), frame...)
			mangled[len(mangled)-1] ^= 0x01 // flip one data bit
			return mangled, true
		}
		return frame, true
	})

	var mu sync.Mutex
	nacks := 0
	h.recvConn.SetFilter(func(frame []byte) ([]byte, bool) {
		if protocol.Kind(frame[0]) == protocol.KindNack {
			mu.Lock()
			nacks++
			mu.Unlock()
		}
		return frame, true
	})

	report, err := h.sender.SendFile(context.Background(), receiverMAC, "blob.bin", data)
	if err != nil {
		t.Fatalf("SendFile failed: %v", err)
	}
	if report.Retransmits != 1 {
		t.Errorf("retransmits = %d, want 1 (NACK skips the timeout)", report.Retransmits)
	}

	mu.Lock()
	if nacks == 0 {
		t.Error("receiver never sent a NACK for the corrupt fragment")
	}
	mu.Unlock()

	h.waitCompletion(t)
	if !bytes.Equal(h.store.contents("blob.bin"), data) {
		t.Error("received bytes differ from sent bytes; corruption leaked through")
	}
}

// TestEndToEndWithRandomLoss: a 10,000-byte file over a channel dropping
// 5% of data and acknowledgment frames arrives byte-for-byte intact.
func TestEndToEndWithRandomLoss(t *testing.T) {
	h := newHarness(t, testConfig())
	data := makePayload(10000)

	lossy := func(rng *rand.Rand) func([]byte) ([]byte, bool) {
		return func(frame []byte) ([]byte, bool) {
			k := protocol.Kind(frame[0])
			if k == protocol.KindFileData || k == protocol.KindAck || k == protocol.KindNack {
				if rng.Intn(100) < 5 {
					return nil, false
				}
			}
			return frame, true
		}
	}
	h.senderConn.SetFilter(lossy(rand.New(rand.NewSource(11))))
	h.recvConn.SetFilter(lossy(rand.New(rand.NewSource(23))))

	report, err := h.sender.SendFile(context.Background(), receiverMAC, "blob.bin", data)
	if err != nil {
		t.Fatalf("SendFile failed: %v", err)
	}
	if report.Fragments != 10 {
		t.Errorf("fragments = %d, want 10", report.Fragments)
	}
	// Loss is recovered well below the per-fragment ceiling on average.
	if report.Retransmits >= report.Fragments*testConfig().MaxRetries {
		t.Errorf("retransmits = %d, implausibly high for 5%% loss", report.Retransmits)
	}

	h.waitCompletion(t)
	if !bytes.Equal(h.store.contents("blob.bin"), data) {
		t.Error("received bytes differ from sent bytes")
	}
}

// TestEmptyFile: zero bytes means zero fragments, just FILE_START and
// FILE_END, and a clean completion.
func TestEmptyFile(t *testing.T) {
	h := newHarness(t, testConfig())

	report, err := h.sender.SendFile(context.Background(), receiverMAC, "empty.txt", nil)
	if err != nil {
		t.Fatalf("SendFile failed: %v", err)
	}
	if report.Fragments != 0 {
		t.Errorf("fragments = %d, want 0", report.Fragments)
	}

	c := h.waitCompletion(t)
	if c.Received != 0 || c.Expected != 0 {
		t.Errorf("completion = %d/%d bytes, want 0/0", c.Received, c.Expected)
	}
}

// TestDuplicateDataIdempotent: losing an ACK makes the sender retransmit
// an already-written fragment; the receiver re-acknowledges without
// double-writing.
func TestDuplicateDataIdempotent(t *testing.T) {
	h := newHarness(t, testConfig())
	data := makePayload(3 * 1024)

	dropped := false
	h.recvConn.SetFilter(func(frame []byte) ([]byte, bool) {
		if protocol.Kind(frame[0]) == protocol.KindAck && !dropped {
			dropped = true
			return nil, false // lose the first ACK
		}
		return frame, true
	})

	report, err := h.sender.SendFile(context.Background(), receiverMAC, "blob.bin", data)
	if err != nil {
		t.Fatalf("SendFile failed: %v", err)
	}
	if report.Retransmits != 1 {
		t.Errorf("retransmits = %d, want 1", report.Retransmits)
	}

	c := h.waitCompletion(t)
	if c.Received != uint64(len(data)) {
		t.Errorf("received = %d bytes, want %d (duplicate must not double-count)", c.Received, len(data))
	}
	if !bytes.Equal(h.store.contents("blob.bin"), data) {
		t.Error("received bytes differ from sent bytes")
	}
}
