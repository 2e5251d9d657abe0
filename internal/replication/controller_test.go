package replication

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rishav/replcore/internal/logging"
	"github.com/rishav/replcore/internal/ring"
	"github.com/rishav/replcore/internal/slab"
)

type fakeTransport struct {
	mu     sync.Mutex
	frames []frame
	failAt int
	sends  int
	ended  bool
	endCh  chan struct{}
}

type frame struct {
	eid     uint64
	cmdID   int8
	payload []byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{failAt: -1, endCh: make(chan struct{})}
}

func (f *fakeTransport) SendReplicationFrame(eid uint64, cmdID int8, payload []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++
	if f.failAt >= 0 && f.sends > f.failAt {
		return -1, errors.New("simulated transport failure")
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	f.frames = append(f.frames, frame{eid, cmdID, cp})
	return len(payload), nil
}

func (f *fakeTransport) Flush() error { return nil }

func (f *fakeTransport) End() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.ended {
		f.ended = true
		close(f.endCh)
	}
}

func (f *fakeTransport) snapshot() []frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]frame, len(f.frames))
	copy(out, f.frames)
	return out
}

func newTestController(t *testing.T, capacity int) *Controller {
	t.Helper()
	c, err := New(
		ring.Config{Capacity: capacity, MaxReplicas: 4},
		slab.Config{SlabSize: 4096, ObjSize: 64},
		logging.Noop(), nil,
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func waitFrames(t *testing.T, tr *fakeTransport, n int) []frame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := tr.snapshot(); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d frames, got %d", n, len(tr.snapshot()))
	return nil
}

func TestAnchorThenStream(t *testing.T) {
	c := newTestController(t, 8)

	var hash [HashSize]byte
	copy(hash[:], []byte("A"))
	c.NewSDB(hash)

	tr := newFakeTransport()
	if _, err := c.RegisterReplica(tr); err != nil {
		t.Fatalf("RegisterReplica: %v", err)
	}

	c.Replicate(1, []byte("x"))
	c.Replicate(2, []byte("yy"))

	frames := waitFrames(t, tr, 3)
	if frames[0].cmdID != SDBMarker || !IsSDBEID(frames[0].eid) {
		t.Fatalf("expected first frame to be the sdb anchor, got %+v", frames[0])
	}
	if frames[1].eid != 1 || string(frames[1].payload) != "x" {
		t.Fatalf("unexpected second frame: %+v", frames[1])
	}
	if frames[2].eid != 2 || string(frames[2].payload) != "yy" {
		t.Fatalf("unexpected third frame: %+v", frames[2])
	}
}

func TestLateJoinSeesLatestAnchorOnly(t *testing.T) {
	c := newTestController(t, 16)

	var hashA, hashB [HashSize]byte
	copy(hashA[:], []byte("A"))
	copy(hashB[:], []byte("B"))

	c.NewSDB(hashA)
	c.Replicate(1, []byte("x"))
	c.NewSDB(hashB)
	c.Replicate(2, []byte("y"))

	tr := newFakeTransport()
	if _, err := c.RegisterReplica(tr); err != nil {
		t.Fatalf("RegisterReplica: %v", err)
	}

	frames := waitFrames(t, tr, 2)
	if frames[0].cmdID != SDBMarker || string(frames[0].payload[:1]) != "B" {
		t.Fatalf("expected first visible frame to be anchor B, got %+v", frames[0])
	}
	if frames[1].eid != 2 {
		t.Fatalf("expected second visible frame to be command 2, got %+v", frames[1])
	}
}

func TestModeConflict(t *testing.T) {
	c := newTestController(t, 8)

	if err := c.ReplicaOf("host", "1"); err != nil {
		t.Fatalf("ReplicaOf: %v", err)
	}

	_, err := c.RegisterReplica(newFakeTransport())
	if !errors.Is(err, ErrNotSupported) {
		t.Fatalf("expected ErrNotSupported, got %v", err)
	}

	info := c.Info()
	if info.Mode != ModeReplica || info.LastSDBHash != "" || info.LastCmdEID != 0 {
		t.Fatalf("unexpected info after mode conflict: %+v", info)
	}
}

func TestCrashSilentTransportDoesNotBlockProducer(t *testing.T) {
	c := newTestController(t, 8)

	var hash [HashSize]byte
	c.NewSDB(hash)

	tr := newFakeTransport()
	tr.failAt = 2 // allow the anchor + one command, then fail
	if _, err := c.RegisterReplica(tr); err != nil {
		t.Fatalf("RegisterReplica: %v", err)
	}

	c.Replicate(1, []byte("a"))
	waitFrames(t, tr, 2)

	c.Replicate(2, []byte("b")) // worker's next send fails and it exits

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		tr.mu.Lock()
		ended := tr.ended
		tr.mu.Unlock()
		if ended {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	select {
	case <-tr.endCh:
	default:
		t.Fatalf("expected transport.End to be called after send failure")
	}

	// The producer must still be able to insert further commands.
	c.Replicate(3, []byte("c"))
}
