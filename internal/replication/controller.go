// Package replication implements the node-level replication controller:
// a process-wide, set-once mode machine (none -> origin | none ->
// replica) that owns the ring buffer, the replica table, and the SDB
// anchor bookkeeping.
package replication

import (
	"encoding/hex"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rishav/replcore/internal/metrics"
	"github.com/rishav/replcore/internal/ring"
	"github.com/rishav/replcore/internal/slab"
)

// Info is the read-only snapshot returned by REPLICAINFO.
type Info struct {
	Mode         Mode
	LastSDBHash  string // hex-encoded, empty if no SDB has been issued
	LastCmdEID   uint64
	ReplicaCount int
}

// Controller is the process-wide replication state machine. Exactly one
// Controller exists per running server.
type Controller struct {
	log     *zap.SugaredLogger
	metrics *metrics.Collector

	ring *ring.Ring

	mode atomic.Int32

	mu            sync.Mutex
	replicas      []Replica
	replicaOfHost string
	replicaOfPort string

	cmdEIDCounter atomic.Uint64
	sdbEIDCounter atomic.Uint64
	lastSDBHash   atomic.Value // string, hex-encoded

	group *errgroup.Group

	// payloadPool carves fixed-size buffers for command payloads out of
	// slabs, instead of handing every Replicate call to the general
	// allocator. pending tracks which slab object backs a still-live
	// EID so the ring's free callback can return it once overwritten.
	// Both are touched only from the single producer goroutine that
	// calls Replicate/NewSDB, matching the ring's single-producer
	// contract, so no additional lock guards them.
	payloadPool *slab.Pool
	pending     map[uint64]*slab.Object
}

// New constructs a Controller with its own ring and payload slab pool,
// sized per ringCfg and poolCfg, supporting up to ringCfg.MaxReplicas
// concurrently registered replicas.
func New(ringCfg ring.Config, poolCfg slab.Config, log *zap.SugaredLogger, coll *metrics.Collector) (*Controller, error) {
	c := &Controller{
		log:      log,
		metrics:  coll,
		replicas: make([]Replica, ringCfg.MaxReplicas),
		pending:  make(map[uint64]*slab.Object),
	}
	c.lastSDBHash.Store("")
	c.group = &errgroup.Group{}
	// Seed the SDB EID counter with the MSB set and a process-specific
	// low word so a restarted process is unlikely to reissue an EID a
	// still-connected replica has already observed. Persistence of this
	// counter across restarts is out of scope.
	c.sdbEIDCounter.Store(sdbEIDBit | uint64(rand.Uint32()))

	pool, err := slab.New(poolCfg)
	if err != nil {
		return nil, fmt.Errorf("replication: building payload pool: %w", err)
	}
	c.payloadPool = pool

	r, err := ring.New(ringCfg, c.freePayload)
	if err != nil {
		return nil, fmt.Errorf("replication: building ring: %w", err)
	}
	c.ring = r

	return c, nil
}

// freePayload is the ring's FreeFunc: it returns a command payload's
// backing slab object to the pool once the ring overwrites its slot.
// SDB anchor hashes are borrowed from the SDB subsystem, not owned by
// the ring, so they are never freed here.
func (c *Controller) freePayload(data []byte, eid uint64) {
	if IsSDBEID(eid) {
		return
	}
	if obj, ok := c.pending[eid]; ok {
		delete(c.pending, eid)
		c.payloadPool.Return(obj)
	}
}

// Mode returns the current replication mode.
func (c *Controller) Mode() Mode {
	return Mode(c.mode.Load())
}

// NewSDB records a fresh snapshot anchor and inserts it into the ring.
// It is a no-op once this process has become a replica: a node that has
// not yet taken any mode-defining RPC is origin-capable by default (it
// may be snapshotting and replicating before the first REPLICASYNC
// arrives), matching scenario orderings where snapshots precede the
// first replica registration.
func (c *Controller) NewSDB(hash [HashSize]byte) {
	if c.Mode() == ModeReplica {
		return
	}

	eid := sdbEIDBit | (c.sdbEIDCounter.Add(1) &^ sdbEIDBit)
	hashHex := hex.EncodeToString(hash[:])
	c.lastSDBHash.Store(hashHex)

	for {
		evicted := c.ring.Insert(eid, SDBMarker, hash[:])
		if evicted == 0 {
			break
		}
		c.evict(evicted)
	}

	if c.metrics != nil {
		c.metrics.SDBAnchorsIssued.Inc()
		c.metrics.RingDepth.Set(float64(c.ring.Len()))
	}
	c.log.Debugw("issued sdb anchor", "eid", eid, "hash", hashHex)
}

// Replicate assigns the next command EID and inserts the record into
// the ring. It is a no-op once this process has become a replica.
func (c *Controller) Replicate(cmdID int8, payload []byte) {
	if c.Mode() == ModeReplica {
		return
	}

	eid := c.cmdEIDCounter.Add(1) &^ sdbEIDBit

	var data []byte
	if len(payload) <= c.payloadPool.ObjSize() {
		obj := c.payloadPool.Get()
		n := copy(obj.Data, payload)
		data = obj.Data[:n]
		c.pending[eid] = obj
	} else {
		// Payload exceeds the pool's fixed object size; fall back to a
		// directly allocated buffer rather than growing the pool's
		// per-object size for a rare oversized record.
		data = make([]byte, len(payload))
		copy(data, payload)
	}

	for {
		evicted := c.ring.Insert(eid, cmdID, data)
		if evicted == 0 {
			break
		}
		c.evict(evicted)
	}

	if c.metrics != nil {
		c.metrics.CommandsReplied.Inc()
		c.metrics.RingDepth.Set(float64(c.ring.Len()))
	}
}

func (c *Controller) evict(mask uint32) {
	c.ring.DelReadersMask(mask)
	if c.metrics != nil {
		c.metrics.EvictionsTotal.Inc()
	}
	c.log.Warnw("evicted slow reader(s)", "mask", fmt.Sprintf("%032b", mask))
}

// transitionToOrigin performs the one-time none->origin transition.
// It reports whether this call performed the transition (false if the
// mode was already something else).
func (c *Controller) transitionToOrigin() bool {
	return c.mode.CompareAndSwap(int32(ModeNone), int32(ModeOrigin))
}

// RegisterReplica implements REPLICASYNC: it transitions this process
// to origin mode on first use, allocates a replica slot anchored at the
// most recently issued SDB, and starts its reader worker.
func (c *Controller) RegisterReplica(transport Transport) (*Replica, error) {
	if !c.transitionToOrigin() && c.Mode() != ModeOrigin {
		return nil, fmt.Errorf("%w: node is in %s mode", ErrNotSupported, c.Mode())
	}

	c.mu.Lock()
	slot := -1
	for i := range c.replicas {
		if !c.replicas[i].InUse {
			slot = i
			break
		}
	}
	if slot == -1 {
		c.mu.Unlock()
		return nil, ErrNoBuffers
	}

	startEID := sdbEIDBit | (c.sdbEIDCounter.Load() &^ sdbEIDBit)
	if c.lastSDBHash.Load().(string) == "" {
		startEID = 0
	}

	c.replicas[slot] = Replica{
		InUse:     true,
		ID:        slot,
		StartEID:  startEID,
		Transport: transport,
	}
	replica := c.replicas[slot]
	c.mu.Unlock()

	var state ring.ReaderState
	c.ring.AddReader(replica.ID)
	if err := c.ring.InitReaderState(&state, replica.StartEID, replica.ID); err != nil {
		c.ring.DelReadersMask(uint32(1) << uint(replica.ID))
		c.mu.Lock()
		c.replicas[slot].InUse = false
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrStreamSetupFailed, err)
	}

	if c.metrics != nil {
		c.metrics.ActiveReplicas.Inc()
	}

	c.group.Go(func() error {
		runReader(c.ring, &state, transport, c.log, c.metrics)
		c.mu.Lock()
		c.replicas[slot].InUse = false
		c.mu.Unlock()
		if c.metrics != nil {
			c.metrics.ActiveReplicas.Dec()
		}
		return nil
	})

	return &replica, nil
}

// ReplicaOf implements REPLICAOF: it records the target origin and
// transitions this process to replica mode. The outbound connection to
// that origin is a collaborator concern outside the replication core.
func (c *Controller) ReplicaOf(host, port string) error {
	if !c.mode.CompareAndSwap(int32(ModeNone), int32(ModeReplica)) {
		return fmt.Errorf("%w: node is already in %s mode", ErrNotSupported, c.Mode())
	}
	c.mu.Lock()
	c.replicaOfHost, c.replicaOfPort = host, port
	c.mu.Unlock()
	c.log.Infow("transitioned to replica mode", "host", host, "port", port)
	return nil
}

// Info returns a read-only snapshot for REPLICAINFO.
func (c *Controller) Info() Info {
	c.mu.Lock()
	n := 0
	for i := range c.replicas {
		if c.replicas[i].InUse {
			n++
		}
	}
	c.mu.Unlock()

	return Info{
		Mode:         c.Mode(),
		LastSDBHash:  c.lastSDBHash.Load().(string),
		LastCmdEID:   c.cmdEIDCounter.Load(),
		ReplicaCount: n,
	}
}

// Stop evicts every registered replica and waits for their workers to
// exit.
func (c *Controller) Stop() {
	c.ring.DelReadersMask(^uint32(0))
	_ = c.group.Wait()
}
