// Package slab implements a fixed-size object pool backed by slabs of a
// configured size, used by the replication core to allocate per-insert payload
// buffers without going through the general-purpose allocator on every
// replicate call.
package slab

import "fmt"

// Config configures a Pool.
type Config struct {
	SlabSize int // bytes per slab; must be at least ObjSize
	ObjSize  int // bytes per object handed to callers
}

// DefaultConfig returns the spec's default sizing: 4 MiB slabs.
func DefaultConfig() Config {
	return Config{
		SlabSize: 4 * 1024 * 1024,
		ObjSize:  256,
	}
}

type slabBlock struct {
	data      []byte
	nrObjects int
	nrFree    int
}

// Object is a handle to a pool-allocated buffer. It remains valid until
// returned to the pool via Pool.Return.
type Object struct {
	Data []byte
	slab *slabBlock
}

// Pool hands out fixed-size []byte objects carved out of slabs. Each slab
// is an ordinary Go byte slice; slabs are not page-aligned. A Pool is not safe for concurrent use without external
// synchronization; the replication controller serializes access to it
// from the single producer goroutine.
type Pool struct {
	cfg       Config
	slabs     []*slabBlock
	freeList  []*Object
	nrObjects int
}

// New constructs a Pool. ObjSize must be positive and no larger than
// SlabSize.
func New(cfg Config) (*Pool, error) {
	if cfg.ObjSize <= 0 {
		return nil, fmt.Errorf("slab: object size must be positive")
	}
	if cfg.SlabSize < cfg.ObjSize {
		return nil, fmt.Errorf("slab: slab size %d smaller than object size %d", cfg.SlabSize, cfg.ObjSize)
	}
	n := cfg.SlabSize / cfg.ObjSize
	if n < 1 {
		n = 1
	}
	return &Pool{cfg: cfg, nrObjects: n}, nil
}

func (p *Pool) growSlab() {
	blk := &slabBlock{
		data:      make([]byte, p.nrObjects*p.cfg.ObjSize),
		nrObjects: p.nrObjects,
		nrFree:    p.nrObjects,
	}
	p.slabs = append(p.slabs, blk)
	for i := 0; i < p.nrObjects; i++ {
		off := i * p.cfg.ObjSize
		p.freeList = append(p.freeList, &Object{
			Data: blk.data[off : off+p.cfg.ObjSize],
			slab: blk,
		})
	}
}

// Get returns a free object, allocating a new slab if none is free.
func (p *Pool) Get() *Object {
	if len(p.freeList) == 0 {
		p.growSlab()
	}
	last := len(p.freeList) - 1
	obj := p.freeList[last]
	p.freeList = p.freeList[:last]
	obj.slab.nrFree--
	return obj
}

// Return releases an object back to its slab's free list.
func (p *Pool) Return(obj *Object) {
	if obj == nil || obj.slab == nil {
		return
	}
	obj.slab.nrFree++
	p.freeList = append(p.freeList, obj)
}

// GC releases every slab that is currently fully free, unlinking its
// objects from the pool's free list first.
func (p *Pool) GC() {
	if len(p.slabs) == 0 {
		return
	}
	emptySet := make(map[*slabBlock]bool)
	keptSlabs := p.slabs[:0]
	for _, s := range p.slabs {
		if s.nrFree == s.nrObjects {
			emptySet[s] = true
		} else {
			keptSlabs = append(keptSlabs, s)
		}
	}
	if len(emptySet) == 0 {
		return
	}
	kept := p.freeList[:0]
	for _, o := range p.freeList {
		if !emptySet[o.slab] {
			kept = append(kept, o)
		}
	}
	p.freeList = kept
	p.slabs = keptSlabs
}

// Destroy releases every slab unconditionally.
func (p *Pool) Destroy() {
	p.slabs = nil
	p.freeList = nil
}

// Stats reports the number of live slabs, for diagnostics and tests.
func (p *Pool) Stats() (slabs, freeObjects int) {
	return len(p.slabs), len(p.freeList)
}

// ObjSize returns the fixed size of objects this pool hands out.
func (p *Pool) ObjSize() int {
	return p.cfg.ObjSize
}
