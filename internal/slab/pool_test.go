package slab

import "testing"

func TestPoolGetReturnRoundTrip(t *testing.T) {
	p, err := New(Config{SlabSize: 256, ObjSize: 64}) // 4 objects per slab
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	objs := make([]*Object, 0, 4)
	for i := 0; i < 4; i++ {
		o := p.Get()
		if len(o.Data) != 64 {
			t.Fatalf("expected object of 64 bytes, got %d", len(o.Data))
		}
		objs = append(objs, o)
	}

	slabs, free := p.Stats()
	if slabs != 1 || free != 0 {
		t.Fatalf("expected 1 slab 0 free, got slabs=%d free=%d", slabs, free)
	}

	// A fifth request forces a new slab.
	fifth := p.Get()
	slabs, free = p.Stats()
	if slabs != 2 {
		t.Fatalf("expected slab growth, got %d slabs", slabs)
	}

	for _, o := range objs {
		p.Return(o)
	}
	p.Return(fifth)

	p.GC()
	slabs, free = p.Stats()
	if slabs != 0 || free != 0 {
		t.Fatalf("expected all slabs collected, got slabs=%d free=%d", slabs, free)
	}

	p.Destroy()
	slabs, free = p.Stats()
	if slabs != 0 || free != 0 {
		t.Fatalf("expected destroyed pool to report zero, got slabs=%d free=%d", slabs, free)
	}
}

func TestPoolGCLeavesPartialSlabs(t *testing.T) {
	p, err := New(Config{SlabSize: 128, ObjSize: 64}) // 2 objects per slab
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	a := p.Get()
	b := p.Get()
	p.Return(a)
	// b is still outstanding: the slab is not fully free.
	p.GC()

	slabs, _ := p.Stats()
	if slabs != 1 {
		t.Fatalf("expected partial slab to survive GC, got %d slabs", slabs)
	}

	p.Return(b)
	p.GC()
	slabs, _ = p.Stats()
	if slabs != 0 {
		t.Fatalf("expected slab to be collected once fully free, got %d slabs", slabs)
	}
}

func TestPoolRejectsBadSizes(t *testing.T) {
	if _, err := New(Config{SlabSize: 10, ObjSize: 0}); err == nil {
		t.Fatalf("expected error for zero object size")
	}
	if _, err := New(Config{SlabSize: 10, ObjSize: 100}); err == nil {
		t.Fatalf("expected error for object larger than slab")
	}
}
