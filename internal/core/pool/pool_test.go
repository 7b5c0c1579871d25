package pool

import (
	"testing"
)

type item struct {
	id   int
	name string
}

func TestCreateAndGet(t *testing.T) {
	p := New[item](2, DefaultMaxBlockLength)
	h, v := p.Create()
	if h.IsZero() {
		t.Fatal("handle must not be zero")
	}
	v.id = 7
	got, ok := p.Get(h)
	if !ok || got.id != 7 {
		t.Fatalf("expected id 7, got %+v ok=%v", got, ok)
	}
	if p.Len() != 1 {
		t.Errorf("expected len 1, got %d", p.Len())
	}
	if _, ok := p.Get(0); ok {
		t.Error("zero handle resolved")
	}
	if _, ok := p.Get(newHandle(1000, 1)); ok {
		t.Error("out of range handle resolved")
	}
}

func TestGrowth(t *testing.T) {
	t.Run("doubles node size", func(t *testing.T) {
		p := New[item](2, DefaultMaxBlockLength)
		for i := 0; i < 7; i++ {
			p.Create()
		}
		caps := p.NodeCapacities()
		want := []int{2, 4, 8}
		if len(caps) != len(want) {
			t.Fatalf("expected nodes %v, got %v", want, caps)
		}
		for i := range want {
			if caps[i] != want[i] {
				t.Fatalf("expected nodes %v, got %v", want, caps)
			}
		}
		if p.Capacity() != 14 {
			t.Errorf("expected capacity 14, got %d", p.Capacity())
		}
	})

	t.Run("capped by max block length", func(t *testing.T) {
		p := New[item](2, 3)
		for i := 0; i < 9; i++ {
			p.Create()
		}
		for i, c := range p.NodeCapacities() {
			if c > 3 {
				t.Errorf("node %d has %d slots, max is 3", i, c)
			}
		}
	})

	t.Run("pointers stay valid", func(t *testing.T) {
		p := New[item](1, DefaultMaxBlockLength)
		h, first := p.Create()
		first.name = "first"
		for i := 0; i < 100; i++ {
			p.Create()
		}
		got, _ := p.Get(h)
		if got != first || first.name != "first" {
			t.Error("element moved after growth")
		}
	})
}

func TestEraseReusesSlots(t *testing.T) {
	p := New[item](4, DefaultMaxBlockLength)
	handles := make([]Handle, 4)
	for i := range handles {
		handles[i], _ = p.Create()
	}
	capBefore := p.Capacity()

	if !p.Erase(handles[1]) {
		t.Fatal("erase failed")
	}
	if p.Erase(handles[1]) {
		t.Error("double erase succeeded")
	}
	h, v := p.Create()
	if h.Index() != handles[1].Index() {
		t.Errorf("expected slot %d reused, got %d", handles[1].Index(), h.Index())
	}
	if h.Generation() == handles[1].Generation() {
		t.Error("generation not bumped on reuse")
	}
	if *v != (item{}) {
		t.Errorf("reused element not zeroed: %+v", *v)
	}
	if _, ok := p.Get(handles[1]); ok {
		t.Error("stale handle resolved")
	}
	if p.Capacity() != capBefore {
		t.Error("pool grew although a free slot existed")
	}
}

func TestElementsOrder(t *testing.T) {
	p := New[item](8, DefaultMaxBlockLength)
	var hs []Handle
	for i := 0; i < 5; i++ {
		h, v := p.Create()
		v.id = i
		hs = append(hs, h)
	}
	p.Erase(hs[2])

	var ids []int
	p.Each(func(_ Handle, v *item) { ids = append(ids, v.id) })
	want := []int{0, 1, 3, 4}
	if len(ids) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, ids)
		}
	}

	snapshot := p.Elements()
	p.Create()
	if len(snapshot) != 4 {
		t.Error("snapshot changed after create")
	}
}

func TestLast(t *testing.T) {
	p := New[item](4, DefaultMaxBlockLength)
	if _, ok := p.Last(); ok {
		t.Fatal("empty pool has no last element")
	}
	a, _ := p.Create()
	b, _ := p.Create()
	if h, _ := p.Last(); h != b {
		t.Errorf("expected %s, got %s", b, h)
	}

	p.Erase(b)
	if h, _ := p.Last(); h != a {
		t.Errorf("expected %s after erase, got %s", a, h)
	}
	p.Erase(a)
	if _, ok := p.Last(); ok || p.Len() != 0 {
		t.Error("pool should be empty")
	}
}

func TestEachSkipsErased(t *testing.T) {
	p := New[item](4, DefaultMaxBlockLength)
	a, _ := p.Create()
	b, _ := p.Create()
	visited := 0
	p.Each(func(h Handle, _ *item) {
		visited++
		if h == a {
			p.Erase(b)
		}
	})
	if visited != 1 {
		t.Errorf("expected 1 visit, got %d", visited)
	}
}

func TestClear(t *testing.T) {
	p := New[item](2, DefaultMaxBlockLength)
	var hs []Handle
	for i := 0; i < 6; i++ {
		h, _ := p.Create()
		hs = append(hs, h)
	}
	capBefore := p.Capacity()
	p.Clear()

	if p.Len() != 0 {
		t.Errorf("expected empty pool, got %d", p.Len())
	}
	for _, h := range hs {
		if p.Alive(h) {
			t.Fatalf("handle %s alive after clear", h)
		}
	}
	for i := 0; i < 6; i++ {
		p.Create()
	}
	if p.Capacity() != capBefore {
		t.Errorf("expected retained nodes to be reused, capacity %d -> %d", capBefore, p.Capacity())
	}
}

func TestNewPanics(t *testing.T) {
	for _, tc := range []struct {
		name          string
		size, maxSize int
	}{
		{"zero capacity", 0, 10},
		{"zero max block", 10, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			New[item](tc.size, tc.maxSize)
		})
	}
}

func TestHandleString(t *testing.T) {
	h := newHandle(3, 2)
	if h.String() != "3:2" {
		t.Errorf("expected 3:2, got %s", h.String())
	}
}
