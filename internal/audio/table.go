package audio

import "slices"

// Handle identifies a unit attached to a device. The zero Handle is never
// issued. A slot's generation changes when its unit is removed, so a stale
// handle never resolves to a later unit.
type Handle struct {
	index uint32
	gen   uint32
}

func (h Handle) IsZero() bool { return h.gen == 0 }

type slot struct {
	gen  uint32
	unit *Unit
}

// table is the device's unit collection: a slot map plus the insertion
// order the render loop mixes in. Guarded by Device.mu.
type table struct {
	slots []slot
	free  []uint32
	order []Handle
}

func (t *table) insert(u *Unit) Handle {
	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		idx = uint32(len(t.slots))
		t.slots = append(t.slots, slot{})
	}

	s := &t.slots[idx]
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.unit = u

	h := Handle{index: idx, gen: s.gen}
	t.order = append(t.order, h)
	return h
}

func (t *table) get(h Handle) (*Unit, bool) {
	if h.IsZero() || int(h.index) >= len(t.slots) {
		return nil, false
	}
	s := t.slots[h.index]
	if s.gen != h.gen || s.unit == nil {
		return nil, false
	}
	return s.unit, true
}

// remove detaches the unit behind h. It reports false for stale handles.
func (t *table) remove(h Handle) (*Unit, bool) {
	u, ok := t.get(h)
	if !ok {
		return nil, false
	}

	s := &t.slots[h.index]
	s.unit = nil
	s.gen++
	t.free = append(t.free, h.index)

	if i := slices.Index(t.order, h); i >= 0 {
		t.order = slices.Delete(t.order, i, i+1)
	}
	return u, true
}

func (t *table) len() int { return len(t.order) }

// units returns the attached units in insertion order.
func (t *table) units() []*Unit {
	out := make([]*Unit, 0, len(t.order))
	for _, h := range t.order {
		if u, ok := t.get(h); ok {
			out = append(out, u)
		}
	}
	return out
}

// clear detaches every unit and returns them in insertion order.
func (t *table) clear() []*Unit {
	out := t.units()
	for _, u := range out {
		t.remove(u.handle)
	}
	return out
}
