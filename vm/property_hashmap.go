package vm

// ---------------------------------------------------------------------------
// Property hashmap: an index over a long property list
// ---------------------------------------------------------------------------

// hashmapMinSize is the smallest bucket count. Sizes are powers of two.
const hashmapMinSize = 32

type hashmapStatus int

const (
	hashmapOK hashmapStatus = iota
	hashmapRecreate
)

type hashmapEntry struct {
	node *propNode
	slot uint8
	tomb bool
}

// propHashmap is an open-addressing table of property slots. Deleted
// entries leave tombstones so lookup sequences stay intact.
type propHashmap struct {
	entries []hashmapEntry
	used    int
	free    int // buckets never used since the table was built
}

func newPropHashmap(count int) *propHashmap {
	size := hashmapMinSize
	for size < count*2 {
		size <<= 1
	}
	return &propHashmap{entries: make([]hashmapEntry, size), free: size}
}

// find steps through the table triangularly, which visits every bucket of a
// power-of-two table.
func (h *propHashmap) find(vm *VM, name Value) propRef {
	mask := uint32(len(h.entries) - 1)
	i := vm.StringHash(name) & mask
	for step := uint32(1); step <= uint32(len(h.entries)); step++ {
		e := &h.entries[i]
		if e.node == nil {
			if !e.tomb {
				break
			}
		} else if vm.propertyNamesEqual(e.node.names[e.slot], name) {
			return propRef{node: e.node, slot: e.slot}
		}
		i = (i + step) & mask
	}
	return propRef{}
}

// insert adds a slot. It returns false when the table has run out of never
// used buckets; the caller then rebuilds it from the property list.
func (h *propHashmap) insert(vm *VM, name Value, ref propRef) bool {
	if h.free <= len(h.entries)/4 {
		return false
	}
	mask := uint32(len(h.entries) - 1)
	i := vm.StringHash(name) & mask
	for step := uint32(1); ; step++ {
		e := &h.entries[i]
		if e.node == nil {
			if !e.tomb {
				h.free--
			}
			*e = hashmapEntry{node: ref.node, slot: ref.slot}
			h.used++
			return true
		}
		i = (i + step) & mask
	}
}

// remove drops the entry of a slot. hashmapRecreate asks the caller to
// rebuild the table because it has become sparse.
func (h *propHashmap) remove(vm *VM, name Value, ref propRef) hashmapStatus {
	mask := uint32(len(h.entries) - 1)
	i := vm.StringHash(name) & mask
	for step := uint32(1); step <= uint32(len(h.entries)); step++ {
		e := &h.entries[i]
		if e.node == ref.node && e.slot == ref.slot {
			*e = hashmapEntry{tomb: true}
			h.used--
			break
		}
		if e.node == nil && !e.tomb {
			break
		}
		i = (i + step) & mask
	}
	if len(h.entries) > hashmapMinSize && h.used < len(h.entries)/8 {
		return hashmapRecreate
	}
	return hashmapOK
}

// buildHashmap indexes every live slot of o and installs the table as the
// head of the property list.
func (vm *VM) buildHashmap(o *Object) {
	if o.props != nil && o.props.isHashmap() {
		return
	}
	count := propertyCount(o)
	h := newPropHashmap(count)
	for n := o.props; n != nil; n = n.next {
		for slot := uint8(0); slot < 2; slot++ {
			if n.types[slot] != propDeleted {
				h.insert(vm, n.names[slot], propRef{node: n, slot: slot})
			}
		}
	}
	head := &propNode{next: o.props, hashmap: h}
	head.types[0] = propTypeSpecial | propHashmapMark
	o.props = head
	vm.stats.hashmapBuilds++
	vm.log.Debugf("property hashmap built: object %d, %d properties, %d buckets", o.self.index(), count, len(h.entries))
}

// rebuildHashmap drops the table and builds a fresh one if the object still
// has enough properties to warrant it.
func (vm *VM) rebuildHashmap(o *Object) {
	if o.props != nil && o.props.isHashmap() {
		o.props = o.props.next
	}
	if propertyCount(o) >= vm.config.HashmapThreshold {
		vm.buildHashmap(o)
	}
}
