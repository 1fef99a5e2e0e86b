package vm

// Property lookup cache (LCache)
//
// A small set-associative table keyed by (object, property name) that maps
// straight to a property slot. Each row holds lcacheWays entries; a new entry
// goes to way 0 and pushes the older one down, evicting the last way. Slots
// that are cached carry the propLCached flag so deletion only searches the
// cache when it has to.

const lcacheWays = 2

// DefaultLCacheRows is the default number of LCache rows.
const DefaultLCacheRows = 128

type lcacheEntry struct {
	object Value
	ref    propRef
}

type lcache struct {
	rows [][lcacheWays]lcacheEntry
	mask uint32

	hits   uint64
	misses uint64
}

func newLCache(rows int) *lcache {
	size := 1
	for size < rows {
		size <<= 1
	}
	return &lcache{
		rows: make([][lcacheWays]lcacheEntry, size),
		mask: uint32(size - 1),
	}
}

func (c *lcache) row(vm *VM, object, name Value) *[lcacheWays]lcacheEntry {
	h := object.index()*0x9E3779B1 ^ uint32(object.gen()) ^ vm.StringHash(name)
	return &c.rows[(h^h>>15)&c.mask]
}

// lookup returns the cached slot for (object, name).
func (c *lcache) lookup(vm *VM, object, name Value) (propRef, bool) {
	row := c.row(vm, object, name)
	for i := range row {
		e := &row[i]
		if e.object == object && e.ref.found() && vm.propertyNamesEqual(e.ref.name(), name) {
			c.hits++
			return e.ref, true
		}
	}
	c.misses++
	return propRef{}, false
}

// insert caches a slot of object. The slot must be fully populated.
func (c *lcache) insert(vm *VM, object Value, ref propRef) {
	if ref.has(propLCached) {
		return
	}
	row := c.row(vm, object, ref.name())
	if evicted := row[lcacheWays-1].ref; evicted.found() {
		evicted.node.types[evicted.slot] &^= propLCached
	}
	copy(row[1:], row[:lcacheWays-1])
	row[0] = lcacheEntry{object: object, ref: ref}
	ref.node.types[ref.slot] |= propLCached
}

// invalidate removes the entry of a slot that is about to be deleted.
func (c *lcache) invalidate(vm *VM, object Value, ref propRef) {
	row := c.row(vm, object, ref.name())
	for i := range row {
		if row[i].object == object && row[i].ref == ref {
			row[i] = lcacheEntry{}
			break
		}
	}
	ref.node.types[ref.slot] &^= propLCached
}

// HitRate returns the cache hit rate as a percentage (0-100).
func (c *lcache) HitRate() float64 {
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) * 100 / float64(total)
}
