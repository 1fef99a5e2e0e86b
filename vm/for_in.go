package vm

// ---------------------------------------------------------------------------
// Collections: chunked value lists owned by for-in contexts
// ---------------------------------------------------------------------------

const (
	collectionFirstChunk = 8
	collectionMaxChunk   = 256
)

// collection is a list of counted values stored in chunks. Chunks start
// small and double up to collectionMaxChunk so that short enumerations stay
// cheap and long ones do not copy.
type collection struct {
	chunks [][]Value
	count  int
}

func (c *collection) append(v Value) {
	if n := len(c.chunks); n == 0 || len(c.chunks[n-1]) == cap(c.chunks[n-1]) {
		size := collectionFirstChunk
		if n > 0 {
			size = cap(c.chunks[n-1]) * 2
			if size > collectionMaxChunk {
				size = collectionMaxChunk
			}
		}
		c.chunks = append(c.chunks, make([]Value, 0, size))
	}
	last := len(c.chunks) - 1
	c.chunks[last] = append(c.chunks[last], v)
	c.count++
}

func (c *collection) at(i int) Value {
	for _, chunk := range c.chunks {
		if i < len(chunk) {
			return chunk[i]
		}
		i -= len(chunk)
	}
	return Empty
}

func (vm *VM) newCollection() (Value, *collection) {
	c := &collection{}
	idx, gen, ok := vm.heap.collections.alloc(c)
	if !ok {
		vm.fatal(FatalOutOfMemory)
	}
	return makeHandle(tagInternal, idx, gen) | Value(internalCollection<<3), c
}

func (vm *VM) collection(v Value) *collection {
	c := vm.heap.collections.get(v.payload(), v.gen())
	if c == nil {
		vm.fatal(FatalUnreachable)
	}
	return c
}

// freeCollection releases every value of the collection and the collection
// itself.
func (vm *VM) freeCollection(v Value) {
	c := vm.collection(v)
	for _, chunk := range c.chunks {
		for _, item := range chunk {
			vm.FreeValue(item)
		}
	}
	c.chunks = nil
	vm.heap.collections.release(v.payload())
}

// ---------------------------------------------------------------------------
// for-in key enumeration
// ---------------------------------------------------------------------------

// forInKeys collects the enumerable string keys of o and its prototype
// chain: own keys first, then each prototype's keys not shadowed by a
// nearer object. The collection is empty when there are no keys.
func (vm *VM) forInKeys(o *Object) (Value, *collection) {
	handle, c := vm.newCollection()
	seen := make(map[string]bool)
	for p := o; p != nil; p = vm.prototypeOf(p) {
		if ext, ok := p.ext.(*classExt); ok && ext.class == ClassString {
			n := vm.StringLength(ext.primitive)
			for i := uint32(0); i < n; i++ {
				name := vm.uintString(i)
				key := vm.GoString(name)
				if !seen[key] {
					seen[key] = true
					c.append(name)
				} else {
					vm.FreeValue(name)
				}
			}
		}
		enumerable := vm.ownPropertyNames(p, true)
		all := vm.ownPropertyNames(p, false)
		for _, name := range enumerable {
			key := vm.GoString(name)
			if !seen[key] {
				c.append(vm.CopyValue(name))
			}
		}
		for _, name := range all {
			seen[vm.GoString(name)] = true
		}
	}
	return handle, c
}
