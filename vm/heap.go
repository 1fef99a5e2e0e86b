package vm

import "math"

// ---------------------------------------------------------------------------
// Arena: generational slots addressed by handle
// ---------------------------------------------------------------------------

// maxArenaSlots bounds every arena. Exceeding it is reported as out of memory.
const maxArenaSlots = math.MaxUint32 - 1

// arena stores heap records behind (index, generation) handles. Freed slots
// bump their generation so stale handles are detectable.
type arena[T any] struct {
	items []*T
	gens  []uint16
	free  []uint32
	live  int
}

// alloc stores item and returns its handle. ok is false when the arena is full.
func (a *arena[T]) alloc(item *T) (index uint32, gen uint16, ok bool) {
	if n := len(a.free); n > 0 {
		index = a.free[n-1]
		a.free = a.free[:n-1]
		a.items[index] = item
		a.live++
		return index, a.gens[index], true
	}
	if len(a.items) >= maxArenaSlots {
		return 0, 0, false
	}
	a.items = append(a.items, item)
	a.gens = append(a.gens, 0)
	a.live++
	return uint32(len(a.items) - 1), 0, true
}

// get returns the record for a handle, or nil if the handle is stale.
func (a *arena[T]) get(index uint32, gen uint16) *T {
	if int(index) >= len(a.items) || a.gens[index] != gen {
		return nil
	}
	return a.items[index]
}

// release frees a slot.
func (a *arena[T]) release(index uint32) {
	a.items[index] = nil
	a.gens[index]++
	a.free = append(a.free, index)
	a.live--
}

// ---------------------------------------------------------------------------
// Heap
// ---------------------------------------------------------------------------

// valueRefLimit is the saturation point of string and float reference counts.
const valueRefLimit = 1<<28 - 1

type floatBox struct {
	refs   uint32
	static bool
	value  float64
}

// Heap owns every heap-allocated value of one VM.
type Heap struct {
	strings     arena[stringDesc]
	floats      arena[floatBox]
	objects     arena[Object]
	collections arena[collection]

	// gcHead links every live object (the GC chain).
	gcHead *Object

	// allocations since the last reachability sweep
	objectAllocs int
}

// HeapStats summarizes the heap.
type HeapStats struct {
	Objects     int
	Strings     int
	Floats      int
	Collections int
}

// Stats returns live counts for every arena.
func (h *Heap) Stats() HeapStats {
	return HeapStats{
		Objects:     h.objects.live,
		Strings:     h.strings.live,
		Floats:      h.floats.live,
		Collections: h.collections.live,
	}
}

// ---------------------------------------------------------------------------
// Floats
// ---------------------------------------------------------------------------

// FloatValue boxes f without trying the integer encoding.
func (vm *VM) FloatValue(f float64) Value {
	idx, gen, ok := vm.heap.floats.alloc(&floatBox{refs: 1, value: f})
	if !ok {
		vm.fatal(FatalOutOfMemory)
	}
	return makeHandle(tagFloat, idx, gen)
}

// NumberValue encodes f as a direct integer when exactly representable and
// boxes it otherwise.
func (vm *VM) NumberValue(f float64) Value {
	if n, ok := floatToInteger(f); ok {
		return IntegerValue(n)
	}
	return vm.FloatValue(f)
}

func (vm *VM) staticFloat(f float64) Value {
	idx, gen, ok := vm.heap.floats.alloc(&floatBox{refs: 1, static: true, value: f})
	if !ok {
		vm.fatal(FatalOutOfMemory)
	}
	return makeHandle(tagFloat, idx, gen)
}

func (vm *VM) floatBox(v Value) *floatBox {
	b := vm.heap.floats.get(v.index(), v.gen())
	if b == nil {
		vm.fatal(FatalUnreachable)
	}
	return b
}

// Number returns the numeric value of an integer or float.
func (vm *VM) Number(v Value) float64 {
	if v.IsInteger() {
		return float64(v.Integer())
	}
	return vm.floatBox(v).value
}

// UpdateFloat replaces the number held by the float v with f and returns the
// resulting value. The reference held on v is consumed. When f is exactly
// representable as an integer the float is released and a direct integer is
// returned; a float owned only by the caller is updated in place.
func (vm *VM) UpdateFloat(v Value, f float64) Value {
	if n, ok := floatToInteger(f); ok {
		vm.FreeValue(v)
		return IntegerValue(n)
	}
	b := vm.floatBox(v)
	if b.refs == 1 && !b.static {
		b.value = f
		return v
	}
	vm.FreeValue(v)
	return vm.FloatValue(f)
}

// ---------------------------------------------------------------------------
// Reference counting
// ---------------------------------------------------------------------------

// CopyValue acquires a reference on v and returns it. Objects gain an
// external reference that keeps them alive across reachability sweeps.
func (vm *VM) CopyValue(v Value) Value {
	switch v.tag() {
	case tagString, tagSymbol:
		vm.refString(v)
	case tagFloat:
		b := vm.floatBox(v)
		if !b.static {
			if b.refs >= valueRefLimit {
				vm.fatal(FatalRefCountLimit)
			}
			b.refs++
		}
	case tagObject:
		vm.refObject(vm.object(v))
	}
	return v
}

// FreeValue releases a reference acquired by CopyValue or returned by an
// operation. Strings and floats are freed when their last reference goes;
// objects are reclaimed by the reachability sweep.
func (vm *VM) FreeValue(v Value) {
	switch v.tag() {
	case tagString, tagSymbol:
		vm.derefString(v)
	case tagFloat:
		b := vm.heap.floats.get(v.index(), v.gen())
		if b == nil {
			if debugAssertions {
				vm.fatal(FatalFailedAssertion)
			}
			return
		}
		if b.static {
			return
		}
		b.refs--
		if b.refs == 0 {
			vm.heap.floats.release(v.index())
		}
	case tagObject:
		if o := vm.heap.objects.get(v.index(), v.gen()); o != nil {
			vm.derefObject(o)
		}
	}
}

// copyValueIfNotObject is used for values stored inside the object graph:
// objects there are traced by the sweep rather than counted.
func (vm *VM) copyValueIfNotObject(v Value) Value {
	if v.IsObject() {
		return v
	}
	return vm.CopyValue(v)
}

func (vm *VM) freeValueIfNotObject(v Value) {
	if !v.IsObject() {
		vm.FreeValue(v)
	}
}

// RefCount returns the reference count of a heap value, or 0 for direct
// values and freed handles.
func (vm *VM) RefCount(v Value) int {
	switch v.tag() {
	case tagString, tagSymbol:
		if d := vm.heap.strings.get(v.index(), v.gen()); d != nil {
			return int(d.refs)
		}
	case tagFloat:
		if b := vm.heap.floats.get(v.index(), v.gen()); b != nil {
			return int(b.refs)
		}
	case tagObject:
		if o := vm.heap.objects.get(v.index(), v.gen()); o != nil {
			return int(o.refs())
		}
	}
	return 0
}

// IsLive reports whether the heap storage behind v still exists. Direct
// values are always live.
func (vm *VM) IsLive(v Value) bool {
	switch v.tag() {
	case tagString, tagSymbol:
		return vm.heap.strings.get(v.index(), v.gen()) != nil
	case tagDirectString:
		if v.directStringKind() == directStringPtr {
			return vm.heap.strings.get(v.index(), v.gen()) != nil
		}
	case tagFloat:
		return vm.heap.floats.get(v.index(), v.gen()) != nil
	case tagObject:
		return vm.heap.objects.get(v.index(), v.gen()) != nil
	case tagInternal:
		if v.internalKind() == internalCollection {
			return vm.heap.collections.get(v.payload(), v.gen()) != nil
		}
	}
	return true
}
