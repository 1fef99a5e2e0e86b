package vm

import "sort"

// Property is the one-byte descriptor of a property slot: two type bits and
// the attribute flags.
type Property uint8

const (
	propTypeSpecial  Property = 0 // deleted slot, or the hashmap node marker
	propTypeData     Property = 1
	propTypeAccessor Property = 2
	propTypeInternal Property = 3
	propTypeMask     Property = 3

	PropConfigurable Property = 1 << 2
	PropEnumerable   Property = 1 << 3
	PropWritable     Property = 1 << 4
	propLCached      Property = 1 << 5
	propHashmapMark  Property = 1 << 6

	propDeleted    Property = propTypeSpecial
	PropAttributes          = PropConfigurable | PropEnumerable | PropWritable
	PropDefault             = PropAttributes
)

// propValue holds a data value, or the getter and setter of an accessor.
type propValue struct {
	value  Value // data value, or getter
	setter Value
}

// propNode is one pair of property slots in an object's property list. When
// an object has a hashmap, the list head is a pseudo node carrying it.
type propNode struct {
	next    *propNode
	types   [2]Property
	names   [2]Value
	values  [2]propValue
	hashmap *propHashmap
}

func (n *propNode) isHashmap() bool { return n.types[0]&propHashmapMark != 0 }

// propRef locates one slot of a property pair.
type propRef struct {
	node *propNode
	slot uint8
}

func (r propRef) found() bool { return r.node != nil }

func (r propRef) typ() Property { return r.node.types[r.slot] & propTypeMask }

func (r propRef) attrs() Property { return r.node.types[r.slot] & PropAttributes }

func (r propRef) has(flag Property) bool { return r.node.types[r.slot]&flag != 0 }

func (r propRef) name() Value { return r.node.names[r.slot] }

func (r propRef) value() Value { return r.node.values[r.slot].value }

func (r propRef) getter() Value { return r.node.values[r.slot].value }

func (r propRef) setter() Value { return r.node.values[r.slot].setter }

// firstPair returns the first real pair of the list, skipping the hashmap
// node.
func firstPair(o *Object) *propNode {
	n := o.props
	if n != nil && n.isHashmap() {
		n = n.next
	}
	return n
}

// propertyNamesEqual compares property names. Names are strings or symbols.
func (vm *VM) propertyNamesEqual(a, b Value) bool {
	if a == b {
		return true
	}
	return vm.StringsEqual(a, b)
}

// ---------------------------------------------------------------------------
// Lookup
// ---------------------------------------------------------------------------

// findNamedProperty looks up an own property. The LCache is consulted first,
// then the hashmap if the object has one, then the pair list. A successful
// list or hashmap lookup is entered into the LCache.
func (vm *VM) findNamedProperty(o *Object, name Value) propRef {
	if ref, ok := vm.lcache.lookup(vm, o.self, name); ok {
		return ref
	}

	if o.props != nil && o.props.isHashmap() {
		ref := o.props.hashmap.find(vm, name)
		if ref.found() && !ref.has(propLCached) {
			vm.lcache.insert(vm, o.self, ref)
		}
		return ref
	}

	steps := 0
	var ref propRef
	for n := o.props; n != nil; n = n.next {
		steps++
		if n.types[0] != propDeleted && vm.propertyNamesEqual(n.names[0], name) {
			ref = propRef{node: n, slot: 0}
			break
		}
		if n.types[1] != propDeleted && vm.propertyNamesEqual(n.names[1], name) {
			ref = propRef{node: n, slot: 1}
			break
		}
	}

	if steps >= vm.config.HashmapThreshold {
		vm.buildHashmap(o)
	}
	if ref.found() {
		vm.lcache.insert(vm, o.self, ref)
	}
	return ref
}

// ---------------------------------------------------------------------------
// Creation
// ---------------------------------------------------------------------------

// createProperty adds a slot for name. The slot is fully populated before it
// becomes visible to the hashmap, since a hashmap rebuild may trigger a
// reachability sweep. The name reference is copied.
func (vm *VM) createProperty(o *Object, name Value, typ Property, value, setter Value) propRef {
	var ref propRef
	if head := firstPair(o); head != nil && head.types[0] == propDeleted {
		ref = propRef{node: head, slot: 0}
	} else {
		n := &propNode{}
		if o.props != nil && o.props.isHashmap() {
			n.next = o.props.next
			o.props.next = n
		} else {
			n.next = o.props
			o.props = n
		}
		ref = propRef{node: n, slot: 1}
	}

	ref.node.types[ref.slot] = typ
	ref.node.names[ref.slot] = vm.CopyValue(name)
	ref.node.values[ref.slot] = propValue{value: value, setter: setter}

	if o.props.isHashmap() {
		if !o.props.hashmap.insert(vm, name, ref) {
			vm.rebuildHashmap(o)
		}
	}
	return ref
}

// createNamedDataProperty adds a data property. value is copied.
func (vm *VM) createNamedDataProperty(o *Object, name, value Value, attrs Property) propRef {
	return vm.createProperty(o, name, propTypeData|attrs&PropAttributes, vm.copyValueIfNotObject(value), Undefined)
}

// createNamedAccessorProperty adds an accessor property. getter and setter
// are function objects or Undefined.
func (vm *VM) createNamedAccessorProperty(o *Object, name, getter, setter Value, attrs Property) propRef {
	attrs &= PropConfigurable | PropEnumerable
	return vm.createProperty(o, name, propTypeAccessor|attrs, getter, setter)
}

// setPropertyValue replaces the value of a data slot. value is copied.
func (vm *VM) setPropertyValue(ref propRef, value Value) {
	old := ref.node.values[ref.slot].value
	ref.node.values[ref.slot].value = vm.copyValueIfNotObject(value)
	vm.freeValueIfNotObject(old)
}

// convertToAccessor turns a data slot into an accessor slot in place.
func (vm *VM) convertToAccessor(ref propRef, getter, setter Value, attrs Property) {
	vm.freeValueIfNotObject(ref.node.values[ref.slot].value)
	ref.node.types[ref.slot] = propTypeAccessor | attrs&(PropConfigurable|PropEnumerable) | ref.node.types[ref.slot]&propLCached
	ref.node.values[ref.slot] = propValue{value: getter, setter: setter}
}

// convertToData turns an accessor slot into a data slot in place.
func (vm *VM) convertToData(ref propRef, value Value, attrs Property) {
	ref.node.types[ref.slot] = propTypeData | attrs&PropAttributes | ref.node.types[ref.slot]&propLCached
	ref.node.values[ref.slot] = propValue{value: vm.copyValueIfNotObject(value), setter: Undefined}
}

// ---------------------------------------------------------------------------
// Deletion
// ---------------------------------------------------------------------------

// deleteProperty removes a slot: its LCache entry is invalidated, its
// hashmap entry removed, its name and value released. A pair whose two
// slots are both deleted is unlinked.
func (vm *VM) deleteProperty(o *Object, ref propRef) {
	n, slot := ref.node, ref.slot
	name := n.names[slot]

	if n.types[slot]&propLCached != 0 {
		vm.lcache.invalidate(vm, o.self, ref)
	}

	recreate := false
	if o.props.isHashmap() {
		recreate = o.props.hashmap.remove(vm, name, ref) == hashmapRecreate
	}

	vm.releaseSlot(n, slot)

	if n.types[0] == propDeleted && n.types[1] == propDeleted {
		prev := o.props
		if prev == n {
			o.props = n.next
		} else {
			for prev != nil && prev.next != n {
				prev = prev.next
			}
			if prev != nil {
				prev.next = n.next
			}
		}
	}

	if recreate {
		vm.rebuildHashmap(o)
	}
}

// releaseSlot frees the name and value of a slot and marks it deleted.
func (vm *VM) releaseSlot(n *propNode, slot uint8) {
	switch n.types[slot] & propTypeMask {
	case propTypeData, propTypeInternal:
		vm.freeValueIfNotObject(n.values[slot].value)
	}
	vm.FreeValue(n.names[slot])
	n.types[slot] = propDeleted
	n.names[slot] = Empty
	n.values[slot] = propValue{}
}

// releaseProperties frees every slot of a swept object.
func (vm *VM) releaseProperties(o *Object) {
	for n := o.props; n != nil; n = n.next {
		if n.isHashmap() {
			continue
		}
		for slot := uint8(0); slot < 2; slot++ {
			if n.types[slot] == propDeleted {
				continue
			}
			if n.types[slot]&propLCached != 0 {
				vm.lcache.invalidate(vm, o.self, propRef{node: n, slot: slot})
			}
			vm.releaseSlot(n, slot)
		}
	}
	o.props = nil
}

// ---------------------------------------------------------------------------
// Enumeration
// ---------------------------------------------------------------------------

// ownPropertyNames returns the names of o's own properties: array indices in
// ascending order first, then other names in insertion order. Symbols and,
// when onlyEnumerable is set, non-enumerable properties are skipped. The
// names are borrowed.
func (vm *VM) ownPropertyNames(o *Object, onlyEnumerable bool) []Value {
	var indices []uint32
	var indexNames []Value
	var names []Value
	for n := o.props; n != nil; n = n.next {
		if n.isHashmap() {
			continue
		}
		for slot := 0; slot < 2; slot++ {
			typ := n.types[slot]
			if typ&propTypeMask == propTypeSpecial || typ&propTypeMask == propTypeInternal {
				continue
			}
			if onlyEnumerable && typ&PropEnumerable == 0 {
				continue
			}
			name := n.names[slot]
			if name.IsSymbol() {
				continue
			}
			if idx, ok := vm.StringToArrayIndex(name); ok {
				indices = append(indices, idx)
				indexNames = append(indexNames, name)
				continue
			}
			names = append(names, name)
		}
	}

	// The list is newest first; slot 0 of a pair is newer than slot 1.
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	if len(indices) > 1 {
		sort.Sort(indexOrder{indices, indexNames})
	}
	return append(indexNames, names...)
}

type indexOrder struct {
	idx   []uint32
	names []Value
}

func (s indexOrder) Len() int           { return len(s.idx) }
func (s indexOrder) Less(i, j int) bool { return s.idx[i] < s.idx[j] }
func (s indexOrder) Swap(i, j int) {
	s.idx[i], s.idx[j] = s.idx[j], s.idx[i]
	s.names[i], s.names[j] = s.names[j], s.names[i]
}

// propertyCount returns the number of live slots.
func propertyCount(o *Object) int {
	count := 0
	for n := o.props; n != nil; n = n.next {
		if n.isHashmap() {
			continue
		}
		for slot := 0; slot < 2; slot++ {
			if n.types[slot] != propDeleted {
				count++
			}
		}
	}
	return count
}
