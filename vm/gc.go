package vm

import "time"

// ---------------------------------------------------------------------------
// Reachability sweep
// ---------------------------------------------------------------------------
//
// Reference counts on objects only record external references: values held
// by frames, the host, and the VM's own roots. References from one object to
// another are not counted, so cycles through prototypes, closures and
// environments are reclaimed here: every object with a nonzero count is a
// root, everything reachable from a root survives, and the rest of the GC
// chain is swept.

// GCStats holds statistics from a single sweep.
type GCStats struct {
	Roots         int
	Marked        int
	Swept         int
	Live          int
	SweepDuration time.Duration
	Timestamp     time.Time
}

// CollectGarbage performs an immediate sweep.
func (vm *VM) CollectGarbage() *GCStats {
	if vm.gcRunning {
		return vm.lastGC
	}
	vm.gcRunning = true
	defer func() { vm.gcRunning = false }()

	start := time.Now()
	stats := &GCStats{Timestamp: start}

	// 1. Roots
	var work []*Object
	for o := vm.heap.gcHead; o != nil; o = o.gcNext {
		if o.refs() > 0 {
			o.header |= objMark
			work = append(work, o)
		}
	}
	stats.Roots = len(work)

	// 2. Mark
	visit := func(v Value) {
		if !v.IsObject() {
			return
		}
		c := vm.heap.objects.get(v.index(), v.gen())
		if c == nil || c.marked() {
			return
		}
		c.header |= objMark
		work = append(work, c)
	}
	for len(work) > 0 {
		o := work[len(work)-1]
		work = work[:len(work)-1]
		stats.Marked++
		vm.traceObject(o, visit)
	}

	// 3. Sweep. Payloads are released before any slot is reused so that
	// release code never sees a recycled handle.
	var dead []*Object
	var prev *Object
	for o := vm.heap.gcHead; o != nil; {
		next := o.gcNext
		if o.marked() {
			o.header &^= objMark
			prev = o
		} else {
			if prev == nil {
				vm.heap.gcHead = next
			} else {
				prev.gcNext = next
			}
			o.gcNext = nil
			dead = append(dead, o)
		}
		o = next
	}
	for _, o := range dead {
		vm.releaseObject(o)
	}
	for _, o := range dead {
		vm.heap.objects.release(o.self.index())
	}

	vm.heap.objectAllocs = 0
	vm.stats.gcRuns++
	stats.Swept = len(dead)
	stats.Live = vm.heap.objects.live
	stats.SweepDuration = time.Since(start)
	vm.lastGC = stats
	vm.log.Debugf("gc: %d roots, %d marked, %d swept in %s", stats.Roots, stats.Marked, stats.Swept, stats.SweepDuration)
	return stats
}

// LastGCStats returns statistics from the most recent sweep, or nil if no
// sweep has been performed yet.
func (vm *VM) LastGCStats() *GCStats {
	return vm.lastGC
}

// gcIfNeeded sweeps once GCObjectLimit objects were allocated since the last
// sweep. A limit of zero disables automatic sweeps.
func (vm *VM) gcIfNeeded() {
	if vm.config.GCObjectLimit <= 0 || vm.heap.objectAllocs < vm.config.GCObjectLimit {
		return
	}
	vm.CollectGarbage()
}

// traceObject reports every value o refers to.
func (vm *VM) traceObject(o *Object, visit func(Value)) {
	visit(o.protoOrOuter)
	visit(o.bound)
	for n := o.props; n != nil; n = n.next {
		if n.isHashmap() {
			continue
		}
		for slot := 0; slot < 2; slot++ {
			switch n.types[slot] & propTypeMask {
			case propTypeData, propTypeInternal:
				visit(n.values[slot].value)
			case propTypeAccessor:
				visit(n.values[slot].value)
				visit(n.values[slot].setter)
			}
		}
	}
	if p, ok := o.ext.(extPayload); ok {
		p.trace(visit)
	}
}

// releaseObject frees the counted values held by an unreachable object.
func (vm *VM) releaseObject(o *Object) {
	vm.releaseProperties(o)
	if p, ok := o.ext.(extPayload); ok {
		p.release(vm)
	}
	o.ext = nil
	o.protoOrOuter = Empty
	o.bound = Empty
}
