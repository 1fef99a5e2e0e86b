package vm

import "testing"

func TestCollectGarbageReclaimsCycles(t *testing.T) {
	vm := New(Config{GCObjectLimit: -1})
	base := vm.CollectGarbage().Live

	a := vm.NewObject()
	b := vm.NewObject()
	vm.Set(a, "b", b)
	vm.Set(b, "a", a)
	vm.FreeValue(a)
	vm.FreeValue(b)

	stats := vm.CollectGarbage()
	if stats.Swept != 2 {
		t.Errorf("swept %d objects, want 2", stats.Swept)
	}
	if vm.IsLive(a) || vm.IsLive(b) {
		t.Error("unreachable cycle survived the sweep")
	}
	if stats.Live != base {
		t.Errorf("%d objects live, want %d", stats.Live, base)
	}
	if vm.LastGCStats() != stats {
		t.Error("LastGCStats does not return the latest sweep")
	}
}

func TestCollectGarbageKeepsReachable(t *testing.T) {
	vm := New(Config{GCObjectLimit: -1})

	root := vm.NewObject()
	defer vm.FreeValue(root)
	child := vm.NewObject()
	vm.Set(root, "child", child)
	name := vm.NewString("a heap string held by an unreachable object")
	vm.Set(child, "name", name)
	vm.FreeValue(child)

	vm.CollectGarbage()
	if !vm.IsLive(child) {
		t.Fatal("object reachable from a root was swept")
	}
	if !vm.IsLive(name) {
		t.Fatal("string held by a live object was released")
	}

	vm.Delete(root, "child")
	vm.CollectGarbage()
	if vm.IsLive(child) {
		t.Error("object survived after its last referrer dropped it")
	}
	if vm.IsLive(name) {
		vm.FreeValue(name)
		if vm.IsLive(name) {
			t.Error("string of a swept object was not released")
		}
	}
}

func TestCollectGarbageAfterScript(t *testing.T) {
	vm := New(Config{GCObjectLimit: -1})
	base := vm.CollectGarbage().Live

	fn := buildFunction(t, "make", func(a *Assembler) {
		a.Emit(OpPushObject)
		a.Emit(OpPushThis)
		a.Emit(OpSetProperty, a.String("self"))
		a.Emit(OpReturn)
	})
	a := NewAssembler()
	for i := 0; i < 10; i++ {
		a.Emit(OpPushLiteral, a.Function(fn))
		a.EmitByte(OpCall, 0)
	}
	mustRun(t, vm, a)

	if vm.Heap().Stats().Objects <= base {
		t.Fatal("script allocated no objects")
	}
	stats := vm.CollectGarbage()
	if stats.Live != base {
		t.Errorf("%d objects live after the sweep, want %d", stats.Live, base)
	}
}

func TestAutomaticCollection(t *testing.T) {
	vm := New(Config{GCObjectLimit: 16})
	for i := 0; i < 100; i++ {
		vm.FreeValue(vm.NewObject())
	}
	if vm.Stats().GCRuns == 0 {
		t.Error("no sweep after exceeding the allocation limit")
	}
	if vm.LastGCStats() == nil {
		t.Error("LastGCStats is nil after an automatic sweep")
	}
}
