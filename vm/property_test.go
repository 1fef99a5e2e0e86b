package vm

import (
	"fmt"
	"testing"
)

func getInt(t *testing.T, vm *VM, obj Value, name string) (int32, bool) {
	t.Helper()
	v, err := vm.Get(obj, name)
	if err != nil {
		t.Fatalf("Get %s: %v", name, err)
	}
	if v == Undefined {
		return 0, false
	}
	if !v.IsInteger() {
		t.Fatalf("Get %s = %v, want an integer", name, v)
	}
	return v.Integer(), true
}

func TestPropertyLifecycle(t *testing.T) {
	tests := []struct {
		name  string
		count int
	}{
		{"short list", 3},
		{"at threshold", DefaultHashmapThreshold * 2},
		{"hashmap", DefaultHashmapThreshold * 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := newTestVM(t)
			obj := vm.NewObject()
			defer vm.FreeValue(obj)

			for i := 0; i < tt.count; i++ {
				if err := vm.Set(obj, fmt.Sprintf("p%d", i), IntegerValue(int32(i))); err != nil {
					t.Fatalf("Set p%d: %v", i, err)
				}
			}
			for i := 0; i < tt.count; i++ {
				n, ok := getInt(t, vm, obj, fmt.Sprintf("p%d", i))
				if !ok || n != int32(i) {
					t.Fatalf("p%d = %d (found %v)", i, n, ok)
				}
			}

			// delete every other property
			for i := 0; i < tt.count; i += 2 {
				ok, err := vm.Delete(obj, fmt.Sprintf("p%d", i))
				if err != nil || !ok {
					t.Fatalf("Delete p%d = %v, %v", i, ok, err)
				}
			}
			for i := 0; i < tt.count; i++ {
				n, ok := getInt(t, vm, obj, fmt.Sprintf("p%d", i))
				if i%2 == 0 && ok {
					t.Errorf("deleted p%d still reads %d", i, n)
				}
				if i%2 == 1 && (!ok || n != int32(i)) {
					t.Errorf("p%d = %d (found %v) after deleting its neighbours", i, n, ok)
				}
			}

			// re-adding reuses the freed slots
			for i := 0; i < tt.count; i += 2 {
				if err := vm.Set(obj, fmt.Sprintf("p%d", i), IntegerValue(int32(-i))); err != nil {
					t.Fatalf("Set p%d: %v", i, err)
				}
			}
			for i := 0; i < tt.count; i += 2 {
				n, ok := getInt(t, vm, obj, fmt.Sprintf("p%d", i))
				if !ok || n != int32(-i) {
					t.Errorf("re-added p%d = %d (found %v)", i, n, ok)
				}
			}
			if got := len(vm.OwnKeys(obj)); got != tt.count {
				t.Errorf("%d own keys, want %d", got, tt.count)
			}
		})
	}
}

func TestHashmapBuiltForLongLists(t *testing.T) {
	vm := newTestVM(t)
	obj := vm.NewObject()
	defer vm.FreeValue(obj)

	for i := 0; i < DefaultHashmapThreshold*4; i++ {
		vm.Set(obj, fmt.Sprintf("k%d", i), True)
	}
	vm.Has(obj, "k0")

	o := vm.object(obj)
	if o.props == nil || !o.props.isHashmap() {
		t.Fatal("no hashmap after a long property scan")
	}
	if vm.Stats().HashmapBuilds == 0 {
		t.Error("HashmapBuilds counter not incremented")
	}
	if !vm.Has(obj, "k7") || vm.Has(obj, "missing") {
		t.Error("hashmap lookup disagrees with the property list")
	}
}

// A cached slot must not survive deletion: x = 1; delete x; x = 2.
func TestLCacheInvalidatedOnDelete(t *testing.T) {
	vm := newTestVM(t)
	obj := vm.NewObject()
	defer vm.FreeValue(obj)

	vm.Set(obj, "x", IntegerValue(1))
	if n, _ := getInt(t, vm, obj, "x"); n != 1 {
		t.Fatalf("x = %d, want 1", n)
	}
	// warm the cache
	getInt(t, vm, obj, "x")

	if ok, _ := vm.Delete(obj, "x"); !ok {
		t.Fatal("delete x failed")
	}
	if _, ok := getInt(t, vm, obj, "x"); ok {
		t.Fatal("x still visible after delete")
	}

	vm.Set(obj, "y", IntegerValue(5))
	vm.Set(obj, "x", IntegerValue(2))
	if n, _ := getInt(t, vm, obj, "x"); n != 2 {
		t.Errorf("x = %d after re-adding, want 2", n)
	}
	if n, _ := getInt(t, vm, obj, "y"); n != 5 {
		t.Errorf("y = %d, want 5", n)
	}
	if rate := vm.Stats().LCacheHitRate; rate <= 0 {
		t.Errorf("LCache hit rate = %v, want > 0", rate)
	}
}

func TestPropertyOrder(t *testing.T) {
	vm := newTestVM(t)
	obj := vm.NewObject()
	defer vm.FreeValue(obj)

	for _, k := range []string{"b", "10", "a", "2", "c"} {
		vm.Set(obj, k, True)
	}
	want := []string{"2", "10", "b", "a", "c"}
	got := vm.OwnKeys(obj)
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("OwnKeys = %v, want %v", got, want)
	}
}

func TestPrototypeChainLookup(t *testing.T) {
	vm := newTestVM(t)
	obj := vm.NewObject()
	defer vm.FreeValue(obj)

	if !vm.Has(obj, "hasOwnProperty") {
		t.Error("Object.prototype.hasOwnProperty not inherited")
	}
	if vm.Has(obj, "nothing") {
		t.Error("unexpected inherited property")
	}
	if keys := vm.OwnKeys(obj); len(keys) != 0 {
		t.Errorf("OwnKeys of a fresh object = %v", keys)
	}
}
