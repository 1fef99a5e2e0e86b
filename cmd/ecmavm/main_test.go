package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chazu/ecmavm/vm"
	"github.com/chazu/ecmavm/vm/snapshot"
)

// testEnv is a directory with an ecmavm.toml pointing at a private store.
func testEnv(t *testing.T) options {
	t.Helper()
	dir := t.TempDir()
	config := "[snapshot]\nstore = \"test.db\"\nentry = \"main\"\n"
	if err := os.WriteFile(filepath.Join(dir, "ecmavm.toml"), []byte(config), 0644); err != nil {
		t.Fatal(err)
	}
	return options{configDir: dir, jobs: 1, verbosity: -1}
}

// writeSnapshot assembles a program that prints greeting and 1+2, then
// completes with done.
func writeSnapshot(t *testing.T, dir, name, greeting, done string) string {
	t.Helper()
	a := vm.NewAssembler()
	a.SetName(name)
	a.Emit(vm.OpPushLiteral, a.Ident("print"))
	a.Emit(vm.OpPushLiteral, a.String(greeting))
	a.Emit(vm.OpAdd+2, a.Number(1), a.Number(2))
	a.EmitByte(vm.OpCallPushResult, 2)
	a.Emit(vm.OpPop)
	a.Emit(vm.OpPushLiteral, a.String(done))
	a.Emit(vm.OpPopBlock)
	img, err := a.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return writeImage(t, dir, name, img)
}

func writeImage(t *testing.T, dir, name string, img *vm.UnitImage) string {
	t.Helper()
	data, err := snapshot.MarshalUnit(name, img)
	if err != nil {
		t.Fatalf("MarshalUnit: %v", err)
	}
	path := filepath.Join(dir, name+".snap")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunFile(t *testing.T) {
	opts := testEnv(t)
	path := writeSnapshot(t, opts.configDir, "hello", "hello", "done")

	var out bytes.Buffer
	if err := run(opts, []string{path}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got, want := out.String(), "hello 3\ndone\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	if _, err := os.Stat(filepath.Join(opts.configDir, "test.db")); !os.IsNotExist(err) {
		t.Error("running a file opened the snapshot store")
	}
}

func TestRunConcurrentKeepsOrder(t *testing.T) {
	opts := testEnv(t)
	opts.jobs = 2
	var paths []string
	for _, name := range []string{"a", "b", "c"} {
		paths = append(paths, writeSnapshot(t, opts.configDir, name, "from "+name, name+" done"))
	}

	var out bytes.Buffer
	if err := run(opts, paths, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := "from a 3\na done\nfrom b 3\nb done\nfrom c 3\nc done\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestSaveListAndRunStored(t *testing.T) {
	opts := testEnv(t)
	path := writeSnapshot(t, opts.configDir, "hello", "stored", "ok")

	var out bytes.Buffer
	save := opts
	save.save = "main"
	if err := run(save, []string{path}, &out); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(out.String(), "stored main as ") {
		t.Errorf("save output = %q", out.String())
	}

	out.Reset()
	list := opts
	list.list = true
	if err := run(list, nil, &out); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.HasPrefix(out.String(), "main ") {
		t.Errorf("list output = %q", out.String())
	}

	// no arguments runs the configured entry from the store
	out.Reset()
	if err := run(opts, nil, &out); err != nil {
		t.Fatalf("run entry: %v", err)
	}
	if got, want := out.String(), "stored 3\nok\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestListEmptyStore(t *testing.T) {
	opts := testEnv(t)
	opts.list = true
	var out bytes.Buffer
	if err := run(opts, nil, &out); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.HasPrefix(out.String(), "no snapshots in ") {
		t.Errorf("output = %q", out.String())
	}
}

func TestSaveRejectsInvalidUnit(t *testing.T) {
	opts := testEnv(t)
	path := writeImage(t, opts.configDir, "broken", &vm.UnitImage{Code: []byte{byte(vm.OpPushLiteral)}})
	opts.save = "broken"
	if err := run(opts, []string{path}, &bytes.Buffer{}); err == nil {
		t.Error("saved a unit the engine cannot link")
	}
}

func TestDump(t *testing.T) {
	opts := testEnv(t)
	opts.dump = true
	path := writeSnapshot(t, opts.configDir, "hello", "hi", "done")

	var out bytes.Buffer
	if err := run(opts, []string{path}, &out); err != nil {
		t.Fatalf("dump: %v", err)
	}
	for _, want := range []string{"; hello", "unit hello", "PUSH_LITERAL print", `"hi"`, "CALL_PUSH_RESULT 2"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("dump lacks %q:\n%s", want, out.String())
		}
	}
}

func TestMissingSnapshot(t *testing.T) {
	opts := testEnv(t)
	err := run(opts, []string{"nowhere"}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("run = %v, want a not found error", err)
	}
}

func TestTimeoutStopsInfiniteLoop(t *testing.T) {
	opts := testEnv(t)
	opts.timeout = 50 * time.Millisecond

	a := vm.NewAssembler()
	a.SetName("spin")
	loop := a.NewLabel()
	a.Mark(loop)
	a.EmitBranch(vm.OpJumpForward, loop)
	img, err := a.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	path := writeImage(t, opts.configDir, "spin", img)

	var out bytes.Buffer
	err = run(opts, []string{path}, &out)
	if err == nil {
		t.Fatal("infinite loop completed")
	}
	if !strings.Contains(err.Error(), "execution stopped") {
		t.Errorf("error = %v, want execution stopped", err)
	}
}
