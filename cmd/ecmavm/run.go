package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/chazu/ecmavm/vm"
	"github.com/chazu/ecmavm/vm/snapshot"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

// lazyStore opens the snapshot store on first use, so runs of plain files
// never create a database.
type lazyStore struct {
	path  string
	store *snapshot.Store
}

func (l *lazyStore) Get() (*snapshot.Store, error) {
	if l.store == nil {
		s, err := snapshot.Open(l.path)
		if err != nil {
			return nil, err
		}
		l.store = s
	}
	return l.store, nil
}

func (l *lazyStore) Close() error {
	if l.store == nil {
		return nil
	}
	return l.store.Close()
}

func readSnapshotFile(path string) (*snapshot.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := snapshot.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// loadSnapshot reads arg as a snapshot file, falling back to the store when
// no such file exists.
func loadSnapshot(stores *lazyStore, arg string) (*snapshot.Snapshot, error) {
	s, err := readSnapshotFile(arg)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	store, err := stores.Get()
	if err != nil {
		return nil, err
	}
	return store.Get(arg)
}

// result is the outcome of one snapshot run.
type result struct {
	output     string
	completion string
	stats      vm.Stats
	elapsed    time.Duration
}

// runAll runs snaps on up to jobs VMs at once and writes their results in
// argument order.
func runAll(ctx context.Context, config vm.Config, snaps []*snapshot.Snapshot, jobs int, stats bool, out io.Writer) error {
	if jobs < 1 {
		jobs = 1
	}
	results := make([]result, len(snaps))
	errs := make([]error, len(snaps))

	var g errgroup.Group
	g.SetLimit(jobs)
	for i, s := range snaps {
		i, s := i, s
		g.Go(func() error {
			results[i], errs[i] = runSnapshot(ctx, config, s)
			return nil
		})
	}
	g.Wait()

	var failed error
	for i, s := range snaps {
		r := results[i]
		io.WriteString(out, r.output)
		if errs[i] != nil {
			fmt.Fprintf(out, "%s: %v\n", s.Name, errs[i])
			if failed == nil {
				failed = fmt.Errorf("%s: %w", s.Name, errs[i])
			}
			continue
		}
		if r.completion != "undefined" {
			fmt.Fprintln(out, r.completion)
		}
		if stats {
			writeStats(out, s.Name, r)
		}
	}
	return failed
}

func writeStats(out io.Writer, name string, r result) {
	h := r.stats.Heap
	fmt.Fprintf(out, "%s: %s in %s\n", name, humanize.Comma(int64(r.stats.Calls))+" calls", r.elapsed)
	fmt.Fprintf(out, "  heap: %s objects, %s strings, %s floats, %s iterators\n",
		humanize.Comma(int64(h.Objects)), humanize.Comma(int64(h.Strings)),
		humanize.Comma(int64(h.Floats)), humanize.Comma(int64(h.Collections)))
	fmt.Fprintf(out, "  gc runs: %d, hashmaps built: %d, lcache hit rate: %.1f%%\n",
		r.stats.GCRuns, r.stats.HashmapBuilds, r.stats.LCacheHitRate*100)
}

// runSnapshot links and runs s on a fresh VM. Each call owns its VM, so runs
// share nothing.
func runSnapshot(ctx context.Context, config vm.Config, s *snapshot.Snapshot) (result, error) {
	var r result
	var output bytes.Buffer

	config.Stop = vm.StopOnContext(ctx)
	engine := vm.New(config)
	engine.Register("print", 1, printTo(&output))

	start := time.Now()
	log.Infof("running %s on %s", s.Name, engine.ID)

	unit, err := engine.Link(s.Unit)
	if err != nil {
		return r, err
	}
	defer engine.ReleaseUnit(unit)

	v, err := engine.RunGlobal(unit)
	r.elapsed = time.Since(start)
	if err != nil {
		r.output = output.String()
		return r, err
	}
	r.completion = display(engine, v)
	engine.FreeValue(v)

	engine.CollectGarbage()
	r.stats = engine.Stats()
	r.output = output.String()
	log.Debugf("%s finished in %s", s.Name, r.elapsed)
	return r, nil
}

// printTo returns the print host function: it writes its arguments,
// converted to strings and separated by spaces, followed by a newline.
func printTo(w io.Writer) vm.NativeFunction {
	return func(engine *vm.VM, call vm.Call) (vm.Value, error) {
		parts := make([]string, len(call.Args))
		for i, arg := range call.Args {
			s := engine.ToString(arg)
			if s.IsError() {
				return vm.ErrorValue, nil
			}
			parts[i] = engine.GoString(s)
			engine.FreeValue(s)
		}
		if _, err := fmt.Fprintln(w, strings.Join(parts, " ")); err != nil {
			return vm.Undefined, err
		}
		return vm.Undefined, nil
	}
}

func display(engine *vm.VM, v vm.Value) string {
	s := engine.ToString(v)
	if s.IsError() {
		return "<unprintable>"
	}
	defer engine.FreeValue(s)
	return engine.GoString(s)
}
