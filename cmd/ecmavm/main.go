// ecmavm CLI - runs, stores and disassembles bytecode snapshots
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/chazu/ecmavm/manifest"
	"github.com/chazu/ecmavm/vm"
	"github.com/chazu/ecmavm/vm/snapshot"
	"github.com/dustin/go-humanize"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("ecmavm.cli")

// options are the parsed command line flags.
type options struct {
	configDir string
	storePath string
	save      string
	list      bool
	dump      bool
	timeout   time.Duration
	jobs      int
	stats     bool
	verbosity int
}

func main() {
	var opts options
	flag.StringVar(&opts.configDir, "config", "", "Directory containing ecmavm.toml (default: search upward)")
	flag.StringVar(&opts.storePath, "store", "", "Snapshot store path (default: from ecmavm.toml)")
	flag.StringVar(&opts.save, "save", "", "Store the first snapshot file under this name and exit")
	flag.BoolVar(&opts.list, "list", false, "List stored snapshots")
	flag.BoolVar(&opts.dump, "dump", false, "Disassemble instead of running")
	flag.DurationVar(&opts.timeout, "timeout", 0, "Stop execution after this duration")
	flag.IntVar(&opts.jobs, "j", 1, "Run up to n snapshots concurrently")
	flag.BoolVar(&opts.stats, "stats", false, "Print heap statistics after each run")
	flag.IntVar(&opts.verbosity, "v", -1, "Log verbosity (default: from ecmavm.toml)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ecmavm [options] [snapshot files or stored names...]\n\n")
		fmt.Fprintf(os.Stderr, "Runs bytecode snapshots. Names that are not files are loaded from the store.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  ecmavm app.snap               # Run a snapshot file\n")
		fmt.Fprintf(os.Stderr, "  ecmavm -save app app.snap     # Store app.snap as \"app\"\n")
		fmt.Fprintf(os.Stderr, "  ecmavm -j 4 -stats a b c d    # Run four stored snapshots in parallel\n")
		fmt.Fprintf(os.Stderr, "  ecmavm -dump app              # Disassemble the stored snapshot \"app\"\n")
	}
	flag.Parse()

	if err := run(opts, flag.Args(), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadManifest(configDir string) (*manifest.Manifest, error) {
	if configDir != "" {
		return manifest.Load(configDir)
	}
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default()
	}
	return m, nil
}

func run(opts options, args []string, out io.Writer) error {
	m, err := loadManifest(opts.configDir)
	if err != nil {
		return err
	}

	verbosity := m.Log.Verbosity
	if opts.verbosity >= 0 {
		verbosity = opts.verbosity
	}
	commonlog.Configure(verbosity, nil)

	storePath := opts.storePath
	if storePath == "" {
		storePath = m.StorePath()
	}
	stores := &lazyStore{path: storePath}
	defer stores.Close()

	switch {
	case opts.list:
		return listSnapshots(stores, out)
	case opts.save != "":
		if len(args) == 0 {
			return errors.New("-save needs a snapshot file")
		}
		return saveSnapshot(stores, opts.save, args[0], out)
	}

	if len(args) == 0 {
		args = []string{m.Snapshot.Entry}
	}
	snaps := make([]*snapshot.Snapshot, len(args))
	for i, arg := range args {
		if snaps[i], err = loadSnapshot(stores, arg); err != nil {
			return err
		}
	}

	if opts.dump {
		for _, s := range snaps {
			text, err := vm.Disassemble(s.Unit)
			if err != nil {
				return fmt.Errorf("%s: %w", s.Name, err)
			}
			fmt.Fprintf(out, "; %s (%s)\n%s", s.Name, s.ID, text)
		}
		return nil
	}

	ctx := context.Background()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}
	return runAll(ctx, m.VMConfig(), snaps, opts.jobs, opts.stats, out)
}

func listSnapshots(stores *lazyStore, out io.Writer) error {
	store, err := stores.Get()
	if err != nil {
		return err
	}
	entries, err := store.List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintf(out, "no snapshots in %s\n", store.Path())
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%-24s %s %8s  %s\n", e.Name, e.ID, humanize.Bytes(uint64(e.Size)), humanize.Time(e.Created))
	}
	return nil
}

func saveSnapshot(stores *lazyStore, name, path string, out io.Writer) error {
	s, err := readSnapshotFile(path)
	if err != nil {
		return err
	}
	if err := vm.Validate(s.Unit); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	store, err := stores.Get()
	if err != nil {
		return err
	}
	id, err := store.Put(name, s.Unit)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "stored %s as %s\n", name, id)
	return nil
}
