package vm

import (
	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// VM: one ECMAScript execution engine
// ---------------------------------------------------------------------------

// Config tunes a VM. The zero value of a field selects its default.
type Config struct {
	// MaxRecursionDepth bounds nested script and native calls. Exceeding it
	// raises a RangeError.
	MaxRecursionDepth int

	// StopFrequency is the number of backward branches between two calls of
	// Stop.
	StopFrequency int

	// Stop is polled at loop back-edges. Returning anything but Undefined
	// throws that value at the polling point.
	Stop StopFunc

	// GCObjectLimit is the number of object allocations between reachability
	// sweeps. A negative value disables automatic sweeps.
	GCObjectLimit int

	// LCacheRows is the number of property lookup cache rows, rounded up to
	// a power of two.
	LCacheRows int

	// HashmapThreshold is the property scan length at which an object gets
	// a property hashmap.
	HashmapThreshold int

	// Strict runs every unit as strict code.
	Strict bool

	// Fatal receives fatal engine conditions before the VM panics.
	Fatal FatalFunc
}

// Defaults
const (
	DefaultMaxRecursionDepth = 256
	DefaultStopFrequency     = 16
	DefaultGCObjectLimit     = 4096
	DefaultHashmapThreshold  = 16
)

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxRecursionDepth: DefaultMaxRecursionDepth,
		StopFrequency:     DefaultStopFrequency,
		GCObjectLimit:     DefaultGCObjectLimit,
		LCacheRows:        DefaultLCacheRows,
		HashmapThreshold:  DefaultHashmapThreshold,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.MaxRecursionDepth <= 0 {
		c.MaxRecursionDepth = d.MaxRecursionDepth
	}
	if c.StopFrequency <= 0 {
		c.StopFrequency = d.StopFrequency
	}
	switch {
	case c.GCObjectLimit == 0:
		c.GCObjectLimit = d.GCObjectLimit
	case c.GCObjectLimit < 0:
		c.GCObjectLimit = 0
	}
	if c.LCacheRows <= 0 {
		c.LCacheRows = d.LCacheRows
	}
	if c.HashmapThreshold <= 0 {
		c.HashmapThreshold = d.HashmapThreshold
	}
}

// VM is a single-threaded execution engine. A VM must not be used from more
// than one goroutine at a time; distinct VMs share nothing mutable.
type VM struct {
	// ID identifies the engine in logs and snapshot metadata.
	ID uuid.UUID

	config Config
	log    commonlog.Logger

	heap   Heap
	lcache *lcache

	// literalStrings maps interned content to its static string.
	literalStrings map[string]Value
	externalMagic  *externalMagic

	protos    [protoCount]Value
	global    Value
	globalEnv *Object

	exception    Value
	hasException bool

	depth       int
	stopCounter int

	gcRunning bool
	lastGC    *GCStats

	stats counters
}

type counters struct {
	calls         uint64
	stops         uint64
	unitsLinked   uint64
	hashmapBuilds uint64
	gcRuns        uint64
}

// New creates a VM with its built-in objects.
func New(config Config) *VM {
	config.applyDefaults()
	vm := &VM{
		ID:             uuid.New(),
		config:         config,
		lcache:         newLCache(config.LCacheRows),
		literalStrings: make(map[string]Value),
		exception:      Undefined,
		stopCounter:    config.StopFrequency,
	}
	vm.log = commonlog.GetLoggerf("ecmavm.vm.%s", vm.ID.String()[:8])
	vm.initBuiltins()
	vm.log.Debugf("engine created: %d built-in objects", vm.heap.objects.live)
	return vm
}

// Config returns the configuration the VM runs with.
func (vm *VM) Config() Config { return vm.config }

// Global returns the global object. No reference is acquired.
func (vm *VM) Global() Value { return vm.global }

// Heap returns the VM heap.
func (vm *VM) Heap() *Heap { return &vm.heap }

// Stats is a snapshot of engine counters.
type Stats struct {
	Heap          HeapStats
	Calls         uint64
	Stops         uint64
	UnitsLinked   uint64
	HashmapBuilds uint64
	GCRuns        uint64
	LCacheHitRate float64
}

// Stats returns the current engine counters.
func (vm *VM) Stats() Stats {
	return Stats{
		Heap:          vm.heap.Stats(),
		Calls:         vm.stats.calls,
		Stops:         vm.stats.stops,
		UnitsLinked:   vm.stats.unitsLinked,
		HashmapBuilds: vm.stats.hashmapBuilds,
		GCRuns:        vm.stats.gcRuns,
		LCacheHitRate: vm.lcache.HitRate(),
	}
}

// Register installs a host function as a global.
func (vm *VM) Register(name string, length int, fn NativeFunction) {
	vm.defineNative(vm.object(vm.global), name, length, fn)
}
