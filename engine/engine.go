// Package engine owns the runtime half of the translation pipeline: it
// tracks per-address execution counts, decides interpret-vs-compiled
// dispatch, promotes hot addresses across tiers, and holds the compiled
// module cache for one emulated process. Engines are constructor-injected
// into whatever runs the dispatch loop; there is no process-wide state,
// so multiple guests stay isolated.
package engine

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tliron/commonlog"

	"github.com/chazu/nacho/pkg/decode"
	"github.com/chazu/nacho/pkg/ir"
	"github.com/chazu/nacho/pkg/opt"
	"github.com/chazu/nacho/pkg/wasm"
)

var log = commonlog.GetLogger("nacho.engine")

// Tier is the compilation quality level of a code address.
type Tier int

const (
	TierCold      Tier = iota // interpreted
	TierBaseline              // compiled without transforms
	TierOptimized             // recompiled with opt passes
)

// String returns the tier name.
func (t Tier) String() string {
	switch t {
	case TierCold:
		return "cold"
	case TierBaseline:
		return "baseline"
	case TierOptimized:
		return "optimized"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

// Module is one compiled translation of a basic block, owned by the
// engine's cache from creation until invalidation or replacement.
type Module struct {
	Code          []byte   // wasm module bytes
	Length        uint64   // byte length of the foreign block covered
	Next          uint64   // static continuation address, 0 on return
	Tier          Tier
	Optimizations []string // names of transforms applied, in order
	Assumption    string   // speculative assumption, empty if none

	inst Instance // runnable form, bound to the engine's diagnostic sink
}

// Instantiator turns freshly compiled module bytes into a runnable
// Instance. A non-nil error discards the module and pins its address to
// the interpreted path.
type Instantiator func(code []byte) (Instance, error)

// Diagnostic receives the values the interpreter observes, standing in
// for the print import of a compiled module.
type Diagnostic func(value int64)

// Config carries the tunables read from nacho.toml.
type Config struct {
	BaselineThreshold uint64 // executions before a baseline compile
	OptimizeThreshold uint64 // executions before an optimized recompile
	QueueDepth        int    // pending compile queue capacity
}

// DefaultConfig mirrors the defaults in manifest.Default.
func DefaultConfig() Config {
	return Config{BaselineThreshold: 10, OptimizeThreshold: 100, QueueDepth: 64}
}

// HotnessRecord is the per-address execution counter. Count only grows;
// the record is dropped wholesale when the engine is reset.
type HotnessRecord struct {
	Count uint64 // atomic
}

// workItem is one unit of background compilation.
type workItem struct {
	addr       uint64
	tier       Tier
	assumption string
}

// Engine is the tiered execution engine for one guest binary.
type Engine struct {
	binary []byte
	arch   decode.Arch
	base   uint64
	dec    decode.Decoder

	cfg Config

	// Background compilation, one worker draining a bounded queue.
	pending chan workItem
	done    chan struct{}
	wg      sync.WaitGroup

	hotness sync.Map // addr -> *HotnessRecord

	mu        sync.RWMutex
	modules   map[uint64]*Module
	baselines map[uint64]*Module // retained for speculation fallback
	inFlight  map[uint64]Tier    // highest tier queued or built per addr
	failed    map[uint64]bool    // instantiation failed; stay interpreted

	instantiate Instantiator
	diag        Diagnostic

	// Statistics
	dispatches       uint64
	interpreted      uint64
	compiledRuns     uint64
	modulesCompiled  uint64
	compileFailures  uint64
	assumptionsBlown uint64
}

// Option adjusts an Engine at construction.
type Option func(*Engine)

// WithInstantiator replaces the default in-engine executor with a
// host-provided one.
func WithInstantiator(fn Instantiator) Option {
	return func(e *Engine) { e.instantiate = fn }
}

// WithDiagnostic sets the sink for interpreter diagnostic values.
func WithDiagnostic(fn Diagnostic) Option {
	return func(e *Engine) { e.diag = fn }
}

// New creates an engine for one guest code buffer and starts its
// compilation worker. Call Stop when the emulated process is torn down.
func New(binary []byte, arch decode.Arch, base uint64, cfg Config, opts ...Option) (*Engine, error) {
	dec, err := decode.For(arch)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if cfg.BaselineThreshold == 0 || cfg.OptimizeThreshold <= cfg.BaselineThreshold {
		return nil, fmt.Errorf("engine: thresholds must satisfy 0 < baseline < optimize, got %d/%d",
			cfg.BaselineThreshold, cfg.OptimizeThreshold)
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultConfig().QueueDepth
	}

	e := &Engine{
		binary:    binary,
		arch:      arch,
		base:      base,
		dec:       dec,
		cfg:       cfg,
		pending:   make(chan workItem, cfg.QueueDepth),
		done:      make(chan struct{}),
		modules:   make(map[uint64]*Module),
		baselines: make(map[uint64]*Module),
		inFlight:  make(map[uint64]Tier),
		failed:    make(map[uint64]bool),
		diag:      func(int64) {},
	}
	e.instantiate = e.newInstance
	for _, o := range opts {
		o(e)
	}

	e.wg.Add(1)
	go e.compilationWorker()
	return e, nil
}

// Stop shuts down the background worker. In-flight work is abandoned.
func (e *Engine) Stop() {
	close(e.done)
	e.wg.Wait()
}

// RecordExecution increments the address's hotness counter and triggers
// tier promotion when a threshold is crossed. Returns the new count.
func (e *Engine) RecordExecution(addr uint64) uint64 {
	val, _ := e.hotness.LoadOrStore(addr, &HotnessRecord{})
	rec := val.(*HotnessRecord)
	count := atomic.AddUint64(&rec.Count, 1)

	if count >= e.cfg.OptimizeThreshold {
		e.promote(addr, TierOptimized, "")
	} else if count >= e.cfg.BaselineThreshold {
		e.promote(addr, TierBaseline, "")
	}
	return count
}

// Hotness returns the current execution count for an address.
func (e *Engine) Hotness(addr uint64) uint64 {
	if val, ok := e.hotness.Load(addr); ok {
		return atomic.LoadUint64(&val.(*HotnessRecord).Count)
	}
	return 0
}

// Tier returns the tier of the cached module for the address, or
// TierCold when dispatch would interpret.
func (e *Engine) Tier(addr uint64) Tier {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if m, ok := e.modules[addr]; ok {
		return m.Tier
	}
	return TierCold
}

// Module returns the cached compiled module for the address, if any.
func (e *Engine) Module(addr uint64) (*Module, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.modules[addr]
	return m, ok
}

// promote queues a background compile for the address at the given tier.
// A promotion already in flight (or already satisfied) at that tier or
// higher is a no-op, so concurrent attempts never double-compile.
func (e *Engine) promote(addr uint64, tier Tier, assumption string) {
	e.mu.Lock()
	if e.failed[addr] || e.inFlight[addr] >= tier {
		e.mu.Unlock()
		return
	}
	e.inFlight[addr] = tier
	e.mu.Unlock()

	select {
	case e.pending <- workItem{addr: addr, tier: tier, assumption: assumption}:
		log.Debugf("engine: queued %v compile for 0x%x", tier, addr)
	default:
		// Queue full: forget the reservation so a later execution can
		// retry the promotion.
		e.mu.Lock()
		if e.inFlight[addr] == tier {
			if _, ok := e.modules[addr]; ok {
				e.inFlight[addr] = e.modules[addr].Tier
			} else {
				delete(e.inFlight, addr)
			}
		}
		e.mu.Unlock()
	}
}

// compilationWorker drains the queue on its own goroutine; the dispatch
// loop never waits on it.
func (e *Engine) compilationWorker() {
	defer e.wg.Done()
	for {
		select {
		case work := <-e.pending:
			e.compile(work)
		case <-e.done:
			return
		}
	}
}

// compile translates the block at work.addr and installs the result. All
// failure modes degrade to the interpreted path; none abort the engine.
func (e *Engine) compile(work workItem) {
	e.mu.RLock()
	pinned := e.failed[work.addr]
	e.mu.RUnlock()
	if pinned {
		return
	}

	block := e.decodeBlock(work.addr)
	if block == nil {
		return
	}

	instrs := block.Instructions
	var applied []string
	if work.tier >= TierOptimized {
		instrs, applied = opt.Apply(instrs, opt.DefaultPasses()...)
	}

	code, err := wasm.Compile(instrs)
	if err != nil {
		log.Errorf("engine: compile failed for 0x%x: %v", work.addr, err)
		atomic.AddUint64(&e.compileFailures, 1)
		return
	}

	inst, err := e.instantiate(code)
	if err != nil {
		// Fatal for this tier only: discard and keep interpreting, no
		// retries.
		log.Errorf("engine: host rejected module for 0x%x: %v", work.addr, err)
		atomic.AddUint64(&e.compileFailures, 1)
		e.mu.Lock()
		e.failed[work.addr] = true
		delete(e.inFlight, work.addr)
		e.mu.Unlock()
		return
	}

	m := &Module{
		Code:          code,
		Length:        block.Len(),
		Next:          staticNext(block),
		Tier:          work.tier,
		Optimizations: applied,
		Assumption:    work.assumption,
		inst:          inst,
	}

	e.mu.Lock()
	if prev, ok := e.modules[work.addr]; ok && prev.Tier == TierBaseline {
		e.baselines[work.addr] = prev
	}
	if m.Tier == TierBaseline {
		e.baselines[work.addr] = m
	}
	e.modules[work.addr] = m
	e.mu.Unlock()

	atomic.AddUint64(&e.modulesCompiled, 1)
	log.Infof("engine: 0x%x promoted to %v (%d bytes)", work.addr, m.Tier, len(code))
}

// decodeBlock decodes one unit at addr, tolerating bad addresses.
func (e *Engine) decodeBlock(addr uint64) *ir.Block {
	if addr < e.base || addr-e.base >= uint64(len(e.binary)) {
		log.Warningf("engine: address 0x%x outside guest code, skipping", addr)
		return nil
	}
	block, err := e.dec.Decode(e.binary, int(addr-e.base), addr)
	if err != nil {
		log.Errorf("engine: decode failed at 0x%x: %v", addr, err)
		return nil
	}
	return block
}

// Dispatch executes one unit at addr and returns the next address, or 0
// when control left the translated region (a return). Every dispatch
// records one execution. If a compiled module is cached the dispatch
// runs its instance and advances past the block; otherwise it
// interprets the decoded unit. Dispatch never waits for an in-flight
// compile.
func (e *Engine) Dispatch(addr uint64) uint64 {
	atomic.AddUint64(&e.dispatches, 1)
	e.RecordExecution(addr)

	e.mu.RLock()
	m := e.modules[addr]
	e.mu.RUnlock()

	if m != nil {
		atomic.AddUint64(&e.compiledRuns, 1)
		if err := m.inst.Run(); err != nil {
			log.Errorf("engine: compiled run failed at 0x%x: %v", addr, err)
		}
		return m.Next
	}

	atomic.AddUint64(&e.interpreted, 1)
	block := e.decodeBlock(addr)
	if block == nil {
		return 0
	}
	return e.interpret(block)
}

// Invalidate discards the cached module and hotness for an address range
// whose source bytes changed, returning dispatch to the interpreted path.
func (e *Engine) Invalidate(addr uint64) {
	e.mu.Lock()
	delete(e.modules, addr)
	delete(e.baselines, addr)
	delete(e.inFlight, addr)
	delete(e.failed, addr)
	e.mu.Unlock()
	e.hotness.Delete(addr)
	log.Debugf("engine: invalidated 0x%x", addr)
}

// Stats is a point-in-time snapshot of engine activity.
type Stats struct {
	Dispatches       uint64
	Interpreted      uint64
	CompiledRuns     uint64
	ModulesCompiled  uint64
	CompileFailures  uint64
	AssumptionsBlown uint64
	CachedModules    int
	QueueLength      int
}

// StatsSnapshot returns current statistics.
func (e *Engine) StatsSnapshot() Stats {
	e.mu.RLock()
	cached := len(e.modules)
	e.mu.RUnlock()
	return Stats{
		Dispatches:       atomic.LoadUint64(&e.dispatches),
		Interpreted:      atomic.LoadUint64(&e.interpreted),
		CompiledRuns:     atomic.LoadUint64(&e.compiledRuns),
		ModulesCompiled:  atomic.LoadUint64(&e.modulesCompiled),
		CompileFailures:  atomic.LoadUint64(&e.compileFailures),
		AssumptionsBlown: atomic.LoadUint64(&e.assumptionsBlown),
		CachedModules:    cached,
		QueueLength:      len(e.pending),
	}
}
