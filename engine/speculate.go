package engine

import (
	"sync/atomic"
)

// Assume queues an optimized recompile of addr specialized under the
// named assumption. The assumption is opaque to the engine; it only
// guarantees that blowing it restores a correct module.
func (e *Engine) Assume(addr uint64, assumption string) {
	if assumption == "" {
		return
	}
	e.mu.Lock()
	if e.failed[addr] {
		e.mu.Unlock()
		return
	}
	if m, ok := e.modules[addr]; ok && m.Assumption == assumption {
		e.mu.Unlock()
		return
	}
	e.inFlight[addr] = TierOptimized
	e.mu.Unlock()

	select {
	case e.pending <- workItem{addr: addr, tier: TierOptimized, assumption: assumption}:
		log.Debugf("engine: queued speculative compile for 0x%x (%s)", addr, assumption)
	default:
		// Queue full: roll the reservation back to the cached module's
		// tier, same as promote, so the dropped speculation cannot let a
		// later baseline promotion overwrite an optimized module.
		e.mu.Lock()
		if m, ok := e.modules[addr]; ok {
			e.inFlight[addr] = m.Tier
		} else {
			delete(e.inFlight, addr)
		}
		e.mu.Unlock()
	}
}

// InvalidateAssumption tears down a speculative module whose assumption
// no longer holds. The retained baseline module is reinstalled when one
// exists; otherwise the address returns to the interpreted path. Never
// drops an address on the floor.
func (e *Engine) InvalidateAssumption(addr uint64) {
	e.mu.Lock()
	m, ok := e.modules[addr]
	if !ok || m.Assumption == "" {
		e.mu.Unlock()
		return
	}
	if base, ok := e.baselines[addr]; ok {
		e.modules[addr] = base
		e.inFlight[addr] = base.Tier
	} else {
		delete(e.modules, addr)
		delete(e.inFlight, addr)
	}
	e.mu.Unlock()

	atomic.AddUint64(&e.assumptionsBlown, 1)
	log.Warningf("engine: assumption blown at 0x%x, fell back", addr)
}
