package vm

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// VM: shared state and world pause coordination
// ---------------------------------------------------------------------------

// VM holds the state shared by all fibers: globals, loaded scripts, and the
// pause protocol used by the debugger front-end. The live-edit subsystem
// assumes at most one patch operation in flight at a time; the front-end
// serializes operations and pauses the world before mutating anything.
type VM struct {
	mu   sync.Mutex
	cond *sync.Cond

	globals map[string]Value
	scripts map[string]*Script

	fibers      map[int]*Fiber
	nextFiberID int

	pauseFlag atomic.Bool // fast-path check for maybePark
	paused    bool
	exempt    *Fiber // fiber allowed to keep running during a pause
}

// NewVM creates a VM with the default builtins installed.
func NewVM() *VM {
	v := &VM{
		globals: make(map[string]Value),
		scripts: make(map[string]*Script),
		fibers:  make(map[int]*Fiber),
	}
	v.cond = sync.NewCond(&v.mu)
	v.installBuiltins()
	return v
}

// Global looks up a global by name.
func (v *VM) Global(name string) (Value, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	val, ok := v.globals[name]
	return val, ok
}

// SetGlobal binds a global.
func (v *VM) SetGlobal(name string, val Value) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.globals[name] = val
}

// ---------------------------------------------------------------------------
// Script registry
// ---------------------------------------------------------------------------

// AddScript registers a loaded script by name.
func (v *VM) AddScript(s *Script) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.scripts[s.Name] = s
}

// ScriptByName returns a registered script, or nil.
func (v *VM) ScriptByName(name string) *Script {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.scripts[name]
}

// ---------------------------------------------------------------------------
// Fibers
// ---------------------------------------------------------------------------

// NewFiber creates and registers a fiber.
func (v *VM) NewFiber(name string) *Fiber {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.nextFiberID++
	f := newFiber(v, v.nextFiberID, name)
	v.fibers[f.ID] = f
	return f
}

// Fibers returns the registered fibers ordered by ID. The snapshot is only
// coherent while the world is paused.
func (v *VM) Fibers() []*Fiber {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]*Fiber, 0, len(v.fibers))
	for _, f := range v.fibers {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ReleaseFiber unregisters a finished fiber.
func (v *VM) ReleaseFiber(f *Fiber) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.fibers, f.ID)
}

// RunScript executes a script's top-level code on a fresh fiber and blocks
// until it finishes.
func (v *VM) RunScript(s *Script) (Value, error) {
	root := s.Root()
	if root == nil {
		return Nil, fmt.Errorf("script %q has no code", s.Name)
	}
	f := v.NewFiber(s.Name)
	defer v.ReleaseFiber(f)
	return v.runOn(f, Function(&Closure{Proto: root}), nil)
}

// Spawn starts a callable on a new fiber goroutine. The fiber stays
// registered until released; Join waits for completion.
func (v *VM) Spawn(name string, callee Value, args []Value) *Fiber {
	f := v.NewFiber(name)
	f.doneCh = make(chan struct{})
	go func() {
		v.runOn(f, callee, args)
		close(f.doneCh)
	}()
	return f
}

// runOn executes a callable on the given fiber.
func (v *VM) runOn(f *Fiber, callee Value, args []Value) (Value, error) {
	result, err := f.Call(callee, args)
	v.mu.Lock()
	f.result, f.err = result, err
	f.state = fiberDone
	v.cond.Broadcast()
	v.mu.Unlock()
	return result, err
}

// ---------------------------------------------------------------------------
// World pause protocol
// ---------------------------------------------------------------------------

// PauseWorld asks every fiber except exempt (which may be nil when the
// request comes from the host rather than script code) to park at its next
// safepoint, and blocks until they have. Nested pauses are not supported.
func (v *VM) PauseWorld(exempt *Fiber) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.paused {
		panic("vm: nested PauseWorld")
	}
	v.paused = true
	v.exempt = exempt
	v.pauseFlag.Store(true)

	for v.anyRunning() {
		v.cond.Wait()
	}
}

// ResumeWorld releases all parked fibers.
func (v *VM) ResumeWorld() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.paused = false
	v.exempt = nil
	v.pauseFlag.Store(false)
	v.cond.Broadcast()
}

// anyRunning reports whether a non-exempt fiber is still running.
// Caller holds mu.
func (v *VM) anyRunning() bool {
	for _, f := range v.fibers {
		if f == v.exempt {
			continue
		}
		if f.state == fiberRunning {
			return true
		}
	}
	return false
}

// maybePark parks the calling fiber while the world is paused. Returns
// whether the fiber's stack was mutated while it was parked.
func (v *VM) maybePark(f *Fiber) bool {
	if !v.pauseFlag.Load() {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.paused || f == v.exempt {
		return false
	}
	f.state = fiberParked
	v.cond.Broadcast()
	for v.paused && f != v.exempt {
		v.cond.Wait()
	}
	f.state = fiberRunning
	mutated := f.mutated
	f.mutated = false
	return mutated
}

// markMutated records that a parked fiber's stack was rewritten.
// Called by the live-edit stack guard while the world is paused.
func (v *VM) markMutated(f *Fiber) {
	v.mu.Lock()
	defer v.mu.Unlock()
	f.mutated = true
}
