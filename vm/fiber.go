package vm

// ---------------------------------------------------------------------------
// Frame and Fiber: execution stacks
// ---------------------------------------------------------------------------

// Frame is one activation on a fiber's call stack. Script frames pin the
// Code object they entered with, so a live patch never changes the code of
// an activation already in flight. Native frames mark a builtin that called
// back into script code; the Go call stack holds its state, so frames above
// a native frame can never be discarded.
type Frame struct {
	Closure *Closure
	Code    *Code
	IP      int
	Locals  []Value
	Cells   []*Cell

	// Args is a copy of the call arguments, kept so a dropped frame can be
	// restarted from the beginning of its function body.
	Args []Value

	// spBase is the fiber's operand stack depth at frame entry.
	spBase int

	// NativeName is non-empty for native activation markers.
	NativeName string
}

// IsNative reports whether this is a native activation marker.
func (fr *Frame) IsNative() bool { return fr.NativeName != "" }

// Proto returns the function prototype this frame is an activation of,
// or nil for native frames.
func (fr *Frame) Proto() *FunctionProto {
	if fr.Closure == nil {
		return nil
	}
	return fr.Closure.Proto
}

// restart re-enters the frame's function from the beginning of its body,
// re-reading the (possibly patched) code from the prototype. Only valid on
// a parked fiber with no native frame above.
func (fr *Frame) restart() {
	code := fr.Closure.Proto.Code()
	locals := make([]Value, code.NumLocals)
	n := len(fr.Args)
	if n > code.ParamCount {
		n = code.ParamCount
	}
	copy(locals, fr.Args[:n])

	cells := make([]*Cell, len(code.Scope.Cells))
	for i := range cells {
		cells[i] = &Cell{}
	}
	bindParamCells(code, locals, cells)

	fr.Code = code
	fr.IP = 0
	fr.Locals = locals
	fr.Cells = cells
}

// fiberState tracks where a fiber is in its lifecycle.
type fiberState int

const (
	fiberRunning fiberState = iota
	fiberParked
	fiberDone
)

// Fiber is one execution thread of script code with its own call stack.
// Fibers park at safepoints when the debugger front-end pauses the world;
// a parked fiber's stack is plain data and may be inspected or truncated.
type Fiber struct {
	ID   int
	Name string

	vm *VM

	frames []*Frame
	fp     int // index of current frame, -1 when empty
	stack  []Value
	sp     int

	state   fiberState
	mutated bool
	doneCh  chan struct{}

	result Value
	err    error
}

func newFiber(v *VM, id int, name string) *Fiber {
	return &Fiber{
		ID:     id,
		Name:   name,
		vm:     v,
		frames: make([]*Frame, 0, 16),
		fp:     -1,
		stack:  make([]Value, 256),
	}
}

// VM returns the owning VM.
func (f *Fiber) VM() *VM { return f.vm }

// Depth returns the current number of frames.
func (f *Fiber) Depth() int { return f.fp + 1 }

// FrameAt returns the frame at the given index, 0 being the outermost.
// Valid only while the fiber is parked or finished.
func (f *Fiber) FrameAt(i int) *Frame {
	if i < 0 || i > f.fp {
		return nil
	}
	return f.frames[i]
}

// Result returns the fiber's final value and error once it has finished.
func (f *Fiber) Result() (Value, error) { return f.result, f.err }

// Done reports whether the fiber has finished executing.
// Valid only while the world is paused or after Join.
func (f *Fiber) Done() bool { return f.state == fiberDone }

// Join blocks until a spawned fiber finishes.
func (f *Fiber) Join() (Value, error) {
	if f.doneCh != nil {
		<-f.doneCh
	}
	return f.result, f.err
}

// DropAbove discards every frame above target and restarts the target
// frame from the beginning of its (possibly patched) function body.
// Returns the number of discarded frames. Only valid while the world is
// paused and the fiber is parked at a safepoint.
func (f *Fiber) DropAbove(target int) int {
	dropped := f.truncateAbove(target)
	f.frames[target].restart()
	f.vm.markMutated(f)
	return dropped
}

// push appends a value to the operand stack, growing it if needed.
func (f *Fiber) push(v Value) {
	if f.sp == len(f.stack) {
		f.stack = append(f.stack, make([]Value, len(f.stack))...)
	}
	f.stack[f.sp] = v
	f.sp++
}

func (f *Fiber) pop() Value {
	f.sp--
	return f.stack[f.sp]
}

// pushFrame activates a closure with the given arguments.
func (f *Fiber) pushFrame(cl *Closure, args []Value) *Frame {
	code := cl.Proto.Code()
	locals := make([]Value, code.NumLocals)
	n := len(args)
	if n > code.ParamCount {
		n = code.ParamCount
	}
	copy(locals, args[:n])

	cells := make([]*Cell, len(code.Scope.Cells))
	for i := range cells {
		cells[i] = &Cell{}
	}
	bindParamCells(code, locals, cells)

	argsCopy := make([]Value, len(args))
	copy(argsCopy, args)

	fr := &Frame{
		Closure: cl,
		Code:    code,
		Locals:  locals,
		Cells:   cells,
		Args:    argsCopy,
		spBase:  f.sp,
	}
	f.fp++
	if f.fp == len(f.frames) {
		f.frames = append(f.frames, fr)
	} else {
		f.frames[f.fp] = fr
	}
	return fr
}

// pushNativeFrame records a native activation marker for a builtin.
func (f *Fiber) pushNativeFrame(name string) *Frame {
	fr := &Frame{NativeName: name, spBase: f.sp}
	f.fp++
	if f.fp == len(f.frames) {
		f.frames = append(f.frames, fr)
	} else {
		f.frames[f.fp] = fr
	}
	return fr
}

func (f *Fiber) popFrame() {
	f.frames[f.fp] = nil
	f.fp--
}

// bindParamCells copies parameters that are captured by nested functions
// into their cells. A captured parameter lives in its cell from entry on.
func bindParamCells(code *Code, locals []Value, cells []*Cell) {
	for ci, name := range code.Scope.Cells {
		for pi, pname := range code.Scope.Params {
			if name == pname {
				cells[ci].V = locals[pi]
			}
		}
	}
}

// checkSafepoint parks the fiber when a world pause has been requested.
// It reports whether the fiber's stack was mutated while parked (frames
// truncated or the current frame restarted); callers must then abandon any
// partially decoded instruction and re-read all frame state.
func (f *Fiber) checkSafepoint() bool {
	return f.vm.maybePark(f)
}

// truncateAbove discards every frame above index target and resets the
// operand stack to the target frame's base. Only valid on a parked fiber.
func (f *Fiber) truncateAbove(target int) int {
	dropped := 0
	for f.fp > target {
		f.frames[f.fp] = nil
		f.fp--
		dropped++
	}
	f.sp = f.frames[target].spBase
	return dropped
}
