package vm

import (
	"fmt"
	"io"
	"os"
	"time"
)

// ---------------------------------------------------------------------------
// Builtin functions
// ---------------------------------------------------------------------------

// Builtin is a function implemented in Go. A builtin that calls back into
// script code through its Fiber runs that code above a native activation
// marker, which pins the frames beneath it to the Go call stack.
type Builtin struct {
	Name string
	Fn   func(f *Fiber, args []Value) (Value, error)
}

// Stdout is where the print builtins write. Tests may replace it.
var Stdout io.Writer = os.Stdout

// installBuiltins registers the default builtin set as globals.
func (v *VM) installBuiltins() {
	register := func(name string, fn func(f *Fiber, args []Value) (Value, error)) {
		v.SetGlobal(name, BuiltinValue(&Builtin{Name: name, Fn: fn}))
	}

	register("print", func(_ *Fiber, args []Value) (Value, error) {
		parts := make([]interface{}, len(args))
		for i, a := range args {
			parts[i] = a.String()
		}
		fmt.Fprintln(Stdout, parts...)
		return Nil, nil
	})

	register("clock", func(_ *Fiber, args []Value) (Value, error) {
		return Number(float64(time.Now().UnixNano()) / 1e9), nil
	})

	register("sleep", func(f *Fiber, args []Value) (Value, error) {
		if len(args) != 1 || !args[0].IsNumber() {
			return Nil, fmt.Errorf("sleep: expected one number argument")
		}
		deadline := time.Now().Add(time.Duration(args[0].Number() * float64(time.Second)))
		// Sleep in short slices so the fiber stays responsive to pauses.
		for time.Now().Before(deadline) {
			f.checkSafepoint()
			time.Sleep(time.Millisecond)
		}
		return Nil, nil
	})

	// invoke calls a function value from native code. Used by tests and
	// hosts to create activations pinned under a native frame.
	register("invoke", func(f *Fiber, args []Value) (Value, error) {
		if len(args) == 0 {
			return Nil, fmt.Errorf("invoke: expected a callable first argument")
		}
		return f.Call(args[0], args[1:])
	})

	// repeat(n, fn) calls fn n times from native code.
	register("repeat", func(f *Fiber, args []Value) (Value, error) {
		if len(args) != 2 || !args[0].IsNumber() {
			return Nil, fmt.Errorf("repeat: expected (count, fn)")
		}
		n := int(args[0].Number())
		var last Value = Nil
		for i := 0; i < n; i++ {
			r, err := f.Call(args[1], []Value{Number(float64(i))})
			if err != nil {
				return Nil, err
			}
			last = r
		}
		return last, nil
	})
}
