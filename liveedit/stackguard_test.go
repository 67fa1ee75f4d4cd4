package liveedit

import (
	"runtime"
	"testing"
	"time"

	"github.com/chazu/quill/vm"
)

const spinningWorker = `function work() {
	while (running) {
	}
	return 0;
}
`

const patchedWorker = `function work() {
	return running + 41;
}
`

// spawnSpinner starts work on its own fiber and pauses the world once the
// fiber is parked at a loop safepoint.
func spawnSpinner(t *testing.T) (*vm.VM, *vm.Script, *vm.Fiber) {
	t.Helper()
	machine, script := startScript(t, spinningWorker, "worker")
	machine.SetGlobal("running", vm.Number(1))

	workFn, ok := machine.Global("work")
	if !ok {
		t.Fatalf("work not defined")
	}
	fiber := machine.Spawn("spinner", workFn, nil)
	machine.PauseWorld(nil)

	if fiber.Depth() != 1 {
		t.Fatalf("expected the spinner parked in work, depth %d", fiber.Depth())
	}
	return machine, script, fiber
}

func workProto(t *testing.T, machine *vm.VM) *vm.FunctionProto {
	t.Helper()
	fn, ok := machine.Global("work")
	if !ok {
		t.Fatalf("work not defined")
	}
	return fn.Closure().Proto
}

func TestOtherStackActivationBlocksWithoutDrop(t *testing.T) {
	machine, script, fiber := spawnSpinner(t)
	defer machine.ReleaseFiber(fiber)

	result := PatchScript(machine, script, patchedWorker, Options{})
	if !result.OK() {
		t.Fatalf("patch failed: %s", result.Error)
	}
	if len(result.Statuses) != 1 {
		t.Fatalf("expected one status, got %d", len(result.Statuses))
	}
	if got := result.Statuses[0].Status; got != BlockedOnOtherStack {
		t.Errorf("want BLOCKED_ON_OTHER_STACK, got %s", got)
	}

	machine.ResumeWorld()
	machine.SetGlobal("running", vm.Number(0))

	// The live activation entered the old code and runs it to the end.
	v, err := fiber.Join()
	if err != nil {
		t.Fatalf("fiber failed: %v", err)
	}
	if v.Number() != 0 {
		t.Errorf("the undropped activation should finish on old code, got %s", v.String())
	}
}

func TestDropRestartsActivationOnPatchedCode(t *testing.T) {
	machine, script, fiber := spawnSpinner(t)
	defer machine.ReleaseFiber(fiber)

	result := PatchScript(machine, script, patchedWorker, Options{DoDrop: true})
	if !result.OK() {
		t.Fatalf("patch failed: %s", result.Error)
	}
	if got := result.Statuses[0].Status; got != ReplacedOnActiveStack {
		t.Errorf("want REPLACED_ON_ACTIVE_STACK, got %s", got)
	}
	if fiber.Depth() != 1 {
		t.Errorf("drop should leave the restarted frame only, depth %d", fiber.Depth())
	}

	machine.ResumeWorld()

	v, err := fiber.Join()
	if err != nil {
		t.Fatalf("fiber failed: %v", err)
	}
	if v.Number() != 42 {
		t.Errorf("the restarted activation should run the new body, got %s", v.String())
	}
}

func TestActiveStackActivationIsNeverDropped(t *testing.T) {
	machine, _, fiber := spawnSpinner(t)
	defer machine.ReleaseFiber(fiber)

	proto := workProto(t, machine)
	guard := NewStackGuard(machine, fiber)

	statuses := guard.CheckActivations([]*vm.FunctionProto{proto}, true)
	if statuses[0] != BlockedOnActiveStack {
		t.Errorf("want BLOCKED_ON_ACTIVE_STACK, got %s", statuses[0])
	}
	if fiber.Depth() != 1 {
		t.Errorf("the requesting fiber's stack must not be touched, depth %d", fiber.Depth())
	}

	machine.ResumeWorld()
	machine.SetGlobal("running", vm.Number(0))
	if _, err := fiber.Join(); err != nil {
		t.Fatalf("fiber failed: %v", err)
	}
}

func TestDropRefusedWhenFunctionLiveOnActiveStack(t *testing.T) {
	machine, _, other := spawnSpinner(t)
	defer machine.ReleaseFiber(other)

	workFn, ok := machine.Global("work")
	if !ok {
		t.Fatalf("work not defined")
	}
	machine.ResumeWorld()
	requester := machine.Spawn("requester", workFn, nil)
	defer machine.ReleaseFiber(requester)
	machine.PauseWorld(nil)

	if other.Depth() != 1 || requester.Depth() != 1 {
		t.Fatalf("expected both fibers parked in work, depths %d and %d", other.Depth(), requester.Depth())
	}

	proto := workProto(t, machine)
	patchedMachine, _ := startScript(t, patchedWorker, "patched")
	proto.ReplaceCode(workProto(t, patchedMachine).Code())

	guard := NewStackGuard(machine, requester)
	statuses := guard.CheckActivations([]*vm.FunctionProto{proto}, true)
	if statuses[0] != BlockedOnOtherStack {
		t.Errorf("want BLOCKED_ON_OTHER_STACK, got %s", statuses[0])
	}
	if other.Depth() != 1 || requester.Depth() != 1 {
		t.Errorf("a refused drop must not touch either stack, depths %d and %d", other.Depth(), requester.Depth())
	}

	machine.ResumeWorld()
	machine.SetGlobal("running", vm.Number(0))
	for _, f := range []*vm.Fiber{other, requester} {
		v, err := f.Join()
		if err != nil {
			t.Fatalf("fiber failed: %v", err)
		}
		if v.Number() != 0 {
			t.Errorf("undropped activations should finish on old code, got %s", v.String())
		}
	}
}

func TestNativeFrameBlocksUnwinding(t *testing.T) {
	src := `function inner() {
	while (running) {
	}
	return 0;
}
function work() {
	return invoke(inner);
}
`
	machine, _ := startScript(t, src, "worker")
	machine.SetGlobal("running", vm.Number(1))

	workFn, _ := machine.Global("work")
	innerFn, _ := machine.Global("inner")
	fiber := machine.Spawn("spinner", workFn, nil)
	defer machine.ReleaseFiber(fiber)

	machine.PauseWorld(nil)

	// The pause can catch the fiber at the OpCall safepoint before it has
	// entered inner; resume and re-pause until it is parked in the loop.
	for deadline := time.Now().Add(5 * time.Second); fiber.Depth() != 3 && time.Now().Before(deadline); {
		machine.ResumeWorld()
		runtime.Gosched()
		machine.PauseWorld(nil)
	}

	if fiber.Depth() != 3 {
		t.Fatalf("expected work, a native marker, and inner, depth %d", fiber.Depth())
	}
	if !fiber.FrameAt(1).IsNative() {
		t.Fatalf("the middle frame should be the invoke marker")
	}

	guard := NewStackGuard(machine, nil)
	statuses := guard.CheckActivations([]*vm.FunctionProto{
		workFn.Closure().Proto,
		innerFn.Closure().Proto,
	}, false)

	if statuses[0] != BlockedUnderNativeCode {
		t.Errorf("work sits under a native frame, want BLOCKED_UNDER_NATIVE_CODE, got %s", statuses[0])
	}
	if statuses[1] != BlockedOnOtherStack {
		t.Errorf("inner has no native frame above it, want BLOCKED_ON_OTHER_STACK, got %s", statuses[1])
	}

	machine.ResumeWorld()
	machine.SetGlobal("running", vm.Number(0))
	if _, err := fiber.Join(); err != nil {
		t.Fatalf("fiber failed: %v", err)
	}
}

func TestStatusStringsAndBlocking(t *testing.T) {
	cases := []struct {
		status  FrameStatus
		name    string
		blocked bool
	}{
		{AvailableForPatch, "AVAILABLE_FOR_PATCH", false},
		{BlockedOnActiveStack, "BLOCKED_ON_ACTIVE_STACK", true},
		{BlockedOnOtherStack, "BLOCKED_ON_OTHER_STACK", true},
		{BlockedUnderNativeCode, "BLOCKED_UNDER_NATIVE_CODE", true},
		{ReplacedOnActiveStack, "REPLACED_ON_ACTIVE_STACK", false},
	}
	for _, c := range cases {
		if c.status.String() != c.name {
			t.Errorf("status %d renders %q, want %q", c.status, c.status.String(), c.name)
		}
		if c.status.Blocked() != c.blocked {
			t.Errorf("%s Blocked() = %v", c.name, c.status.Blocked())
		}
	}
}
