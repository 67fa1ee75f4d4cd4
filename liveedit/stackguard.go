package liveedit

import (
	"github.com/chazu/quill/vm"
)

// ---------------------------------------------------------------------------
// Stack scanning
// ---------------------------------------------------------------------------

// FrameStatus classifies how live activations of one patched function
// relate to the stacks at patch time. The numeric values are part of
// the host tooling contract.
type FrameStatus int

const (
	AvailableForPatch      FrameStatus = 1
	BlockedOnActiveStack   FrameStatus = 2
	BlockedOnOtherStack    FrameStatus = 3
	BlockedUnderNativeCode FrameStatus = 4
	ReplacedOnActiveStack  FrameStatus = 5
)

func (s FrameStatus) String() string {
	switch s {
	case AvailableForPatch:
		return "AVAILABLE_FOR_PATCH"
	case BlockedOnActiveStack:
		return "BLOCKED_ON_ACTIVE_STACK"
	case BlockedOnOtherStack:
		return "BLOCKED_ON_OTHER_STACK"
	case BlockedUnderNativeCode:
		return "BLOCKED_UNDER_NATIVE_CODE"
	case ReplacedOnActiveStack:
		return "REPLACED_ON_ACTIVE_STACK"
	default:
		return "UNKNOWN"
	}
}

// Blocked reports whether the status forbids dropping frames.
func (s FrameStatus) Blocked() bool {
	return s == BlockedOnActiveStack || s == BlockedOnOtherStack || s == BlockedUnderNativeCode
}

// restrictiveness orders statuses for aggregation across stacks. A
// native-code block outranks an other-stack block, which outranks an
// active-stack block, which outranks availability.
func restrictiveness(s FrameStatus) int {
	switch s {
	case BlockedUnderNativeCode:
		return 3
	case BlockedOnOtherStack:
		return 2
	case BlockedOnActiveStack:
		return 1
	default:
		return 0
	}
}

// StackGuard scans every fiber's call stack for activations of patched
// functions, classifies them, and optionally drops frames so a patched
// function restarts on its new code. All fibers except the requesting
// one must be parked when the guard runs.
type StackGuard struct {
	vm     *vm.VM
	active *vm.Fiber // the fiber issuing the patch request, may be nil
}

func NewStackGuard(machine *vm.VM, active *vm.Fiber) *StackGuard {
	return &StackGuard{vm: machine, active: active}
}

// activation locates the innermost frame of fn on the fiber and reports
// whether a native frame sits above it.
func (g *StackGuard) activation(f *vm.Fiber, fn *vm.FunctionProto) (frameIdx int, underNative bool) {
	frameIdx = -1
	for i := f.Depth() - 1; i >= 0; i-- {
		fr := f.FrameAt(i)
		if fr.IsNative() {
			continue
		}
		if fr.Proto() == fn {
			frameIdx = i
			break
		}
	}
	if frameIdx < 0 {
		return -1, false
	}
	for i := frameIdx + 1; i < f.Depth(); i++ {
		if f.FrameAt(i).IsNative() {
			return frameIdx, true
		}
	}
	return frameIdx, false
}

// classify determines one fiber's status for one function.
func (g *StackGuard) classify(f *vm.Fiber, fn *vm.FunctionProto) FrameStatus {
	idx, underNative := g.activation(f, fn)
	if idx < 0 {
		return AvailableForPatch
	}
	if underNative {
		return BlockedUnderNativeCode
	}
	if f == g.active {
		return BlockedOnActiveStack
	}
	return BlockedOnOtherStack
}

// CheckActivations returns one status per function: the most
// restrictive classification observed across all fibers. With doDrop
// set, a function blocked only by other-stack activations has every
// such activation dropped and restarted, and reports
// ReplacedOnActiveStack. A drop is refused outright, with no stack
// touched, if any fiber shows a blocking condition that cannot be
// unwound, or if the requesting fiber itself holds an activation of
// the function, so a function is never left half replaced across
// stacks.
func (g *StackGuard) CheckActivations(fns []*vm.FunctionProto, doDrop bool) []FrameStatus {
	fibers := g.vm.Fibers()
	statuses := make([]FrameStatus, len(fns))

	for i, fn := range fns {
		agg := AvailableForPatch
		for _, f := range fibers {
			s := g.classify(f, fn)
			if restrictiveness(s) > restrictiveness(agg) {
				agg = s
			}
		}

		activePinned := g.active != nil && g.classify(g.active, fn) != AvailableForPatch
		if doDrop && agg == BlockedOnOtherStack && !activePinned {
			dropped := false
			for _, f := range fibers {
				if f == g.active {
					continue
				}
				if g.dropOn(f, fn) {
					dropped = true
				}
			}
			if dropped {
				agg = ReplacedOnActiveStack
			}
		}

		statuses[i] = agg
	}
	return statuses
}

// dropOn discards every frame above fn's innermost activation on the
// fiber and restarts that activation from the top of its function body,
// which by now is the patched code. Returns false when the fiber holds
// no activation or unwinding would cross a native frame.
func (g *StackGuard) dropOn(f *vm.Fiber, fn *vm.FunctionProto) bool {
	idx, underNative := g.activation(f, fn)
	if idx < 0 || underNative {
		return false
	}
	f.DropAbove(idx)
	return true
}
