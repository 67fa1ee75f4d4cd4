// Package server hosts the debugger-facing side of live patching: it
// serializes patch operations against one VM, pausing every fiber for
// the duration, archiving script versions, and notifying subscribers.
package server

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/quill/compiler"
	"github.com/chazu/quill/history"
	"github.com/chazu/quill/liveedit"
	"github.com/chazu/quill/manifest"
	"github.com/chazu/quill/vm"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("quill.server")

// Host owns one VM and runs patch operations against it one at a time.
type Host struct {
	machine *vm.VM
	cfg     *manifest.Manifest
	store   *history.Store // nil when history is disabled

	mu          sync.Mutex
	subscribers []chan []byte
}

// NewHost creates a host around a running VM. store may be nil.
func NewHost(machine *vm.VM, cfg *manifest.Manifest, store *history.Store) *Host {
	if cfg == nil {
		cfg = manifest.Default()
	}
	return &Host{machine: machine, cfg: cfg, store: store}
}

// VM returns the hosted machine.
func (h *Host) VM() *vm.VM { return h.machine }

// LoadScript compiles source, registers the script with the VM, and
// archives the initial version.
func (h *Host) LoadScript(name, source string) (*vm.Script, error) {
	script, err := compiler.Compile(source, compiler.Options{ScriptName: name})
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	h.machine.AddScript(script)
	if h.store != nil {
		if _, err := h.store.Record(name, source, false); err != nil {
			log.Warningf("archiving %s: %s", name, err.Error())
		}
	}
	log.Infof("loaded script %s (%d functions)", name, len(script.Protos))
	return script, nil
}

// RunScript loads and executes a script's top-level code to completion.
func (h *Host) RunScript(name, source string) (*vm.Script, error) {
	script, err := h.LoadScript(name, source)
	if err != nil {
		return nil, err
	}
	if _, err := h.machine.RunScript(script); err != nil {
		return script, err
	}
	return script, nil
}

// SpawnScript loads a script and runs its top-level code on a
// background fiber, for watch mode where the host must stay free to
// accept patches while the program runs.
func (h *Host) SpawnScript(name, source string) (*vm.Script, *vm.Fiber, error) {
	script, err := h.LoadScript(name, source)
	if err != nil {
		return nil, nil, err
	}
	fiber := h.machine.Spawn(name, vm.Function(&vm.Closure{Proto: script.Root()}), nil)
	return script, fiber, nil
}

// Patch replaces a script's source with newSource, hot-swapping changed
// functions. The whole operation runs with every fiber parked; fibers
// resume before Patch returns, whatever the outcome.
func (h *Host) Patch(scriptName, newSource string) (*liveedit.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	script := h.machine.ScriptByName(scriptName)
	if script == nil {
		return nil, fmt.Errorf("no script named %q", scriptName)
	}

	opID := uuid.NewString()
	log.Infof("patch %s: script %s (%d -> %d bytes)",
		opID, scriptName, len(script.Source), len(newSource))

	oldSource := script.Source
	opts := liveedit.Options{
		DoDrop:          h.cfg.Patch.DropFrames,
		LineGranularity: h.cfg.Patch.LineDiff,
	}
	if h.cfg.Patch.RetainOld {
		opts.RetainName = scriptName + h.cfg.Patch.RetainSuffix
	}

	h.machine.PauseWorld(nil)
	result := liveedit.PatchScript(h.machine, script, newSource, opts)
	h.machine.ResumeWorld()

	if !result.OK() {
		log.Errorf("patch %s failed: %s", opID, result.Error)
		h.notify(result)
		return result, nil
	}

	if result.Patched() {
		log.Infof("patch %s chunks: %s", opID, liveedit.FormatChunks(result.Chunks))
		if rendered, err := RenderUnifiedDiff(scriptName, oldSource, newSource, result.Chunks); err == nil {
			log.Debugf("patch %s diff:\n%s", opID, rendered)
		}
		for _, st := range result.Statuses {
			log.Infof("patch %s: %s at %d -> %s", opID, displayName(st.Name), st.StartPos, st.Status)
		}
		if h.store != nil {
			if _, err := h.store.Record(scriptName, newSource, true); err != nil {
				log.Warningf("archiving %s: %s", scriptName, err.Error())
			}
		}
	} else {
		log.Infof("patch %s: no textual changes", opID)
	}

	h.notify(result)
	return result, nil
}

// Subscribe returns a channel carrying one CBOR-encoded result per
// patch operation. Slow subscribers miss results rather than stalling
// the patcher.
func (h *Host) Subscribe() <-chan []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan []byte, 8)
	h.subscribers = append(h.subscribers, ch)
	return ch
}

func (h *Host) notify(result *liveedit.Result) {
	data, err := liveedit.MarshalResult(result)
	if err != nil {
		log.Errorf("encoding result: %s", err.Error())
		return
	}
	for _, ch := range h.subscribers {
		select {
		case ch <- data:
		default:
		}
	}
}

func displayName(name string) string {
	if name == "" {
		return "(top level)"
	}
	return name
}
