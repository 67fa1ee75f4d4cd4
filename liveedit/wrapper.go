package liveedit

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Host-visible records
// ---------------------------------------------------------------------------
//
// Debugger front-ends consume patch results as positional arrays with a
// fixed slot layout. The layout is a wire contract: slot order must
// never change, and consumers index by position, not by name. These
// arrays exist only at the host boundary; internally everything is the
// typed FunctionRecord/PatchPlan representation.

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("liveedit: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// ScopeShape is the host rendering of scope metadata.
type ScopeShape struct {
	Params []string `cbor:"params"`
	Cells  []string `cbor:"cells"`
	Free   []string `cbor:"free"`
}

// SharedRef identifies a live function prototype to the host.
type SharedRef struct {
	Script string `cbor:"script"`
	Index  int    `cbor:"index"`
}

// Slot indices of a function info array.
const (
	SlotName = iota
	SlotStartPosition
	SlotEndPosition
	SlotParamCount
	SlotCode
	SlotCodeScopeInfo
	SlotFunctionScopeInfo
	SlotParentIndex
	SlotSharedFunctionInfo
	SlotLiteralCount
	FunctionInfoSlots
)

// Slot indices of a shared info array.
const (
	SharedSlotName = iota
	SharedSlotStart
	SharedSlotEnd
	SharedSlotRef
	SharedInfoSlots
)

// FunctionInfoArray renders one record as its ten-slot array:
// [name, startPosition, endPosition, paramCount, code, codeScopeInfo,
// functionScopeInfo, parentIndex, sharedFunctionInfo, literalCount].
// Code is carried as an opaque handle (the record's index), scope info
// as a ScopeShape, and sharedFunctionInfo as a SharedRef or nil when
// the record is not bound to a live prototype.
func FunctionInfoArray(scriptName string, r *FunctionRecord) []any {
	slots := make([]any, FunctionInfoSlots)
	slots[SlotName] = r.Name
	slots[SlotStartPosition] = r.StartPos
	slots[SlotEndPosition] = r.EndPos
	slots[SlotParamCount] = r.ParamCount
	slots[SlotCode] = r.Index
	slots[SlotCodeScopeInfo] = scopeShape(r)
	slots[SlotFunctionScopeInfo] = scopeShape(r)
	slots[SlotParentIndex] = r.ParentIndex
	if r.Proto != nil {
		slots[SlotSharedFunctionInfo] = SharedRef{Script: scriptName, Index: r.Index}
	} else {
		slots[SlotSharedFunctionInfo] = nil
	}
	slots[SlotLiteralCount] = r.LiteralCount
	return slots
}

// SharedInfoArray renders the compact four-slot form used when only
// identity and position matter: [name, start, end, sharedRef].
func SharedInfoArray(scriptName string, r *FunctionRecord) []any {
	slots := make([]any, SharedInfoSlots)
	slots[SharedSlotName] = r.Name
	slots[SharedSlotStart] = r.StartPos
	slots[SharedSlotEnd] = r.EndPos
	slots[SharedSlotRef] = SharedRef{Script: scriptName, Index: r.Index}
	return slots
}

func scopeShape(r *FunctionRecord) ScopeShape {
	if r.Scope == nil {
		return ScopeShape{}
	}
	return ScopeShape{
		Params: r.Scope.Params,
		Cells:  r.Scope.Cells,
		Free:   r.Scope.Free,
	}
}

// MarshalFunctionInfos serializes the affected-function records of one
// patch operation to CBOR, preserving slot order.
func MarshalFunctionInfos(scriptName string, records []*FunctionRecord) ([]byte, error) {
	arrays := make([][]any, len(records))
	for i, r := range records {
		arrays[i] = FunctionInfoArray(scriptName, r)
	}
	return cborEncMode.Marshal(arrays)
}

// MarshalResult serializes a patch result for the notification channel.
func MarshalResult(r *Result) ([]byte, error) {
	return cborEncMode.Marshal(r)
}

// UnmarshalResult decodes a patch result.
func UnmarshalResult(data []byte) (*Result, error) {
	var r Result
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("liveedit: unmarshal result: %w", err)
	}
	return &r, nil
}
