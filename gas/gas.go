// Package gas implements the gas-metering injector: it rewrites every
// function body to charge a caller-provided cost per basic block through an
// imported host callback, and optionally meters memory.grow proportionally.
package gas

import (
	"fmt"

	"github.com/paritytech/wasm-utils/rules"
	"github.com/paritytech/wasm-utils/wasm"
)

// Error is returned when a forbidden instruction category is encountered.
// Module carries the input module, unmodified, so the caller may fall back
// (§7 "semantic rule violation").
type Error struct {
	Module *wasm.Module
	Op     wasm.Op
}

func (e *Error) Error() string {
	return fmt.Sprintf("gas: instruction opcode 0x%x is forbidden under the configured rule set", byte(e.Op))
}

// Inject adds a gas-charging import named gasModule.gasField and
// instruments every function body to call it once per basic block with
// that block's statically computed cost. It mutates m in place and returns
// it on success. If any instruction maps to rules.Forbidden, m is left
// completely untouched and an *Error wrapping it is returned.
func Inject(m *wasm.Module, set *rules.Set, gasModule, gasField string) (*wasm.Module, error) {
	if forbidOp, found := firstForbidden(m, set); found {
		return nil, &Error{Module: m, Op: forbidOp}
	}

	gasTypeIdx := uint32(len(m.Types))
	m.Types = append(m.Types, wasm.FuncType([]wasm.ValueType{wasm.ValueTypeI32}, nil))

	origFuncImports := m.FuncImportCount()
	gasIdx := uint32(origFuncImports)
	insertPos := 0
	for i, imp := range m.Imports {
		if imp.Kind == wasm.ExternalFunction {
			insertPos = i + 1
		}
	}
	newImport := wasm.ImportEntry{Module: gasModule, Field: gasField, Kind: wasm.ExternalFunction, FuncTypeIdx: gasTypeIdx}
	m.Imports = insertAt(m.Imports, insertPos, newImport)

	shiftFunc := func(x uint32) uint32 {
		if x >= gasIdx {
			return x + 1
		}
		return x
	}
	for i := range m.Code {
		updateCallIndex(m.Code[i].Code, shiftFunc)
	}
	for i := range m.Exports {
		if m.Exports[i].Kind == wasm.ExternalFunction {
			m.Exports[i].Index = shiftFunc(m.Exports[i].Index)
		}
	}
	for i := range m.Elements {
		for j := range m.Elements[i].Members {
			m.Elements[i].Members[j] = shiftFunc(m.Elements[i].Members[j])
		}
	}
	if m.Start != nil {
		shifted := shiftFunc(*m.Start)
		m.Start = &shifted
	}

	growCost := set.GrowCost()
	var growCounterIdx uint32
	if growCost > 0 {
		growCounterIdx = uint32(m.FuncsSpace())
	}

	for i := range m.Code {
		m.Code[i].Code = instrumentBody(m.Code[i].Code, set, gasIdx, growCost > 0, growCounterIdx)
	}

	if growCost > 0 {
		addGrowCounter(m, gasIdx, growCost)
	}

	return m, nil
}

func insertAt[T any](s []T, pos int, v T) []T {
	out := make([]T, 0, len(s)+1)
	out = append(out, s[:pos]...)
	out = append(out, v)
	out = append(out, s[pos:]...)
	return out
}

func updateCallIndex(code []wasm.Instr, shift func(uint32) uint32) {
	for i := range code {
		if code[i].Op == wasm.OpCall {
			code[i].FuncIdx = shift(code[i].FuncIdx)
		}
	}
}

func firstForbidden(m *wasm.Module, set *rules.Set) (wasm.Op, bool) {
	for _, body := range m.Code {
		for _, ins := range body.Code {
			if _, forbidden := set.Process(ins.Op); forbidden {
				return ins.Op, true
			}
		}
	}
	return 0, false
}

type blockCtx struct {
	start int
	cost  uint32
}

// instrumentBody runs the single linear pass that computes each basic
// block's cost via an explicit stack of start/cost pairs, then rewrites the
// body inserting `i32.const cost; call gas` at each block's first
// instruction position. When chargeGrow is set, every memory.grow is
// additionally replaced by a call to the grow-counter function.
func instrumentBody(code []wasm.Instr, set *rules.Set, gasIdx uint32, chargeGrow bool, growCounterIdx uint32) []wasm.Instr {
	stack := []blockCtx{{start: 0}}
	inserts := map[int]uint32{}

	for i, ins := range code {
		cost, _ := set.Process(ins.Op)
		stack[len(stack)-1].cost += cost

		switch ins.Op {
		case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
			stack = append(stack, blockCtx{start: i + 1})
		case wasm.OpElse:
			top := stack[len(stack)-1]
			inserts[top.start] = top.cost
			stack = stack[:len(stack)-1]
			stack = append(stack, blockCtx{start: i + 1})
		case wasm.OpEnd:
			top := stack[len(stack)-1]
			inserts[top.start] = top.cost
			stack = stack[:len(stack)-1]
		}
	}

	out := make([]wasm.Instr, 0, len(code)+2*len(inserts))
	for i, ins := range code {
		if cost, ok := inserts[i]; ok {
			out = append(out, wasm.I32Const(int32(cost)), wasm.Call(gasIdx))
		}
		if chargeGrow && ins.Op == wasm.OpMemoryGrow {
			out = append(out, wasm.Call(growCounterIdx))
			continue
		}
		out = append(out, ins)
	}
	return out
}

// addGrowCounter appends the grow_counter(delta: i32) -> i32 function:
// get_local 0; get_local 0; i32.const grow_cost; i32.mul; call gas;
// grow_memory 0; end.
func addGrowCounter(m *wasm.Module, gasIdx uint32, growCost uint32) {
	typeIdx := uint32(len(m.Types))
	m.Types = append(m.Types, wasm.FuncType([]wasm.ValueType{wasm.ValueTypeI32}, []wasm.ValueType{wasm.ValueTypeI32}))
	m.Funcs = append(m.Funcs, typeIdx)
	body := wasm.FunctionBody{Code: []wasm.Instr{
		wasm.LocalGet(0),
		wasm.LocalGet(0),
		wasm.I32Const(int32(growCost)),
		wasm.I32Mul(),
		wasm.Call(gasIdx),
		wasm.MemoryGrow(),
		wasm.End(),
	}}
	m.Code = append(m.Code, body)
}
