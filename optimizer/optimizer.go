// Package optimizer implements dead-code elimination by symbol
// reachability: given a set of export names to keep, it computes the
// transitive closure of everything those exports need and deletes
// everything else, renumbering every remaining referential index.
package optimizer

import (
	"errors"

	"github.com/paritytech/wasm-utils/wasm"
)

// ErrNoExportSection is returned when the keep list is non-empty but the
// module has no export entries at all to seed the closure from.
var ErrNoExportSection = errors.New("optimizer: module has no export section but a non-empty keep list was given")

// SymbolKind is one of the five kinds of entity the reachability closure
// tracks.
type SymbolKind int

const (
	SymType SymbolKind = iota
	SymImport
	SymGlobal
	SymFunction
	SymExport
)

// Symbol identifies one entity. Import's Index is the entry's absolute
// position in the import section (not a kind-relative count): using the
// absolute position is what lets Import address either a function or a
// global import unambiguously even when the two kinds are interleaved,
// which a kind-relative numbering cannot do once a module mixes imports of
// different kinds. Global and Function's Index is the defined-entry index
// (post function-imports / post global-imports).
type Symbol struct {
	Kind  SymbolKind
	Index int
}

// Result reports what Optimize removed, for callers that want to log or
// assert on it (mirrors the eliminated_* bookkeeping of the pass this is
// grounded on).
type Result struct {
	EliminatedTypes   []int
	EliminatedImports []int // absolute import-section indices
	EliminatedFuncs   []int // defined-function indices
	EliminatedGlobals []int // defined-global indices
	EliminatedExports []int
}

// Optimize removes every function, global, import, type, and export not
// transitively reachable from the export names in keep, and renumbers every
// remaining referential index accordingly. It mutates m in place.
func Optimize(m *wasm.Module, keep []string) (Result, error) {
	if len(keep) > 0 && len(m.Exports) == 0 {
		return Result{}, ErrNoExportSection
	}

	funcImportAbs, globalImportAbs := importIndexMaps(m)

	stay := map[Symbol]bool{}
	var fringe []Symbol
	push := func(s Symbol) {
		if !stay[s] {
			stay[s] = true
			fringe = append(fringe, s)
		}
	}

	keepSet := map[string]bool{}
	for _, k := range keep {
		keepSet[k] = true
	}
	for i, e := range m.Exports {
		if keepSet[e.Field] {
			push(Symbol{Kind: SymExport, Index: i})
		}
	}
	for _, fi := range m.ElementFuncIndices() {
		push(resolveFunction(fi, funcImportAbs))
	}
	for _, seg := range m.Data {
		seedExprSymbols(seg.Offset, globalImportAbs, push)
	}
	for _, seg := range m.Elements {
		seedExprSymbols(seg.Offset, globalImportAbs, push)
	}

	for len(fringe) > 0 {
		s := fringe[len(fringe)-1]
		fringe = fringe[:len(fringe)-1]
		expand(m, s, funcImportAbs, globalImportAbs, push)
	}

	res := computeEliminated(m, stay, funcImportAbs, globalImportAbs)
	combinedFuncElim := combinedEliminatedFuncIndices(res, funcImportAbs)
	combinedGlobalElim := combinedEliminatedGlobalIndices(res, globalImportAbs)
	applyDeletions(m, res)
	rewire(m, res, combinedFuncElim, combinedGlobalElim)
	return res, nil
}

// combinedEliminatedFuncIndices translates eliminated import/defined-function
// indices into the single ascending list of combined-space indices rewire
// needs to count against.
func combinedEliminatedFuncIndices(res Result, funcImportAbs []int) []int {
	importRank := make(map[int]int, len(funcImportAbs))
	for rank, abs := range funcImportAbs {
		importRank[abs] = rank
	}
	var out []int
	for _, abs := range res.EliminatedImports {
		if rank, ok := importRank[abs]; ok {
			out = append(out, rank)
		}
	}
	for _, defined := range res.EliminatedFuncs {
		out = append(out, len(funcImportAbs)+defined)
	}
	sortInts(out)
	return out
}

func combinedEliminatedGlobalIndices(res Result, globalImportAbs []int) []int {
	importRank := make(map[int]int, len(globalImportAbs))
	for rank, abs := range globalImportAbs {
		importRank[abs] = rank
	}
	var out []int
	for _, abs := range res.EliminatedImports {
		if rank, ok := importRank[abs]; ok {
			out = append(out, rank)
		}
	}
	for _, defined := range res.EliminatedGlobals {
		out = append(out, len(globalImportAbs)+defined)
	}
	sortInts(out)
	return out
}

func sortInts(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func importIndexMaps(m *wasm.Module) (funcImportAbs, globalImportAbs []int) {
	for i, imp := range m.Imports {
		switch imp.Kind {
		case wasm.ExternalFunction:
			funcImportAbs = append(funcImportAbs, i)
		case wasm.ExternalGlobal:
			globalImportAbs = append(globalImportAbs, i)
		}
	}
	return
}

func resolveFunction(combinedIdx uint32, funcImportAbs []int) Symbol {
	if int(combinedIdx) < len(funcImportAbs) {
		return Symbol{Kind: SymImport, Index: funcImportAbs[combinedIdx]}
	}
	return Symbol{Kind: SymFunction, Index: int(combinedIdx) - len(funcImportAbs)}
}

func resolveGlobal(combinedIdx uint32, globalImportAbs []int) Symbol {
	if int(combinedIdx) < len(globalImportAbs) {
		return Symbol{Kind: SymImport, Index: globalImportAbs[combinedIdx]}
	}
	return Symbol{Kind: SymGlobal, Index: int(combinedIdx) - len(globalImportAbs)}
}

func seedExprSymbols(code []wasm.Instr, globalImportAbs []int, push func(Symbol)) {
	for _, ins := range code {
		if ins.Op == wasm.OpGlobalGet || ins.Op == wasm.OpGlobalSet {
			push(resolveGlobal(ins.GlobalIdx, globalImportAbs))
		}
	}
}

func expand(m *wasm.Module, s Symbol, funcImportAbs, globalImportAbs []int, push func(Symbol)) {
	switch s.Kind {
	case SymExport:
		e := m.Exports[s.Index]
		switch e.Kind {
		case wasm.ExternalFunction:
			push(resolveFunction(e.Index, funcImportAbs))
		case wasm.ExternalGlobal:
			push(resolveGlobal(e.Index, globalImportAbs))
		}
	case SymImport:
		imp := m.Imports[s.Index]
		if imp.Kind == wasm.ExternalFunction {
			push(Symbol{Kind: SymType, Index: int(imp.FuncTypeIdx)})
		}
	case SymFunction:
		body := m.Code[s.Index]
		typeIdx := m.Funcs[s.Index]
		push(Symbol{Kind: SymType, Index: int(typeIdx)})
		for _, ins := range body.Code {
			switch ins.Op {
			case wasm.OpCall:
				push(resolveFunction(ins.FuncIdx, funcImportAbs))
			case wasm.OpCallIndirect:
				push(Symbol{Kind: SymType, Index: int(ins.TypeIdx)})
			case wasm.OpGlobalGet, wasm.OpGlobalSet:
				push(resolveGlobal(ins.GlobalIdx, globalImportAbs))
			}
		}
	case SymGlobal:
		seedExprSymbols(m.Globals[s.Index].Init, globalImportAbs, push)
	case SymType:
		// leaf
	}
}

func computeEliminated(m *wasm.Module, stay map[Symbol]bool, funcImportAbs, globalImportAbs []int) Result {
	var res Result
	for i := range m.Types {
		if !stay[Symbol{Kind: SymType, Index: i}] {
			res.EliminatedTypes = append(res.EliminatedTypes, i)
		}
	}
	for i, imp := range m.Imports {
		switch imp.Kind {
		case wasm.ExternalFunction, wasm.ExternalGlobal:
			if !stay[Symbol{Kind: SymImport, Index: i}] {
				res.EliminatedImports = append(res.EliminatedImports, i)
			}
		}
	}
	for i := range m.Funcs {
		if !stay[Symbol{Kind: SymFunction, Index: i}] {
			res.EliminatedFuncs = append(res.EliminatedFuncs, i)
		}
	}
	for i := range m.Globals {
		if !stay[Symbol{Kind: SymGlobal, Index: i}] {
			res.EliminatedGlobals = append(res.EliminatedGlobals, i)
		}
	}
	for i := range m.Exports {
		if !stay[Symbol{Kind: SymExport, Index: i}] {
			res.EliminatedExports = append(res.EliminatedExports, i)
		}
	}
	return res
}

func countBelow(sorted []int, x int) int {
	n := 0
	for _, v := range sorted {
		if v < x {
			n++
		} else {
			break
		}
	}
	return n
}

func applyDeletions(m *wasm.Module, res Result) {
	m.Types = deleteAt(m.Types, res.EliminatedTypes)
	m.Imports = deleteAt(m.Imports, res.EliminatedImports)

	// Funcs and Code are positionally paired; delete the same indices from
	// both to keep them in lock-step.
	m.Funcs = deleteAt(m.Funcs, res.EliminatedFuncs)
	m.Code = deleteAt(m.Code, res.EliminatedFuncs)

	m.Globals = deleteAt(m.Globals, res.EliminatedGlobals)
	m.Exports = deleteAt(m.Exports, res.EliminatedExports)
}

// deleteAt removes the given (ascending, distinct) indices from s.
func deleteAt[T any](s []T, indices []int) []T {
	if len(indices) == 0 {
		return s
	}
	toDelete := make(map[int]bool, len(indices))
	for _, i := range indices {
		toDelete[i] = true
	}
	out := make([]T, 0, len(s)-len(indices))
	for i, v := range s {
		if !toDelete[i] {
			out = append(out, v)
		}
	}
	return out
}

// rewire performs the single second pass over every remaining section,
// decrementing each referential index by the count of eliminated indices
// strictly less than it in the appropriate space.
func rewire(m *wasm.Module, res Result, combinedFuncElim, combinedGlobalElim []int) {
	shiftFunc := func(combined uint32) uint32 {
		return combined - uint32(countBelow(combinedFuncElim, int(combined)))
	}
	shiftGlobal := func(combined uint32) uint32 {
		return combined - uint32(countBelow(combinedGlobalElim, int(combined)))
	}
	shiftType := func(idx uint32) uint32 {
		return idx - uint32(countBelow(res.EliminatedTypes, int(idx)))
	}

	rewriteExpr := func(code []wasm.Instr) {
		for i := range code {
			switch code[i].Op {
			case wasm.OpCall:
				code[i].FuncIdx = shiftFunc(code[i].FuncIdx)
			case wasm.OpCallIndirect:
				code[i].TypeIdx = shiftType(code[i].TypeIdx)
			case wasm.OpGlobalGet, wasm.OpGlobalSet:
				code[i].GlobalIdx = shiftGlobal(code[i].GlobalIdx)
			}
		}
	}

	for i := range m.Imports {
		if m.Imports[i].Kind == wasm.ExternalFunction {
			m.Imports[i].FuncTypeIdx = shiftType(m.Imports[i].FuncTypeIdx)
		}
	}
	for i := range m.Funcs {
		m.Funcs[i] = shiftType(m.Funcs[i])
	}
	for i := range m.Globals {
		rewriteExpr(m.Globals[i].Init)
	}
	for i := range m.Exports {
		switch m.Exports[i].Kind {
		case wasm.ExternalFunction:
			m.Exports[i].Index = shiftFunc(m.Exports[i].Index)
		case wasm.ExternalGlobal:
			m.Exports[i].Index = shiftGlobal(m.Exports[i].Index)
		}
	}
	for i := range m.Elements {
		rewriteExpr(m.Elements[i].Offset)
		for j := range m.Elements[i].Members {
			m.Elements[i].Members[j] = shiftFunc(m.Elements[i].Members[j])
		}
	}
	for i := range m.Data {
		rewriteExpr(m.Data[i].Offset)
	}
	for i := range m.Code {
		rewriteExpr(m.Code[i].Code)
	}
	if m.Start != nil {
		shifted := shiftFunc(*m.Start)
		m.Start = &shifted
	}
}

