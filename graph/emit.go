package graph

import (
	"fmt"

	"github.com/paritytech/wasm-utils/wasm"
)

// Generate re-serializes the graph module into a structural module.
// Because every handle's Order() reflects the reflist's current state,
// emission never needs an explicit index-fixup map: the index written for
// a handle h is simply its current order. Sections are emitted only when
// their source list is non-empty, and custom sections are re-interleaved
// at their recorded position.
func (g *Module) Generate() (*wasm.Module, error) {
	m := &wasm.Module{Customs: append([]wasm.CustomSection(nil), g.Customs...)}

	for _, t := range g.Types.Values() {
		m.Types = append(m.Types, t.Sig)
	}

	for _, fn := range g.Funcs.Values() {
		if !fn.Origin.Imported {
			continue
		}
		ti, ok := fn.TypeRef.Order()
		if !ok {
			return nil, fmt.Errorf("graph: emit: detached type reference on function import %q.%q", fn.Origin.Module, fn.Origin.Field)
		}
		m.Imports = append(m.Imports, wasm.ImportEntry{Module: fn.Origin.Module, Field: fn.Origin.Field, Kind: wasm.ExternalFunction, FuncTypeIdx: uint32(ti)})
	}
	for _, tbl := range g.Tables.Values() {
		if tbl.Origin.Imported {
			m.Imports = append(m.Imports, wasm.ImportEntry{Module: tbl.Origin.Module, Field: tbl.Origin.Field, Kind: wasm.ExternalTable, Table: tbl.Type})
		}
	}
	for _, mem := range g.Memories.Values() {
		if mem.Origin.Imported {
			m.Imports = append(m.Imports, wasm.ImportEntry{Module: mem.Origin.Module, Field: mem.Origin.Field, Kind: wasm.ExternalMemory, Mem: mem.Type})
		}
	}
	for _, gl := range g.Globals.Values() {
		if gl.Origin.Imported {
			m.Imports = append(m.Imports, wasm.ImportEntry{Module: gl.Origin.Module, Field: gl.Origin.Field, Kind: wasm.ExternalGlobal, Global: wasm.GlobalType{ValType: gl.ValType, Mutable: gl.Mutable}})
		}
	}

	for _, fn := range g.Funcs.Values() {
		if fn.Origin.Imported {
			continue
		}
		ti, ok := fn.TypeRef.Order()
		if !ok {
			return nil, fmt.Errorf("graph: emit: detached type reference on a declared function")
		}
		m.Funcs = append(m.Funcs, uint32(ti))
	}
	for _, tbl := range g.Tables.Values() {
		if !tbl.Origin.Imported {
			m.Tables = append(m.Tables, tbl.Type)
		}
	}
	for _, mem := range g.Memories.Values() {
		if !mem.Origin.Imported {
			m.Mems = append(m.Mems, mem.Type)
		}
	}
	for _, gl := range g.Globals.Values() {
		if gl.Origin.Imported {
			continue
		}
		init, err := emitExpr(gl.Init)
		if err != nil {
			return nil, fmt.Errorf("graph: emit: global init: %w", err)
		}
		m.Globals = append(m.Globals, wasm.GlobalEntry{Type: wasm.Global{ValType: gl.ValType, Mutable: gl.Mutable}, Init: init})
	}

	for _, e := range g.Exports {
		entry := wasm.ExportEntry{Field: e.Field, Kind: e.Local.Kind}
		var ok bool
		var idx int
		switch e.Local.Kind {
		case wasm.ExternalFunction:
			idx, ok = e.Local.Func.Order()
		case wasm.ExternalGlobal:
			idx, ok = e.Local.Global.Order()
		case wasm.ExternalTable:
			idx, ok = e.Local.Table.Order()
		case wasm.ExternalMemory:
			idx, ok = e.Local.Memory.Order()
		}
		if !ok {
			return nil, fmt.Errorf("graph: emit: export %q references a detached entry", e.Field)
		}
		entry.Index = uint32(idx)
		m.Exports = append(m.Exports, entry)
	}

	if g.Start != nil {
		idx, ok := g.Start.Order()
		if !ok {
			return nil, fmt.Errorf("graph: emit: start function reference detached")
		}
		u := uint32(idx)
		m.Start = &u
	}

	for _, seg := range g.Elements {
		loc, err := emitSegmentLocation(seg.Location)
		if err != nil {
			return nil, fmt.Errorf("graph: emit: element segment: %w", err)
		}
		members := make([]uint32, len(seg.Members))
		for i, fref := range seg.Members {
			idx, ok := fref.Order()
			if !ok {
				return nil, fmt.Errorf("graph: emit: element segment member %d detached", i)
			}
			members[i] = uint32(idx)
		}
		m.Elements = append(m.Elements, wasm.ElementSegment{Mode: loc.Mode, TableIdx: loc.Index, Offset: loc.Offset, Members: members})
	}

	for _, fn := range g.Funcs.Values() {
		if fn.Origin.Imported {
			continue
		}
		if fn.Body == nil {
			return nil, fmt.Errorf("graph: emit: declared function missing a body")
		}
		code, err := emitExpr(fn.Body.Code)
		if err != nil {
			return nil, fmt.Errorf("graph: emit: function body: %w", err)
		}
		m.Code = append(m.Code, wasm.FunctionBody{Locals: fn.Body.Locals, Code: code})
	}

	for _, d := range g.Data {
		loc, err := emitSegmentLocation(d.Location)
		if err != nil {
			return nil, fmt.Errorf("graph: emit: data segment: %w", err)
		}
		m.Data = append(m.Data, wasm.DataSegment{Mode: loc.Mode, MemIdx: loc.Index, Offset: loc.Offset, Value: d.Value})
	}

	return m, nil
}

type emittedLocation struct {
	Mode   wasm.SegmentMode
	Index  uint32
	Offset []wasm.Instr
}

func emitSegmentLocation(loc SegmentLocation) (emittedLocation, error) {
	out := emittedLocation{Mode: loc.Mode, Index: loc.Index}
	if loc.Mode == wasm.SegmentPassive {
		return out, nil
	}
	off, err := emitExpr(loc.Offset)
	if err != nil {
		return emittedLocation{}, err
	}
	out.Offset = off
	return out, nil
}

// emitExpr is the inverse of ingestExpr: it asserts every handle is still
// attached (a detached handle here is the "programming error" case this
// representation exists to make impossible in well-behaved passes) and
// materializes its order back into the plain instruction form.
func emitExpr(code []Instruction) ([]wasm.Instr, error) {
	out := make([]wasm.Instr, len(code))
	for i, ins := range code {
		switch ins.Kind {
		case KindCall:
			idx, ok := ins.Func.Order()
			if !ok {
				return nil, fmt.Errorf("instruction %d: call target is detached", i)
			}
			out[i] = wasm.Call(uint32(idx))
		case KindCallIndirect:
			idx, ok := ins.Type.Order()
			if !ok {
				return nil, fmt.Errorf("instruction %d: call_indirect type is detached", i)
			}
			out[i] = wasm.CallIndirect(uint32(idx))
		case KindGetGlobal:
			idx, ok := ins.Global.Order()
			if !ok {
				return nil, fmt.Errorf("instruction %d: get_global target is detached", i)
			}
			out[i] = wasm.GlobalGet(uint32(idx))
		case KindSetGlobal:
			idx, ok := ins.Global.Order()
			if !ok {
				return nil, fmt.Errorf("instruction %d: set_global target is detached", i)
			}
			out[i] = wasm.GlobalSet(uint32(idx))
		default:
			out[i] = ins.Plain
		}
	}
	return out, nil
}
