package graph

import (
	"fmt"

	"github.com/paritytech/wasm-utils/reflist"
	"github.com/paritytech/wasm-utils/wasm"
)

// From ingests a structural module into the graph representation, walking
// sections in the fixed order types, imports, functions, tables, memories,
// globals, exports, start, elements, code, data. Custom sections are
// preserved positionally by their After tag.
func From(m *wasm.Module) (*Module, error) {
	g := &Module{
		Types:    reflist.New[*FunctionType](),
		Funcs:    reflist.New[*Func](),
		Tables:   reflist.New[*Table](),
		Memories: reflist.New[*Memory](),
		Globals:  reflist.New[*Global](),
		Customs:  append([]wasm.CustomSection(nil), m.Customs...),
	}

	for _, t := range m.Types {
		g.Types.Push(&FunctionType{Sig: t})
	}

	for _, imp := range m.Imports {
		origin := Origin{Imported: true, Module: imp.Module, Field: imp.Field}
		switch imp.Kind {
		case wasm.ExternalFunction:
			tref, ok := g.Types.Get(int(imp.FuncTypeIdx))
			if !ok {
				return nil, fmt.Errorf("graph: import %q.%q: type index %d out of range", imp.Module, imp.Field, imp.FuncTypeIdx)
			}
			g.Funcs.Push(&Func{TypeRef: tref, Origin: origin})
		case wasm.ExternalTable:
			g.Tables.Push(&Table{Origin: origin, Type: imp.Table})
		case wasm.ExternalMemory:
			g.Memories.Push(&Memory{Origin: origin, Type: imp.Mem})
		case wasm.ExternalGlobal:
			g.Globals.Push(&Global{ValType: imp.Global.ValType, Mutable: imp.Global.Mutable, Origin: origin})
		}
	}

	// Functions section: declare function-space entries; bodies attached
	// once the code section is reached below.
	for _, ti := range m.Funcs {
		tref, ok := g.Types.Get(int(ti))
		if !ok {
			return nil, fmt.Errorf("graph: function type index %d out of range", ti)
		}
		g.Funcs.Push(&Func{TypeRef: tref})
	}

	for _, t := range m.Tables {
		g.Tables.Push(&Table{Type: t})
	}
	for _, mem := range m.Mems {
		g.Memories.Push(&Memory{Type: mem})
	}

	for _, ge := range m.Globals {
		init, err := ingestExpr(ge.Init, g)
		if err != nil {
			return nil, fmt.Errorf("graph: global init: %w", err)
		}
		g.Globals.Push(&Global{ValType: ge.Type.ValType, Mutable: ge.Type.Mutable, Init: init})
	}

	for _, e := range m.Exports {
		local, err := ingestExportLocal(e, g)
		if err != nil {
			return nil, fmt.Errorf("graph: export %q: %w", e.Field, err)
		}
		g.Exports = append(g.Exports, Export{Field: e.Field, Local: local})
	}

	if m.Start != nil {
		fref, ok := g.Funcs.Get(int(*m.Start))
		if !ok {
			return nil, fmt.Errorf("graph: start function index %d out of range", *m.Start)
		}
		g.Start = &fref
	}

	for _, seg := range m.Elements {
		loc, err := ingestSegmentLocation(seg.Mode, seg.TableIdx, seg.Offset, g)
		if err != nil {
			return nil, fmt.Errorf("graph: element segment: %w", err)
		}
		members := make([]reflist.Ref[*Func], len(seg.Members))
		for i, fi := range seg.Members {
			fref, ok := g.Funcs.Get(int(fi))
			if !ok {
				return nil, fmt.Errorf("graph: element segment member %d: function index %d out of range", i, fi)
			}
			members[i] = fref
		}
		g.Elements = append(g.Elements, ElementSegment{Location: loc, Members: members})
	}

	funcRefs := g.Funcs.Refs()
	declaredStart := len(funcRefs) - len(m.Code)
	if declaredStart < 0 {
		return nil, fmt.Errorf("graph: code section has more entries (%d) than declared functions", len(m.Code))
	}
	for i, body := range m.Code {
		code, err := ingestExpr(body.Code, g)
		if err != nil {
			return nil, fmt.Errorf("graph: function body %d: %w", i, err)
		}
		fn := funcRefs[declaredStart+i].Get()
		fn.Body = &FuncBody{Locals: body.Locals, Code: code}
	}

	for _, d := range m.Data {
		loc, err := ingestSegmentLocation(d.Mode, d.MemIdx, d.Offset, g)
		if err != nil {
			return nil, fmt.Errorf("graph: data segment: %w", err)
		}
		g.Data = append(g.Data, DataSegment{Location: loc, Value: d.Value})
	}

	return g, nil
}

func ingestSegmentLocation(mode wasm.SegmentMode, idx uint32, offset []wasm.Instr, g *Module) (SegmentLocation, error) {
	loc := SegmentLocation{Mode: mode, Index: idx}
	if mode == wasm.SegmentPassive {
		return loc, nil
	}
	off, err := ingestExpr(offset, g)
	if err != nil {
		return SegmentLocation{}, err
	}
	loc.Offset = off
	return loc, nil
}

func ingestExportLocal(e wasm.ExportEntry, g *Module) (ExportLocal, error) {
	switch e.Kind {
	case wasm.ExternalFunction:
		ref, ok := g.Funcs.Get(int(e.Index))
		if !ok {
			return ExportLocal{}, fmt.Errorf("function index %d out of range", e.Index)
		}
		return ExportLocal{Kind: e.Kind, Func: ref}, nil
	case wasm.ExternalGlobal:
		ref, ok := g.Globals.Get(int(e.Index))
		if !ok {
			return ExportLocal{}, fmt.Errorf("global index %d out of range", e.Index)
		}
		return ExportLocal{Kind: e.Kind, Global: ref}, nil
	case wasm.ExternalTable:
		ref, ok := g.Tables.Get(int(e.Index))
		if !ok {
			return ExportLocal{}, fmt.Errorf("table index %d out of range", e.Index)
		}
		return ExportLocal{Kind: e.Kind, Table: ref}, nil
	case wasm.ExternalMemory:
		ref, ok := g.Memories.Get(int(e.Index))
		if !ok {
			return ExportLocal{}, fmt.Errorf("memory index %d out of range", e.Index)
		}
		return ExportLocal{Kind: e.Kind, Memory: ref}, nil
	default:
		return ExportLocal{}, fmt.Errorf("unknown export kind %d", e.Kind)
	}
}

// ingestExpr translates a flat instruction stream, replacing the four
// referential opcodes with handle-carrying Instructions and leaving every
// other instruction (including Block/Loop/If/Else/End and all control
// transfers) as Plain, verbatim.
func ingestExpr(code []wasm.Instr, g *Module) ([]Instruction, error) {
	out := make([]Instruction, len(code))
	for i, ins := range code {
		switch ins.Op {
		case wasm.OpCall:
			fref, ok := g.Funcs.Get(int(ins.FuncIdx))
			if !ok {
				return nil, fmt.Errorf("call target %d out of range", ins.FuncIdx)
			}
			out[i] = Instruction{Kind: KindCall, Func: fref}
		case wasm.OpCallIndirect:
			tref, ok := g.Types.Get(int(ins.TypeIdx))
			if !ok {
				return nil, fmt.Errorf("call_indirect type %d out of range", ins.TypeIdx)
			}
			out[i] = Instruction{Kind: KindCallIndirect, Type: tref, CallIndirect: ins}
		case wasm.OpGlobalGet:
			gref, ok := g.Globals.Get(int(ins.GlobalIdx))
			if !ok {
				return nil, fmt.Errorf("get_global target %d out of range", ins.GlobalIdx)
			}
			out[i] = Instruction{Kind: KindGetGlobal, Global: gref}
		case wasm.OpGlobalSet:
			gref, ok := g.Globals.Get(int(ins.GlobalIdx))
			if !ok {
				return nil, fmt.Errorf("set_global target %d out of range", ins.GlobalIdx)
			}
			out[i] = Instruction{Kind: KindSetGlobal, Global: gref}
		default:
			out[i] = Instruction{Kind: KindPlain, Plain: ins}
		}
	}
	return out, nil
}
