package wasm

// Clone returns a deep copy of m: every section slice, and every slice or
// pointer nested inside a section entry (instruction sequences, BrTable
// labels, Limits.Maximum, custom section payloads), is copied rather than
// shared. The optimizer and packer both need to keep working on an
// already-mutated module while a pristine copy is optimized and packed
// under a different keep-list, so sharing backing arrays between the two
// would corrupt one from an append on the other.
func (m *Module) Clone() *Module {
	if m == nil {
		return nil
	}
	out := &Module{
		Types:   cloneFuncTypes(m.Types),
		Imports: cloneImports(m.Imports),
		Funcs:   append([]uint32(nil), m.Funcs...),
		Tables:  cloneTables(m.Tables),
		Mems:    cloneMems(m.Mems),
		Globals: cloneGlobals(m.Globals),
		Exports: append([]ExportEntry(nil), m.Exports...),
		Elements: cloneElements(m.Elements),
		Code:     cloneCode(m.Code),
		Data:     cloneData(m.Data),
		Customs:  cloneCustoms(m.Customs),
	}
	if m.Start != nil {
		start := *m.Start
		out.Start = &start
	}
	return out
}

func cloneFuncTypes(ts []FunctionType) []FunctionType {
	if ts == nil {
		return nil
	}
	out := make([]FunctionType, len(ts))
	for i, t := range ts {
		out[i] = FunctionType{
			Params:  append([]ValueType(nil), t.Params...),
			Results: append([]ValueType(nil), t.Results...),
		}
	}
	return out
}

func cloneImports(is []ImportEntry) []ImportEntry {
	if is == nil {
		return nil
	}
	out := make([]ImportEntry, len(is))
	for i, imp := range is {
		out[i] = imp
		out[i].Table.Limits.Maximum = cloneMaxPtr(imp.Table.Limits.Maximum)
		out[i].Mem.Limits.Maximum = cloneMaxPtr(imp.Mem.Limits.Maximum)
	}
	return out
}

func cloneTables(ts []TableType) []TableType {
	if ts == nil {
		return nil
	}
	out := make([]TableType, len(ts))
	for i, t := range ts {
		out[i] = t
		out[i].Limits.Maximum = cloneMaxPtr(t.Limits.Maximum)
	}
	return out
}

func cloneMems(ms []MemoryType) []MemoryType {
	if ms == nil {
		return nil
	}
	out := make([]MemoryType, len(ms))
	for i, mem := range ms {
		out[i] = mem
		out[i].Limits.Maximum = cloneMaxPtr(mem.Limits.Maximum)
	}
	return out
}

func cloneMaxPtr(p *uint32) *uint32 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneGlobals(gs []GlobalEntry) []GlobalEntry {
	if gs == nil {
		return nil
	}
	out := make([]GlobalEntry, len(gs))
	for i, g := range gs {
		out[i] = GlobalEntry{Type: g.Type, Init: cloneInstrs(g.Init)}
	}
	return out
}

func cloneElements(es []ElementSegment) []ElementSegment {
	if es == nil {
		return nil
	}
	out := make([]ElementSegment, len(es))
	for i, e := range es {
		out[i] = ElementSegment{
			Mode:     e.Mode,
			TableIdx: e.TableIdx,
			Offset:   cloneInstrs(e.Offset),
			Members:  append([]uint32(nil), e.Members...),
		}
	}
	return out
}

func cloneData(ds []DataSegment) []DataSegment {
	if ds == nil {
		return nil
	}
	out := make([]DataSegment, len(ds))
	for i, d := range ds {
		out[i] = DataSegment{
			Mode:   d.Mode,
			MemIdx: d.MemIdx,
			Offset: cloneInstrs(d.Offset),
			Value:  append([]byte(nil), d.Value...),
		}
	}
	return out
}

func cloneCode(bs []FunctionBody) []FunctionBody {
	if bs == nil {
		return nil
	}
	out := make([]FunctionBody, len(bs))
	for i, b := range bs {
		out[i] = FunctionBody{
			Locals: append([]LocalGroup(nil), b.Locals...),
			Code:   cloneInstrs(b.Code),
		}
	}
	return out
}

func cloneInstrs(code []Instr) []Instr {
	if code == nil {
		return nil
	}
	out := make([]Instr, len(code))
	for i, ins := range code {
		out[i] = ins
		out[i].BrTable = append([]uint32(nil), ins.BrTable...)
	}
	return out
}

func cloneCustoms(cs []CustomSection) []CustomSection {
	if cs == nil {
		return nil
	}
	out := make([]CustomSection, len(cs))
	for i, c := range cs {
		out[i] = CustomSection{Name: c.Name, After: c.After, Payload: append([]byte(nil), c.Payload...)}
	}
	return out
}
