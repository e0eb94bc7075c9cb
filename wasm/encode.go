package wasm

// Encode serializes a Module back to the standard wasm binary format.
// Sections are emitted in canonical order and only when non-empty, per the
// data model's invariant that absence and emptiness are not distinguished
// downstream. Custom sections are re-interleaved immediately after the
// canonical section they originally followed.
func (m *Module) Encode() []byte {
	w := &writer{}
	w.bytes(magic[:])
	w.bytes([]byte{1, 0, 0, 0})

	emitCustoms(w, m, SectionCustom)

	if len(m.Types) > 0 {
		sw := &writer{}
		sw.varuint32(uint32(len(m.Types)))
		for _, t := range m.Types {
			sw.byte(0x60)
			sw.varuint32(uint32(len(t.Params)))
			for _, p := range t.Params {
				sw.byte(byte(p))
			}
			sw.varuint32(uint32(len(t.Results)))
			for _, rtv := range t.Results {
				sw.byte(byte(rtv))
			}
		}
		emitSection(w, SectionType, sw.b)
	}
	emitCustoms(w, m, SectionType)

	if len(m.Imports) > 0 {
		sw := &writer{}
		sw.varuint32(uint32(len(m.Imports)))
		for _, imp := range m.Imports {
			sw.name(imp.Module)
			sw.name(imp.Field)
			sw.byte(byte(imp.Kind))
			switch imp.Kind {
			case ExternalFunction:
				sw.varuint32(imp.FuncTypeIdx)
			case ExternalTable:
				sw.byte(imp.Table.ElemType)
				encodeLimits(sw, imp.Table.Limits)
			case ExternalMemory:
				encodeLimits(sw, imp.Mem.Limits)
			case ExternalGlobal:
				sw.byte(byte(imp.Global.ValType))
				sw.byte(boolByte(imp.Global.Mutable))
			}
		}
		emitSection(w, SectionImport, sw.b)
	}
	emitCustoms(w, m, SectionImport)

	if len(m.Funcs) > 0 {
		sw := &writer{}
		sw.varuint32(uint32(len(m.Funcs)))
		for _, ti := range m.Funcs {
			sw.varuint32(ti)
		}
		emitSection(w, SectionFunction, sw.b)
	}
	emitCustoms(w, m, SectionFunction)

	if len(m.Tables) > 0 {
		sw := &writer{}
		sw.varuint32(uint32(len(m.Tables)))
		for _, t := range m.Tables {
			sw.byte(t.ElemType)
			encodeLimits(sw, t.Limits)
		}
		emitSection(w, SectionTable, sw.b)
	}
	emitCustoms(w, m, SectionTable)

	if len(m.Mems) > 0 {
		sw := &writer{}
		sw.varuint32(uint32(len(m.Mems)))
		for _, mem := range m.Mems {
			encodeLimits(sw, mem.Limits)
		}
		emitSection(w, SectionMemory, sw.b)
	}
	emitCustoms(w, m, SectionMemory)

	if len(m.Globals) > 0 {
		sw := &writer{}
		sw.varuint32(uint32(len(m.Globals)))
		for _, g := range m.Globals {
			sw.byte(byte(g.Type.ValType))
			sw.byte(boolByte(g.Type.Mutable))
			encodeExpr(sw, g.Init)
		}
		emitSection(w, SectionGlobal, sw.b)
	}
	emitCustoms(w, m, SectionGlobal)

	if len(m.Exports) > 0 {
		sw := &writer{}
		sw.varuint32(uint32(len(m.Exports)))
		for _, e := range m.Exports {
			sw.name(e.Field)
			sw.byte(byte(e.Kind))
			sw.varuint32(e.Index)
		}
		emitSection(w, SectionExport, sw.b)
	}
	emitCustoms(w, m, SectionExport)

	if m.Start != nil {
		sw := &writer{}
		sw.varuint32(*m.Start)
		emitSection(w, SectionStart, sw.b)
	}
	emitCustoms(w, m, SectionStart)

	if len(m.Elements) > 0 {
		sw := &writer{}
		sw.varuint32(uint32(len(m.Elements)))
		for _, seg := range m.Elements {
			switch seg.Mode {
			case SegmentActive:
				sw.varuint32(0)
				encodeExpr(sw, seg.Offset)
			case SegmentPassive:
				sw.varuint32(1)
				sw.byte(0x00)
			case SegmentActiveX:
				sw.varuint32(2)
				sw.varuint32(seg.TableIdx)
				encodeExpr(sw, seg.Offset)
				sw.byte(0x00)
			}
			sw.varuint32(uint32(len(seg.Members)))
			for _, f := range seg.Members {
				sw.varuint32(f)
			}
		}
		emitSection(w, SectionElement, sw.b)
	}
	emitCustoms(w, m, SectionElement)

	if len(m.Code) > 0 {
		sw := &writer{}
		sw.varuint32(uint32(len(m.Code)))
		for _, body := range m.Code {
			bw := &writer{}
			bw.varuint32(uint32(len(body.Locals)))
			for _, g := range body.Locals {
				bw.varuint32(g.Count)
				bw.byte(byte(g.Type))
			}
			encodeExpr(bw, body.Code)
			sw.varuint32(uint32(len(bw.b)))
			sw.bytes(bw.b)
		}
		emitSection(w, SectionCode, sw.b)
	}
	emitCustoms(w, m, SectionCode)

	if len(m.Data) > 0 {
		sw := &writer{}
		sw.varuint32(uint32(len(m.Data)))
		for _, seg := range m.Data {
			switch seg.Mode {
			case SegmentActive:
				sw.varuint32(0)
				encodeExpr(sw, seg.Offset)
			case SegmentPassive:
				sw.varuint32(1)
			case SegmentActiveX:
				sw.varuint32(2)
				sw.varuint32(seg.MemIdx)
				encodeExpr(sw, seg.Offset)
			}
			sw.varuint32(uint32(len(seg.Value)))
			sw.bytes(seg.Value)
		}
		emitSection(w, SectionData, sw.b)
	}
	emitCustoms(w, m, SectionData)

	return w.b
}

func emitSection(w *writer, id SectionID, payload []byte) {
	w.byte(byte(id))
	w.varuint32(uint32(len(payload)))
	w.bytes(payload)
}

func emitCustoms(w *writer, m *Module, after SectionID) {
	for _, c := range m.Customs {
		if c.After != after {
			continue
		}
		sw := &writer{}
		sw.name(c.Name)
		sw.bytes(c.Payload)
		emitSection(w, SectionCustom, sw.b)
	}
}

func encodeLimits(w *writer, l Limits) {
	if l.Maximum != nil {
		w.byte(0x01)
		w.varuint32(l.Initial)
		w.varuint32(*l.Maximum)
	} else {
		w.byte(0x00)
		w.varuint32(l.Initial)
	}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func encodeExpr(w *writer, code []Instr) {
	for _, ins := range code {
		encodeInstr(w, ins)
	}
}

func encodeInstr(w *writer, ins Instr) {
	w.byte(byte(ins.Op))
	switch ins.Op {
	case OpBlock, OpLoop, OpIf:
		w.byte(byte(ins.Block))
	case OpBr, OpBrIf:
		w.varuint32(ins.BrDepth)
	case OpBrTable:
		w.varuint32(uint32(len(ins.BrTable)))
		for _, l := range ins.BrTable {
			w.varuint32(l)
		}
		w.varuint32(ins.BrDefault)
	case OpCall:
		w.varuint32(ins.FuncIdx)
	case OpCallIndirect:
		w.varuint32(ins.TypeIdx)
		w.byte(0x00)
	case OpLocalGet, OpLocalSet, OpLocalTee:
		w.varuint32(ins.LocalIdx)
	case OpGlobalGet, OpGlobalSet:
		w.varuint32(ins.GlobalIdx)
	case OpMemorySize, OpMemoryGrow:
		w.byte(0x00)
	case OpI32Const:
		w.varint32(ins.I32)
	case OpI64Const:
		w.varint64(ins.I64)
	case OpF32Const:
		w.f32bits(ins.F32)
	case OpF64Const:
		w.f64bits(ins.F64)
	default:
		if isLoadStore(ins.Op) {
			w.varuint32(ins.Mem.Align)
			w.varuint32(ins.Mem.Offset)
		}
	}
}
