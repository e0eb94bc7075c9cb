package wasm

import "fmt"

var magic = [4]byte{0x00, 0x61, 0x73, 0x6d}

const binaryVersion uint32 = 1

// Decode parses a standard wasm binary module. It supports the MVP
// instruction set plus mutable globals and bulk data/element segment
// offsets (explicit table/memory index segments), matching the feature
// ceiling this repository's passes are written against.
func Decode(b []byte) (*Module, error) {
	r := &reader{b: b}
	if r.remaining() < 8 {
		return nil, fmt.Errorf("wasm: input too short to contain a header")
	}
	hdr, _ := r.bytes(4)
	for i := range magic {
		if hdr[i] != magic[i] {
			return nil, fmt.Errorf("wasm: bad magic number")
		}
	}
	verBytes, _ := r.bytes(4)
	version := uint32(verBytes[0]) | uint32(verBytes[1])<<8 | uint32(verBytes[2])<<16 | uint32(verBytes[3])<<24
	if version != binaryVersion {
		return nil, fmt.Errorf("wasm: unsupported version %d", version)
	}

	m := &Module{}
	var lastKnown SectionID
	for r.remaining() > 0 {
		idByte, err := r.byte()
		if err != nil {
			return nil, err
		}
		id := SectionID(idByte)
		size, err := r.varuint32()
		if err != nil {
			return nil, fmt.Errorf("wasm: section %d size: %w", id, err)
		}
		payload, err := r.bytes(int(size))
		if err != nil {
			return nil, fmt.Errorf("wasm: section %d payload: %w", id, err)
		}
		sr := &reader{b: payload}

		switch id {
		case SectionCustom:
			name, err := sr.name()
			if err != nil {
				return nil, fmt.Errorf("wasm: custom section name: %w", err)
			}
			rest := payload[sr.pos:]
			m.Customs = append(m.Customs, CustomSection{Name: name, Payload: append([]byte(nil), rest...), After: lastKnown})
		case SectionType:
			if err := decodeTypeSection(sr, m); err != nil {
				return nil, err
			}
			lastKnown = id
		case SectionImport:
			if err := decodeImportSection(sr, m); err != nil {
				return nil, err
			}
			lastKnown = id
		case SectionFunction:
			if err := decodeFunctionSection(sr, m); err != nil {
				return nil, err
			}
			lastKnown = id
		case SectionTable:
			if err := decodeTableSection(sr, m); err != nil {
				return nil, err
			}
			lastKnown = id
		case SectionMemory:
			if err := decodeMemorySection(sr, m); err != nil {
				return nil, err
			}
			lastKnown = id
		case SectionGlobal:
			if err := decodeGlobalSection(sr, m); err != nil {
				return nil, err
			}
			lastKnown = id
		case SectionExport:
			if err := decodeExportSection(sr, m); err != nil {
				return nil, err
			}
			lastKnown = id
		case SectionStart:
			idx, err := sr.varuint32()
			if err != nil {
				return nil, fmt.Errorf("wasm: start section: %w", err)
			}
			m.Start = &idx
			lastKnown = id
		case SectionElement:
			if err := decodeElementSection(sr, m); err != nil {
				return nil, err
			}
			lastKnown = id
		case SectionCode:
			if err := decodeCodeSection(sr, m); err != nil {
				return nil, err
			}
			lastKnown = id
		case SectionData:
			if err := decodeDataSection(sr, m); err != nil {
				return nil, err
			}
			lastKnown = id
		default:
			return nil, fmt.Errorf("wasm: unknown section id %d", id)
		}
	}
	return m, nil
}

func decodeValueType(r *reader) (ValueType, error) {
	b, err := r.byte()
	if err != nil {
		return 0, err
	}
	switch ValueType(b) {
	case ValueTypeI32, ValueTypeI64, ValueTypeF32, ValueTypeF64:
		return ValueType(b), nil
	default:
		return 0, fmt.Errorf("wasm: invalid value type 0x%x", b)
	}
}

func decodeTypeSection(r *reader, m *Module) error {
	count, err := r.varuint32()
	if err != nil {
		return fmt.Errorf("wasm: type count: %w", err)
	}
	for i := uint32(0); i < count; i++ {
		form, err := r.byte()
		if err != nil || form != 0x60 {
			return fmt.Errorf("wasm: type %d: expected func form, got err=%v form=0x%x", i, err, form)
		}
		pc, err := r.varuint32()
		if err != nil {
			return fmt.Errorf("wasm: type %d param count: %w", i, err)
		}
		var params []ValueType
		if pc > 0 {
			params = make([]ValueType, pc)
		}
		for j := range params {
			if params[j], err = decodeValueType(r); err != nil {
				return fmt.Errorf("wasm: type %d param %d: %w", i, j, err)
			}
		}
		rc, err := r.varuint32()
		if err != nil {
			return fmt.Errorf("wasm: type %d result count: %w", i, err)
		}
		var results []ValueType
		if rc > 0 {
			results = make([]ValueType, rc)
		}
		for j := range results {
			if results[j], err = decodeValueType(r); err != nil {
				return fmt.Errorf("wasm: type %d result %d: %w", i, j, err)
			}
		}
		m.Types = append(m.Types, FunctionType{Params: params, Results: results})
	}
	return nil
}

func decodeLimits(r *reader) (Limits, error) {
	flags, err := r.byte()
	if err != nil {
		return Limits{}, err
	}
	initial, err := r.varuint32()
	if err != nil {
		return Limits{}, err
	}
	l := Limits{Initial: initial}
	if flags&0x01 != 0 {
		max, err := r.varuint32()
		if err != nil {
			return Limits{}, err
		}
		l.Maximum = &max
	}
	return l, nil
}

func decodeImportSection(r *reader, m *Module) error {
	count, err := r.varuint32()
	if err != nil {
		return fmt.Errorf("wasm: import count: %w", err)
	}
	for i := uint32(0); i < count; i++ {
		mod, err := r.name()
		if err != nil {
			return fmt.Errorf("wasm: import %d module: %w", i, err)
		}
		field, err := r.name()
		if err != nil {
			return fmt.Errorf("wasm: import %d field: %w", i, err)
		}
		kindByte, err := r.byte()
		if err != nil {
			return fmt.Errorf("wasm: import %d kind: %w", i, err)
		}
		entry := ImportEntry{Module: mod, Field: field, Kind: External(kindByte)}
		switch entry.Kind {
		case ExternalFunction:
			entry.FuncTypeIdx, err = r.varuint32()
		case ExternalTable:
			var elemType byte
			elemType, err = r.byte()
			if err == nil {
				entry.Table.ElemType = elemType
				entry.Table.Limits, err = decodeLimits(r)
			}
		case ExternalMemory:
			entry.Mem.Limits, err = decodeLimits(r)
		case ExternalGlobal:
			var vt ValueType
			vt, err = decodeValueType(r)
			if err == nil {
				entry.Global.ValType = vt
				var mutByte byte
				mutByte, err = r.byte()
				entry.Global.Mutable = mutByte != 0
			}
		default:
			err = fmt.Errorf("unknown import kind 0x%x", kindByte)
		}
		if err != nil {
			return fmt.Errorf("wasm: import %d: %w", i, err)
		}
		m.Imports = append(m.Imports, entry)
	}
	return nil
}

func decodeFunctionSection(r *reader, m *Module) error {
	count, err := r.varuint32()
	if err != nil {
		return fmt.Errorf("wasm: function count: %w", err)
	}
	for i := uint32(0); i < count; i++ {
		ti, err := r.varuint32()
		if err != nil {
			return fmt.Errorf("wasm: function %d type: %w", i, err)
		}
		m.Funcs = append(m.Funcs, ti)
	}
	return nil
}

func decodeTableSection(r *reader, m *Module) error {
	count, err := r.varuint32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		elemType, err := r.byte()
		if err != nil {
			return err
		}
		limits, err := decodeLimits(r)
		if err != nil {
			return err
		}
		m.Tables = append(m.Tables, TableType{ElemType: elemType, Limits: limits})
	}
	return nil
}

func decodeMemorySection(r *reader, m *Module) error {
	count, err := r.varuint32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		limits, err := decodeLimits(r)
		if err != nil {
			return err
		}
		m.Mems = append(m.Mems, MemoryType{Limits: limits})
	}
	return nil
}

func decodeGlobalSection(r *reader, m *Module) error {
	count, err := r.varuint32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		vt, err := decodeValueType(r)
		if err != nil {
			return fmt.Errorf("wasm: global %d type: %w", i, err)
		}
		mutByte, err := r.byte()
		if err != nil {
			return fmt.Errorf("wasm: global %d mutability: %w", i, err)
		}
		init, err := decodeExpr(r)
		if err != nil {
			return fmt.Errorf("wasm: global %d init: %w", i, err)
		}
		m.Globals = append(m.Globals, GlobalEntry{Type: Global{ValType: vt, Mutable: mutByte != 0}, Init: init})
	}
	return nil
}

func decodeExportSection(r *reader, m *Module) error {
	count, err := r.varuint32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		field, err := r.name()
		if err != nil {
			return fmt.Errorf("wasm: export %d name: %w", i, err)
		}
		kindByte, err := r.byte()
		if err != nil {
			return err
		}
		idx, err := r.varuint32()
		if err != nil {
			return err
		}
		m.Exports = append(m.Exports, ExportEntry{Field: field, Kind: External(kindByte), Index: idx})
	}
	return nil
}

func decodeElementSection(r *reader, m *Module) error {
	count, err := r.varuint32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		flags, err := r.varuint32()
		if err != nil {
			return fmt.Errorf("wasm: element %d flags: %w", i, err)
		}
		seg := ElementSegment{}
		switch flags {
		case 0:
			seg.Mode = SegmentActive
			seg.Offset, err = decodeExpr(r)
		case 1:
			seg.Mode = SegmentPassive
			_, err = r.byte() // elemkind
		case 2:
			seg.Mode = SegmentActiveX
			seg.TableIdx, err = r.varuint32()
			if err == nil {
				seg.Offset, err = decodeExpr(r)
			}
			if err == nil {
				_, err = r.byte() // elemkind
			}
		default:
			err = fmt.Errorf("unsupported element segment flags %d", flags)
		}
		if err != nil {
			return fmt.Errorf("wasm: element %d: %w", i, err)
		}
		n, err := r.varuint32()
		if err != nil {
			return err
		}
		members := make([]uint32, n)
		for j := range members {
			if members[j], err = r.varuint32(); err != nil {
				return fmt.Errorf("wasm: element %d member %d: %w", i, j, err)
			}
		}
		seg.Members = members
		m.Elements = append(m.Elements, seg)
	}
	return nil
}

func decodeCodeSection(r *reader, m *Module) error {
	count, err := r.varuint32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		size, err := r.varuint32()
		if err != nil {
			return fmt.Errorf("wasm: code %d size: %w", i, err)
		}
		body, err := r.bytes(int(size))
		if err != nil {
			return fmt.Errorf("wasm: code %d body: %w", i, err)
		}
		br := &reader{b: body}
		groupCount, err := br.varuint32()
		if err != nil {
			return fmt.Errorf("wasm: code %d local groups: %w", i, err)
		}
		var locals []LocalGroup
		for g := uint32(0); g < groupCount; g++ {
			n, err := br.varuint32()
			if err != nil {
				return err
			}
			vt, err := decodeValueType(br)
			if err != nil {
				return err
			}
			locals = append(locals, LocalGroup{Count: n, Type: vt})
		}
		code, err := decodeExpr(br)
		if err != nil {
			return fmt.Errorf("wasm: code %d instructions: %w", i, err)
		}
		m.Code = append(m.Code, FunctionBody{Locals: locals, Code: code})
	}
	return nil
}

func decodeDataSection(r *reader, m *Module) error {
	count, err := r.varuint32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		flags, err := r.varuint32()
		if err != nil {
			return fmt.Errorf("wasm: data %d flags: %w", i, err)
		}
		seg := DataSegment{}
		switch flags {
		case 0:
			seg.Mode = SegmentActive
			seg.Offset, err = decodeExpr(r)
		case 1:
			seg.Mode = SegmentPassive
		case 2:
			seg.Mode = SegmentActiveX
			seg.MemIdx, err = r.varuint32()
			if err == nil {
				seg.Offset, err = decodeExpr(r)
			}
		default:
			err = fmt.Errorf("unsupported data segment flags %d", flags)
		}
		if err != nil {
			return fmt.Errorf("wasm: data %d: %w", i, err)
		}
		n, err := r.varuint32()
		if err != nil {
			return err
		}
		val, err := r.bytes(int(n))
		if err != nil {
			return fmt.Errorf("wasm: data %d value: %w", i, err)
		}
		seg.Value = append([]byte(nil), val...)
		m.Data = append(m.Data, seg)
	}
	return nil
}

// decodeExpr decodes a single instruction sequence terminated by its
// matching End (for an initializer expression this is the only End; for a
// function body this is also the final End, since the reader consumes
// nested Block/Loop/If/Else/End pairs as plain instructions in the flat
// stream).
func decodeExpr(r *reader) ([]Instr, error) {
	var out []Instr
	depth := 0
	for {
		ins, err := decodeInstr(r)
		if err != nil {
			return nil, err
		}
		out = append(out, ins)
		switch ins.Op {
		case OpBlock, OpLoop, OpIf:
			depth++
		case OpEnd:
			if depth == 0 {
				return out, nil
			}
			depth--
		}
	}
}

func decodeInstr(r *reader) (Instr, error) {
	opByte, err := r.byte()
	if err != nil {
		return Instr{}, err
	}
	op := Op(opByte)
	ins := Instr{Op: op}
	switch op {
	case OpBlock, OpLoop, OpIf:
		b, err := r.byte()
		if err != nil {
			return Instr{}, err
		}
		ins.Block = BlockType(b)
	case OpElse, OpEnd, OpUnreachable, OpNop, OpDrop, OpSelect, OpReturn:
		// no immediates
	case OpBr, OpBrIf:
		ins.BrDepth, err = r.varuint32()
	case OpBrTable:
		n, err2 := r.varuint32()
		if err2 != nil {
			return Instr{}, err2
		}
		labels := make([]uint32, n)
		for i := range labels {
			if labels[i], err = r.varuint32(); err != nil {
				return Instr{}, err
			}
		}
		ins.BrTable = labels
		ins.BrDefault, err = r.varuint32()
	case OpCall:
		ins.FuncIdx, err = r.varuint32()
	case OpCallIndirect:
		ins.TypeIdx, err = r.varuint32()
		if err == nil {
			_, err = r.byte() // reserved
		}
	case OpLocalGet, OpLocalSet, OpLocalTee:
		ins.LocalIdx, err = r.varuint32()
	case OpGlobalGet, OpGlobalSet:
		ins.GlobalIdx, err = r.varuint32()
	case OpMemorySize, OpMemoryGrow:
		_, err = r.byte() // reserved
	case OpI32Const:
		ins.I32, err = r.varint32()
	case OpI64Const:
		ins.I64, err = r.varint64(64)
	case OpF32Const:
		ins.F32, err = r.f32bits()
	case OpF64Const:
		ins.F64, err = r.f64bits()
	default:
		if isLoadStore(op) {
			ins.Mem.Align, err = r.varuint32()
			if err == nil {
				ins.Mem.Offset, err = r.varuint32()
			}
		}
		// everything else (arithmetic/comparison/conversion) has no immediates
	}
	if err != nil {
		return Instr{}, fmt.Errorf("wasm: decoding immediates for opcode 0x%x: %w", opByte, err)
	}
	return ins, nil
}

func isLoadStore(op Op) bool {
	return op >= OpI32Load && op <= OpI64Store32
}
