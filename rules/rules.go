// Package rules classifies wasm instructions into cost categories and
// expresses a configurable per-category metering policy, the rule set the
// gas injector (package gas) charges against.
package rules

import "github.com/paritytech/wasm-utils/wasm"

// InstructionType is a cost category an opcode is classified into. The
// category-from-opcode mapping (Classify) is a pure function; callers
// configure per-category costs, not per-opcode ones.
type InstructionType int

const (
	Bit InstructionType = iota
	Add
	Mul
	Div
	Load
	Store
	Const
	FloatConst
	Local
	Global
	ControlFlow
	IntegerComparison
	FloatComparison
	Float
	Conversion
	FloatConversion
	Reinterpret
	Unreachable
	Nop
	CurrentMemory
	GrowMemory
)

// Classify maps a single opcode to its metering category.
func Classify(op wasm.Op) InstructionType {
	switch op {
	case wasm.OpUnreachable:
		return Unreachable
	case wasm.OpNop:
		return Nop
	case wasm.OpBlock, wasm.OpLoop, wasm.OpIf, wasm.OpElse, wasm.OpEnd,
		wasm.OpBr, wasm.OpBrIf, wasm.OpBrTable, wasm.OpReturn,
		wasm.OpCall, wasm.OpCallIndirect, wasm.OpDrop, wasm.OpSelect:
		return ControlFlow
	case wasm.OpLocalGet, wasm.OpLocalSet, wasm.OpLocalTee:
		return Local
	case wasm.OpGlobalGet, wasm.OpGlobalSet:
		return Global
	case wasm.OpMemorySize:
		return CurrentMemory
	case wasm.OpMemoryGrow:
		return GrowMemory
	case wasm.OpI32Const, wasm.OpI64Const:
		return Const
	case wasm.OpF32Const, wasm.OpF64Const:
		return FloatConst
	case wasm.OpI32Eqz, wasm.OpI32Eq, wasm.OpI32Ne, wasm.OpI32LtS, wasm.OpI32LtU,
		wasm.OpI32GtS, wasm.OpI32GtU, wasm.OpI32LeS, wasm.OpI32LeU, wasm.OpI32GeS, wasm.OpI32GeU,
		wasm.OpI64Eqz, wasm.OpI64Eq, wasm.OpI64Ne, wasm.OpI64LtS, wasm.OpI64LtU,
		wasm.OpI64GtS, wasm.OpI64GtU, wasm.OpI64LeS, wasm.OpI64LeU, wasm.OpI64GeS, wasm.OpI64GeU:
		return IntegerComparison
	case wasm.OpF32Eq, wasm.OpF32Ne, wasm.OpF32Lt, wasm.OpF32Gt, wasm.OpF32Le, wasm.OpF32Ge,
		wasm.OpF64Eq, wasm.OpF64Ne, wasm.OpF64Lt, wasm.OpF64Gt, wasm.OpF64Le, wasm.OpF64Ge:
		return FloatComparison
	case wasm.OpI32Clz, wasm.OpI32Ctz, wasm.OpI32Popcnt,
		wasm.OpI32And, wasm.OpI32Or, wasm.OpI32Xor, wasm.OpI32Shl, wasm.OpI32ShrS, wasm.OpI32ShrU, wasm.OpI32Rotl, wasm.OpI32Rotr,
		wasm.OpI64Clz, wasm.OpI64Ctz, wasm.OpI64Popcnt,
		wasm.OpI64And, wasm.OpI64Or, wasm.OpI64Xor, wasm.OpI64Shl, wasm.OpI64ShrS, wasm.OpI64ShrU, wasm.OpI64Rotl, wasm.OpI64Rotr:
		return Bit
	case wasm.OpI32Add, wasm.OpI32Sub, wasm.OpI64Add, wasm.OpI64Sub:
		return Add
	case wasm.OpI32Mul, wasm.OpI64Mul:
		return Mul
	case wasm.OpI32DivS, wasm.OpI32DivU, wasm.OpI32RemS, wasm.OpI32RemU,
		wasm.OpI64DivS, wasm.OpI64DivU, wasm.OpI64RemS, wasm.OpI64RemU:
		return Div
	case wasm.OpF32Abs, wasm.OpF32Neg, wasm.OpF32Ceil, wasm.OpF32Floor, wasm.OpF32Trunc, wasm.OpF32Nearest, wasm.OpF32Sqrt,
		wasm.OpF32Add, wasm.OpF32Sub, wasm.OpF32Mul, wasm.OpF32Div, wasm.OpF32Min, wasm.OpF32Max, wasm.OpF32Copysign,
		wasm.OpF64Abs, wasm.OpF64Neg, wasm.OpF64Ceil, wasm.OpF64Floor, wasm.OpF64Trunc, wasm.OpF64Nearest, wasm.OpF64Sqrt,
		wasm.OpF64Add, wasm.OpF64Sub, wasm.OpF64Mul, wasm.OpF64Div, wasm.OpF64Min, wasm.OpF64Max, wasm.OpF64Copysign:
		return Float
	case wasm.OpI32WrapI64, wasm.OpI32TruncF32S, wasm.OpI32TruncF32U, wasm.OpI32TruncF64S, wasm.OpI32TruncF64U,
		wasm.OpI64ExtendI32S, wasm.OpI64ExtendI32U, wasm.OpI64TruncF32S, wasm.OpI64TruncF32U, wasm.OpI64TruncF64S, wasm.OpI64TruncF64U:
		return Conversion
	case wasm.OpF32ConvertI32S, wasm.OpF32ConvertI32U, wasm.OpF32ConvertI64S, wasm.OpF32ConvertI64U, wasm.OpF32DemoteF64,
		wasm.OpF64ConvertI32S, wasm.OpF64ConvertI32U, wasm.OpF64ConvertI64S, wasm.OpF64ConvertI64U, wasm.OpF64PromoteF32:
		return FloatConversion
	case wasm.OpI32ReinterpretF32, wasm.OpI64ReinterpretF64, wasm.OpF32ReinterpretI32, wasm.OpF64ReinterpretI64:
		return Reinterpret
	default:
		if op >= wasm.OpI32Load && op <= wasm.OpI64Load32U {
			return Load
		}
		if op >= wasm.OpI32Store && op <= wasm.OpI64Store32 {
			return Store
		}
		return ControlFlow
	}
}

// MeteringKind is the policy attached to a category.
type MeteringKind int

const (
	// Regular charges the Set's default per-instruction cost.
	Regular MeteringKind = iota
	// Fixed charges an explicit, category-specific cost.
	Fixed
	// Forbidden instructions abort injection entirely (§4.4 step 3,
	// §7 "semantic rule violation").
	Forbidden
)

// Metering is one category's policy.
type Metering struct {
	Kind  MeteringKind
	Fixed uint32
}

func RegularMetering() Metering       { return Metering{Kind: Regular} }
func FixedMetering(n uint32) Metering { return Metering{Kind: Fixed, Fixed: n} }
func ForbiddenMetering() Metering     { return Metering{Kind: Forbidden} }

// Set is the gas injector's full configuration: a default per-instruction
// cost plus overrides per category, and an optional memory.grow multiplier.
type Set struct {
	regularCost uint32
	entries     map[InstructionType]Metering
	growCost    uint32
}

// NewSet returns a rule set charging regularCost for every category absent
// from entries (entries may be nil). A regularCost of 0 with no entries
// makes every instruction free; a regularCost of 1 with no entries
// (DefaultSet) charges one unit per instruction, the instruction-counting
// form this rule-summing generalizes (see the design notes on rule-summing
// vs. instruction-counting).
func NewSet(regularCost uint32, entries map[InstructionType]Metering) *Set {
	cp := make(map[InstructionType]Metering, len(entries))
	for k, v := range entries {
		cp[k] = v
	}
	return &Set{regularCost: regularCost, entries: cp}
}

// DefaultSet is the set used when the caller has no opinion: cost 1 per
// instruction, no forbidden categories, no grow charge.
func DefaultSet() *Set { return NewSet(1, nil) }

// WithGrowCost returns a copy of s with the memory.grow multiplier set.
func (s *Set) WithGrowCost(cost uint32) *Set {
	n := *s
	n.growCost = cost
	n.entries = cloneEntries(s.entries)
	return &n
}

// WithForbiddenFloats returns a copy of s with every floating-point
// category marked Forbidden, the configuration a deterministic-execution
// host uses to reject non-deterministic contracts outright.
func (s *Set) WithForbiddenFloats() *Set {
	n := *s
	n.entries = cloneEntries(s.entries)
	for _, cat := range []InstructionType{Float, FloatConst, FloatComparison, FloatConversion} {
		n.entries[cat] = ForbiddenMetering()
	}
	return &n
}

func cloneEntries(m map[InstructionType]Metering) map[InstructionType]Metering {
	cp := make(map[InstructionType]Metering, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// GrowCost returns the configured memory.grow multiplier.
func (s *Set) GrowCost() uint32 { return s.growCost }

// Process returns the instruction's charge and whether its category is
// Forbidden (cost is meaningless when forbidden is true).
func (s *Set) Process(op wasm.Op) (cost uint32, forbidden bool) {
	cat := Classify(op)
	m, ok := s.entries[cat]
	if !ok {
		return s.regularCost, false
	}
	switch m.Kind {
	case Forbidden:
		return 0, true
	case Fixed:
		return m.Fixed, false
	default:
		return s.regularCost, false
	}
}
