package gas

import (
	"fmt"

	"github.com/paritytech/wasm-utils/rules"
	"github.com/paritytech/wasm-utils/wasm"
)

// Violation names one non-deterministic instruction found by
// CheckDeterministic.
type Violation struct {
	FuncIndex  int // defined-function index (not combined)
	InstrIndex int // position within the function body
	Op         wasm.Op
	Category   rules.InstructionType
}

func (v Violation) String() string {
	return fmt.Sprintf("func %d, instruction %d: opcode 0x%x (%s)", v.FuncIndex, v.InstrIndex, byte(v.Op), categoryName(v.Category))
}

// CheckDeterministic reports every floating-point instruction in m's
// defined function bodies: constants, arithmetic, comparisons, and the
// conversions that produce a float (int-to-float, promote, demote).
// Float-to-int truncations are classified as rules.Conversion and are not
// reported. A host that must guarantee identical
// execution across independently-run validators rejects any module this
// returns violations for, since IEEE 754 float results are not guaranteed
// bit-identical across hardware/compilers the way integer arithmetic is.
func CheckDeterministic(m *wasm.Module) []Violation {
	var out []Violation
	for fi, body := range m.Code {
		for ii, ins := range body.Code {
			cat := rules.Classify(ins.Op)
			if isFloatCategory(cat) {
				out = append(out, Violation{FuncIndex: fi, InstrIndex: ii, Op: ins.Op, Category: cat})
			}
		}
	}
	return out
}

func isFloatCategory(cat rules.InstructionType) bool {
	switch cat {
	case rules.Float, rules.FloatConst, rules.FloatComparison, rules.FloatConversion:
		return true
	default:
		return false
	}
}

func categoryName(cat rules.InstructionType) string {
	switch cat {
	case rules.Float:
		return "float arithmetic"
	case rules.FloatConst:
		return "float constant"
	case rules.FloatComparison:
		return "float comparison"
	case rules.FloatConversion:
		return "float conversion"
	default:
		return "other"
	}
}
