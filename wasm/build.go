package wasm

// The functions below construct single instructions. Every pass that
// synthesizes code (gas, stackheight, pack, ext) builds its instrumented
// sequences out of these rather than populating Instr literals inline,
// mirroring the typed-constructor style used for opcode constant tables
// across the wider wasm tooling ecosystem.

func End() Instr                        { return Instr{Op: OpEnd} }
func Unreachable() Instr                { return Instr{Op: OpUnreachable} }
func Nop() Instr                        { return Instr{Op: OpNop} }
func BlockInstr(bt BlockType) Instr     { return Instr{Op: OpBlock, Block: bt} }
func LoopInstr(bt BlockType) Instr      { return Instr{Op: OpLoop, Block: bt} }
func IfInstr(bt BlockType) Instr        { return Instr{Op: OpIf, Block: bt} }
func Else() Instr                       { return Instr{Op: OpElse} }
func Call(idx uint32) Instr             { return Instr{Op: OpCall, FuncIdx: idx} }
func CallIndirect(typeIdx uint32) Instr { return Instr{Op: OpCallIndirect, TypeIdx: typeIdx} }
func LocalGet(idx uint32) Instr         { return Instr{Op: OpLocalGet, LocalIdx: idx} }
func LocalSet(idx uint32) Instr         { return Instr{Op: OpLocalSet, LocalIdx: idx} }
func LocalTee(idx uint32) Instr         { return Instr{Op: OpLocalTee, LocalIdx: idx} }
func GlobalGet(idx uint32) Instr        { return Instr{Op: OpGlobalGet, GlobalIdx: idx} }
func GlobalSet(idx uint32) Instr        { return Instr{Op: OpGlobalSet, GlobalIdx: idx} }
func I32Const(v int32) Instr            { return Instr{Op: OpI32Const, I32: v} }
func I32Add() Instr                     { return Instr{Op: OpI32Add} }
func I32Sub() Instr                     { return Instr{Op: OpI32Sub} }
func I32Mul() Instr                     { return Instr{Op: OpI32Mul} }
func I32GtU() Instr                     { return Instr{Op: OpI32GtU} }
func MemoryGrow() Instr                 { return Instr{Op: OpMemoryGrow} }
func MemorySize() Instr                 { return Instr{Op: OpMemorySize} }

// FuncType is a convenience constructor for an MVP function signature.
func FuncType(params, results []ValueType) FunctionType {
	return FunctionType{Params: params, Results: results}
}
