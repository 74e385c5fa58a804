package x86

import "github.com/mstar-lang/malic/pkg/ir"

// Cond is a condition code for Jcc/SetCC, selected from an IR comparison
// operator during instruction selection.
type Cond int

const (
	CondE Cond = iota
	CondNE
	CondL
	CondLE
	CondG
	CondGE
)

var condSuffix = map[Cond]string{
	CondE: "e", CondNE: "ne", CondL: "l", CondLE: "le", CondG: "g", CondGE: "ge",
}

// Label is a jump target, unique within one function's abstract instruction
// stream (carried over unchanged from the IR builder's ir.Label numbering
// plus a function-qualifying prefix assigned by the emitter).
type Label string

// Instruction is any abstract x86-64 instruction. Before register
// allocation its register operands are OpVReg; CFG/dataflow/regalloc all
// operate on this same representation, consulting Defs/Uses for the
// registers an instruction reads and writes.
type Instruction interface {
	implInstruction()
	// Defs and Uses return the register operands this instruction writes
	// and reads, for liveness and interference construction.
	Defs() []Operand
	Uses() []Operand
}

func regsOf(ops ...Operand) []Operand {
	var out []Operand
	for _, o := range ops {
		if o.IsReg() {
			out = append(out, o)
		}
		if o.Kind == OpMem {
			if !o.Base.IsNone() {
				out = append(out, RegSlotOperand(o.Base))
			}
			if !o.Index.IsNone() {
				out = append(out, RegSlotOperand(o.Index))
			}
		}
	}
	return out
}

// defRegsOf is regsOf restricted to a destination position: a register
// destination is a def, but a memory destination's base/index registers
// are reads (address computation), never writes.
func defRegsOf(o Operand) []Operand {
	if o.IsReg() {
		return []Operand{o}
	}
	return nil
}

// memRegsOf returns the address registers of a memory operand, for the
// use set of an instruction whose destination is memory.
func memRegsOf(o Operand) []Operand {
	if o.Kind != OpMem {
		return nil
	}
	var out []Operand
	if !o.Base.IsNone() {
		out = append(out, RegSlotOperand(o.Base))
	}
	if !o.Index.IsNone() {
		out = append(out, RegSlotOperand(o.Index))
	}
	return out
}

type Mov struct{ Dst, Src Operand }

func (Mov) implInstruction()  {}
func (i Mov) Defs() []Operand { return defRegsOf(i.Dst) }
func (i Mov) Uses() []Operand { return append(regsOf(i.Src), memRegsOf(i.Dst)...) }

// Lea computes an address into Dst without dereferencing it, used for
// folded addressing expressions and small-constant multiply strength
// reduction.
type Lea struct{ Dst, Src Operand } // Src.Kind == OpMem

func (Lea) implInstruction()  {}
func (i Lea) Defs() []Operand { return regsOf(i.Dst) }
func (i Lea) Uses() []Operand { return regsOf(i.Src) }

// BinOp is the shared shape of two-operand arithmetic/logical instructions
// where Dst is both read and written (x86's destructive two-address form).
type BinOpKind int

const (
	Add BinOpKind = iota
	Sub
	And
	Or
	Xor
)

var binMnemonic = map[BinOpKind]string{Add: "add", Sub: "sub", And: "and", Or: "or", Xor: "xor"}

type BinOp struct {
	Op       BinOpKind
	Dst, Src Operand
}

func (BinOp) implInstruction()  {}
func (i BinOp) Defs() []Operand { return defRegsOf(i.Dst) }
func (i BinOp) Uses() []Operand { return append(regsOf(i.Dst), regsOf(i.Src)...) }

type ShiftKind int

const (
	Shl ShiftKind = iota
	Sar
	Shr
)

var shiftMnemonic = map[ShiftKind]string{Shl: "shl", Sar: "sar", Shr: "shr"}

// Shift shifts Dst by either an immediate or the fixed CL register (the
// only register x86 allows as a variable shift count).
type Shift struct {
	Op       ShiftKind
	Dst      Operand
	ByCL     bool
	Count    Operand // OpImm when !ByCL
}

func (Shift) implInstruction() {}
func (i Shift) Defs() []Operand { return defRegsOf(i.Dst) }
func (i Shift) Uses() []Operand {
	u := regsOf(i.Dst)
	if i.ByCL {
		u = append(u, PReg(RCX))
	}
	return u
}

type Imul struct{ Dst, Src Operand }

func (Imul) implInstruction()  {}
func (i Imul) Defs() []Operand { return regsOf(i.Dst) }
func (i Imul) Uses() []Operand { return append(regsOf(i.Dst), regsOf(i.Src)...) }

// Idiv implements signed division: RDX:RAX / Src -> quotient in RAX,
// remainder in RDX. Cqo must precede it to sign-extend RAX into RDX.
type Cqo struct{}

func (Cqo) implInstruction()  {}
func (Cqo) Defs() []Operand   { return []Operand{PReg(RDX)} }
func (Cqo) Uses() []Operand   { return []Operand{PReg(RAX)} }

type Idiv struct{ Src Operand }

func (Idiv) implInstruction() {}
func (i Idiv) Defs() []Operand { return []Operand{PReg(RAX), PReg(RDX)} }
func (i Idiv) Uses() []Operand {
	return append([]Operand{PReg(RAX), PReg(RDX)}, regsOf(i.Src)...)
}

type Neg struct{ Dst Operand }

func (Neg) implInstruction()  {}
func (i Neg) Defs() []Operand { return defRegsOf(i.Dst) }
func (i Neg) Uses() []Operand { return regsOf(i.Dst) }

type Not struct{ Dst Operand }

func (Not) implInstruction()  {}
func (i Not) Defs() []Operand { return defRegsOf(i.Dst) }
func (i Not) Uses() []Operand { return regsOf(i.Dst) }

type Cmp struct{ A, B Operand }

func (Cmp) implInstruction()  {}
func (i Cmp) Defs() []Operand { return nil }
func (i Cmp) Uses() []Operand { return append(regsOf(i.A), regsOf(i.B)...) }

type SetCC struct {
	Cond Cond
	Dst  Operand
}

// SETcc writes only the low byte, so the destination's upper bits are a
// read: the emitter zeroes the register first and that zeroing mov must
// stay live through the partial write.
func (SetCC) implInstruction()  {}
func (i SetCC) Defs() []Operand { return defRegsOf(i.Dst) }
func (i SetCC) Uses() []Operand { return regsOf(i.Dst) }

type Jmp struct{ Target Label }

func (Jmp) implInstruction()  {}
func (Jmp) Defs() []Operand   { return nil }
func (Jmp) Uses() []Operand   { return nil }

type Jcc struct {
	Cond   Cond
	Target Label
}

func (Jcc) implInstruction() {}
func (Jcc) Defs() []Operand  { return nil }
func (Jcc) Uses() []Operand  { return nil }

type LabelDef struct{ Name Label }

func (LabelDef) implInstruction() {}
func (LabelDef) Defs() []Operand  { return nil }
func (LabelDef) Uses() []Operand  { return nil }

// Call transfers to Target (OpFuncSym) after Args have been placed per the
// System V convention; ArgRegsUsed records which physical registers the
// call reads, and Defs reports every caller-saved register as written.
type Call struct {
	Target      Operand
	ArgRegsUsed []Reg
	HasResult   bool
}

func (Call) implInstruction() {}
func (c Call) Defs() []Operand {
	defs := make([]Operand, 0, len(CallerSaved)+1)
	for _, r := range CallerSaved {
		defs = append(defs, PReg(r))
	}
	return defs
}
func (c Call) Uses() []Operand {
	u := make([]Operand, 0, len(c.ArgRegsUsed))
	for _, r := range c.ArgRegsUsed {
		u = append(u, PReg(r))
	}
	return u
}

// Push places stack-passed arguments right-to-left. The callee-saved
// push/pop sequence of the prologue/epilogue is written by the printer
// from Frame, not through these instructions.
type Push struct{ Src Operand }

func (Push) implInstruction()  {}
func (i Push) Defs() []Operand { return nil }
func (i Push) Uses() []Operand { return regsOf(i.Src) }

type Pop struct{ Dst Operand }

func (Pop) implInstruction()  {}
func (i Pop) Defs() []Operand { return regsOf(i.Dst) }
func (i Pop) Uses() []Operand { return nil }

// Ret returns to the caller; the function's result (if any) is already in
// RAX by convention.
type Ret struct{ HasResult bool }

func (Ret) implInstruction() {}
func (r Ret) Defs() []Operand {
	return nil
}
func (r Ret) Uses() []Operand {
	if r.HasResult {
		return []Operand{PReg(RAX)}
	}
	return nil
}

// Func is one function's abstract instruction stream, pre-register
// allocation. NumVRegs bounds the interference graph's virtual-register
// nodes; Locals is carried through from ir.Function for the naive
// allocator's size threshold.
type Func struct {
	Name      string
	Instrs    []Instruction
	NumVRegs  int
	NumParams int
	Locals    int

	// Frame is filled in by pkg/mach after register allocation: the
	// stack-frame size, the set of callee-saved registers actually used,
	// and each spilled virtual register's slot offset.
	Frame *Frame
}

// Frame is the x86-64 ABI lowering for one function, produced
// by pkg/mach and consumed by the printer's prologue/epilogue emission.
type Frame struct {
	Size         int64 // `sub rsp` amount: spill area rounded up to 16, plus 8 when an odd number of callee-saved registers is pushed
	CalleeSaved  []Reg
	SpillOffsets map[ir.Reg]int64
}

// Global is a data-section entry: a named global variable or a string
// literal, the translator emits both from the same table. A global with a
// compile-time constant initializer lands in .data; the rest go to .bss.
type Global struct {
	Name     string
	Size     int64
	ReadOnly bool

	InitValue int64
	HasInit   bool

	// StringValue is set for string-table entries; the printer lays out
	// the [length:i64][bytes...]\0 buffer for it.
	IsString    bool
	StringValue string
}

// Program is a whole compiled unit: functions plus the data section.
type Program struct {
	Functions []*Func
	Globals   []Global
}
