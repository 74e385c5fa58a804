// Package x86 is the target machine representation: abstract instructions
// with virtual-register operands (the instruction emitter's output),
// physical x86-64 registers, and the NASM Intel-syntax printer that turns
// an allocated function into linkable text.
package x86

import "github.com/mstar-lang/malic/pkg/ir"

// Reg is a physical x86-64 general-purpose register.
type Reg int

const (
	RAX Reg = iota
	RBX
	RCX
	RDX
	RSI
	RDI
	RBP
	RSP
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	NoReg Reg = -1
)

var regNames = map[Reg]string{
	RAX: "rax", RBX: "rbx", RCX: "rcx", RDX: "rdx",
	RSI: "rsi", RDI: "rdi", RBP: "rbp", RSP: "rsp",
	R8: "r8", R9: "r9", R10: "r10", R11: "r11",
	R12: "r12", R13: "r13", R14: "r14", R15: "r15",
}

func (r Reg) String() string { return regNames[r] }

// ArgRegs is the System V AMD64 integer argument-passing order.
var ArgRegs = []Reg{RDI, RSI, RDX, RCX, R8, R9}

// CallerSaved are clobbered across a call and must not hold a live value
// the caller needs afterward unless reloaded.
var CallerSaved = []Reg{RAX, RCX, RDX, RSI, RDI, R8, R9, R10, R11}

// CalleeSaved must be preserved by the callee if used.
var CalleeSaved = []Reg{RBX, R12, R13, R14, R15}

// Allocatable is the full set of GPRs the register allocator may assign to
// a virtual register, excluding RSP/RBP (frame pointer and stack pointer,
// reserved for the frame layout). RAX and RDX stay allocatable; IDIV's
// pins on them reach the allocator as forbidden colors.
var Allocatable = []Reg{RAX, RBX, RCX, RDX, RSI, RDI, R8, R9, R10, R11, R12, R13, R14, R15}

// OpKind discriminates an Operand's concrete representation.
type OpKind int

const (
	OpVReg OpKind = iota // virtual register, pre-allocation
	OpPReg                // physical register, post-allocation
	OpImm                 // immediate constant
	OpMem                 // [base + index*scale + disp] or a spill slot
	OpStringSym            // address of a string-table entry
	OpGlobalSym            // address of a named global
	OpFuncSym              // a call target's symbol
)

// RegSlot is a register that may still be virtual (before allocation) or
// already physical (after allocation or when an instruction pins a fixed
// ABI register, like IDIV's operands). A zero RegSlot (None) means absent.
type RegSlot struct {
	Virtual bool
	VReg    ir.Reg
	PReg    Reg
}

// None is the absent RegSlot, used for Index when an addressing mode has
// no index register.
var None = RegSlot{PReg: NoReg}

func VR(r ir.Reg) RegSlot { return RegSlot{Virtual: true, VReg: r} }
func PR(r Reg) RegSlot    { return RegSlot{PReg: r} }

func (s RegSlot) IsNone() bool { return !s.Virtual && s.PReg == NoReg }

func (s RegSlot) String() string {
	if s.Virtual {
		return "<unallocated v" + itoa(int(s.VReg)) + ">"
	}
	return s.PReg.String()
}

func itoa(i int) string {
	neg := i < 0
	if neg {
		i = -i
	}
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	p := len(buf)
	for i > 0 {
		p--
		buf[p] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		p--
		buf[p] = '-'
	}
	return string(buf[p:])
}

// Operand is any instruction operand. Before register allocation every
// register-valued operand is OpVReg (or, for a Mem base/index, a virtual
// RegSlot); allocation rewrites each to OpPReg/physical RegSlots, or to a
// spill-slot OpMem.
type Operand struct {
	Kind OpKind

	VReg ir.Reg
	PReg Reg

	Imm int64

	// OpMem: general addressing, base+index*scale+disp; Base/Index are
	// None when absent. FrameSlot is a byte offset from RBP for a spill
	// or local-frame slot (mach's output), used when Base is None and
	// IsFrame is true.
	Base, Index RegSlot
	Scale       int
	Disp        int64
	IsFrame     bool
	FrameOffset int64

	Sym string // OpStringSym / OpGlobalSym / OpFuncSym
}

func VReg(r ir.Reg) Operand { return Operand{Kind: OpVReg, VReg: r} }
func PReg(r Reg) Operand    { return Operand{Kind: OpPReg, PReg: r} }
func Imm(v int64) Operand   { return Operand{Kind: OpImm, Imm: v} }
func FrameSlot(off int64) Operand {
	return Operand{Kind: OpMem, Base: None, Index: None, IsFrame: true, FrameOffset: off}
}

// Mem and MemIndexed build a memory operand whose base/index are already
// physical registers (used by pkg/mach's frame lowering and by fixed-ABI
// addressing such as RBP-relative frame access).
func Mem(base Reg, disp int64) Operand {
	return Operand{Kind: OpMem, Base: PR(base), Index: None, Disp: disp}
}
func MemIndexed(base, index Reg, scale int, disp int64) Operand {
	return Operand{Kind: OpMem, Base: PR(base), Index: PR(index), Scale: scale, Disp: disp}
}

// VMem and VMemIndexed build a memory operand addressed through virtual
// registers, as produced by the pre-allocation instruction emitter.
func VMem(base ir.Reg, disp int64) Operand {
	return Operand{Kind: OpMem, Base: VR(base), Index: None, Disp: disp}
}
func VMemIndexed(base, index ir.Reg, scale int, disp int64) Operand {
	return Operand{Kind: OpMem, Base: VR(base), Index: VR(index), Scale: scale, Disp: disp}
}

func StringSym(idx int) Operand     { return Operand{Kind: OpStringSym, Imm: int64(idx)} }
func GlobalSym(name string) Operand { return Operand{Kind: OpGlobalSym, Sym: name} }
func FuncSym(name string) Operand   { return Operand{Kind: OpFuncSym, Sym: name} }

// IsReg reports whether the operand currently denotes a register (virtual
// or physical), i.e. it participates in liveness/interference.
func (o Operand) IsReg() bool { return o.Kind == OpVReg || o.Kind == OpPReg }

// RegSlotOperand wraps a bare register reference (base/index of a Mem
// operand) as a standalone Operand, so liveness code can treat it the same
// way it treats a direct register operand.
func RegSlotOperand(s RegSlot) Operand {
	if s.Virtual {
		return VReg(s.VReg)
	}
	return PReg(s.PReg)
}
