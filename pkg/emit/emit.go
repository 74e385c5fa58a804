// Package emit selects abstract x86-64 instructions from the three-address
// IR. One function walks the IR statement list in order, pattern-matching
// each expression shape into the smallest abstract instruction sequence
// that computes it, leaving register allocation for a later pass
// (virtual-register operands are untouched here).
package emit

import (
	"github.com/mstar-lang/malic/pkg/ir"
	"github.com/mstar-lang/malic/pkg/x86"
)

// Select lowers a whole IR program into abstract x86-64 instructions, one
// x86.Func per ir.Function, plus the data section for globals and string
// literals.
func Select(prog *ir.Program) *x86.Program {
	out := &x86.Program{}
	for _, g := range prog.Globals {
		out.Globals = append(out.Globals, x86.Global{
			Name: g.Name, Size: int64(g.Size),
			InitValue: g.Init, HasInit: g.HasInit,
		})
	}
	for i, s := range prog.Strings {
		out.Globals = append(out.Globals, x86.Global{
			Name: stringSymbol(i), Size: int64(len(s) + 9), ReadOnly: true,
			IsString: true, StringValue: s,
		})
	}
	for _, fn := range prog.Functions {
		out.Functions = append(out.Functions, selectFunction(fn))
	}
	return out
}

func stringSymbol(i int) string {
	return "str_" + itoa(i)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
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

// selector carries the per-function state used while walking one
// ir.Function's statement list.
type selector struct {
	fn       *ir.Function
	out      *x86.Func
	nextVReg ir.Reg
	nextLbl  int
}

func selectFunction(fn *ir.Function) *x86.Func {
	s := &selector{
		fn:       fn,
		out:      &x86.Func{Name: fn.Name, NumParams: len(fn.Params), Locals: fn.Locals},
		nextVReg: ir.Reg(fn.NumRegs()),
		nextLbl:  fn.NumLabels,
	}
	s.emitParamReceives(fn.Params)
	for _, st := range fn.Body {
		s.stmt(st)
	}
	s.out.Instrs = elideFallthroughJumps(s.out.Instrs)
	s.out.NumVRegs = int(s.nextVReg)
	return s.out
}

// elideFallthroughJumps drops a jump whose target is the immediately
// following label; the CFG builder records the same edge as fallthrough.
func elideFallthroughJumps(instrs []x86.Instruction) []x86.Instruction {
	out := instrs[:0]
	for i, ins := range instrs {
		if j, ok := ins.(x86.Jmp); ok && i+1 < len(instrs) {
			if l, ok := instrs[i+1].(x86.LabelDef); ok && l.Name == j.Target {
				continue
			}
		}
		out = append(out, ins)
	}
	return out
}

// emitParamReceives copies each parameter out of the System V AMD64
// arrival location into the
// virtual register the IR builder allocated for it. Without this the
// allocator would see an unconstrained use of a never-defined register.
func (s *selector) emitParamReceives(params []ir.Reg) {
	for i, p := range params {
		if i < len(x86.ArgRegs) {
			s.emit(x86.Mov{Dst: x86.VReg(p), Src: x86.PReg(x86.ArgRegs[i])})
		} else {
			// Stack arguments sit above the saved return address and
			// saved rbp: the 7th integer argument (index 6) lands at
			// [rbp+16], the 8th at [rbp+24], and so on.
			off := int64(16 + 8*(i-len(x86.ArgRegs)))
			s.emit(x86.Mov{Dst: x86.VReg(p), Src: x86.Mem(x86.RBP, off)})
		}
	}
}

func (s *selector) emit(ins x86.Instruction) { s.out.Instrs = append(s.out.Instrs, ins) }

func (s *selector) freshVReg() x86.Operand {
	r := s.nextVReg
	s.nextVReg++
	return x86.VReg(r)
}

func (s *selector) freshLabel() x86.Label {
	l := s.nextLbl
	s.nextLbl++
	return x86.Label(s.fn.Name + "_L" + itoa(l))
}

func (s *selector) label(l ir.Label) x86.Label {
	return x86.Label(s.fn.Name + "_L" + itoa(int(l)))
}

func condFor(op ir.BinOp) (x86.Cond, bool) {
	switch op {
	case ir.Lt:
		return x86.CondL, true
	case ir.Le:
		return x86.CondLE, true
	case ir.Gt:
		return x86.CondG, true
	case ir.Ge:
		return x86.CondGE, true
	case ir.Eq:
		return x86.CondE, true
	case ir.Ne:
		return x86.CondNE, true
	}
	return 0, false
}

func isPowerOfTwo(n int64) (int, bool) {
	if n <= 0 {
		return 0, false
	}
	k := 0
	for v := n; v > 1; v >>= 1 {
		if v&1 != 0 {
			return 0, false
		}
		k++
	}
	return k, true
}
