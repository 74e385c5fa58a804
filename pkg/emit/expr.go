package emit

import (
	"github.com/mstar-lang/malic/pkg/ir"
	"github.com/mstar-lang/malic/pkg/x86"
)

// operand computes e's value, emitting whatever instructions are needed,
// and returns the operand (a register or an immediate) that now holds it.
func (s *selector) operand(e ir.Expr) x86.Operand {
	switch n := e.(type) {
	case ir.IntConst:
		return x86.Imm(n.Value)
	case ir.BoolConst:
		if n.Value {
			return x86.Imm(1)
		}
		return x86.Imm(0)
	case ir.StringConst:
		return x86.StringSym(n.Index)
	case ir.RegRef:
		return x86.VReg(n.Reg)
	case ir.CallValue:
		return x86.VReg(n.Result)
	case ir.GlobalAddr:
		t := s.freshVReg()
		s.emit(x86.Lea{Dst: t, Src: x86.Operand{Kind: x86.OpMem, Base: x86.None, Index: x86.None, Sym: n.Name}})
		return t
	case ir.AddrOf:
		mem, ok := n.X.(ir.Mem)
		if !ok {
			panic("emit: AddrOf of non-memory IR expression")
		}
		addr := s.addr(mem.Address)
		t := s.freshVReg()
		s.emit(x86.Lea{Dst: t, Src: addr})
		return t
	case ir.Mem:
		addr := s.addr(n.Address)
		t := s.freshVReg()
		s.emit(x86.Mov{Dst: t, Src: addr})
		return t
	case ir.UnExpr:
		return s.unary(n)
	case ir.BinExpr:
		return s.binary(n)
	default:
		panic("emit: unreachable IR expression case")
	}
}

// addr folds e into a single x86 memory operand. It recognizes the two
// address shapes the IR builder emits (a small-constant offset for member
// access, and base+8+index*8 for array indexing) plus bare globals and
// registers, falling back to full evaluation for anything else.
func (s *selector) addr(e ir.Expr) x86.Operand {
	switch n := e.(type) {
	case ir.GlobalAddr:
		return x86.Operand{Kind: x86.OpMem, Base: x86.None, Index: x86.None, Sym: n.Name}
	case ir.RegRef:
		return x86.Operand{Kind: x86.OpMem, Base: x86.VR(n.Reg), Index: x86.None}
	case ir.BinExpr:
		if n.Op == ir.Add {
			if base, disp, ok := s.foldDispAddr(n); ok {
				return x86.Operand{Kind: x86.OpMem, Base: base, Index: x86.None, Disp: disp}
			}
			if base, idx, scale, disp, ok := s.foldIndexedAddr(n); ok {
				return x86.Operand{Kind: x86.OpMem, Base: base, Index: idx, Scale: scale, Disp: disp}
			}
		}
	}
	v := s.toRegIfMem(s.operand(e))
	return x86.Operand{Kind: x86.OpMem, Base: slotOf(v), Index: x86.None}
}

// slotOf wraps a register-valued Operand as a RegSlot for use as a Mem
// operand's Base/Index.
func slotOf(o x86.Operand) x86.RegSlot {
	if o.Kind == x86.OpPReg {
		return x86.PR(o.PReg)
	}
	return x86.VR(o.VReg)
}

// foldDispAddr matches base + constant (member-offset addressing).
func (s *selector) foldDispAddr(n ir.BinExpr) (base x86.RegSlot, disp int64, ok bool) {
	c, isConst := n.Right.(ir.IntConst)
	if !isConst {
		return x86.None, 0, false
	}
	baseOp := s.toRegIfMem(s.operand(n.Left))
	if baseOp.Kind != x86.OpVReg && baseOp.Kind != x86.OpPReg {
		return x86.None, 0, false
	}
	return slotOf(baseOp), c.Value, true
}

// foldIndexedAddr matches base + (disp + (index * scale)) (array-element
// addressing, as produced by the IR builder's array-new/index lowering).
func (s *selector) foldIndexedAddr(n ir.BinExpr) (base, idx x86.RegSlot, scale int, disp int64, ok bool) {
	inner, isBin := n.Right.(ir.BinExpr)
	if !isBin || inner.Op != ir.Add {
		return x86.None, x86.None, 0, 0, false
	}
	dispConst, isConst := inner.Left.(ir.IntConst)
	mul, isMul := inner.Right.(ir.BinExpr)
	if !isConst || !isMul || mul.Op != ir.Mul {
		return x86.None, x86.None, 0, 0, false
	}
	scaleConst, isConst2 := mul.Right.(ir.IntConst)
	if !isConst2 {
		return x86.None, x86.None, 0, 0, false
	}
	baseOp := s.toRegIfMem(s.operand(n.Left))
	if baseOp.Kind != x86.OpVReg && baseOp.Kind != x86.OpPReg {
		return x86.None, x86.None, 0, 0, false
	}
	// A constant index folds entirely into the displacement.
	if c, isImm := mul.Left.(ir.IntConst); isImm {
		return slotOf(baseOp), x86.None, 0, dispConst.Value + c.Value*scaleConst.Value, true
	}
	idxOp := s.toRegIfMem(s.operand(mul.Left))
	if idxOp.Kind != x86.OpVReg && idxOp.Kind != x86.OpPReg {
		return x86.None, x86.None, 0, 0, false
	}
	return slotOf(baseOp), slotOf(idxOp), int(scaleConst.Value), dispConst.Value, true
}
