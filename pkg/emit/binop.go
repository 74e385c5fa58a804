package emit

import (
	"github.com/mstar-lang/malic/pkg/ir"
	"github.com/mstar-lang/malic/pkg/x86"
)

func (s *selector) unary(n ir.UnExpr) x86.Operand {
	x := s.toRegIfMem(s.operand(n.X))
	t := s.freshVReg()
	s.emit(x86.Mov{Dst: t, Src: x})
	switch n.Op {
	case ir.Neg:
		s.emit(x86.Neg{Dst: t})
	case ir.Not:
		// Logical not on a 0/1 boolean: xor with 1.
		s.emit(x86.BinOp{Op: x86.Xor, Dst: t, Src: x86.Imm(1)})
	case ir.BitNot:
		s.emit(x86.Not{Dst: t})
	}
	return t
}

func (s *selector) binary(n ir.BinExpr) x86.Operand {
	switch n.Op {
	case ir.Add, ir.Sub, ir.BitAnd, ir.BitOr, ir.BitXor:
		return s.arith(n)
	case ir.Mul:
		return s.mul(n)
	case ir.Div:
		return s.divmod(n, false)
	case ir.Mod:
		return s.divmod(n, true)
	case ir.Shl:
		return s.shift(n, x86.Shl)
	case ir.Shr:
		return s.shift(n, x86.Sar)
	default:
		return s.compareAsValue(n)
	}
}

var arithOp = map[ir.BinOp]x86.BinOpKind{
	ir.Add: x86.Add, ir.Sub: x86.Sub, ir.BitAnd: x86.And, ir.BitOr: x86.Or, ir.BitXor: x86.Xor,
}

func (s *selector) arith(n ir.BinExpr) x86.Operand {
	l := s.toRegIfMem(s.operand(n.Left))
	r := s.operand(n.Right)
	t := s.freshVReg()
	s.emit(x86.Mov{Dst: t, Src: l})
	s.emit(x86.BinOp{Op: arithOp[n.Op], Dst: t, Src: r})
	return t
}

// mul implements multiplication with strength reduction: a power-of-two
// right operand becomes a shift, and a small constant with at most two
// set bits becomes LEA or shift+add; anything else falls back to IMUL.
func (s *selector) mul(n ir.BinExpr) x86.Operand {
	if c, ok := n.Right.(ir.IntConst); ok {
		if t, ok := s.mulByConst(n.Left, c.Value); ok {
			return t
		}
	}
	if c, ok := n.Left.(ir.IntConst); ok {
		if t, ok := s.mulByConst(n.Right, c.Value); ok {
			return t
		}
	}
	l := s.toRegIfMem(s.operand(n.Left))
	r := s.operand(n.Right)
	t := s.freshVReg()
	s.emit(x86.Mov{Dst: t, Src: l})
	s.emit(x86.Imul{Dst: t, Src: r})
	return t
}

func (s *selector) mulByConst(x ir.Expr, c int64) (x86.Operand, bool) {
	if k, pow2 := isPowerOfTwo(c); pow2 {
		xv := s.toRegIfMem(s.operand(x))
		t := s.freshVReg()
		s.emit(x86.Mov{Dst: t, Src: xv})
		if k > 0 {
			s.emit(x86.Shift{Op: x86.Shl, Dst: t, Count: x86.Imm(int64(k))})
		}
		return t, true
	}
	if c == 3 || c == 5 || c == 9 {
		// LEA [x + x*(c-1)] computes x*c in one instruction for these
		// two-set-bit multipliers.
		xv := s.toRegIfMem(s.operand(x))
		t := s.freshVReg()
		addr := x86.VMemIndexed(regSlotVReg(xv), regSlotVReg(xv), int(c-1), 0)
		s.emit(x86.Lea{Dst: t, Src: addr})
		return t, true
	}
	if lo := c & -c; c > 0 && lo != c {
		// Two set bits: x*c = (x << hi) + (x << lo).
		if hk, ok := isPowerOfTwo(c - lo); ok {
			lk, _ := isPowerOfTwo(lo)
			xv := s.toRegIfMem(s.operand(x))
			t, u := s.freshVReg(), s.freshVReg()
			s.emit(x86.Mov{Dst: t, Src: xv})
			s.emit(x86.Shift{Op: x86.Shl, Dst: t, Count: x86.Imm(int64(hk))})
			s.emit(x86.Mov{Dst: u, Src: xv})
			if lk > 0 {
				s.emit(x86.Shift{Op: x86.Shl, Dst: u, Count: x86.Imm(int64(lk))})
			}
			s.emit(x86.BinOp{Op: x86.Add, Dst: t, Src: u})
			return t, true
		}
	}
	return x86.Operand{}, false
}

// regSlotVReg extracts a fresh-vreg operand's register id for reuse as
// both the base and index of an LEA; mulByConst only calls this on an
// operand it just materialized into a vreg.
func regSlotVReg(o x86.Operand) ir.Reg { return o.VReg }

func (s *selector) shift(n ir.BinExpr, op x86.ShiftKind) x86.Operand {
	l := s.toRegIfMem(s.operand(n.Left))
	t := s.freshVReg()
	s.emit(x86.Mov{Dst: t, Src: l})
	if c, ok := n.Right.(ir.IntConst); ok {
		s.emit(x86.Shift{Op: op, Dst: t, Count: x86.Imm(c.Value)})
		return t
	}
	r := s.toRegIfMem(s.operand(n.Right))
	s.emit(x86.Mov{Dst: x86.PReg(x86.RCX), Src: r})
	s.emit(x86.Shift{Op: op, Dst: t, ByCL: true})
	return t
}

// divmod implements / and %. A power-of-two right-hand
// constant uses the signed-correction shift sequence; otherwise the
// general case places the dividend in RAX, sign-extends with CQO, and
// divides, reading the quotient from RAX or the remainder from RDX.
func (s *selector) divmod(n ir.BinExpr, wantMod bool) x86.Operand {
	if c, ok := n.Right.(ir.IntConst); ok {
		if k, pow2 := isPowerOfTwo(c.Value); pow2 {
			return s.divModPow2(n.Left, k, wantMod)
		}
	}
	l := s.toRegIfMem(s.operand(n.Left))
	r := s.toRegIfMem(s.operand(n.Right))
	s.emit(x86.Mov{Dst: x86.PReg(x86.RAX), Src: l})
	s.emit(x86.Cqo{})
	s.emit(x86.Idiv{Src: r})
	t := s.freshVReg()
	if wantMod {
		s.emit(x86.Mov{Dst: t, Src: x86.PReg(x86.RDX)})
	} else {
		s.emit(x86.Mov{Dst: t, Src: x86.PReg(x86.RAX)})
	}
	return t
}

// divModPow2 divides by 2^k with the standard signed-correction sequence:
// add (2^k - 1) to the dividend only when it's negative, then arithmetic
// shift right by k. The remainder, if wanted, is x - (q << k).
func (s *selector) divModPow2(x ir.Expr, k int, wantMod bool) x86.Operand {
	xv := s.toRegIfMem(s.operand(x))
	q := s.freshVReg()
	s.emit(x86.Mov{Dst: q, Src: xv})
	if k > 0 {
		skip := s.freshLabel()
		s.emit(x86.Cmp{A: q, B: x86.Imm(0)})
		s.emit(x86.Jcc{Cond: x86.CondGE, Target: skip})
		s.emit(x86.BinOp{Op: x86.Add, Dst: q, Src: x86.Imm((int64(1) << uint(k)) - 1)})
		s.emit(x86.LabelDef{Name: skip})
		s.emit(x86.Shift{Op: x86.Sar, Dst: q, Count: x86.Imm(int64(k))})
	}
	if !wantMod {
		return q
	}
	rem := s.freshVReg()
	s.emit(x86.Mov{Dst: rem, Src: q})
	s.emit(x86.Shift{Op: x86.Shl, Dst: rem, Count: x86.Imm(int64(k))})
	s.emit(x86.BinOp{Op: x86.Sub, Dst: rem, Src: xv})
	s.emit(x86.Neg{Dst: rem})
	return rem
}

// compareAsValue materializes a relational operator's 0/1 result when it
// appears outside a branch condition (e.g. `bool b = x < y;`).
func (s *selector) compareAsValue(n ir.BinExpr) x86.Operand {
	cond, _ := condFor(n.Op)
	a := s.toRegIfMem(s.operand(n.Left))
	b := s.operand(n.Right)
	t := s.freshVReg()
	// SETcc writes one byte; zero the whole register first.
	s.emit(x86.Mov{Dst: t, Src: x86.Imm(0)})
	s.emit(x86.Cmp{A: a, B: b})
	s.emit(x86.SetCC{Cond: cond, Dst: t})
	return t
}
