package emit

import (
	"github.com/mstar-lang/malic/pkg/ir"
	"github.com/mstar-lang/malic/pkg/x86"
)

func (s *selector) stmt(st ir.Stmt) {
	switch n := st.(type) {
	case ir.Assign:
		s.assign(n.LHS, n.RHS)
	case ir.CJump:
		s.cjump(n)
	case ir.Jump:
		s.emit(x86.Jmp{Target: s.label(n.Target)})
	case ir.LabelStmt:
		s.emit(x86.LabelDef{Name: s.label(n.L)})
	case ir.Return:
		if n.Value != nil {
			v := s.operand(n.Value)
			s.movTo(x86.PReg(x86.RAX), v)
			s.emit(x86.Ret{HasResult: true})
		} else {
			s.emit(x86.Ret{})
		}
	case ir.Call:
		s.call(n)
	case ir.ExprStmt:
		s.operand(n.X)
	default:
		panic("emit: unreachable statement case")
	}
}

func (s *selector) movTo(dst, src x86.Operand) {
	if dst == src {
		return
	}
	s.emit(x86.Mov{Dst: dst, Src: src})
}

func (s *selector) assign(lhs, rhs ir.Expr) {
	v := s.operand(rhs)
	switch l := lhs.(type) {
	case ir.RegRef:
		s.movTo(x86.VReg(l.Reg), v)
	case ir.Mem:
		addr := s.addr(l.Address)
		// A store needs its source in a register (x86 forbids mem-to-mem);
		// an immediate operand is fine directly.
		if v.Kind == x86.OpMem {
			t := s.freshVReg()
			s.emit(x86.Mov{Dst: t, Src: v})
			v = t
		}
		s.emit(x86.Mov{Dst: addr, Src: v})
	default:
		panic("emit: assign to non-lvalue IR expression")
	}
}

func (s *selector) cjump(n ir.CJump) {
	thenL := s.label(n.ThenLabel)
	elseL := s.label(n.ElseLabel)
	if bin, ok := n.Cond.(ir.BinExpr); ok {
		if cond, ok := condFor(bin.Op); ok {
			a := s.operand(bin.Left)
			b := s.operand(bin.Right)
			a = s.toRegIfMem(a)
			s.emit(x86.Cmp{A: a, B: b})
			s.emit(x86.Jcc{Cond: cond, Target: thenL})
			s.emit(x86.Jmp{Target: elseL})
			return
		}
	}
	v := s.toRegIfMem(s.operand(n.Cond))
	s.emit(x86.Cmp{A: v, B: x86.Imm(0)})
	s.emit(x86.Jcc{Cond: x86.CondNE, Target: thenL})
	s.emit(x86.Jmp{Target: elseL})
}

func (s *selector) call(n ir.Call) {
	var stackArgs []ir.Expr
	var regArgs []ir.Expr
	for i, a := range n.Args {
		if i < len(x86.ArgRegs) {
			regArgs = append(regArgs, a)
		} else {
			stackArgs = append(stackArgs, a)
		}
	}
	// Evaluate every argument before placing any of them into the
	// fixed-register ABI slots, so an argument expression that itself
	// contains a call does not clobber an already-placed argument.
	regVals := make([]x86.Operand, len(regArgs))
	for i, a := range regArgs {
		regVals[i] = s.operand(a)
	}
	stackVals := make([]x86.Operand, len(stackArgs))
	for i, a := range stackArgs {
		stackVals[i] = s.operand(a)
	}
	for i := len(stackVals) - 1; i >= 0; i-- {
		s.emit(x86.Push{Src: stackVals[i]})
	}
	used := make([]x86.Reg, len(regVals))
	for i, v := range regVals {
		used[i] = x86.ArgRegs[i]
		s.emit(x86.Mov{Dst: x86.PReg(x86.ArgRegs[i]), Src: v})
	}
	s.emit(x86.Call{Target: x86.FuncSym(n.Target.Symbol), ArgRegsUsed: used, HasResult: n.Result != ir.RegNone})
	if len(stackVals) > 0 {
		s.emit(x86.BinOp{Op: x86.Add, Dst: x86.PReg(x86.RSP), Src: x86.Imm(int64(8 * len(stackVals)))})
	}
	if n.Result != ir.RegNone {
		s.emit(x86.Mov{Dst: x86.VReg(n.Result), Src: x86.PReg(x86.RAX)})
	}
}

func (s *selector) toRegIfMem(o x86.Operand) x86.Operand {
	if o.Kind != x86.OpMem {
		return o
	}
	t := s.freshVReg()
	s.emit(x86.Mov{Dst: t, Src: o})
	return t
}
