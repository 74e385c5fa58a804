package regalloc

import "github.com/mstar-lang/malic/pkg/x86"

// mapRegs rewrites every register-valued operand of ins (a direct
// register operand, or a Mem operand's base/index) by passing its current
// RegSlot through f and substituting the result. Used both to assign
// physical registers after coloring and to retarget spilled virtual
// registers onto fresh ones during spill rewriting, so the per-
// instruction-shape switch is written only once.
func mapRegs(ins x86.Instruction, f func(x86.RegSlot) x86.RegSlot) x86.Instruction {
	mapOp := func(o x86.Operand) x86.Operand {
		switch o.Kind {
		case x86.OpVReg:
			return x86.RegSlotOperand(f(x86.VR(o.VReg)))
		case x86.OpPReg:
			return x86.RegSlotOperand(f(x86.PR(o.PReg)))
		case x86.OpMem:
			o.Base = f(o.Base)
			o.Index = f(o.Index)
			return o
		}
		return o
	}
	switch i := ins.(type) {
	case x86.Mov:
		i.Dst, i.Src = mapOp(i.Dst), mapOp(i.Src)
		return i
	case x86.Lea:
		i.Dst, i.Src = mapOp(i.Dst), mapOp(i.Src)
		return i
	case x86.BinOp:
		i.Dst, i.Src = mapOp(i.Dst), mapOp(i.Src)
		return i
	case x86.Shift:
		i.Dst = mapOp(i.Dst)
		if !i.ByCL {
			i.Count = mapOp(i.Count)
		}
		return i
	case x86.Imul:
		i.Dst, i.Src = mapOp(i.Dst), mapOp(i.Src)
		return i
	case x86.Idiv:
		i.Src = mapOp(i.Src)
		return i
	case x86.Neg:
		i.Dst = mapOp(i.Dst)
		return i
	case x86.Not:
		i.Dst = mapOp(i.Dst)
		return i
	case x86.Cmp:
		i.A, i.B = mapOp(i.A), mapOp(i.B)
		return i
	case x86.SetCC:
		i.Dst = mapOp(i.Dst)
		return i
	case x86.Push:
		i.Src = mapOp(i.Src)
		return i
	case x86.Pop:
		i.Dst = mapOp(i.Dst)
		return i
	}
	return ins
}
