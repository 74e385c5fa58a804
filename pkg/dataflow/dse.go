package dataflow

import "github.com/mstar-lang/malic/pkg/cfg"
import "github.com/mstar-lang/malic/pkg/x86"

// isPureDef reports whether ins defines exactly one register and has no
// effect beyond that definition (no call, no stack/flag side effect that
// matters beyond the define), making it safe to drop when its result is
// dead.
func isPureDef(ins x86.Instruction) (x86.Operand, bool) {
	switch i := ins.(type) {
	case x86.Mov:
		return i.Dst, i.Dst.IsReg()
	case x86.BinOp:
		// `add rsp, N` after a call pops stack arguments; rsp is never
		// live, so it must not be treated as a dead definition.
		return i.Dst, i.Dst.IsReg() && !(i.Dst.Kind == x86.OpPReg && i.Dst.PReg == x86.RSP)
	case x86.Lea:
		return i.Dst, true
	case x86.Neg:
		return i.Dst, true
	case x86.Not:
		return i.Dst, true
	case x86.SetCC:
		return i.Dst, true
	case x86.Shift:
		return i.Dst, i.Dst.IsReg()
	}
	return x86.Operand{}, false
}

// DSE drops pure definitions whose target is not live immediately after
// the instruction. live must have been computed against the
// same fn before any block was mutated by this call. onRemove, if
// non-nil, is called with each dropped instruction (--print-remove).
func DSE(fn *cfg.Func, live *Liveness, onRemove func(x86.Instruction)) bool {
	changed := false
	for _, b := range fn.Blocks {
		outSets := live.LiveOut[b.ID]
		var kept []x86.Instruction
		var keptOut []RegSet
		for i, ins := range b.Instrs {
			if dst, ok := isPureDef(ins); ok {
				if k, ok := keyOf(dst); ok && !outSets[i].Has(k) {
					changed = true
					if onRemove != nil {
						onRemove(ins)
					}
					continue
				}
			}
			kept = append(kept, ins)
			keptOut = append(keptOut, outSets[i])
		}
		b.Instrs = kept
		live.LiveOut[b.ID] = keptOut
	}
	return changed
}
