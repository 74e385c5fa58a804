package dataflow

import "github.com/mstar-lang/malic/pkg/cfg"
import "github.com/mstar-lang/malic/pkg/x86"

// CopyProp rewrites `Mov x, y` by forwarding y to x's subsequent uses
// within the same block, dropping the copy map entry the
// moment either side is redefined. Cross-block copies are left to
// ConstProp's lattice (a copy of a constant is already folded there); a
// genuine cross-block register-to-register copy is conservatively left in
// place, which keeps this pass trivially sound without a second
// interprocedural lattice.
func CopyProp(fn *cfg.Func) bool {
	changed := false
	for _, b := range fn.Blocks {
		copies := map[RegKey]x86.Operand{}
		invalidate := func(k RegKey) {
			delete(copies, k)
			for src, v := range copies {
				if sk, ok := keyOf(v); ok && sk == k {
					delete(copies, src)
				}
			}
		}
		for i, ins := range b.Instrs {
			rewritten, did := substituteCopies(ins, copies)
			if did {
				changed = true
			}
			b.Instrs[i] = rewritten

			for _, o := range rewritten.Defs() {
				if k, ok := keyOf(o); ok {
					invalidate(k)
				}
			}
			if mv, ok := rewritten.(x86.Mov); ok {
				if dk, ok := keyOf(mv.Dst); ok && mv.Src.IsReg() {
					copies[dk] = mv.Src
				}
			}
		}
	}
	return changed
}

func substituteCopies(ins x86.Instruction, copies map[RegKey]x86.Operand) (x86.Instruction, bool) {
	did := false
	sub := func(o x86.Operand) x86.Operand {
		if k, ok := keyOf(o); ok {
			if v, ok := copies[k]; ok && v != o {
				did = true
				return v
			}
		}
		return o
	}
	switch i := ins.(type) {
	case x86.BinOp:
		i.Src = sub(i.Src)
		return i, did
	case x86.Cmp:
		i.A, i.B = sub(i.A), sub(i.B)
		return i, did
	case x86.Mov:
		i.Src = sub(i.Src)
		return i, did
	case x86.Push:
		i.Src = sub(i.Src)
		return i, did
	case x86.Imul:
		i.Src = sub(i.Src)
		return i, did
	}
	return ins, false
}
