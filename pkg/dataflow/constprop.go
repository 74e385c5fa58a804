package dataflow

import "github.com/mstar-lang/malic/pkg/cfg"
import "github.com/mstar-lang/malic/pkg/x86"

// latKind is a constant-propagation lattice value: top (not
// yet seen), a known constant, or bottom (multiple incompatible values
// reach this point).
type latKind int

const (
	latTop latKind = iota
	latConst
	latBottom
)

type lattice struct {
	kind latKind
	val  int64
}

func meet(a, b lattice) lattice {
	if a.kind == latTop {
		return b
	}
	if b.kind == latTop {
		return a
	}
	if a.kind == latBottom || b.kind == latBottom {
		return lattice{kind: latBottom}
	}
	if a.val == b.val {
		return a
	}
	return lattice{kind: latBottom}
}

type latMap map[RegKey]lattice

func (m latMap) get(k RegKey) lattice {
	if v, ok := m[k]; ok {
		return v
	}
	return lattice{kind: latTop}
}

func (m latMap) clone() latMap {
	out := make(latMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (m latMap) equal(o latMap) bool {
	if len(m) != len(o) {
		return false
	}
	for k, v := range m {
		if ov, ok := o[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// ConstProp runs constant propagation to fixpoint over fn's CFG,
// replacing register operands whose reaching value is a known
// constant with an immediate, and folding binary ops whose operands are
// both constant into the lattice, so their results reach later uses as
// immediates. It rewrites fn's blocks in place and reports whether
// anything changed, so the driver can decide whether to re-run the
// pipeline.
func ConstProp(fn *cfg.Func) bool {
	in := make(map[cfg.BlockID]latMap, len(fn.Blocks))
	out := make(map[cfg.BlockID]latMap, len(fn.Blocks))
	for _, b := range fn.Blocks {
		in[b.ID], out[b.ID] = latMap{}, latMap{}
	}

	changed := true
	for changed {
		changed = false
		for _, b := range fn.Blocks {
			newIn := latMap{}
			for _, p := range b.Pred {
				for k, v := range out[p] {
					newIn[k] = meet(newIn.get(k), v)
				}
			}
			if b.ID == fn.Entry {
				// entry has no predecessors; its in-set is empty (top
				// everywhere), already the zero value.
			}
			if !newIn.equal(in[b.ID]) {
				in[b.ID] = newIn
				changed = true
			}
			cur := in[b.ID].clone()
			for _, ins := range b.Instrs {
				cur = transferConst(ins, cur)
			}
			if !cur.equal(out[b.ID]) {
				out[b.ID] = cur
				changed = true
			}
		}
	}

	anyRewrite := false
	for _, b := range fn.Blocks {
		cur := in[b.ID].clone()
		for i, ins := range b.Instrs {
			rewritten, folded := rewriteConst(ins, cur)
			if folded {
				anyRewrite = true
			}
			b.Instrs[i] = rewritten
			cur = transferConst(rewritten, cur)
		}
	}
	return anyRewrite
}

// constOperand reports the constant value of o under the current lattice,
// if any: an immediate is trivially constant, a register is constant when
// its reaching lattice value says so.
func constOperand(o x86.Operand, cur latMap) (int64, bool) {
	if o.Kind == x86.OpImm {
		return o.Imm, true
	}
	if k, ok := keyOf(o); ok {
		if v := cur.get(k); v.kind == latConst {
			return v.val, true
		}
	}
	return 0, false
}

// rewriteConst replaces a Mov or BinOp source operand, or Cmp's second
// operand, whose value is known constant with an immediate. The
// instruction itself is kept: a BinOp whose operands are both constant
// stays in place, and its folded result reaches later uses through
// transferConst's lattice value.
func rewriteConst(ins x86.Instruction, cur latMap) (x86.Instruction, bool) {
	changed := false
	imm := func(o x86.Operand) x86.Operand {
		if c, ok := constOperand(o, cur); ok && o.Kind != x86.OpImm {
			changed = true
			return x86.Imm(c)
		}
		return o
	}
	switch i := ins.(type) {
	case x86.Mov:
		i.Src = imm(i.Src)
		return i, changed
	case x86.BinOp:
		i.Src = imm(i.Src)
		return i, changed
	case x86.Cmp:
		// Only the second operand may be an immediate in x86's cmp.
		i.B = imm(i.B)
		return i, changed
	}
	return ins, changed
}

// transferConst advances the lattice map across one instruction: a def
// from an immediate (or now-constant-folded RHS) becomes Const; any other
// def becomes Bottom; everything else passes through unchanged.
func transferConst(ins x86.Instruction, cur latMap) latMap {
	next := cur.clone()
	switch i := ins.(type) {
	case x86.Mov:
		if dk, ok := keyOf(i.Dst); ok {
			if c, ok := constOperand(i.Src, cur); ok {
				next[dk] = lattice{kind: latConst, val: c}
			} else {
				next[dk] = lattice{kind: latBottom}
			}
		}
		return next
	case x86.BinOp:
		if dk, ok := keyOf(i.Dst); ok {
			dc, dok := constOperand(i.Dst, cur)
			sc, sok := constOperand(i.Src, cur)
			if dok && sok {
				if v, ok := foldBinOp(i.Op, dc, sc); ok {
					next[dk] = lattice{kind: latConst, val: v}
					return next
				}
			}
			next[dk] = lattice{kind: latBottom}
		}
		return next
	}
	for _, o := range ins.Defs() {
		if k, ok := keyOf(o); ok {
			next[k] = lattice{kind: latBottom}
		}
	}
	return next
}

func foldBinOp(op x86.BinOpKind, a, b int64) (int64, bool) {
	switch op {
	case x86.Add:
		return a + b, true
	case x86.Sub:
		return a - b, true
	case x86.And:
		return a & b, true
	case x86.Or:
		return a | b, true
	case x86.Xor:
		return a ^ b, true
	}
	return 0, false
}
