// Package dataflow runs a fixed analysis pipeline over a function's CFG:
// liveness, constant propagation, copy propagation, and dead-store
// elimination, iterated until nothing changes, plus a reaching-definitions
// analysis that backs the defined-before-use check. Sets are represented
// as RegSet, a map-backed set of virtual and physical registers, driven to
// fixpoint by repeated backward and forward sweeps over the block list.
package dataflow

import "github.com/mstar-lang/malic/pkg/x86"

// RegKey names one register, virtual or physical, as a liveness/lattice
// map key (x86.Operand isn't comparable as a map key once memory operands
// are involved, so register identity is pulled out into this narrower
// type).
type RegKey struct {
	Virtual bool
	VReg    int64
	PReg    x86.Reg
}

func keyOf(o x86.Operand) (RegKey, bool) {
	switch o.Kind {
	case x86.OpVReg:
		return RegKey{Virtual: true, VReg: int64(o.VReg)}, true
	case x86.OpPReg:
		return RegKey{PReg: o.PReg}, true
	}
	return RegKey{}, false
}

// RegSet is a set of RegKeys.
type RegSet map[RegKey]bool

func NewRegSet() RegSet { return make(RegSet) }

func (s RegSet) Add(k RegKey)      { s[k] = true }
func (s RegSet) Has(k RegKey) bool { return s[k] }
func (s RegSet) Remove(k RegKey)   { delete(s, k) }

func (s RegSet) Clone() RegSet {
	out := make(RegSet, len(s))
	for k := range s {
		out[k] = true
	}
	return out
}

// Union merges other into s in place and reports whether s changed.
func (s RegSet) Union(other RegSet) bool {
	changed := false
	for k := range other {
		if !s[k] {
			s[k] = true
			changed = true
		}
	}
	return changed
}

func (s RegSet) Equal(other RegSet) bool {
	if len(s) != len(other) {
		return false
	}
	for k := range s {
		if !other[k] {
			return false
		}
	}
	return true
}

// defsOf / usesOf translate one instruction's Defs()/Uses() operands into
// RegKeys, skipping non-register operands.
func defsOf(ins x86.Instruction) RegSet {
	out := NewRegSet()
	for _, o := range ins.Defs() {
		if k, ok := keyOf(o); ok {
			out.Add(k)
		}
	}
	return out
}

func usesOf(ins x86.Instruction) RegSet {
	out := NewRegSet()
	for _, o := range ins.Uses() {
		if k, ok := keyOf(o); ok {
			out.Add(k)
		}
	}
	return out
}
