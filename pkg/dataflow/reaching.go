package dataflow

import (
	"github.com/mstar-lang/malic/pkg/cfg"
	"github.com/mstar-lang/malic/pkg/diag"
)

// DefSite names one definition point: instruction Index of block Block.
type DefSite struct {
	Block cfg.BlockID
	Index int
}

// uninitSite is the synthetic definition seeded at function entry for
// every register; if it reaches a use, some path reaches that use without
// a real definition.
var uninitSite = DefSite{Block: -1, Index: -1}

// SiteSet is a set of definition sites.
type SiteSet map[DefSite]bool

func (s SiteSet) clone() SiteSet {
	out := make(SiteSet, len(s))
	for k := range s {
		out[k] = true
	}
	return out
}

// Reaching holds per-block reaching-definitions sets: for each register,
// the definition sites that may reach the block entry (In) or exit (Out).
// Forward analysis, union-join over predecessors.
type Reaching struct {
	In, Out map[cfg.BlockID]map[RegKey]SiteSet
}

func cloneDefs(m map[RegKey]SiteSet) map[RegKey]SiteSet {
	out := make(map[RegKey]SiteSet, len(m))
	for k, v := range m {
		out[k] = v.clone()
	}
	return out
}

func defsEqual(a, b map[RegKey]SiteSet) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || len(av) != len(bv) {
			return false
		}
		for s := range av {
			if !bv[s] {
				return false
			}
		}
	}
	return true
}

// ComputeReaching runs the forward union-join fixpoint: a def of r at site
// s kills every other def of r along this path and generates {s}.
func ComputeReaching(fn *cfg.Func) *Reaching {
	return computeReaching(fn, nil)
}

func computeReaching(fn *cfg.Func, entrySeed map[RegKey]SiteSet) *Reaching {
	in := make(map[cfg.BlockID]map[RegKey]SiteSet, len(fn.Blocks))
	out := make(map[cfg.BlockID]map[RegKey]SiteSet, len(fn.Blocks))
	for _, b := range fn.Blocks {
		in[b.ID] = map[RegKey]SiteSet{}
		out[b.ID] = map[RegKey]SiteSet{}
	}

	transfer := func(b *cfg.Block, start map[RegKey]SiteSet) map[RegKey]SiteSet {
		cur := cloneDefs(start)
		for i, ins := range b.Instrs {
			for k := range defsOf(ins) {
				cur[k] = SiteSet{DefSite{Block: b.ID, Index: i}: true}
			}
		}
		return cur
	}

	changed := true
	for changed {
		changed = false
		for _, b := range fn.Blocks {
			newIn := map[RegKey]SiteSet{}
			if b.ID == fn.Entry {
				newIn = cloneDefs(entrySeed)
			}
			for _, p := range b.Pred {
				for k, sites := range out[p] {
					if newIn[k] == nil {
						newIn[k] = SiteSet{}
					}
					for s := range sites {
						newIn[k][s] = true
					}
				}
			}
			if !defsEqual(newIn, in[b.ID]) {
				in[b.ID] = newIn
				changed = true
			}
			newOut := transfer(b, in[b.ID])
			if !defsEqual(newOut, out[b.ID]) {
				out[b.ID] = newOut
				changed = true
			}
		}
	}
	return &Reaching{In: in, Out: out}
}

// CheckDefinedBeforeUse verifies that every virtual register is defined
// along every path before any use, the closing invariant of instruction
// emission. It seeds a synthetic uninitialized definition of every virtual
// register at entry and runs reaching definitions: the synthetic def
// reaching a use means some path gets there without a real one.
func CheckDefinedBeforeUse(fn *cfg.Func) error {
	seed := map[RegKey]SiteSet{}
	for _, b := range fn.Blocks {
		for _, ins := range b.Instrs {
			for k := range usesOf(ins) {
				if k.Virtual {
					seed[k] = SiteSet{uninitSite: true}
				}
			}
			for k := range defsOf(ins) {
				if k.Virtual {
					seed[k] = SiteSet{uninitSite: true}
				}
			}
		}
	}
	r := computeReaching(fn, seed)

	for _, b := range fn.Blocks {
		cur := cloneDefs(r.In[b.ID])
		for i, ins := range b.Instrs {
			for k := range usesOf(ins) {
				if k.Virtual && cur[k][uninitSite] {
					return diag.NewInternalError(
						"%s: virtual register v%d used without definition", fn.Name, k.VReg)
				}
			}
			for k := range defsOf(ins) {
				cur[k] = SiteSet{DefSite{Block: b.ID, Index: i}: true}
			}
		}
	}
	return nil
}
