package dataflow

import "github.com/mstar-lang/malic/pkg/cfg"

// Liveness holds the per-block and per-instruction results of the backward
// liveness fixpoint: `in[b] = use[b] ∪ (out[b] \ def[b])`,
// `out[b] = ∪ in[s]` over successors.
type Liveness struct {
	In, Out map[cfg.BlockID]RegSet
	// LiveOut[b][i] is the live-out set immediately after instruction i of
	// block b, used by the register allocator to build interference edges.
	LiveOut map[cfg.BlockID][]RegSet
}

func blockUseDef(b *cfg.Block) (use, def RegSet) {
	use, def = NewRegSet(), NewRegSet()
	for _, ins := range b.Instrs {
		for k := range usesOf(ins) {
			if !def.Has(k) {
				use.Add(k)
			}
		}
		for k := range defsOf(ins) {
			def.Add(k)
		}
	}
	return use, def
}

// ComputeLiveness runs the backward union-join fixpoint over fn's blocks,
// then does one more backward pass inside each block to recover
// per-instruction live-out sets.
func ComputeLiveness(fn *cfg.Func) *Liveness {
	use := make(map[cfg.BlockID]RegSet, len(fn.Blocks))
	def := make(map[cfg.BlockID]RegSet, len(fn.Blocks))
	in := make(map[cfg.BlockID]RegSet, len(fn.Blocks))
	out := make(map[cfg.BlockID]RegSet, len(fn.Blocks))
	for _, b := range fn.Blocks {
		u, d := blockUseDef(b)
		use[b.ID], def[b.ID] = u, d
		in[b.ID], out[b.ID] = NewRegSet(), NewRegSet()
	}

	changed := true
	for changed {
		changed = false
		// Process in reverse block order; a backward analysis converges
		// faster walking the block list tail-to-head.
		for i := len(fn.Blocks) - 1; i >= 0; i-- {
			b := fn.Blocks[i]
			newOut := NewRegSet()
			for _, s := range b.Succ {
				newOut.Union(in[s])
			}
			if !newOut.Equal(out[b.ID]) {
				out[b.ID] = newOut
				changed = true
			}
			newIn := out[b.ID].Clone()
			for k := range def[b.ID] {
				newIn.Remove(k)
			}
			newIn.Union(use[b.ID])
			if !newIn.Equal(in[b.ID]) {
				in[b.ID] = newIn
				changed = true
			}
		}
	}

	liveOut := make(map[cfg.BlockID][]RegSet, len(fn.Blocks))
	for _, b := range fn.Blocks {
		n := len(b.Instrs)
		sets := make([]RegSet, n)
		cur := out[b.ID].Clone()
		for i := n - 1; i >= 0; i-- {
			sets[i] = cur.Clone()
			ins := b.Instrs[i]
			next := cur.Clone()
			for k := range defsOf(ins) {
				next.Remove(k)
			}
			next.Union(usesOf(ins))
			cur = next
		}
		liveOut[b.ID] = sets
	}

	return &Liveness{In: in, Out: out, LiveOut: liveOut}
}

// Converged reports whether running the fixpoint one extra iteration would
// change nothing: recomputing from scratch and comparing is the simplest
// way to certify this for tests.
func (l *Liveness) Converged(fn *cfg.Func) bool {
	again := ComputeLiveness(fn)
	for _, b := range fn.Blocks {
		if !l.In[b.ID].Equal(again.In[b.ID]) || !l.Out[b.ID].Equal(again.Out[b.ID]) {
			return false
		}
	}
	return true
}
