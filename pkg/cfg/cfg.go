// Package cfg partitions one function's abstract x86-64 instruction list
// into basic blocks and links successor/predecessor edges. A new block
// begins at every label and immediately after every terminator.
package cfg

import "github.com/mstar-lang/malic/pkg/x86"

// BlockID indexes a function's Blocks slice.
type BlockID int

// Block is a straight-line instruction run holding at most one label,
// always first, and at most one terminator, always last. The entry block
// and a block that begins right after a conditional jump have no leading
// label; a block that falls through into a labeled block has no
// terminator.
type Block struct {
	ID     BlockID
	Instrs []x86.Instruction
	Succ   []BlockID
	Pred   []BlockID
}

// Label returns the block's leading label, if its first instruction is one.
func (b *Block) Label() (x86.Label, bool) {
	if len(b.Instrs) == 0 {
		return "", false
	}
	if l, ok := b.Instrs[0].(x86.LabelDef); ok {
		return l.Name, true
	}
	return "", false
}

// Func is one function's control-flow graph.
type Func struct {
	Name   string
	Blocks []*Block
	Entry  BlockID
}

func isTerminator(ins x86.Instruction) bool {
	switch ins.(type) {
	case x86.Jmp, x86.Jcc, x86.Ret:
		return true
	}
	return false
}

// Build partitions f's instruction stream into basic blocks: a new block
// begins at every label and immediately after every terminator.
func Build(f *x86.Func) *Func {
	n := len(f.Instrs)
	starts := []int{0}
	seen := map[int]bool{0: true}
	add := func(i int) {
		if i < n && !seen[i] {
			seen[i] = true
			starts = append(starts, i)
		}
	}
	for i, ins := range f.Instrs {
		if _, ok := ins.(x86.LabelDef); ok && i != 0 {
			add(i)
		}
		if isTerminator(ins) {
			add(i + 1)
		}
	}
	sortInts(starts)

	out := &Func{Name: f.Name}
	labelBlock := make(map[x86.Label]BlockID)
	for bi, start := range starts {
		end := n
		if bi+1 < len(starts) {
			end = starts[bi+1]
		}
		blk := &Block{ID: BlockID(bi), Instrs: append([]x86.Instruction(nil), f.Instrs[start:end]...)}
		out.Blocks = append(out.Blocks, blk)
		if l, ok := blk.Label(); ok {
			labelBlock[l] = blk.ID
		}
	}

	for _, blk := range out.Blocks {
		if len(blk.Instrs) == 0 {
			continue
		}
		last := blk.Instrs[len(blk.Instrs)-1]
		switch t := last.(type) {
		case x86.Jmp:
			if target, ok := labelBlock[t.Target]; ok {
				blk.Succ = append(blk.Succ, target)
			}
		case x86.Jcc:
			if target, ok := labelBlock[t.Target]; ok {
				blk.Succ = append(blk.Succ, target)
			}
			if int(blk.ID)+1 < len(out.Blocks) {
				blk.Succ = append(blk.Succ, blk.ID+1)
			}
		case x86.Ret:
			// no successors: function exit
		default:
			// fell through to the next block without an explicit jump
			if int(blk.ID)+1 < len(out.Blocks) {
				blk.Succ = append(blk.Succ, blk.ID+1)
			}
		}
	}
	for _, blk := range out.Blocks {
		for _, s := range blk.Succ {
			out.Blocks[s].Pred = append(out.Blocks[s].Pred, blk.ID)
		}
	}
	return out
}

func sortInts(xs []int) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
}

// Instrs flattens the CFG's blocks back into one instruction stream, in
// block order, for passes that rewrite individual blocks and need to hand
// an updated list back to the owning x86.Func.
func (f *Func) Instrs() []x86.Instruction {
	var out []x86.Instruction
	for _, b := range f.Blocks {
		out = append(out, b.Instrs...)
	}
	return out
}
