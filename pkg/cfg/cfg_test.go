package cfg

import (
	"testing"

	"github.com/mstar-lang/malic/pkg/x86"
)

// straightLine compiles to one block ending in Ret.
func TestBuildStraightLine(t *testing.T) {
	f := &x86.Func{Instrs: []x86.Instruction{
		x86.Mov{Dst: x86.VReg(0), Src: x86.Imm(1)},
		x86.Ret{},
	}}
	g := Build(f)
	if len(g.Blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(g.Blocks))
	}
	if len(g.Blocks[0].Succ) != 0 {
		t.Errorf("expected no successors after ret, got %v", g.Blocks[0].Succ)
	}
}

// if/else compiles to four blocks: head, then, else, join; Jcc gets two
// successors (target + fallthrough).
func TestBuildBranch(t *testing.T) {
	then, els, join := x86.Label("L_then"), x86.Label("L_else"), x86.Label("L_join")
	f := &x86.Func{Instrs: []x86.Instruction{
		x86.Cmp{A: x86.VReg(0), B: x86.Imm(0)},
		x86.Jcc{Cond: x86.CondE, Target: then},
		x86.Jmp{Target: els},
		x86.LabelDef{Name: then},
		x86.Jmp{Target: join},
		x86.LabelDef{Name: els},
		x86.Jmp{Target: join},
		x86.LabelDef{Name: join},
		x86.Ret{},
	}}
	g := Build(f)
	if len(g.Blocks) != 4 {
		t.Fatalf("expected 4 blocks, got %d", len(g.Blocks))
	}
	head := g.Blocks[0]
	if len(head.Succ) != 2 {
		t.Fatalf("head block should have 2 successors, got %d", len(head.Succ))
	}
	joinBlk := g.Blocks[len(g.Blocks)-1]
	if len(joinBlk.Pred) != 2 {
		t.Errorf("join block should have 2 preds, got %d", len(joinBlk.Pred))
	}
}
