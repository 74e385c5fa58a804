package dataflow

import (
	"testing"

	"github.com/mstar-lang/malic/pkg/cfg"
	"github.com/mstar-lang/malic/pkg/x86"
)

// Two defs of v0 on the branch arms must both reach the join block.
func TestReachingJoinsBranchDefs(t *testing.T) {
	f := &x86.Func{
		NumVRegs: 2,
		Instrs: []x86.Instruction{
			x86.Mov{Dst: x86.VReg(1), Src: x86.Imm(0)},
			x86.Cmp{A: x86.VReg(1), B: x86.Imm(0)},
			x86.Jcc{Cond: x86.CondE, Target: "else"},
			x86.Mov{Dst: x86.VReg(0), Src: x86.Imm(1)},
			x86.Jmp{Target: "join"},
			x86.LabelDef{Name: "else"},
			x86.Mov{Dst: x86.VReg(0), Src: x86.Imm(2)},
			x86.LabelDef{Name: "join"},
			x86.Mov{Dst: x86.PReg(x86.RAX), Src: x86.VReg(0)},
			x86.Ret{HasResult: true},
		},
	}
	g := cfg.Build(f)
	r := ComputeReaching(g)

	var join *cfg.Block
	for _, b := range g.Blocks {
		if l, ok := b.Label(); ok && l == "join" {
			join = b
		}
	}
	if join == nil {
		t.Fatal("no join block found")
	}
	key := RegKey{Virtual: true, VReg: 0}
	if got := len(r.In[join.ID][key]); got != 2 {
		t.Fatalf("expected both branch defs of v0 to reach the join, got %d site(s)", got)
	}
}

func TestCheckDefinedBeforeUseAcceptsStraightLine(t *testing.T) {
	f := &x86.Func{
		NumVRegs: 1,
		Instrs: []x86.Instruction{
			x86.Mov{Dst: x86.VReg(0), Src: x86.Imm(7)},
			x86.Mov{Dst: x86.PReg(x86.RAX), Src: x86.VReg(0)},
			x86.Ret{HasResult: true},
		},
	}
	if err := CheckDefinedBeforeUse(cfg.Build(f)); err != nil {
		t.Fatalf("well-formed stream rejected: %v", err)
	}
}

func TestCheckDefinedBeforeUseRejectsUndefinedUse(t *testing.T) {
	f := &x86.Func{
		NumVRegs: 1,
		Instrs: []x86.Instruction{
			x86.Mov{Dst: x86.PReg(x86.RAX), Src: x86.VReg(0)},
			x86.Ret{HasResult: true},
		},
	}
	if err := CheckDefinedBeforeUse(cfg.Build(f)); err == nil {
		t.Fatal("use of never-defined v0 must be rejected")
	}
}

// A def on only one arm of a branch does not dominate the join's use.
func TestCheckDefinedBeforeUseRejectsOneArmedDef(t *testing.T) {
	f := &x86.Func{
		NumVRegs: 2,
		Instrs: []x86.Instruction{
			x86.Mov{Dst: x86.VReg(1), Src: x86.Imm(0)},
			x86.Cmp{A: x86.VReg(1), B: x86.Imm(0)},
			x86.Jcc{Cond: x86.CondE, Target: "join"},
			x86.Mov{Dst: x86.VReg(0), Src: x86.Imm(1)},
			x86.LabelDef{Name: "join"},
			x86.Mov{Dst: x86.PReg(x86.RAX), Src: x86.VReg(0)},
			x86.Ret{HasResult: true},
		},
	}
	if err := CheckDefinedBeforeUse(cfg.Build(f)); err == nil {
		t.Fatal("v0 is undefined on the branch-taken path and must be rejected")
	}
}
