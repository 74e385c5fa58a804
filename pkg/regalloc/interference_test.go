package regalloc

import (
	"testing"

	"github.com/mstar-lang/malic/pkg/cfg"
	"github.com/mstar-lang/malic/pkg/dataflow"
	"github.com/mstar-lang/malic/pkg/ir"
	"github.com/mstar-lang/malic/pkg/x86"
)

func buildGraph(f *x86.Func) *InterferenceGraph {
	g := cfg.Build(f)
	live := dataflow.ComputeLiveness(g)
	return BuildInterference(g, live)
}

func TestInterferenceSimultaneouslyLive(t *testing.T) {
	// x1 = 1; x2 = 2; x3 = x1 + x2 -- x1 and x2 are both live at the add,
	// so they must interfere; x3 is defined while x2 is still live, so it
	// interferes with x2 but not with x1.
	f := &x86.Func{
		Name:     "f",
		NumVRegs: 3,
		Instrs: []x86.Instruction{
			x86.Mov{Dst: x86.VReg(0), Src: x86.Imm(1)},
			x86.Mov{Dst: x86.VReg(1), Src: x86.Imm(2)},
			x86.Mov{Dst: x86.VReg(2), Src: x86.VReg(0)},
			x86.BinOp{Op: x86.Add, Dst: x86.VReg(2), Src: x86.VReg(1)},
			x86.Mov{Dst: x86.PReg(x86.RAX), Src: x86.VReg(2)},
			x86.Ret{HasResult: true},
		},
	}
	g := buildGraph(f)
	if !g.Edges[0][1] {
		t.Error("x1 and x2 are simultaneously live and must interfere")
	}
}

func TestInterferenceCallForbidsCallerSaved(t *testing.T) {
	// x1 = 1; call f(); return x1 -- x1 is live across the call, so it
	// must be forbidden every caller-saved color.
	f := &x86.Func{
		Name:     "f",
		NumVRegs: 1,
		Instrs: []x86.Instruction{
			x86.Mov{Dst: x86.VReg(0), Src: x86.Imm(1)},
			x86.Call{Target: x86.FuncSym("g")},
			x86.Mov{Dst: x86.PReg(x86.RAX), Src: x86.VReg(0)},
			x86.Ret{HasResult: true},
		},
	}
	g := buildGraph(f)
	for _, cs := range x86.CallerSaved {
		if !g.Forbidden[ir.Reg(0)][cs] {
			t.Errorf("register live across a call must be forbidden caller-saved color %v", cs)
		}
	}
}

func TestInterferenceMoveTracked(t *testing.T) {
	f := &x86.Func{
		Name:     "f",
		NumVRegs: 2,
		Instrs: []x86.Instruction{
			x86.Mov{Dst: x86.VReg(0), Src: x86.Imm(1)},
			x86.Mov{Dst: x86.VReg(1), Src: x86.VReg(0)},
			x86.Mov{Dst: x86.PReg(x86.RAX), Src: x86.VReg(1)},
			x86.Ret{HasResult: true},
		},
	}
	g := buildGraph(f)
	if !g.Moves[0][1] || !g.Moves[1][0] {
		t.Error("a Mov between two virtual registers must be recorded as a coalescing candidate")
	}
}
