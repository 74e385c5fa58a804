package regalloc

import (
	"testing"

	"github.com/mstar-lang/malic/pkg/cfg"
	"github.com/mstar-lang/malic/pkg/dataflow"
	"github.com/mstar-lang/malic/pkg/ir"
	"github.com/mstar-lang/malic/pkg/x86"
)

func colorFunc(t *testing.T, f *x86.Func) *Result {
	t.Helper()
	g := cfg.Build(f)
	live := dataflow.ComputeLiveness(g)
	graph := BuildInterference(g, live)
	return newColoring(graph).run()
}

// x1 = 1; x2 = 2; x3 = x1 + x2; return x3
func TestAllocateSimpleFunction(t *testing.T) {
	f := &x86.Func{
		Name:     "simple",
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

	res := colorFunc(t, f)
	if res.Spilled.Len() != 0 {
		t.Fatalf("expected no spills, got %d", res.Spilled.Len())
	}
	for _, r := range []ir.Reg{0, 1, 2} {
		if _, ok := res.Color[r]; !ok {
			t.Errorf("register %d should have a color", r)
		}
	}
	if res.Color[0] == res.Color[1] {
		t.Error("x1 and x2 interfere and must not share a color")
	}
}

// x1 = 42; x2 = x1 (move, should coalesce); return x2
func TestAllocateFunctionWithMove(t *testing.T) {
	f := &x86.Func{
		Name:     "move",
		NumVRegs: 2,
		Instrs: []x86.Instruction{
			x86.Mov{Dst: x86.VReg(0), Src: x86.Imm(42)},
			x86.Mov{Dst: x86.VReg(1), Src: x86.VReg(0)},
			x86.Mov{Dst: x86.PReg(x86.RAX), Src: x86.VReg(1)},
			x86.Ret{HasResult: true},
		},
	}

	res := colorFunc(t, f)
	if res.Color[0] != res.Color[1] {
		t.Error("moved, non-interfering registers should coalesce to the same color")
	}
}

// A function whose live range forces more simultaneously-live values than
// colors exist must spill at least one of them.
func TestAllocateSpillsWhenOutOfColors(t *testing.T) {
	f := &x86.Func{Name: "pressure"}
	n := K + 2
	for i := 0; i < n; i++ {
		f.Instrs = append(f.Instrs, x86.Mov{Dst: x86.VReg(ir.Reg(i)), Src: x86.Imm(int64(i))})
	}
	sum := x86.VReg(ir.Reg(n))
	f.Instrs = append(f.Instrs, x86.Mov{Dst: sum, Src: x86.VReg(0)})
	for i := 1; i < n; i++ {
		f.Instrs = append(f.Instrs, x86.BinOp{Op: x86.Add, Dst: sum, Src: x86.VReg(ir.Reg(i))})
	}
	f.Instrs = append(f.Instrs, x86.Mov{Dst: x86.PReg(x86.RAX), Src: sum}, x86.Ret{HasResult: true})
	f.NumVRegs = n + 1

	res := colorFunc(t, f)
	if res.Spilled.Len() == 0 {
		t.Fatal("expected at least one spill when live values exceed available colors")
	}
}
