package dataflow

import (
	"testing"

	"github.com/mstar-lang/malic/pkg/cfg"
	"github.com/mstar-lang/malic/pkg/x86"
)

// v0 = 2; v1 = 3; v2 = v0; v2 += v1 (dead, nothing reads v2) should fold to
// a constant add and then disappear entirely under DSE.
func TestConstPropFoldsArithmetic(t *testing.T) {
	f := &x86.Func{
		NumVRegs: 3,
		Instrs: []x86.Instruction{
			x86.Mov{Dst: x86.VReg(0), Src: x86.Imm(2)},
			x86.Mov{Dst: x86.VReg(1), Src: x86.Imm(3)},
			x86.Mov{Dst: x86.VReg(2), Src: x86.VReg(0)},
			x86.BinOp{Op: x86.Add, Dst: x86.VReg(2), Src: x86.VReg(1)},
			x86.Ret{HasResult: false},
		},
	}
	out := Optimize(f)
	for _, ins := range out.Instrs {
		if _, ok := ins.(x86.BinOp); ok {
			t.Errorf("expected the dead add to be eliminated, found %+v", ins)
		}
	}
}

func TestDSEDropsDeadMov(t *testing.T) {
	f := &x86.Func{
		NumVRegs: 2,
		Instrs: []x86.Instruction{
			x86.Mov{Dst: x86.VReg(0), Src: x86.Imm(5)}, // dead: v0 never used
			x86.Mov{Dst: x86.VReg(1), Src: x86.Imm(7)},
			x86.Ret{HasResult: false},
		},
	}
	out := Optimize(f)
	for _, ins := range out.Instrs {
		if mv, ok := ins.(x86.Mov); ok && mv.Dst.Kind == x86.OpVReg && mv.Dst.VReg == 0 {
			t.Errorf("expected dead def of v0 to be eliminated, found %+v", mv)
		}
	}
}

func TestCopyPropForwardsWithinBlock(t *testing.T) {
	f := &x86.Func{
		NumVRegs: 3,
		Instrs: []x86.Instruction{
			x86.Mov{Dst: x86.VReg(0), Src: x86.VReg(1)},
			x86.BinOp{Op: x86.Add, Dst: x86.VReg(2), Src: x86.VReg(0)},
			x86.Ret{HasResult: false},
		},
	}
	g := cfg.Build(f)
	if !CopyProp(g) {
		t.Fatalf("expected copy propagation to rewrite the use of v0")
	}
	f.Instrs = g.Instrs()
	found := false
	for _, ins := range f.Instrs {
		if b, ok := ins.(x86.BinOp); ok {
			found = b.Src.Kind == x86.OpVReg && b.Src.VReg == 1
		}
	}
	if !found {
		t.Errorf("expected the add's source to be forwarded to v1")
	}
}

// Running the pipeline a second time over already-optimized code must
// change nothing.
func TestOptimizeIdempotent(t *testing.T) {
	f := &x86.Func{
		NumVRegs: 3,
		Instrs: []x86.Instruction{
			x86.Mov{Dst: x86.VReg(0), Src: x86.Imm(2)},
			x86.Mov{Dst: x86.VReg(1), Src: x86.VReg(0)},
			x86.BinOp{Op: x86.Add, Dst: x86.VReg(1), Src: x86.Imm(3)},
			x86.Mov{Dst: x86.VReg(2), Src: x86.Imm(9)}, // dead
			x86.Mov{Dst: x86.PReg(x86.RAX), Src: x86.VReg(1)},
			x86.Ret{HasResult: true},
		},
	}
	once := append([]x86.Instruction(nil), Optimize(f).Instrs...)
	twice := Optimize(f).Instrs
	if len(once) != len(twice) {
		t.Fatalf("second run changed instruction count: %d -> %d", len(once), len(twice))
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Errorf("instruction %d changed on the second run: %#v -> %#v", i, once[i], twice[i])
		}
	}
}

func TestLivenessConverges(t *testing.T) {
	f := &x86.Func{
		NumVRegs: 1,
		Instrs: []x86.Instruction{
			x86.Mov{Dst: x86.VReg(0), Src: x86.Imm(1)},
			x86.Ret{HasResult: false},
		},
	}
	g := cfg.Build(f)
	live := ComputeLiveness(g)
	if !live.Converged(g) {
		t.Errorf("expected liveness to be at fixpoint after ComputeLiveness")
	}
}
