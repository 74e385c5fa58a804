package emit

import (
	"testing"

	"github.com/mstar-lang/malic/pkg/ir"
	"github.com/mstar-lang/malic/pkg/x86"
)

func TestSelectFunctionReceivesParamsFromArgRegs(t *testing.T) {
	fn := &ir.Function{Name: "add"}
	a := fn.NewReg()
	b := fn.NewReg()
	fn.Params = []ir.Reg{a, b}
	sum := fn.NewReg()
	fn.Emit(ir.Assign{LHS: ir.RegRef{Reg: sum}, RHS: ir.BinExpr{Op: ir.Add, Left: ir.RegRef{Reg: a}, Right: ir.RegRef{Reg: b}}})
	fn.Emit(ir.Return{Value: ir.RegRef{Reg: sum}})

	out := selectFunction(fn)
	if len(out.Instrs) < 2 {
		t.Fatalf("expected at least a param-receive per parameter, got %#v", out.Instrs)
	}
	mov0, ok := out.Instrs[0].(x86.Mov)
	if !ok {
		t.Fatalf("expected the first instruction to be a Mov receiving param a, got %#v", out.Instrs[0])
	}
	if mov0.Src.Kind != x86.OpPReg || mov0.Src.PReg != x86.ArgRegs[0] {
		t.Errorf("expected param a to arrive from %v, got %#v", x86.ArgRegs[0], mov0.Src)
	}
	mov1, ok := out.Instrs[1].(x86.Mov)
	if !ok || mov1.Src.PReg != x86.ArgRegs[1] {
		t.Fatalf("expected param b to arrive from %v, got %#v", x86.ArgRegs[1], out.Instrs[1])
	}
}

func TestSelectReturnMovesValueIntoRAX(t *testing.T) {
	fn := &ir.Function{Name: "f"}
	fn.Emit(ir.Return{Value: ir.IntConst{Value: 42}})
	out := selectFunction(fn)

	var sawRAXMov, sawRet bool
	for _, ins := range out.Instrs {
		if mov, ok := ins.(x86.Mov); ok && mov.Dst.Kind == x86.OpPReg && mov.Dst.PReg == x86.RAX {
			sawRAXMov = true
		}
		if ret, ok := ins.(x86.Ret); ok && ret.HasResult {
			sawRet = true
		}
	}
	if !sawRAXMov {
		t.Error("expected the return value to be moved into RAX")
	}
	if !sawRet {
		t.Error("expected a Ret with HasResult set")
	}
}

func TestSelectCJumpWithComparisonEmitsCmpAndJcc(t *testing.T) {
	fn := &ir.Function{Name: "f"}
	r := fn.NewReg()
	thenL := fn.NewLabel()
	elseL := fn.NewLabel()
	fn.Emit(ir.CJump{Cond: ir.BinExpr{Op: ir.Lt, Left: ir.RegRef{Reg: r}, Right: ir.IntConst{Value: 10}}, ThenLabel: thenL, ElseLabel: elseL})
	fn.Emit(ir.LabelStmt{L: thenL})
	fn.Emit(ir.Return{})
	fn.Emit(ir.LabelStmt{L: elseL})
	fn.Emit(ir.Return{})

	out := selectFunction(fn)
	var sawCmp, sawJccL bool
	for _, ins := range out.Instrs {
		if _, ok := ins.(x86.Cmp); ok {
			sawCmp = true
		}
		if jcc, ok := ins.(x86.Jcc); ok && jcc.Cond == x86.CondL {
			sawJccL = true
		}
	}
	if !sawCmp || !sawJccL {
		t.Errorf("expected a Cmp followed by a Jcc CondL, got %#v", out.Instrs)
	}
}

func TestSelectCallPlacesArgsInABIRegistersAndMovesResult(t *testing.T) {
	fn := &ir.Function{Name: "f"}
	result := fn.NewReg()
	fn.Emit(ir.Call{
		Target: ir.CallTarget{Symbol: "callee"},
		Args:   []ir.Expr{ir.IntConst{Value: 1}, ir.IntConst{Value: 2}},
		Result: result,
	})
	fn.Emit(ir.Return{Value: ir.RegRef{Reg: result}})

	out := selectFunction(fn)
	var call x86.Call
	var sawCall bool
	var movedResult bool
	for i, ins := range out.Instrs {
		if c, ok := ins.(x86.Call); ok {
			call = c
			sawCall = true
			if mov, ok := out.Instrs[i+1].(x86.Mov); ok && mov.Src.Kind == x86.OpPReg && mov.Src.PReg == x86.RAX {
				movedResult = true
			}
		}
	}
	if !sawCall {
		t.Fatal("expected an x86.Call instruction")
	}
	if call.Target != x86.FuncSym("callee") {
		t.Errorf("call target = %v, want callee", call.Target)
	}
	if !call.HasResult {
		t.Error("expected HasResult since the IR call has a result register")
	}
	if !movedResult {
		t.Error("expected the call result to be moved out of RAX immediately after the call")
	}
}

func TestSelectSeventhArgPushedOnStack(t *testing.T) {
	fn := &ir.Function{Name: "f"}
	args := make([]ir.Expr, 0, 7)
	for i := int64(0); i < 7; i++ {
		args = append(args, ir.IntConst{Value: i})
	}
	fn.Emit(ir.Call{Target: ir.CallTarget{Symbol: "manyargs"}, Args: args, Result: ir.RegNone})
	fn.Emit(ir.Return{})

	out := selectFunction(fn)
	var pushes int
	for _, ins := range out.Instrs {
		if _, ok := ins.(x86.Push); ok {
			pushes++
		}
	}
	if pushes != 1 {
		t.Errorf("expected 1 stack arg pushed (7th arg beyond the 6 register slots), got %d", pushes)
	}
}
