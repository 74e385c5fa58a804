package irbuild

import (
	"testing"

	"github.com/mstar-lang/malic/pkg/ir"
	"github.com/mstar-lang/malic/pkg/lexer"
	"github.com/mstar-lang/malic/pkg/parser"
	"github.com/mstar-lang/malic/pkg/sema"
)

func buildSrc(t *testing.T, src string) *ir.Program {
	t.Helper()
	p := parser.New(lexer.New(src))
	ast := p.ParseProgram()
	if err := p.Errors(); err != nil {
		t.Fatalf("unexpected parse errors: %v", err)
	}
	res, err := sema.Check(ast)
	if err != nil {
		t.Fatalf("unexpected check error: %v", err)
	}
	prog, err := Build(res)
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}
	return prog
}

func findFunc(prog *ir.Program, name string) *ir.Function {
	for _, f := range prog.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func TestBuildSynthesizesEntryFunction(t *testing.T) {
	prog := buildSrc(t, "int main() { return 0; }")
	entry := findFunc(prog, "main")
	if entry == nil {
		t.Fatal("expected a synthesized main entry function")
	}
	user := findFunc(prog, userMainSymbol)
	if user == nil {
		t.Fatalf("expected source main renamed to %s", userMainSymbol)
	}

	var calledUserMain bool
	for _, s := range entry.Body {
		if call, ok := s.(ir.Call); ok && call.Target.Symbol == userMainSymbol {
			calledUserMain = true
		}
	}
	if !calledUserMain {
		t.Error("expected the entry function to call the renamed user main")
	}
}

func TestBuildLowersParamsToRegisters(t *testing.T) {
	prog := buildSrc(t, "int add(int a, int b) { return a + b; }")
	fn := findFunc(prog, "add")
	if fn == nil {
		t.Fatal("expected function add")
	}
	if len(fn.Params) != 2 {
		t.Fatalf("expected 2 param registers, got %d", len(fn.Params))
	}
	last, ok := fn.Body[len(fn.Body)-2].(ir.Return)
	if !ok {
		t.Fatalf("expected the statement before the trailing return to be a Return, got %#v", fn.Body)
	}
	if _, ok := last.Value.(ir.BinExpr); !ok {
		t.Fatalf("expected a+b to lower to a BinExpr, got %#v", last.Value)
	}
}

func TestBuildAppendsTrailingReturn(t *testing.T) {
	prog := buildSrc(t, "void f() { }")
	fn := findFunc(prog, "f")
	if fn == nil {
		t.Fatal("expected function f")
	}
	last := fn.Body[len(fn.Body)-1]
	ret, ok := last.(ir.Return)
	if !ok {
		t.Fatalf("expected a trailing Return, got %#v", last)
	}
	if ret.Value != nil {
		t.Errorf("expected a void return, got %#v", ret.Value)
	}
}

func TestBuildLowersClassMethodWithThisReceiver(t *testing.T) {
	prog := buildSrc(t, `class Point {
		int x;
		int getX() { return x; }
	}`)
	fn := findFunc(prog, "Point_getX")
	if fn == nil {
		t.Fatalf("expected method symbol Point_getX, got functions %#v", prog.Functions)
	}
	if len(fn.Params) != 1 {
		t.Fatalf("expected 1 implicit this param, got %d", len(fn.Params))
	}
}

func TestBuildBareMemberReadsThroughThis(t *testing.T) {
	prog := buildSrc(t, `class Counter {
		int n;
		int get() { return n; }
	}`)
	fn := findFunc(prog, "Counter_get")
	if fn == nil {
		t.Fatal("expected method symbol Counter_get")
	}
	var sawMemLoad bool
	for _, s := range fn.Body {
		ret, ok := s.(ir.Return)
		if !ok || ret.Value == nil {
			continue
		}
		if _, ok := ret.Value.(ir.Mem); ok {
			sawMemLoad = true
		}
	}
	if !sawMemLoad {
		t.Error("expected a bare member read to lower to a memory load off this")
	}
}

func TestBuildLowersGlobalInitializerIntoEntry(t *testing.T) {
	prog := buildSrc(t, "int counter = getInt(); int main() { return counter; }")
	entry := findFunc(prog, "main")
	var assignsGlobal bool
	for _, s := range entry.Body {
		if a, ok := s.(ir.Assign); ok {
			if mem, ok := a.LHS.(ir.Mem); ok {
				if g, ok := mem.Address.(ir.GlobalAddr); ok && g.Name == "counter" {
					assignsGlobal = true
				}
			}
		}
	}
	if !assignsGlobal {
		t.Error("expected the entry function to initialize the global counter")
	}
	if len(prog.Globals) != 1 || prog.Globals[0].Name != "counter" {
		t.Fatalf("expected one global named counter, got %#v", prog.Globals)
	}
}

func TestBuildConstantGlobalInitializerSkipsEntryStore(t *testing.T) {
	prog := buildSrc(t, "int counter = 5; int main() { return counter; }")
	if len(prog.Globals) != 1 || !prog.Globals[0].HasInit || prog.Globals[0].Init != 5 {
		t.Fatalf("expected counter to carry its constant initializer, got %#v", prog.Globals)
	}
	entry := findFunc(prog, "main")
	for _, s := range entry.Body {
		if a, ok := s.(ir.Assign); ok {
			if mem, ok := a.LHS.(ir.Mem); ok {
				if g, ok := mem.Address.(ir.GlobalAddr); ok && g.Name == "counter" {
					t.Fatal("constant-initialized global must not be stored at entry")
				}
			}
		}
	}
}

func TestBuildLowersWhileLoopToLabelsAndJumps(t *testing.T) {
	prog := buildSrc(t, `int f() {
		int i;
		i = 0;
		while (i < 10) {
			i = i + 1;
		}
		return i;
	}`)
	fn := findFunc(prog, "f")
	var sawJump, sawCJump bool
	for _, s := range fn.Body {
		switch s.(type) {
		case ir.Jump:
			sawJump = true
		case ir.CJump:
			sawCJump = true
		}
	}
	if !sawJump || !sawCJump {
		t.Errorf("expected a while loop to lower to at least one Jump and one CJump, got %#v", fn.Body)
	}
}
