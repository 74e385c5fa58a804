package parser

import (
	"testing"

	"github.com/mstar-lang/malic/pkg/ast"
	"github.com/mstar-lang/malic/pkg/lexer"
)

func parse(t *testing.T, src string) *ast.Program {
	t.Helper()
	p := New(lexer.New(src))
	prog := p.ParseProgram()
	if err := p.Errors(); err != nil {
		t.Fatalf("unexpected parse errors: %v", err)
	}
	return prog
}

func TestParseFunctionDecl(t *testing.T) {
	prog := parse(t, "int add(int a, int b) { return a + b; }")
	if len(prog.Functions) != 1 {
		t.Fatalf("expected 1 function, got %d", len(prog.Functions))
	}
	fn := prog.Functions[0]
	if fn.Name != "add" {
		t.Errorf("name = %q, want add", fn.Name)
	}
	if len(fn.Params) != 2 {
		t.Fatalf("expected 2 params, got %d", len(fn.Params))
	}
	if len(fn.Body) != 1 {
		t.Fatalf("expected 1 statement, want return")
	}
	ret, ok := fn.Body[0].(*ast.ReturnStmt)
	if !ok {
		t.Fatalf("expected *ast.ReturnStmt, got %T", fn.Body[0])
	}
	bin, ok := ret.Value.(*ast.BinaryExpr)
	if !ok || bin.Op != ast.OpAdd {
		t.Fatalf("expected a+b, got %#v", ret.Value)
	}
}

func TestParseClassWithMembersAndMethods(t *testing.T) {
	prog := parse(t, `class Point {
		int x;
		int y;
		int sum() { return x + y; }
	}`)
	if len(prog.Classes) != 1 {
		t.Fatalf("expected 1 class, got %d", len(prog.Classes))
	}
	cls := prog.Classes[0]
	if cls.Name != "Point" {
		t.Errorf("name = %q, want Point", cls.Name)
	}
	if len(cls.Members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(cls.Members))
	}
	if len(cls.Methods) != 1 || cls.Methods[0].Name != "sum" {
		t.Fatalf("expected method sum, got %#v", cls.Methods)
	}
}

func TestParseArrayTypeAndNew(t *testing.T) {
	prog := parse(t, "int[] make(int n) { return new int[n]; }")
	fn := prog.Functions[0]
	if fn.RetType.Dims != 1 || fn.RetType.Name != "int" {
		t.Fatalf("return type = %v, want int[]", fn.RetType)
	}
}

func TestParseConstructor(t *testing.T) {
	prog := parse(t, `class A {
		int x;
		A() { x = 1; }
	}`)
	cls := prog.Classes[0]
	if len(cls.Methods) != 1 {
		t.Fatalf("expected the constructor to parse as a method, got %d methods", len(cls.Methods))
	}
	ctor := cls.Methods[0]
	if ctor.Name != "A" {
		t.Errorf("constructor name = %q, want A", ctor.Name)
	}
	if ctor.RetType.Name != "void" {
		t.Errorf("constructor return type = %q, want void", ctor.RetType.Name)
	}
}

func TestParseOperatorPrecedence(t *testing.T) {
	prog := parse(t, "int f() { return 1 + 2 * 3; }")
	ret := prog.Functions[0].Body[0].(*ast.ReturnStmt)
	top, ok := ret.Value.(*ast.BinaryExpr)
	if !ok || top.Op != ast.OpAdd {
		t.Fatalf("expected top-level + , got %#v", ret.Value)
	}
	if _, ok := top.Right.(*ast.BinaryExpr); !ok {
		t.Fatalf("expected 2*3 to bind tighter than +, got %#v", top.Right)
	}
}

func TestParseErrorOnUnexpectedTopLevelToken(t *testing.T) {
	p := New(lexer.New("+ 1;"))
	p.ParseProgram()
	if p.Errors() == nil {
		t.Fatal("expected a parse error for garbage at top level")
	}
}
