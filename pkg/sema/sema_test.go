package sema

import (
	"testing"

	"github.com/mstar-lang/malic/pkg/ast"
	"github.com/mstar-lang/malic/pkg/lexer"
	"github.com/mstar-lang/malic/pkg/parser"
)

func checkSrc(t *testing.T, src string) (*Result, error) {
	t.Helper()
	p := parser.New(lexer.New(src))
	prog := p.ParseProgram()
	if err := p.Errors(); err != nil {
		t.Fatalf("unexpected parse errors: %v", err)
	}
	return Check(prog)
}

func TestCheckAcceptsWellTypedFunction(t *testing.T) {
	res, err := checkSrc(t, "int add(int a, int b) { return a + b; }")
	if err != nil {
		t.Fatalf("unexpected check error: %v", err)
	}
	fe, ok := res.Functions["add"]
	if !ok {
		t.Fatal("expected function entity for add")
	}
	if _, ok := fe.ReturnType.(IntType); !ok {
		t.Errorf("return type = %v, want int", fe.ReturnType)
	}
}

func TestCheckRejectsUndeclaredName(t *testing.T) {
	_, err := checkSrc(t, "int f() { return y; }")
	if err == nil {
		t.Fatal("expected an error for an undeclared name")
	}
}

func TestCheckRejectsTypeMismatch(t *testing.T) {
	_, err := checkSrc(t, `int f() {
		bool b;
		b = 1;
		return 0;
	}`)
	if err == nil {
		t.Fatal("expected a type-mismatch error assigning int to bool")
	}
}

func TestCheckRejectsDuplicateDeclaration(t *testing.T) {
	_, err := checkSrc(t, `int f() {
		int x;
		int x;
		return x;
	}`)
	if err == nil {
		t.Fatal("expected a duplicate-declaration error")
	}
}

func TestCheckResolvesBareMemberInsideMethod(t *testing.T) {
	_, err := checkSrc(t, `class Counter {
		int n;
		int get() { return n; }
	}`)
	if err != nil {
		t.Fatalf("bare member access inside a method must resolve, got %v", err)
	}
}

func TestCheckLocalShadowsMemberInsideMethod(t *testing.T) {
	res, err := checkSrc(t, `class Counter {
		int n;
		int get() { bool n; return 0; }
	}`)
	if err != nil {
		t.Fatalf("unexpected check error: %v", err)
	}
	fe := res.Classes["Counter"].Methods["get"]
	if len(fe.Locals) != 1 {
		t.Fatalf("expected the shadowing local to be recorded, got %d locals", len(fe.Locals))
	}
	if _, ok := fe.Locals[0].Type.(BoolType); !ok {
		t.Errorf("shadowing local must keep its own type, got %v", fe.Locals[0].Type)
	}
}

func TestCheckResolvesClassMemberTypes(t *testing.T) {
	res, err := checkSrc(t, `class Point {
		int x;
		int y;
	}
	int sumOf(Point p) { return p.x + p.y; }`)
	if err != nil {
		t.Fatalf("unexpected check error: %v", err)
	}
	cls, ok := res.Classes["Point"]
	if !ok {
		t.Fatal("expected class entity for Point")
	}
	if len(cls.Members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(cls.Members))
	}
}

func TestCheckRecordsExpressionTypes(t *testing.T) {
	p := parser.New(lexer.New("int f() { return 1 + 2; }"))
	prog := p.ParseProgram()
	res, err := Check(prog)
	if err != nil {
		t.Fatalf("unexpected check error: %v", err)
	}
	ret := prog.Functions[0].Body[0].(*ast.ReturnStmt)
	ty, ok := res.ExprTypes[ret.Value]
	if !ok {
		t.Fatal("expected the binary expression's type to be recorded")
	}
	if _, ok := ty.(IntType); !ok {
		t.Errorf("type = %v, want int", ty)
	}
}
