// Package irbuild lowers a checked *ast.Program into *ir.Program, the
// three-address form the rest of the pipeline consumes: a per-function
// builder that walks statements in source order, emitting IR straight into
// the function's body rather than building an intermediate tree.
package irbuild

import (
	"github.com/mstar-lang/malic/pkg/ast"
	"github.com/mstar-lang/malic/pkg/diag"
	"github.com/mstar-lang/malic/pkg/ir"
	"github.com/mstar-lang/malic/pkg/sema"
)

// entryFunctionName is the synthesized process entry point: it runs global
// initializers in declaration order, then calls the source program's main.
// userMainSymbol is the renamed source-level main, so the two
// never collide.
const (
	entryFunctionName = "main"
	userMainSymbol    = "__mstar_main"
)

// Build lowers res into an *ir.Program. res must come from a successful
// sema.Check.
func Build(res *sema.Result) (*ir.Program, error) {
	b := &builder{
		res:     res,
		strings: make(map[string]int),
	}
	for _, cd := range res.Program.Classes {
		ce := res.Classes[cd.Name]
		for _, fn := range cd.Methods {
			fe := ce.Methods[fn.Name]
			f, err := b.buildFunction(fn, fe, cd.Name)
			if err != nil {
				return nil, err
			}
			b.prog.Functions = append(b.prog.Functions, f)
		}
	}
	for _, fn := range res.Program.Functions {
		fe := res.Functions[fn.Name]
		symbol := fn.Name
		if fn.Name == "main" {
			symbol = userMainSymbol
		}
		f, err := b.buildFunction(fn, fe, "")
		if err != nil {
			return nil, err
		}
		f.Name = symbol
		b.prog.Functions = append(b.prog.Functions, f)
	}
	b.prog.Functions = append(b.prog.Functions, b.buildEntry())
	return &b.prog, nil
}

// builder holds the state threaded through the lowering of one program.
// fn/varRegs/breakLabels/continueLabels are reset per function by
// buildFunction; strings/prog accumulate across the whole program.
type builder struct {
	res *sema.Result

	fn       *ir.Function
	curClass string
	thisReg  ir.Reg
	varRegs  map[*sema.VariableEntity]ir.Reg

	breakLabels    []ir.Label
	continueLabels []ir.Label

	strings map[string]int // literal -> index into prog.Strings
	prog    ir.Program
}

func symbolFor(className, name string) string {
	if className == "" {
		return name
	}
	return className + "_" + name
}

func (b *builder) buildFunction(fn *ast.FuncDecl, fe *sema.FunctionEntity, className string) (*ir.Function, error) {
	f := &ir.Function{Name: symbolFor(className, fn.Name)}
	b.fn = f
	b.curClass = className
	b.varRegs = make(map[*sema.VariableEntity]ir.Reg)
	b.breakLabels = nil
	b.continueLabels = nil

	if className != "" {
		b.thisReg = f.NewReg()
		f.Params = append(f.Params, b.thisReg)
	}
	for _, p := range fe.Params {
		r := f.NewReg()
		b.varRegs[p] = r
		f.Params = append(f.Params, r)
	}
	for _, s := range fn.Body {
		if err := b.lowerStmt(s); err != nil {
			return nil, err
		}
	}
	f.Locals = len(fe.Locals)
	// Every control path through a void function falls off the end
	// without an explicit return; a trailing Return(nil) gives the
	// instruction emitter one to lower into the epilogue.
	f.Emit(ir.Return{})
	return f, nil
}

// buildEntry synthesizes the process entry point: global initializers in
// declaration order, then a call into the renamed source main.
func (b *builder) buildEntry() *ir.Function {
	f := &ir.Function{Name: entryFunctionName}
	b.fn = f
	b.curClass = ""
	b.varRegs = make(map[*sema.VariableEntity]ir.Reg)
	for _, g := range b.res.Program.Globals {
		irg := ir.Global{Name: g.Name, Size: 8}
		if c, ok := constInit(g.Init); ok {
			// Compile-time constants land in .data; no entry-function
			// store needed.
			irg.Init, irg.HasInit = c, true
			b.prog.Globals = append(b.prog.Globals, irg)
			continue
		}
		b.prog.Globals = append(b.prog.Globals, irg)
		if g.Init != nil {
			val := b.lowerExpr(g.Init)
			f.Emit(ir.Assign{LHS: b.globalRef(g.Name), RHS: val})
		}
	}
	hasMain := false
	for _, fn := range b.res.Program.Functions {
		if fn.Name == "main" {
			hasMain = true
		}
	}
	if hasMain {
		ret := f.NewReg()
		f.Emit(ir.Call{Target: ir.CallTarget{Symbol: userMainSymbol}, Result: ret})
		f.Emit(ir.Return{Value: ir.RegRef{Reg: ret}})
	} else {
		f.Emit(ir.Return{})
	}
	return f
}

// constInit reports a global initializer's compile-time constant value:
// an int or bool literal, or a negated int literal.
func constInit(e ast.Expr) (int64, bool) {
	switch n := e.(type) {
	case *ast.IntLit:
		return n.Value, true
	case *ast.BoolLit:
		if n.Value {
			return 1, true
		}
		return 0, true
	case *ast.UnaryExpr:
		if lit, ok := n.X.(*ast.IntLit); ok && n.Op == ast.OpNeg {
			return -lit.Value, true
		}
	}
	return 0, false
}

// globalRef builds the IR expression that addresses a global by name. The
// translator assigns each global a fixed .bss/.data symbol; at the IR level
// it is just another memory location.
func (b *builder) globalRef(name string) ir.Expr {
	return ir.Mem{Address: ir.GlobalAddr{Name: name}, Width: 8}
}

// internString registers a literal's first occurrence in declaration order
// and returns its stable index into the program's string table.
func (b *builder) internString(s string) int {
	if i, ok := b.strings[s]; ok {
		return i
	}
	i := len(b.prog.Strings)
	b.strings[s] = i
	b.prog.Strings = append(b.prog.Strings, s)
	return i
}

func (b *builder) internal(format string, args ...any) error {
	return diag.NewInternalError(format, args...)
}
