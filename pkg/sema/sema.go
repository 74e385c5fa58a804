package sema

import (
	"github.com/mstar-lang/malic/pkg/ast"
	"github.com/mstar-lang/malic/pkg/diag"
	)

// Result is the resolved program the core pipeline consumes: every
// function/class entity plus per-node type and reference annotations
// recorded during checking.
type Result struct {
	Program   *ast.Program
	Classes   map[string]*ClassEntity
	Functions map[string]*FunctionEntity

	// ExprTypes records the checked type of every expression node.
	ExprTypes map[ast.Expr]Type
	// Refs records which VariableEntity an *ast.Ident resolves to.
	Refs map[*ast.Ident]*VariableEntity
	// Decls records the VariableEntity a global, parameter, member, or
	// local *ast.VarDecl introduced, so later passes can key storage
	// allocation off the declaration site rather than re-resolving names.
	Decls map[*ast.VarDecl]*VariableEntity
}

// Checker runs the two-pass resolve-then-check front end.
type Checker struct {
	classes   map[string]*ClassEntity
	functions map[string]*FunctionEntity
	errs      diag.Collector

	exprTypes map[ast.Expr]Type
	refs      map[*ast.Ident]*VariableEntity
	decls     map[*ast.VarDecl]*VariableEntity

	curFunc  *FunctionEntity
	curClass string
	curScope *Scope
}

// Check resolves names and checks types across the whole program,
// returning every SemanticError accumulated along the way (not just the
// first) via go.uber.org/multierr.
func Check(prog *ast.Program) (*Result, error) {
	c := &Checker{
		classes:   make(map[string]*ClassEntity),
		functions: make(map[string]*FunctionEntity),
		exprTypes: make(map[ast.Expr]Type),
		refs:      make(map[*ast.Ident]*VariableEntity),
		decls:     make(map[*ast.VarDecl]*VariableEntity),
	}
	registerBuiltins(c.functions)
	c.resolveSymbols(prog)
	if c.errs.Err() == nil {
		c.checkTypes(prog)
	}
	if err := c.errs.Err(); err != nil {
		return nil, err
	}
	return &Result{
		Program:   prog,
		Classes:   c.classes,
		Functions: c.functions,
		ExprTypes: c.exprTypes,
		Refs:      c.refs,
		Decls:     c.decls,
	}, nil
}

// --- Pass 1: resolveSymbol ---
//
// Registers every class, member, method, global, and function signature
// so forward references (a class using a type declared later, a function
// calling one declared later) resolve during the check pass.

func (c *Checker) resolveSymbols(prog *ast.Program) {
	for _, cd := range prog.Classes {
		if _, dup := c.classes[cd.Name]; dup {
			c.errf(cd.Pos(), "duplicate class declaration %q", cd.Name)
			continue
		}
		c.classes[cd.Name] = &ClassEntity{Name: cd.Name, Extends: cd.Extends, Methods: make(map[string]*FunctionEntity)}
	}
	for _, cd := range prog.Classes {
		ce := c.classes[cd.Name]
		for _, m := range cd.Members {
			ty, err := c.resolveType(m.Type)
			if err != nil {
				c.errf(m.Pos(), "%s", err)
				continue
			}
			ve := &VariableEntity{Name: m.Name, Type: ty, Storage: Member, Index: len(ce.Members)}
			ce.Members = append(ce.Members, ve)
			c.decls[m] = ve
		}
		for _, fn := range cd.Methods {
			c.resolveFuncSignature(fn, cd.Name, ce.Methods)
		}
	}
	for _, fn := range prog.Functions {
		c.resolveFuncSignature(fn, "", c.functions)
	}
	for _, g := range prog.Globals {
		// Global initializers are checked in pass 2; here we only need
		// their static type to exist.
		if _, err := c.resolveType(g.Type); err != nil {
			c.errf(g.Pos(), "%s", err)
		}
	}
}

func (c *Checker) resolveFuncSignature(fn *ast.FuncDecl, recv string, into map[string]*FunctionEntity) {
	if _, dup := into[fn.Name]; dup {
		c.errf(fn.Pos(), "duplicate function declaration %q", fn.Name)
		return
	}
	retTy, err := c.resolveType(fn.RetType)
	if err != nil {
		c.errf(fn.Pos(), "%s", err)
		return
	}
	fe := &FunctionEntity{Name: fn.Name, Recv: recv, ReturnType: retTy, Body: fn.Body}
	for i, p := range fn.Params {
		pty, err := c.resolveType(p.Type)
		if err != nil {
			c.errf(p.Pos(), "%s", err)
			continue
		}
		ve := &VariableEntity{Name: p.Name, Type: pty, Storage: Param, Index: i}
		fe.Params = append(fe.Params, ve)
		c.decls[p] = ve
	}
	into[fn.Name] = fe
}

func (c *Checker) resolveType(t ast.Type) (Type, error) {
	resolve := func(name string) (*ClassEntity, bool) { ce, ok := c.classes[name]; return ce, ok }
	return typeFromSyntax(resolve, t.Name, t.Dims)
}

func (c *Checker) errf(pos diag.Pos, format string, args ...any) {
	c.errs.Add(diag.NewSemanticError(pos, format, args...))
}

// --- Pass 2: checkType ---

func (c *Checker) checkTypes(prog *ast.Program) {
	globalScope := NewScope(nil)
	for _, g := range prog.Globals {
		ty, _ := c.resolveType(g.Type)
		ve := &VariableEntity{Name: g.Name, Type: ty, Storage: Global}
		c.decls[g] = ve
		if !globalScope.Declare(ve) {
			c.errf(g.Pos(), "duplicate global %q", g.Name)
			continue
		}
		if g.Init != nil {
			c.curScope = globalScope
			initTy := c.checkExpr(g.Init)
			if initTy != nil && !c.Assignable(ty, initTy) {
				c.errf(g.Init.Pos(), "cannot initialize global %q of type %s with %s", g.Name, ty, initTy)
			}
		}
	}

	for _, cd := range prog.Classes {
		ce := c.classes[cd.Name]
		for _, fn := range cd.Methods {
			c.checkFunctionBody(fn, ce.Methods[fn.Name], cd.Name, globalScope)
		}
	}
	for _, fn := range prog.Functions {
		c.checkFunctionBody(fn, c.functions[fn.Name], "", globalScope)
	}
}

func (c *Checker) checkFunctionBody(fn *ast.FuncDecl, fe *FunctionEntity, className string, globalScope *Scope) {
	c.curFunc = fe
	c.curClass = className
	scope := NewScope(globalScope)
	if className != "" {
		scope.Declare(&VariableEntity{Name: "this", Type: ClassType{Name: className}, Storage: Param})
	}
	for _, p := range fe.Params {
		if !scope.Declare(p) {
			c.errf(fn.Pos(), "duplicate parameter %q", p.Name)
		}
	}
	c.curScope = scope
	for _, s := range fn.Body {
		c.checkStmt(s)
	}
}

func (c *Checker) checkStmt(s ast.Stmt) {
	switch n := s.(type) {
	case *ast.VarDecl:
		ty, err := c.resolveType(n.Type)
		if err != nil {
			c.errf(n.Pos(), "%s", err)
			return
		}
		ve := &VariableEntity{Name: n.Name, Type: ty, Storage: Local}
		c.decls[n] = ve
		if !c.curScope.Declare(ve) {
			c.errf(n.Pos(), "duplicate local declaration %q", n.Name)
		}
		c.curFunc.Locals = append(c.curFunc.Locals, ve)
		if n.Init != nil {
			initTy := c.checkExpr(n.Init)
			if initTy != nil && !c.Assignable(ty, initTy) {
				c.errf(n.Init.Pos(), "cannot initialize %q of type %s with %s", n.Name, ty, initTy)
			}
		}
	case *ast.BlockStmt:
		outer := c.curScope
		c.curScope = NewScope(outer)
		for _, st := range n.Stmts {
			c.checkStmt(st)
		}
		c.curScope = outer
	case *ast.ExprStmt:
		c.checkExpr(n.X)
	case *ast.IfStmt:
		condTy := c.checkExpr(n.Cond)
		if condTy != nil && !TypesEqual(condTy, BoolType{}) {
			c.errf(n.Cond.Pos(), "if condition must be bool, got %s", condTy)
		}
		c.checkStmt(n.Then)
		if n.Else != nil {
			c.checkStmt(n.Else)
		}
	case *ast.WhileStmt:
		condTy := c.checkExpr(n.Cond)
		if condTy != nil && !TypesEqual(condTy, BoolType{}) {
			c.errf(n.Cond.Pos(), "while condition must be bool, got %s", condTy)
		}
		c.checkStmt(n.Body)
	case *ast.ForStmt:
		outer := c.curScope
		c.curScope = NewScope(outer)
		if n.Init != nil {
			c.checkStmt(n.Init)
		}
		if n.Cond != nil {
			condTy := c.checkExpr(n.Cond)
			if condTy != nil && !TypesEqual(condTy, BoolType{}) {
				c.errf(n.Cond.Pos(), "for condition must be bool, got %s", condTy)
			}
		}
		if n.Post != nil {
			c.checkStmt(n.Post)
		}
		c.checkStmt(n.Body)
		c.curScope = outer
	case *ast.ReturnStmt:
		if n.Value == nil {
			if c.curFunc != nil && !TypesEqual(c.curFunc.ReturnType, VoidType{}) {
				c.errf(n.Pos(), "missing return value, function returns %s", c.curFunc.ReturnType)
			}
			return
		}
		valTy := c.checkExpr(n.Value)
		if valTy != nil && c.curFunc != nil && !c.Assignable(c.curFunc.ReturnType, valTy) {
			c.errf(n.Value.Pos(), "return type mismatch: function returns %s, got %s", c.curFunc.ReturnType, valTy)
		}
	case *ast.BreakStmt, *ast.ContinueStmt:
		// nothing checked here: the parser accepts these in any statement
		// position, and the IR builder reports one outside a loop as an
		// internal error.
	default:
		panic(diag.NewInternalError("checkStmt: unreachable case %T", s))
	}
}

func (c *Checker) checkExpr(e ast.Expr) Type {
	ty := c.inferExpr(e)
	c.exprTypes[e] = ty
	return ty
}

func (c *Checker) inferExpr(e ast.Expr) Type {
	switch n := e.(type) {
	case *ast.IntLit:
		return IntType{}
	case *ast.BoolLit:
		return BoolType{}
	case *ast.StringLit:
		return StringType{}
	case *ast.NullLit:
		return NullType{}
	case *ast.ThisExpr:
		if c.curClass == "" {
			c.errf(n.Pos(), "'this' used outside a method")
			return nil
		}
		return ClassType{Name: c.curClass}
	case *ast.Ident:
		ve, ok := c.curScope.Lookup(n.Name)
		if !ok && c.curClass != "" {
			// A bare name inside a method may be a member of the
			// enclosing class (implicit this); locals and parameters
			// shadow it.
			ve, ok = c.lookupMember(c.curClass, n.Name)
		}
		if !ok {
			c.errf(n.Pos(), "undeclared identifier %q", n.Name)
			return nil
		}
		c.refs[n] = ve
		return ve.Type
	case *ast.BinaryExpr:
		return c.checkBinary(n)
	case *ast.UnaryExpr:
		return c.checkUnary(n)
	case *ast.IncDecExpr:
		xt := c.checkExpr(n.X)
		if xt != nil && !TypesEqual(xt, IntType{}) {
			c.errf(n.Pos(), "++/-- requires int, got %s", xt)
		}
		return xt
	case *ast.AssignExpr:
		if !isLValue(n.LHS) {
			c.errf(n.Pos(), "left-hand side of assignment is not an lvalue")
		}
		lt := c.checkExpr(n.LHS)
		rt := c.checkExpr(n.RHS)
		if lt != nil && rt != nil && !c.Assignable(lt, rt) {
			c.errf(n.Pos(), "cannot assign %s to %s", rt, lt)
		}
		return lt
	case *ast.MemberExpr:
		return c.checkMember(n)
	case *ast.IndexExpr:
		xt := c.checkExpr(n.X)
		it := c.checkExpr(n.Index)
		if it != nil && !TypesEqual(it, IntType{}) {
			c.errf(n.Index.Pos(), "array index must be int, got %s", it)
		}
		at, ok := xt.(ArrayType)
		if xt != nil && !ok {
			c.errf(n.Pos(), "cannot index non-array type %s", xt)
			return nil
		}
		if !ok {
			return nil
		}
		return at.Elem
	case *ast.CallExpr:
		return c.checkCall(n)
	case *ast.NewExpr:
		return c.checkNew(n)
	default:
		panic(diag.NewInternalError("inferExpr: unreachable case %T", e))
	}
}

func isLValue(e ast.Expr) bool {
	switch e.(type) {
	case *ast.Ident, *ast.MemberExpr, *ast.IndexExpr:
		return true
	}
	return false
}

func (c *Checker) checkBinary(n *ast.BinaryExpr) Type {
	lt := c.checkExpr(n.Left)
	rt := c.checkExpr(n.Right)
	if lt == nil || rt == nil {
		return nil
	}
	switch n.Op {
	case ast.OpAndAnd, ast.OpOrOr:
		if !TypesEqual(lt, BoolType{}) || !TypesEqual(rt, BoolType{}) {
			c.errf(n.Pos(), "&&/|| require bool operands, got %s and %s", lt, rt)
		}
		return BoolType{}
	case ast.OpEq, ast.OpNe:
		if !TypesEqual(lt, rt) && !c.Assignable(lt, rt) && !c.Assignable(rt, lt) {
			c.errf(n.Pos(), "cannot compare %s with %s", lt, rt)
		}
		return BoolType{}
	case ast.OpLt, ast.OpLe, ast.OpGt, ast.OpGe:
		if TypesEqual(lt, StringType{}) && TypesEqual(rt, StringType{}) {
			return BoolType{}
		}
		if !TypesEqual(lt, IntType{}) || !TypesEqual(rt, IntType{}) {
			c.errf(n.Pos(), "relational operator requires int or string operands, got %s and %s", lt, rt)
		}
		return BoolType{}
	case ast.OpAdd:
		if TypesEqual(lt, StringType{}) || TypesEqual(rt, StringType{}) {
			return StringType{}
		}
		fallthrough
	case ast.OpSub, ast.OpMul, ast.OpDiv, ast.OpMod, ast.OpBitAnd, ast.OpBitOr, ast.OpBitXor, ast.OpShl, ast.OpShr:
		if !TypesEqual(lt, IntType{}) || !TypesEqual(rt, IntType{}) {
			c.errf(n.Pos(), "arithmetic operator requires int operands, got %s and %s", lt, rt)
		}
		return IntType{}
	default:
		panic(diag.NewInternalError("checkBinary: unreachable case %T", n.Op))
	}
}

func (c *Checker) checkUnary(n *ast.UnaryExpr) Type {
	xt := c.checkExpr(n.X)
	if xt == nil {
		return nil
	}
	switch n.Op {
	case ast.OpNot:
		if !TypesEqual(xt, BoolType{}) {
			c.errf(n.Pos(), "! requires bool, got %s", xt)
		}
		return BoolType{}
	default: // OpNeg, OpBitNot
		if !TypesEqual(xt, IntType{}) {
			c.errf(n.Pos(), "unary operator requires int, got %s", xt)
		}
		return IntType{}
	}
}

func (c *Checker) checkMember(n *ast.MemberExpr) Type {
	xt := c.checkExpr(n.X)
	if xt == nil {
		return nil
	}
	if n.Field == "size" {
		if _, ok := xt.(ArrayType); ok {
			return IntType{}
		}
	}
	ct, ok := xt.(ClassType)
	if !ok {
		c.errf(n.Pos(), "cannot access member %q on non-class type %s", n.Field, xt)
		return nil
	}
	for _, ve := range c.classChain(ct.Name) {
		for _, m := range ve.Members {
			if m.Name == n.Field {
				return m.Type
			}
		}
	}
	c.errf(n.Pos(), "class %s has no member %q", ct.Name, n.Field)
	return nil
}

// arraySizeCall recognizes the builtin a.size() form: zero-argument,
// dispatched on an array receiver rather than a user method.
func (c *Checker) arraySizeCall(n *ast.CallExpr) (Type, bool) {
	if n.Recv == nil || n.Name != "size" {
		return nil, false
	}
	rt := c.checkExpr(n.Recv)
	if _, ok := rt.(ArrayType); !ok {
		return nil, false
	}
	if len(n.Args) != 0 {
		c.errf(n.Pos(), "size() takes no arguments, got %d", len(n.Args))
	}
	return IntType{}, true
}

func (c *Checker) checkCall(n *ast.CallExpr) Type {
	if ty, ok := c.arraySizeCall(n); ok {
		return ty
	}
	var fe *FunctionEntity
	if n.Recv == nil {
		var ok bool
		fe, ok = c.functions[n.Name]
		if !ok {
			c.errf(n.Pos(), "undeclared function %q", n.Name)
			for _, a := range n.Args {
				c.checkExpr(a)
			}
			return nil
		}
	} else {
		rt := c.checkExpr(n.Recv)
		ct, ok := rt.(ClassType)
		if rt != nil && !ok {
			c.errf(n.Pos(), "cannot call method %q on non-class type %s", n.Name, rt)
		}
		if ok {
			for _, ce := range c.classChain(ct.Name) {
				if m, found := ce.Methods[n.Name]; found {
					fe = m
					break
				}
			}
			if fe == nil {
				c.errf(n.Pos(), "class %s has no method %q", ct.Name, n.Name)
			}
		}
	}
	for _, a := range n.Args {
		c.checkExpr(a)
	}
	if fe == nil {
		return nil
	}
	if len(n.Args) != len(fe.Params) {
		c.errf(n.Pos(), "function %q expects %d arguments, got %d", n.Name, len(fe.Params), len(n.Args))
		return fe.ReturnType
	}
	for i, a := range n.Args {
		at := c.exprTypes[a]
		if at != nil && !c.Assignable(fe.Params[i].Type, at) {
			c.errf(a.Pos(), "argument %d: cannot use %s as %s", i+1, at, fe.Params[i].Type)
		}
	}
	return fe.ReturnType
}

func (c *Checker) checkNew(n *ast.NewExpr) Type {
	if len(n.Dims) > 0 {
		for _, d := range n.Dims {
			dt := c.checkExpr(d)
			if dt != nil && !TypesEqual(dt, IntType{}) {
				c.errf(d.Pos(), "array dimension must be int, got %s", dt)
			}
		}
		elemTy, err := c.resolveType(n.ElemType)
		if err != nil {
			c.errf(n.Pos(), "%s", err)
			return nil
		}
		ty := elemTy
		for range n.Dims {
			ty = ArrayType{Elem: ty}
		}
		return ty
	}
	ce, ok := c.classes[n.ClassType]
	if !ok {
		c.errf(n.Pos(), "unknown class %q", n.ClassType)
		return nil
	}
	for _, a := range n.Args {
		c.checkExpr(a)
	}
	if ctor, hasCtor := ce.Methods[n.ClassType]; hasCtor {
		if len(n.Args) != len(ctor.Params) {
			c.errf(n.Pos(), "constructor %q expects %d arguments, got %d", n.ClassType, len(ctor.Params), len(n.Args))
		}
	} else if len(n.Args) != 0 {
		c.errf(n.Pos(), "class %q has no constructor but %d arguments given", n.ClassType, len(n.Args))
	}
	return ClassType{Name: n.ClassType}
}
