// Package parser implements a recursive-descent parser for M* using
// curToken/peekToken lookahead, expect, and per-keyword
// statement dispatch, covering the whole M* grammar: classes, methods,
// arrays, and the full expression grammar with precedence climbing.
package parser

import (
	"strconv"

	"github.com/mstar-lang/malic/pkg/ast"
	"github.com/mstar-lang/malic/pkg/diag"
	"github.com/mstar-lang/malic/pkg/lexer"
	"github.com/mstar-lang/malic/pkg/token"
)

// Parser parses M* source into an *ast.Program.
type Parser struct {
	l         *lexer.Lexer
	curToken  token.Token
	peekToken token.Token
	errs      diag.Collector
}

// New creates a Parser over the given lexer.
func New(l *lexer.Lexer) *Parser {
	p := &Parser{l: l}
	p.next()
	p.next()
	return p
}

func (p *Parser) next() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

func (p *Parser) pos() diag.Pos {
	return diag.Pos{Line: p.curToken.Line, Col: p.curToken.Col}
}

func (p *Parser) addError(format string, args ...any) {
	p.errs.Add(diag.NewSemanticError(p.pos(), format, args...))
}

func (p *Parser) curIs(k token.Kind) bool  { return p.curToken.Kind == k }
func (p *Parser) peekIs(k token.Kind) bool { return p.peekToken.Kind == k }

func (p *Parser) expect(k token.Kind) bool {
	if p.curIs(k) {
		p.next()
		return true
	}
	p.addError("expected %s, got %s", k, p.curToken.Kind)
	return false
}

// Errors returns every diagnostic collected during parsing.
func (p *Parser) Errors() error {
	return p.errs.Err()
}

// ParseProgram parses the whole input and returns the unresolved AST.
func (p *Parser) ParseProgram() *ast.Program {
	prog := &ast.Program{}
	for !p.curIs(token.EOF) {
		switch p.curToken.Kind {
		case token.KwClass:
			if c := p.parseClass(); c != nil {
				prog.Classes = append(prog.Classes, c)
			}
		default:
			if p.isTypeStart() {
				p.parseTopLevelDecl(prog)
			} else {
				p.addError("unexpected token at top level: %s", p.curToken.Kind)
				p.next()
			}
		}
	}
	return prog
}

func (p *Parser) isTypeStart() bool {
	switch p.curToken.Kind {
	case token.KwInt, token.KwBool, token.KwString, token.KwVoid, token.Ident:
		return true
	}
	return false
}

func (p *Parser) parseType() ast.Type {
	name := p.curToken.Literal
	p.next()
	dims := 0
	for p.curIs(token.LBracket) {
		p.next()
		p.expect(token.RBracket)
		dims++
	}
	return ast.Type{Name: name, Dims: dims}
}

func (p *Parser) parseClass() *ast.ClassDecl {
	pos := p.pos()
	p.next() // 'class'
	name := p.curToken.Literal
	p.expect(token.Ident)
	extends := ""
	if p.curIs(token.KwExtends) {
		p.next()
		extends = p.curToken.Literal
		p.expect(token.Ident)
	}
	c := &ast.ClassDecl{Name: name, Extends: extends}
	c.P = pos
	p.expect(token.LBrace)
	for !p.curIs(token.RBrace) && !p.curIs(token.EOF) {
		mpos := p.pos()
		ty := p.parseType()
		// Constructor form: the class name followed directly by a
		// parameter list, no return type.
		if p.curIs(token.LParen) && ty.Name == name && ty.Dims == 0 {
			fn := p.parseFuncRest(mpos, name, ast.Type{Name: "void"})
			fn.Recv = &ast.Type{Name: name}
			c.Methods = append(c.Methods, fn)
			continue
		}
		memberName := p.curToken.Literal
		mpos = p.pos()
		p.expect(token.Ident)
		if p.curIs(token.LParen) {
			fn := p.parseFuncRest(mpos, memberName, ty)
			fn.Recv = &ast.Type{Name: name}
			c.Methods = append(c.Methods, fn)
		} else {
			v := &ast.VarDecl{Name: memberName, Type: ty}
			v.P = mpos
			p.expect(token.Semicolon)
			c.Members = append(c.Members, v)
		}
	}
	p.expect(token.RBrace)
	return c
}

func (p *Parser) parseTopLevelDecl(prog *ast.Program) {
	pos := p.pos()
	ty := p.parseType()
	name := p.curToken.Literal
	p.expect(token.Ident)
	if p.curIs(token.LParen) {
		prog.Functions = append(prog.Functions, p.parseFuncRest(pos, name, ty))
		return
	}
	v := &ast.VarDecl{Name: name, Type: ty}
	v.P = pos
	if p.curIs(token.Assign) {
		p.next()
		v.Init = p.parseExpr()
	}
	p.expect(token.Semicolon)
	prog.Globals = append(prog.Globals, v)
}

func (p *Parser) parseFuncRest(pos diag.Pos, name string, retType ast.Type) *ast.FuncDecl {
	fn := &ast.FuncDecl{Name: name, RetType: retType}
	fn.P = pos
	p.expect(token.LParen)
	for !p.curIs(token.RParen) {
		pty := p.parseType()
		ppos := p.pos()
		pname := p.curToken.Literal
		p.expect(token.Ident)
		pv := &ast.VarDecl{Name: pname, Type: pty}
		pv.P = ppos
		fn.Params = append(fn.Params, pv)
		if p.curIs(token.Comma) {
			p.next()
		}
	}
	p.expect(token.RParen)
	fn.Body = p.parseBlockStmts()
	return fn
}

func (p *Parser) parseBlockStmts() []ast.Stmt {
	p.expect(token.LBrace)
	var stmts []ast.Stmt
	for !p.curIs(token.RBrace) && !p.curIs(token.EOF) {
		if s := p.parseStatement(); s != nil {
			stmts = append(stmts, s)
		}
	}
	p.expect(token.RBrace)
	return stmts
}

func (p *Parser) parseBlock() *ast.BlockStmt {
	pos := p.pos()
	b := &ast.BlockStmt{Stmts: p.parseBlockStmts()}
	b.P = pos
	return b
}

func (p *Parser) parseStatement() ast.Stmt {
	switch p.curToken.Kind {
	case token.LBrace:
		return p.parseBlock()
	case token.KwIf:
		return p.parseIf()
	case token.KwWhile:
		return p.parseWhile()
	case token.KwFor:
		return p.parseFor()
	case token.KwReturn:
		return p.parseReturn()
	case token.KwBreak:
		pos := p.pos()
		p.next()
		p.expect(token.Semicolon)
		return &ast.BreakStmt{Base: ast.Base{P: pos}}
	case token.KwContinue:
		pos := p.pos()
		p.next()
		p.expect(token.Semicolon)
		return &ast.ContinueStmt{Base: ast.Base{P: pos}}
	case token.KwInt, token.KwBool, token.KwString:
		return p.parseLocalVarDecl()
	case token.Ident:
		if p.isLocalDeclLookahead() {
			return p.parseLocalVarDecl()
		}
		return p.parseExprStatement()
	default:
		return p.parseExprStatement()
	}
}

// isLocalDeclLookahead distinguishes `Foo x = ...;` (class-typed local
// declaration) from an expression statement starting with an identifier,
// by checking whether the identifier is followed (after any `[]` pairs) by
// another identifier rather than an operator or call.
func (p *Parser) isLocalDeclLookahead() bool {
	if p.peekIs(token.Ident) {
		return true
	}
	if !p.peekIs(token.LBracket) {
		return false
	}
	// `Foo[] x` has `]` right after the `[`; `a[i] = ...` does not. A copy
	// of the lexer reads that token without consuming it.
	lx := *p.l
	return lx.NextToken().Kind == token.RBracket
}

func (p *Parser) parseLocalVarDecl() ast.Stmt {
	pos := p.pos()
	ty := p.parseType()
	name := p.curToken.Literal
	p.expect(token.Ident)
	v := &ast.VarDecl{Name: name, Type: ty}
	v.P = pos
	if p.curIs(token.Assign) {
		p.next()
		v.Init = p.parseExpr()
	}
	p.expect(token.Semicolon)
	return v
}

func (p *Parser) parseIf() ast.Stmt {
	pos := p.pos()
	p.next()
	p.expect(token.LParen)
	cond := p.parseExpr()
	p.expect(token.RParen)
	then := p.parseStatement()
	var els ast.Stmt
	if p.curIs(token.KwElse) {
		p.next()
		els = p.parseStatement()
	}
	return &ast.IfStmt{Base: ast.Base{P: pos}, Cond: cond, Then: then, Else: els}
}

func (p *Parser) parseWhile() ast.Stmt {
	pos := p.pos()
	p.next()
	p.expect(token.LParen)
	cond := p.parseExpr()
	p.expect(token.RParen)
	body := p.parseStatement()
	return &ast.WhileStmt{Base: ast.Base{P: pos}, Cond: cond, Body: body}
}

func (p *Parser) parseFor() ast.Stmt {
	pos := p.pos()
	p.next()
	p.expect(token.LParen)
	var init ast.Stmt
	if !p.curIs(token.Semicolon) {
		init = p.parseForInit()
	} else {
		p.next()
	}
	var cond ast.Expr
	if !p.curIs(token.Semicolon) {
		cond = p.parseExpr()
	}
	p.expect(token.Semicolon)
	var post ast.Stmt
	if !p.curIs(token.RParen) {
		post = &ast.ExprStmt{Base: ast.Base{P: p.pos()}, X: p.parseExpr()}
	}
	p.expect(token.RParen)
	body := p.parseStatement()
	return &ast.ForStmt{Base: ast.Base{P: pos}, Init: init, Cond: cond, Post: post, Body: body}
}

func (p *Parser) parseForInit() ast.Stmt {
	if p.isTypeStart() && (p.curIs(token.KwInt) || p.curIs(token.KwBool) || p.curIs(token.KwString) || p.isLocalDeclLookahead()) {
		s := p.parseLocalVarDecl()
		return s
	}
	x := p.parseExpr()
	p.expect(token.Semicolon)
	return &ast.ExprStmt{Base: ast.Base{P: x.Pos()}, X: x}
}

func (p *Parser) parseReturn() ast.Stmt {
	pos := p.pos()
	p.next()
	var val ast.Expr
	if !p.curIs(token.Semicolon) {
		val = p.parseExpr()
	}
	p.expect(token.Semicolon)
	return &ast.ReturnStmt{Base: ast.Base{P: pos}, Value: val}
}

func (p *Parser) parseExprStatement() ast.Stmt {
	pos := p.pos()
	x := p.parseExpr()
	p.expect(token.Semicolon)
	return &ast.ExprStmt{Base: ast.Base{P: pos}, X: x}
}

// --- Expression grammar (precedence climbing) ---

var binPrec = map[token.Kind]int{
	token.OrOr:    1,
	token.AndAnd:  2,
	token.Pipe:    3,
	token.Caret:   4,
	token.Amp:     5,
	token.EqEq:    6,
	token.NotEq:   6,
	token.Lt:      7,
	token.Le:      7,
	token.Gt:      7,
	token.Ge:      7,
	token.Shl:     8,
	token.Shr:     8,
	token.Plus:    9,
	token.Minus:   9,
	token.Star:    10,
	token.Slash:   10,
	token.Percent: 10,
}

var binOpOf = map[token.Kind]ast.BinOp{
	token.OrOr:    ast.OpOrOr,
	token.AndAnd:  ast.OpAndAnd,
	token.Pipe:    ast.OpBitOr,
	token.Caret:   ast.OpBitXor,
	token.Amp:     ast.OpBitAnd,
	token.EqEq:    ast.OpEq,
	token.NotEq:   ast.OpNe,
	token.Lt:      ast.OpLt,
	token.Le:      ast.OpLe,
	token.Gt:      ast.OpGt,
	token.Ge:      ast.OpGe,
	token.Shl:     ast.OpShl,
	token.Shr:     ast.OpShr,
	token.Plus:    ast.OpAdd,
	token.Minus:   ast.OpSub,
	token.Star:    ast.OpMul,
	token.Slash:   ast.OpDiv,
	token.Percent: ast.OpMod,
}

func (p *Parser) parseExpr() ast.Expr {
	return p.parseAssign()
}

func (p *Parser) parseAssign() ast.Expr {
	left := p.parseBinary(1)
	if p.curIs(token.Assign) {
		pos := p.pos()
		p.next()
		right := p.parseAssign()
		return &ast.AssignExpr{Base: ast.Base{P: pos}, LHS: left, RHS: right}
	}
	return left
}

func (p *Parser) parseBinary(minPrec int) ast.Expr {
	left := p.parseUnary()
	for {
		prec, ok := binPrec[p.curToken.Kind]
		if !ok || prec < minPrec {
			return left
		}
		op := binOpOf[p.curToken.Kind]
		pos := p.pos()
		p.next()
		right := p.parseBinary(prec + 1)
		left = &ast.BinaryExpr{Base: ast.Base{P: pos}, Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseUnary() ast.Expr {
	pos := p.pos()
	switch p.curToken.Kind {
	case token.Minus:
		p.next()
		return &ast.UnaryExpr{Base: ast.Base{P: pos}, Op: ast.OpNeg, X: p.parseUnary()}
	case token.Bang:
		p.next()
		return &ast.UnaryExpr{Base: ast.Base{P: pos}, Op: ast.OpNot, X: p.parseUnary()}
	case token.Tilde:
		p.next()
		return &ast.UnaryExpr{Base: ast.Base{P: pos}, Op: ast.OpBitNot, X: p.parseUnary()}
	case token.Increment:
		p.next()
		return &ast.IncDecExpr{Base: ast.Base{P: pos}, X: p.parseUnary(), Inc: true, Postfix: false}
	case token.Decrement:
		p.next()
		return &ast.IncDecExpr{Base: ast.Base{P: pos}, X: p.parseUnary(), Inc: false, Postfix: false}
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() ast.Expr {
	x := p.parsePrimary()
	for {
		pos := p.pos()
		switch p.curToken.Kind {
		case token.Dot:
			p.next()
			field := p.curToken.Literal
			p.expect(token.Ident)
			if p.curIs(token.LParen) {
				args := p.parseArgs()
				x = &ast.CallExpr{Base: ast.Base{P: pos}, Recv: x, Name: field, Args: args}
			} else {
				x = &ast.MemberExpr{Base: ast.Base{P: pos}, X: x, Field: field}
			}
		case token.LBracket:
			p.next()
			idx := p.parseExpr()
			p.expect(token.RBracket)
			x = &ast.IndexExpr{Base: ast.Base{P: pos}, X: x, Index: idx}
		case token.Increment:
			p.next()
			x = &ast.IncDecExpr{Base: ast.Base{P: pos}, X: x, Inc: true, Postfix: true}
		case token.Decrement:
			p.next()
			x = &ast.IncDecExpr{Base: ast.Base{P: pos}, X: x, Inc: false, Postfix: true}
		default:
			return x
		}
	}
}

func (p *Parser) parseArgs() []ast.Expr {
	p.expect(token.LParen)
	var args []ast.Expr
	for !p.curIs(token.RParen) {
		args = append(args, p.parseExpr())
		if p.curIs(token.Comma) {
			p.next()
		}
	}
	p.expect(token.RParen)
	return args
}

func (p *Parser) parsePrimary() ast.Expr {
	pos := p.pos()
	switch p.curToken.Kind {
	case token.IntLit:
		v, _ := strconv.ParseInt(p.curToken.Literal, 10, 64)
		p.next()
		return &ast.IntLit{Base: ast.Base{P: pos}, Value: v}
	case token.StringLit:
		s := p.curToken.Literal
		p.next()
		return &ast.StringLit{Base: ast.Base{P: pos}, Value: s}
	case token.KwTrue:
		p.next()
		return &ast.BoolLit{Base: ast.Base{P: pos}, Value: true}
	case token.KwFalse:
		p.next()
		return &ast.BoolLit{Base: ast.Base{P: pos}, Value: false}
	case token.KwNull:
		p.next()
		return &ast.NullLit{Base: ast.Base{P: pos}}
	case token.KwThis:
		p.next()
		return &ast.ThisExpr{Base: ast.Base{P: pos}}
	case token.LParen:
		p.next()
		x := p.parseExpr()
		p.expect(token.RParen)
		return x
	case token.KwNew:
		return p.parseNew()
	case token.Ident:
		name := p.curToken.Literal
		p.next()
		if p.curIs(token.LParen) {
			args := p.parseArgs()
			return &ast.CallExpr{Base: ast.Base{P: pos}, Name: name, Args: args}
		}
		return &ast.Ident{Base: ast.Base{P: pos}, Name: name}
	default:
		p.addError("unexpected token in expression: %s", p.curToken.Kind)
		p.next()
		return &ast.IntLit{Base: ast.Base{P: pos}, Value: 0}
	}
}

func (p *Parser) parseNew() ast.Expr {
	pos := p.pos()
	p.next() // 'new'
	typeName := p.curToken.Literal
	if !p.isTypeStart() {
		p.addError("expected a type name after new, got %s", p.curToken.Kind)
	}
	p.next()
	var dims []ast.Expr
	for p.curIs(token.LBracket) {
		p.next()
		dims = append(dims, p.parseExpr())
		p.expect(token.RBracket)
	}
	if len(dims) > 0 {
		return &ast.NewExpr{Base: ast.Base{P: pos}, ClassType: "", ElemType: ast.Type{Name: typeName}, Dims: dims}
	}
	var args []ast.Expr
	if p.curIs(token.LParen) {
		args = p.parseArgs()
	}
	return &ast.NewExpr{Base: ast.Base{P: pos}, ClassType: typeName, Args: args}
}
