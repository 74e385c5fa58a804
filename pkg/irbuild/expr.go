package irbuild

import (
	"github.com/mstar-lang/malic/pkg/ast"
	"github.com/mstar-lang/malic/pkg/ir"
	"github.com/mstar-lang/malic/pkg/sema"
)

// Runtime-library helpers the IR builder calls directly; never exposed to
// M* source under these names.
const (
	runtimeMalloc         = "__malloc"
	runtimeStringConcat   = "__stringConcat"
	runtimeStringCompare  = "__stringCompare"
)

func runtimeCall(symbol string, result ir.Reg, args ...ir.Expr) ir.Call {
	return ir.Call{Target: ir.CallTarget{Symbol: symbol, Runtime: true}, Args: args, Result: result}
}

// lowerExpr lowers e into an IR expression. Composite results (calls, new,
// assignment, increment, short-circuit) are materialized into a fresh
// register and returned as a RegRef, which both flattens side effects into
// emitted statements in left-to-right order and satisfies the hoisting
// contract for any subexpression that may have a side effect.
func (b *builder) lowerExpr(e ast.Expr) ir.Expr {
	switch n := e.(type) {
	case *ast.IntLit:
		return ir.IntConst{Value: n.Value}
	case *ast.BoolLit:
		return ir.BoolConst{Value: n.Value}
	case *ast.StringLit:
		return ir.StringConst{Index: b.internString(n.Value)}
	case *ast.NullLit:
		return ir.IntConst{Value: 0}
	case *ast.ThisExpr:
		return ir.RegRef{Reg: b.thisReg}
	case *ast.Ident:
		ve := b.res.Refs[n]
		return b.readVar(ve)
	case *ast.BinaryExpr:
		return b.lowerBinary(n)
	case *ast.UnaryExpr:
		return b.lowerUnary(n)
	case *ast.IncDecExpr:
		return b.lowerIncDec(n)
	case *ast.AssignExpr:
		return b.lowerAssign(n)
	case *ast.MemberExpr:
		// A plain read keeps the structured address so the emitter can
		// fold it into one memory reference; only read-modify-write
		// lvalues hoist the address into a register.
		return ir.Mem{Address: b.memberAddr(n), Width: 8}
	case *ast.IndexExpr:
		return ir.Mem{Address: b.indexAddr(n), Width: 8}
	case *ast.CallExpr:
		return b.lowerCall(n)
	case *ast.NewExpr:
		return b.lowerNew(n)
	default:
		panic(b.internal("lowerExpr: unreachable case %T", e))
	}
}

// readVar produces the value of a variable reference. Globals and members
// live in memory; locals, parameters, and this live in their home
// register. A bare member name inside a method reads through the implicit
// this pointer.
func (b *builder) readVar(ve *sema.VariableEntity) ir.Expr {
	switch ve.Storage {
	case sema.Global:
		return ir.Mem{Address: ir.GlobalAddr{Name: ve.Name}, Width: 8}
	case sema.Member:
		return ir.Mem{Address: b.implicitMemberAddr(ve), Width: 8}
	}
	return ir.RegRef{Reg: b.varRegs[ve]}
}

// implicitMemberAddr addresses a bare member reference through this.
func (b *builder) implicitMemberAddr(ve *sema.VariableEntity) ir.Expr {
	offset := b.res.MemberOffset(b.curClass, ve.Name)
	return ir.BinExpr{Op: ir.Add, Left: ir.RegRef{Reg: b.thisReg}, Right: ir.IntConst{Value: int64(offset)}}
}

// materialize copies e's value into a fresh register. Always fresh, even
// for a bare RegRef: returning a variable's home register would let the
// caller clobber it (short-circuit writes the right-hand result into the
// destination) or observe later writes (postfix increment must return the
// value before the update). Redundant copies fall to copy propagation.
func (b *builder) materialize(e ir.Expr) ir.Reg {
	r := b.fn.NewReg()
	b.fn.Emit(ir.Assign{LHS: ir.RegRef{Reg: r}, RHS: e})
	return r
}

var binOpMap = map[ast.BinOp]ir.BinOp{
	ast.OpSub: ir.Sub, ast.OpMul: ir.Mul, ast.OpDiv: ir.Div, ast.OpMod: ir.Mod,
	ast.OpBitAnd: ir.BitAnd, ast.OpBitOr: ir.BitOr, ast.OpBitXor: ir.BitXor,
	ast.OpShl: ir.Shl, ast.OpShr: ir.Shr,
	ast.OpLt: ir.Lt, ast.OpLe: ir.Le, ast.OpGt: ir.Gt, ast.OpGe: ir.Ge,
	ast.OpEq: ir.Eq, ast.OpNe: ir.Ne,
}

func (b *builder) isString(e ast.Expr) bool {
	_, ok := b.res.ExprTypes[e].(sema.StringType)
	return ok
}

func (b *builder) lowerBinary(n *ast.BinaryExpr) ir.Expr {
	switch n.Op {
	case ast.OpAndAnd:
		return b.lowerShortCircuit(n.Left, n.Right, true)
	case ast.OpOrOr:
		return b.lowerShortCircuit(n.Left, n.Right, false)
	case ast.OpAdd:
		if b.isString(n.Left) || b.isString(n.Right) {
			l := b.lowerExpr(n.Left)
			r := b.lowerExpr(n.Right)
			res := b.fn.NewReg()
			b.fn.Emit(runtimeCall(runtimeStringConcat, res, l, r))
			return ir.RegRef{Reg: res}
		}
		return ir.BinExpr{Op: ir.Add, Left: b.lowerExpr(n.Left), Right: b.lowerExpr(n.Right)}
	case ast.OpEq, ast.OpNe, ast.OpLt, ast.OpLe, ast.OpGt, ast.OpGe:
		if b.isString(n.Left) && b.isString(n.Right) {
			l := b.lowerExpr(n.Left)
			r := b.lowerExpr(n.Right)
			cmp := b.fn.NewReg()
			b.fn.Emit(runtimeCall(runtimeStringCompare, cmp, l, r))
			return ir.BinExpr{Op: binOpMap[n.Op], Left: ir.RegRef{Reg: cmp}, Right: ir.IntConst{Value: 0}}
		}
		fallthrough
	default:
		return ir.BinExpr{Op: binOpMap[n.Op], Left: b.lowerExpr(n.Left), Right: b.lowerExpr(n.Right)}
	}
}

// lowerShortCircuit implements `a && b` (isAnd) / `a || b` in a
// value-producing context: evaluate a into t; if a already
// decides the result, skip b; otherwise evaluate b into t.
func (b *builder) lowerShortCircuit(left, right ast.Expr, isAnd bool) ir.Expr {
	t := b.materialize(b.lowerExpr(left))
	evalRight := b.fn.NewLabel()
	end := b.fn.NewLabel()
	zero := ir.IntConst{Value: 0}
	cond := ir.BinExpr{Op: ir.Eq, Left: ir.RegRef{Reg: t}, Right: zero}
	if isAnd {
		// false already decides the result; only && continues when a is true.
		b.fn.Emit(ir.CJump{Cond: cond, ThenLabel: end, ElseLabel: evalRight})
	} else {
		b.fn.Emit(ir.CJump{Cond: cond, ThenLabel: evalRight, ElseLabel: end})
	}
	b.fn.Emit(ir.LabelStmt{L: evalRight})
	rv := b.lowerExpr(right)
	b.fn.Emit(ir.Assign{LHS: ir.RegRef{Reg: t}, RHS: rv})
	b.fn.Emit(ir.LabelStmt{L: end})
	return ir.RegRef{Reg: t}
}

// lowerCond lowers e as a branch condition directly into CJump targets,
// fusing comparisons and short-circuit operators instead of materializing
// an intermediate boolean.
func (b *builder) lowerCond(e ast.Expr, thenL, elseL ir.Label) {
	switch n := e.(type) {
	case *ast.BinaryExpr:
		switch n.Op {
		case ast.OpAndAnd:
			mid := b.fn.NewLabel()
			b.lowerCond(n.Left, mid, elseL)
			b.fn.Emit(ir.LabelStmt{L: mid})
			b.lowerCond(n.Right, thenL, elseL)
			return
		case ast.OpOrOr:
			mid := b.fn.NewLabel()
			b.lowerCond(n.Left, thenL, mid)
			b.fn.Emit(ir.LabelStmt{L: mid})
			b.lowerCond(n.Right, thenL, elseL)
			return
		case ast.OpLt, ast.OpLe, ast.OpGt, ast.OpGe, ast.OpEq, ast.OpNe:
			b.fn.Emit(ir.CJump{Cond: b.lowerBinary(n), ThenLabel: thenL, ElseLabel: elseL})
			return
		}
	case *ast.UnaryExpr:
		if n.Op == ast.OpNot {
			b.lowerCond(n.X, elseL, thenL)
			return
		}
	}
	v := b.lowerExpr(e)
	b.fn.Emit(ir.CJump{Cond: v, ThenLabel: thenL, ElseLabel: elseL})
}

func (b *builder) lowerUnary(n *ast.UnaryExpr) ir.Expr {
	x := b.lowerExpr(n.X)
	var op ir.UnOp
	switch n.Op {
	case ast.OpNeg:
		op = ir.Neg
	case ast.OpNot:
		op = ir.Not
	case ast.OpBitNot:
		op = ir.BitNot
	}
	return ir.UnExpr{Op: op, X: x}
}

// --- lvalues ---

// lvKind distinguishes a register-resident lvalue (a local, parameter, or
// `this`) from a memory lvalue (a member field or array element), which
// carries a hoisted address computed exactly once.
type lvKind int

const (
	lvReg lvKind = iota
	lvMem
)

type lvalue struct {
	kind lvKind
	reg  ir.Reg // lvReg
	addr ir.Reg // lvMem: holds the hoisted address
}

func (b *builder) readLV(lv lvalue) ir.Expr {
	if lv.kind == lvReg {
		return ir.RegRef{Reg: lv.reg}
	}
	return ir.Mem{Address: ir.RegRef{Reg: lv.addr}, Width: 8}
}

func (b *builder) writeLV(lv lvalue, val ir.Expr) {
	if lv.kind == lvReg {
		b.fn.Emit(ir.Assign{LHS: ir.RegRef{Reg: lv.reg}, RHS: val})
		return
	}
	b.fn.Emit(ir.Assign{LHS: ir.Mem{Address: ir.RegRef{Reg: lv.addr}, Width: 8}, RHS: val})
}

func (b *builder) lowerLValue(e ast.Expr) lvalue {
	switch n := e.(type) {
	case *ast.Ident:
		ve := b.res.Refs[n]
		switch ve.Storage {
		case sema.Global:
			return lvalue{kind: lvMem, addr: b.materializeAddr(ir.GlobalAddr{Name: ve.Name})}
		case sema.Member:
			return lvalue{kind: lvMem, addr: b.materializeAddr(b.implicitMemberAddr(ve))}
		}
		return lvalue{kind: lvReg, reg: b.varRegs[ve]}
	case *ast.MemberExpr:
		return b.lowerMemberLV(n)
	case *ast.IndexExpr:
		return b.lowerIndexLV(n)
	default:
		panic(b.internal("lowerLValue: unreachable case %T", e))
	}
}

func (b *builder) materializeAddr(addr ir.Expr) ir.Reg {
	r := b.fn.NewReg()
	b.fn.Emit(ir.Assign{LHS: ir.RegRef{Reg: r}, RHS: addr})
	return r
}

// memberAddr builds e.f's address expression: base + offset(f).
func (b *builder) memberAddr(n *ast.MemberExpr) ir.Expr {
	className := b.classOf(n.X)
	base := b.lowerExpr(n.X)
	offset := b.res.MemberOffset(className, n.Field)
	return ir.BinExpr{Op: ir.Add, Left: base, Right: ir.IntConst{Value: int64(offset)}}
}

// indexAddr addresses e[i] against the array layout [count:i64][elem0]...:
// element i lives at base + 8 + i*8.
func (b *builder) indexAddr(n *ast.IndexExpr) ir.Expr {
	base := b.lowerExpr(n.X)
	idx := b.lowerExpr(n.Index)
	offset := ir.BinExpr{Op: ir.Add, Left: ir.IntConst{Value: 8}, Right: ir.BinExpr{Op: ir.Mul, Left: idx, Right: ir.IntConst{Value: 8}}}
	return ir.BinExpr{Op: ir.Add, Left: base, Right: offset}
}

// lowerMemberLV hoists e.f's address into a fresh register exactly once,
// so a side-effecting base (a.getSelf().ct++) only evaluates the base and
// the offset addition a single time for the pair of read+write.
func (b *builder) lowerMemberLV(n *ast.MemberExpr) lvalue {
	return lvalue{kind: lvMem, addr: b.materializeAddr(b.memberAddr(n))}
}

func (b *builder) lowerIndexLV(n *ast.IndexExpr) lvalue {
	return lvalue{kind: lvMem, addr: b.materializeAddr(b.indexAddr(n))}
}

func (b *builder) classOf(e ast.Expr) string {
	if ct, ok := b.res.ExprTypes[e].(sema.ClassType); ok {
		return ct.Name
	}
	return ""
}

func (b *builder) lowerAssign(n *ast.AssignExpr) ir.Expr {
	lv := b.lowerLValue(n.LHS)
	val := b.lowerExpr(n.RHS)
	r := b.materialize(val)
	b.writeLV(lv, ir.RegRef{Reg: r})
	return ir.RegRef{Reg: r}
}

// lowerIncDec implements pre/post ++/--: the lvalue's address (if any) is
// computed once by lowerLValue, then shared by the read and the write.
func (b *builder) lowerIncDec(n *ast.IncDecExpr) ir.Expr {
	lv := b.lowerLValue(n.X)
	delta := int64(1)
	if !n.Inc {
		delta = -1
	}
	if n.Postfix {
		old := b.materialize(b.readLV(lv))
		newVal := ir.BinExpr{Op: ir.Add, Left: ir.RegRef{Reg: old}, Right: ir.IntConst{Value: delta}}
		b.writeLV(lv, newVal)
		return ir.RegRef{Reg: old}
	}
	newVal := ir.BinExpr{Op: ir.Add, Left: b.readLV(lv), Right: ir.IntConst{Value: delta}}
	nr := b.materialize(newVal)
	b.writeLV(lv, ir.RegRef{Reg: nr})
	return ir.RegRef{Reg: nr}
}

// --- calls ---

func (b *builder) lowerCall(n *ast.CallExpr) ir.Expr {
	if b.arraySizeReceiver(n) {
		base := b.lowerExpr(n.Recv)
		return ir.Mem{Address: base, Width: 8}
	}
	if fe, builtinSym, ok := b.builtin(n); ok {
		args := make([]ir.Expr, len(n.Args))
		for i, a := range n.Args {
			args[i] = b.lowerExpr(a)
		}
		res := ir.RegNone
		if _, void := fe.ReturnType.(sema.VoidType); !void {
			res = b.fn.NewReg()
		}
		b.fn.Emit(runtimeCall(builtinSym, res, args...))
		if res == ir.RegNone {
			return ir.IntConst{Value: 0}
		}
		return ir.RegRef{Reg: res}
	}

	var args []ir.Expr
	var symbol string
	var fe *sema.FunctionEntity
	if n.Recv == nil {
		symbol = symbolFor("", n.Name)
		if n.Name == "main" {
			// The source-level main is renamed so the synthesized entry
			// can own the linker's main; recursive calls follow it.
			symbol = userMainSymbol
		}
		fe = b.res.Functions[n.Name]
	} else {
		recvClass := b.classOf(n.Recv)
		owner, ownerFE, _ := b.res.ResolveMethod(recvClass, n.Name)
		symbol = symbolFor(owner, n.Name)
		fe = ownerFE
		args = append(args, b.lowerExpr(n.Recv))
	}
	for _, a := range n.Args {
		args = append(args, b.lowerExpr(a))
	}
	res := ir.RegNone
	if fe == nil {
		res = b.fn.NewReg()
	} else if _, void := fe.ReturnType.(sema.VoidType); !void {
		res = b.fn.NewReg()
	}
	b.fn.Emit(ir.Call{Target: ir.CallTarget{Symbol: symbol}, Args: args, Result: res})
	if res == ir.RegNone {
		return ir.IntConst{Value: 0}
	}
	return ir.RegRef{Reg: res}
}

func (b *builder) arraySizeReceiver(n *ast.CallExpr) bool {
	if n.Recv == nil || n.Name != "size" {
		return false
	}
	_, ok := b.res.ExprTypes[n.Recv].(sema.ArrayType)
	return ok
}

func (b *builder) builtin(n *ast.CallExpr) (*sema.FunctionEntity, string, bool) {
	if n.Recv != nil {
		return nil, "", false
	}
	fe, ok := b.res.Functions[n.Name]
	if !ok || !fe.Builtin {
		return nil, "", false
	}
	return fe, fe.Symbol, true
}

// --- object/array creation ---

// lowerNew implements `new T(...)` and `new T[n1][n2]...[nk]`.
func (b *builder) lowerNew(n *ast.NewExpr) ir.Expr {
	if len(n.Dims) == 0 {
		size := b.res.SizeOf(n.ClassType)
		obj := b.fn.NewReg()
		b.fn.Emit(runtimeCall(runtimeMalloc, obj, ir.IntConst{Value: int64(size)}))
		if _, _, ok := b.res.ResolveMethod(n.ClassType, n.ClassType); ok {
			args := make([]ir.Expr, 0, len(n.Args)+1)
			args = append(args, ir.RegRef{Reg: obj})
			for _, a := range n.Args {
				args = append(args, b.lowerExpr(a))
			}
			b.fn.Emit(ir.Call{Target: ir.CallTarget{Symbol: symbolFor(n.ClassType, n.ClassType)}, Args: args, Result: ir.RegNone})
		}
		return ir.RegRef{Reg: obj}
	}
	sizes := make([]ir.Reg, len(n.Dims))
	for i, d := range n.Dims {
		sizes[i] = b.materialize(b.lowerExpr(d))
	}
	return ir.RegRef{Reg: b.lowerArrayNew(sizes, 0)}
}

// lowerArrayNew allocates one dimension of a (possibly multi-dimensional)
// array: a block of size 8*n+8 (the leading word holds the count), then,
// for every dimension but the last, a loop that recurses to allocate and
// store each element's sub-array.
func (b *builder) lowerArrayNew(sizes []ir.Reg, depth int) ir.Reg {
	n := sizes[depth]
	blockSize := ir.BinExpr{Op: ir.Add, Left: ir.BinExpr{Op: ir.Mul, Left: ir.RegRef{Reg: n}, Right: ir.IntConst{Value: 8}}, Right: ir.IntConst{Value: 8}}
	arr := b.fn.NewReg()
	b.fn.Emit(runtimeCall(runtimeMalloc, arr, blockSize))
	b.fn.Emit(ir.Assign{LHS: ir.Mem{Address: ir.RegRef{Reg: arr}, Width: 8}, RHS: ir.RegRef{Reg: n}})

	if depth == len(sizes)-1 {
		return arr
	}

	i := b.fn.NewReg()
	b.fn.Emit(ir.Assign{LHS: ir.RegRef{Reg: i}, RHS: ir.IntConst{Value: 0}})
	head := b.fn.NewLabel()
	body := b.fn.NewLabel()
	end := b.fn.NewLabel()
	b.fn.Emit(ir.LabelStmt{L: head})
	cond := ir.BinExpr{Op: ir.Lt, Left: ir.RegRef{Reg: i}, Right: ir.RegRef{Reg: n}}
	b.fn.Emit(ir.CJump{Cond: cond, ThenLabel: body, ElseLabel: end})
	b.fn.Emit(ir.LabelStmt{L: body})
	sub := b.lowerArrayNew(sizes, depth+1)
	elemAddr := ir.BinExpr{Op: ir.Add, Left: ir.RegRef{Reg: arr}, Right: ir.BinExpr{Op: ir.Add, Left: ir.IntConst{Value: 8}, Right: ir.BinExpr{Op: ir.Mul, Left: ir.RegRef{Reg: i}, Right: ir.IntConst{Value: 8}}}}
	b.fn.Emit(ir.Assign{LHS: ir.Mem{Address: elemAddr, Width: 8}, RHS: ir.RegRef{Reg: sub}})
	b.fn.Emit(ir.Assign{LHS: ir.RegRef{Reg: i}, RHS: ir.BinExpr{Op: ir.Add, Left: ir.RegRef{Reg: i}, Right: ir.IntConst{Value: 1}}})
	b.fn.Emit(ir.Jump{Target: head})
	b.fn.Emit(ir.LabelStmt{L: end})
	return arr
}
