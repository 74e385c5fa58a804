package irbuild

import (
	"github.com/mstar-lang/malic/pkg/ast"
	"github.com/mstar-lang/malic/pkg/ir"
)

func (b *builder) lowerStmt(s ast.Stmt) error {
	switch n := s.(type) {
	case *ast.VarDecl:
		return b.lowerVarDecl(n)
	case *ast.BlockStmt:
		for _, st := range n.Stmts {
			if err := b.lowerStmt(st); err != nil {
				return err
			}
		}
		return nil
	case *ast.ExprStmt:
		b.lowerExpr(n.X)
		return nil
	case *ast.IfStmt:
		return b.lowerIf(n)
	case *ast.WhileStmt:
		return b.lowerWhile(n)
	case *ast.ForStmt:
		return b.lowerFor(n)
	case *ast.ReturnStmt:
		if n.Value == nil {
			b.fn.Emit(ir.Return{})
			return nil
		}
		v := b.lowerExpr(n.Value)
		b.fn.Emit(ir.Return{Value: v})
		return nil
	case *ast.BreakStmt:
		if len(b.breakLabels) == 0 {
			return b.internal("lowerStmt: break outside loop")
		}
		b.fn.Emit(ir.Jump{Target: b.breakLabels[len(b.breakLabels)-1]})
		return nil
	case *ast.ContinueStmt:
		if len(b.continueLabels) == 0 {
			return b.internal("lowerStmt: continue outside loop")
		}
		b.fn.Emit(ir.Jump{Target: b.continueLabels[len(b.continueLabels)-1]})
		return nil
	default:
		return b.internal("lowerStmt: unreachable case %T", s)
	}
}

// lowerVarDecl allocates the home register for a local variable (looked up
// by its declaration node in res.Decls) and emits its initializer, if any.
func (b *builder) lowerVarDecl(n *ast.VarDecl) error {
	ve, ok := b.res.Decls[n]
	if !ok {
		return b.internal("lowerVarDecl: no entity recorded for %q", n.Name)
	}
	r := b.fn.NewReg()
	b.varRegs[ve] = r
	if n.Init != nil {
		v := b.lowerExpr(n.Init)
		b.fn.Emit(ir.Assign{LHS: ir.RegRef{Reg: r}, RHS: v})
	}
	return nil
}

func (b *builder) lowerIf(n *ast.IfStmt) error {
	thenL := b.fn.NewLabel()
	elseL := b.fn.NewLabel()
	endL := b.fn.NewLabel()
	b.lowerCond(n.Cond, thenL, elseL)
	b.fn.Emit(ir.LabelStmt{L: thenL})
	if err := b.lowerStmt(n.Then); err != nil {
		return err
	}
	b.fn.Emit(ir.Jump{Target: endL})
	b.fn.Emit(ir.LabelStmt{L: elseL})
	if n.Else != nil {
		if err := b.lowerStmt(n.Else); err != nil {
			return err
		}
	}
	b.fn.Emit(ir.LabelStmt{L: endL})
	return nil
}

func (b *builder) lowerWhile(n *ast.WhileStmt) error {
	headL := b.fn.NewLabel()
	bodyL := b.fn.NewLabel()
	endL := b.fn.NewLabel()
	b.fn.Emit(ir.LabelStmt{L: headL})
	b.lowerCond(n.Cond, bodyL, endL)
	b.fn.Emit(ir.LabelStmt{L: bodyL})
	b.breakLabels = append(b.breakLabels, endL)
	b.continueLabels = append(b.continueLabels, headL)
	err := b.lowerStmt(n.Body)
	b.breakLabels = b.breakLabels[:len(b.breakLabels)-1]
	b.continueLabels = b.continueLabels[:len(b.continueLabels)-1]
	if err != nil {
		return err
	}
	b.fn.Emit(ir.Jump{Target: headL})
	b.fn.Emit(ir.LabelStmt{L: endL})
	return nil
}

func (b *builder) lowerFor(n *ast.ForStmt) error {
	if n.Init != nil {
		if err := b.lowerStmt(n.Init); err != nil {
			return err
		}
	}
	headL := b.fn.NewLabel()
	bodyL := b.fn.NewLabel()
	postL := b.fn.NewLabel()
	endL := b.fn.NewLabel()
	b.fn.Emit(ir.LabelStmt{L: headL})
	if n.Cond != nil {
		b.lowerCond(n.Cond, bodyL, endL)
	} else {
		b.fn.Emit(ir.Jump{Target: bodyL})
	}
	b.fn.Emit(ir.LabelStmt{L: bodyL})
	b.breakLabels = append(b.breakLabels, endL)
	b.continueLabels = append(b.continueLabels, postL)
	err := b.lowerStmt(n.Body)
	b.breakLabels = b.breakLabels[:len(b.breakLabels)-1]
	b.continueLabels = b.continueLabels[:len(b.continueLabels)-1]
	if err != nil {
		return err
	}
	b.fn.Emit(ir.LabelStmt{L: postL})
	if n.Post != nil {
		if err := b.lowerStmt(n.Post); err != nil {
			return err
		}
	}
	b.fn.Emit(ir.Jump{Target: headL})
	b.fn.Emit(ir.LabelStmt{L: endL})
	return nil
}
