package dataflow

import (
	"go.uber.org/zap"

	"github.com/mstar-lang/malic/internal/log"
	"github.com/mstar-lang/malic/pkg/cfg"
	"github.com/mstar-lang/malic/pkg/x86"
)

// Optimize runs the fixed pipeline (liveness, constant propagation, copy
// propagation, dead-store elimination) to fixpoint, then hands back f
// with its instruction stream rewritten. Each rewrite
// invalidates later sets, so the driver rebuilds the CFG and recomputes
// liveness every round until nothing changes.
func Optimize(f *x86.Func) *x86.Func {
	return OptimizeReporting(f, nil)
}

// OptimizeReporting is Optimize with a hook for every instruction DSE
// drops, used by the CLI's --print-remove.
func OptimizeReporting(f *x86.Func, onRemove func(x86.Instruction)) *x86.Func {
	lg := log.Phase("dataflow")
	rounds, removed := 0, 0
	counting := func(ins x86.Instruction) {
		removed++
		if onRemove != nil {
			onRemove(ins)
		}
	}
	for {
		rounds++
		g := cfg.Build(f)
		cChanged := ConstProp(g)
		pChanged := CopyProp(g)
		live := ComputeLiveness(g)
		dChanged := DSE(g, live, counting)
		f.Instrs = g.Instrs()
		if !cChanged && !pChanged && !dChanged {
			lg.Debug("fixpoint reached",
				zap.String("func", f.Name),
				zap.Int("rounds", rounds),
				zap.Int("dead_stores_removed", removed))
			return f
		}
	}
}
