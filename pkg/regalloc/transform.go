package regalloc

import (
	"go.uber.org/zap"

	"github.com/mstar-lang/malic/internal/log"
	"github.com/mstar-lang/malic/pkg/cfg"
	"github.com/mstar-lang/malic/pkg/config"
	"github.com/mstar-lang/malic/pkg/dataflow"
	"github.com/mstar-lang/malic/pkg/ir"
	"github.com/mstar-lang/malic/pkg/x86"
)

// FrameInfo is what pkg/mach needs to finish a function's frame layout
// after allocation: the spill slots the allocator actually used and which
// callee-saved registers it handed out.
type FrameInfo struct {
	CalleeSaved   []x86.Reg
	NumSpillSlots int
	SpillOffsets  map[ir.Reg]int64
}

// Allocate assigns every virtual register in f a physical register or a
// spill slot and rewrites f.Instrs in place, establishing the closing
// invariant: after register allocation, every operand reads/writes
// either a physical register, a memory reference involving only physical
// registers, or an immediate. Functions whose local-variable count
// exceeds opts.NaiveAllocThreshold use the naive fallback instead.
func Allocate(f *x86.Func, opts config.Options) *FrameInfo {
	if opts.UseNaiveAllocator(f.Locals) {
		log.Phase("regalloc").Debug("naive fallback",
			zap.String("func", f.Name), zap.Int("locals", f.Locals))
		return allocateNaive(f)
	}
	return allocateGraphColoring(f)
}

const maxSpillRounds = 8

func allocateGraphColoring(f *x86.Func) *FrameInfo {
	lg := log.Phase("regalloc")
	offsets := map[ir.Reg]int64{}
	var slotCount int64
	for round := 0; round < maxSpillRounds; round++ {
		g := cfg.Build(f)
		live := dataflow.ComputeLiveness(g)
		graph := BuildInterference(g, live)
		res := newColoring(graph).run()
		if res.Spilled.Len() == 0 {
			applyColoring(f, res)
			lg.Debug("colored",
				zap.String("func", f.Name),
				zap.Int("rounds", round+1),
				zap.Int("coalesced", len(res.Alias)),
				zap.Int("spill_slots", int(slotCount)))
			return &FrameInfo{CalleeSaved: usedCalleeSaved(f), NumSpillSlots: int(slotCount), SpillOffsets: offsets}
		}
		lg.Debug("spill round",
			zap.String("func", f.Name),
			zap.Int("round", round+1),
			zap.Int("spilled", res.Spilled.Len()))
		slotCount = rewriteSpills(f, res.Spilled, offsets, slotCount)
	}
	// The round budget bounds compile time on pathological inputs, the
	// same concern the naive-mode threshold addresses; fall back to it
	// here too rather than loop indefinitely.
	return allocateNaive(f)
}

// applyColoring replaces every virtual-register operand with its assigned
// physical register.
func applyColoring(f *x86.Func, res *Result) {
	colorOf := func(s x86.RegSlot) x86.RegSlot {
		if !s.Virtual {
			return s
		}
		if c, ok := res.Color[s.VReg]; ok {
			return x86.PR(c)
		}
		return s
	}
	for i, ins := range f.Instrs {
		f.Instrs[i] = mapRegs(ins, colorOf)
	}
}

// rewriteSpills gives each actually-spilled register a unique stack slot
// and inserts a load before each of its uses and a store after each of
// its defs into a fresh short-lived virtual, then returns the updated
// slot count so the allocator can rerun from scratch on the rewritten
// stream.
func rewriteSpills(f *x86.Func, spilled RegSet, offsets map[ir.Reg]int64, slotCount int64) int64 {
	for r := range spilled {
		if _, ok := offsets[r]; !ok {
			slotCount++
			offsets[r] = -8 * slotCount
		}
	}
	next := ir.Reg(f.NumVRegs)
	var out []x86.Instruction
	for _, ins := range f.Instrs {
		loads := map[ir.Reg]ir.Reg{}
		stores := map[ir.Reg]ir.Reg{}
		for _, o := range ins.Uses() {
			if rv, ok := vregOf(o); ok && spilled[rv] {
				if _, ok := loads[rv]; !ok {
					loads[rv] = next
					next++
				}
			}
		}
		for _, o := range ins.Defs() {
			if rv, ok := vregOf(o); ok && spilled[rv] {
				if _, ok := stores[rv]; !ok {
					if fresh, already := loads[rv]; already {
						stores[rv] = fresh
					} else {
						stores[rv] = next
						next++
					}
				}
			}
		}
		fresh := func(s x86.RegSlot) x86.RegSlot {
			if !s.Virtual {
				return s
			}
			if v, ok := loads[s.VReg]; ok {
				return x86.VR(v)
			}
			if v, ok := stores[s.VReg]; ok {
				return x86.VR(v)
			}
			return s
		}
		for rv, fr := range loads {
			out = append(out, x86.Mov{Dst: x86.VReg(fr), Src: x86.FrameSlot(offsets[rv])})
		}
		out = append(out, mapRegs(ins, fresh))
		for rv, fr := range stores {
			out = append(out, x86.Mov{Dst: x86.FrameSlot(offsets[rv]), Src: x86.VReg(fr)})
		}
	}
	f.Instrs = out
	f.NumVRegs = int(next)
	return slotCount
}

// usedCalleeSaved reports which callee-saved registers the allocator
// actually assigned, so pkg/mach only pushes/pops the ones this function
// touches.
func usedCalleeSaved(f *x86.Func) []x86.Reg {
	used := map[x86.Reg]bool{}
	for _, ins := range f.Instrs {
		for _, o := range append(ins.Defs(), ins.Uses()...) {
			if o.Kind == x86.OpPReg {
				used[o.PReg] = true
			}
		}
	}
	var out []x86.Reg
	for _, r := range x86.CalleeSaved {
		if used[r] {
			out = append(out, r)
		}
	}
	return out
}

// allocateNaive materializes every virtual register onto the stack and
// round-trips each instruction's operands through two fixed scratch
// physical registers.
func allocateNaive(f *x86.Func) *FrameInfo {
	scratch := [2]x86.Reg{x86.R10, x86.R11}
	slotOf := map[ir.Reg]int64{}
	nextSlot := int64(0)
	slot := func(r ir.Reg) int64 {
		if off, ok := slotOf[r]; ok {
			return off
		}
		nextSlot++
		off := -8 * nextSlot
		slotOf[r] = off
		return off
	}

	var out []x86.Instruction
	for _, ins := range f.Instrs {
		assigned := map[ir.Reg]x86.Reg{}
		scratchIdx := 0
		nextScratch := func(r ir.Reg) x86.Reg {
			if p, ok := assigned[r]; ok {
				return p
			}
			p := scratch[scratchIdx%len(scratch)]
			scratchIdx++
			assigned[r] = p
			return p
		}
		uses := map[ir.Reg]bool{}
		defs := map[ir.Reg]bool{}
		for _, o := range ins.Uses() {
			if rv, ok := vregOf(o); ok {
				uses[rv] = true
			}
		}
		for _, o := range ins.Defs() {
			if rv, ok := vregOf(o); ok {
				defs[rv] = true
			}
		}
		mapped := func(s x86.RegSlot) x86.RegSlot {
			if !s.Virtual {
				return s
			}
			return x86.PR(nextScratch(s.VReg))
		}
		for rv := range uses {
			out = append(out, x86.Mov{Dst: x86.PReg(nextScratch(rv)), Src: x86.FrameSlot(slot(rv))})
		}
		out = append(out, mapRegs(ins, mapped))
		for rv := range defs {
			out = append(out, x86.Mov{Dst: x86.FrameSlot(slot(rv)), Src: x86.PReg(assigned[rv])})
		}
	}
	f.Instrs = out
	return &FrameInfo{CalleeSaved: nil, NumSpillSlots: int(nextSlot), SpillOffsets: slotOf}
}
