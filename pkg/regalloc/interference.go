// Package regalloc implements the graph-coloring register allocator:
// interference graph construction, Chaitin-Briggs simplify/coalesce/
// freeze/spill/select using IRC worklists and Briggs coalescing, spill
// rewriting, and a naive stack allocator fallback for pathologically
// large functions. Virtual registers are colored into x86-64 GPRs; spill
// slots and callee-save tracking feed the allocator's FrameInfo.
package regalloc

import (
	"github.com/mstar-lang/malic/pkg/cfg"
	"github.com/mstar-lang/malic/pkg/dataflow"
	"github.com/mstar-lang/malic/pkg/ir"
	"github.com/mstar-lang/malic/pkg/x86"
)

// RegSet is a set of virtual registers.
type RegSet map[ir.Reg]bool

func NewRegSet() RegSet { return make(RegSet) }

func (s RegSet) Add(r ir.Reg)           { s[r] = true }
func (s RegSet) Contains(r ir.Reg) bool { return s[r] }
func (s RegSet) Remove(r ir.Reg)        { delete(s, r) }
func (s RegSet) Len() int               { return len(s) }

func (s RegSet) Union(o RegSet) RegSet {
	out := make(RegSet, len(s)+len(o))
	for r := range s {
		out[r] = true
	}
	for r := range o {
		out[r] = true
	}
	return out
}

func (s RegSet) Minus(o RegSet) RegSet {
	out := make(RegSet, len(s))
	for r := range s {
		if !o[r] {
			out[r] = true
		}
	}
	return out
}

func (s RegSet) Equal(o RegSet) bool {
	if len(s) != len(o) {
		return false
	}
	for r := range s {
		if !o[r] {
			return false
		}
	}
	return true
}

// InterferenceGraph is an undirected graph over virtual registers: an
// edge (a,b) means a and b are simultaneously live at some program point
//. Moves records register-to-register copies as
// coalescing candidates; Forbidden records colors a node may never take
// because of a fixed-register ABI constraint (call clobber, IDIV pin)
// rather than an interference with another virtual register.
type InterferenceGraph struct {
	Nodes     RegSet
	Edges     map[ir.Reg]RegSet
	Moves     map[ir.Reg]RegSet
	MoveList  [][2]ir.Reg
	Forbidden map[ir.Reg]map[x86.Reg]bool
	UseCount  map[ir.Reg]int
}

func NewInterferenceGraph() *InterferenceGraph {
	return &InterferenceGraph{
		Nodes:     NewRegSet(),
		Edges:     make(map[ir.Reg]RegSet),
		Moves:     make(map[ir.Reg]RegSet),
		Forbidden: make(map[ir.Reg]map[x86.Reg]bool),
		UseCount:  make(map[ir.Reg]int),
	}
}

func (g *InterferenceGraph) AddNode(r ir.Reg) {
	g.Nodes.Add(r)
	if g.Edges[r] == nil {
		g.Edges[r] = NewRegSet()
	}
	if g.Moves[r] == nil {
		g.Moves[r] = NewRegSet()
	}
}

func (g *InterferenceGraph) AddEdge(a, b ir.Reg) {
	if a == b {
		return
	}
	g.AddNode(a)
	g.AddNode(b)
	if !g.Edges[a][b] {
		g.Edges[a].Add(b)
		g.Edges[b].Add(a)
	}
}

func (g *InterferenceGraph) AddMove(dst, src ir.Reg) {
	g.AddNode(dst)
	g.AddNode(src)
	g.Moves[dst].Add(src)
	g.Moves[src].Add(dst)
	g.MoveList = append(g.MoveList, [2]ir.Reg{dst, src})
}

func (g *InterferenceGraph) Degree(r ir.Reg) int { return len(g.Edges[r]) }

func (g *InterferenceGraph) MoveRelated(r ir.Reg) bool { return len(g.Moves[r]) > 0 }

func (g *InterferenceGraph) forbid(r ir.Reg, preg x86.Reg) {
	if g.Forbidden[r] == nil {
		g.Forbidden[r] = make(map[x86.Reg]bool)
	}
	g.Forbidden[r][preg] = true
}

// vregOf returns o's virtual register id, if o currently denotes one.
func vregOf(o x86.Operand) (ir.Reg, bool) {
	if o.Kind == x86.OpVReg {
		return o.VReg, true
	}
	if o.Kind == x86.OpMem {
		if o.Base.Virtual {
			return o.Base.VReg, true
		}
	}
	return 0, false
}

func vregDefs(ins x86.Instruction) []ir.Reg {
	var out []ir.Reg
	for _, o := range ins.Defs() {
		if o.Kind == x86.OpVReg {
			out = append(out, o.VReg)
		}
	}
	return out
}

// BuildInterference walks fn's instruction stream under the liveness
// computed for it and constructs the interference graph: for
// each instruction, every def interferes with everything live immediately
// after it, minus itself; every caller-saved register interferes with
// every virtual register live across a call, modeled here as a Forbidden
// color rather than a graph edge to a physical-register node, since graph
// nodes are restricted to virtual registers.
func BuildInterference(fn *cfg.Func, live *dataflow.Liveness) *InterferenceGraph {
	g := NewInterferenceGraph()
	for _, b := range fn.Blocks {
		outSets := live.LiveOut[b.ID]
		for i, ins := range b.Instrs {
			for _, o := range ins.Uses() {
				if r, ok := vregOf(o); ok {
					g.AddNode(r)
					g.UseCount[r]++
				}
			}
			after := outSets[i]
			defs := vregDefs(ins)
			for _, d := range defs {
				g.AddNode(d)
				for k := range after {
					if k.Virtual && ir.Reg(k.VReg) != d {
						g.AddEdge(d, ir.Reg(k.VReg))
					} else if !k.Virtual {
						// Defining a virtual while a pinned physical
						// register holds a live value (call result in
						// RAX, shift count in RCX) excludes that color.
						g.forbid(d, k.PReg)
					}
				}
			}
			// Any physical def (a call's clobber set, IDIV's RAX/RDX
			// pin, an ABI argument mov) excludes that color from every
			// virtual register live across the instruction.
			for _, o := range ins.Defs() {
				if o.Kind != x86.OpPReg {
					continue
				}
				for k := range after {
					if k.Virtual {
						g.forbid(ir.Reg(k.VReg), o.PReg)
					}
				}
			}
			if mv, ok := ins.(x86.Mov); ok {
				if dr, ok1 := vregOf(mv.Dst); ok1 {
					if sr, ok2 := vregOf(mv.Src); ok2 {
						g.AddMove(dr, sr)
					}
				}
			}
		}
	}
	return g
}
