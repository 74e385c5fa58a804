package regalloc

import (
	"github.com/mstar-lang/malic/pkg/ir"
	"github.com/mstar-lang/malic/pkg/x86"
)

// K is the number of allocatable colors: every general-purpose register
// except rsp/rbp, which pkg/x86.Allocatable already excludes.
var K = len(x86.Allocatable)

// coloring runs one Chaitin-Briggs simplify/coalesce/freeze/spill/select
// pass over a single interference graph and reports, per node, either an
// assigned color or that it was actually spilled.
type coloring struct {
	g *InterferenceGraph

	degree map[ir.Reg]int
	alias  map[ir.Reg]ir.Reg // coalesced node -> representative

	simplifyWL []ir.Reg
	freezeWL   []ir.Reg
	spillWL    []ir.Reg
	selectStk  []ir.Reg

	coalesced RegSet
	colored   RegSet
	spilled   RegSet

	worklistMoves    [][2]ir.Reg
	activeMoves      map[[2]ir.Reg]bool
	coalescedMoves   map[[2]ir.Reg]bool
	constrainedMoves map[[2]ir.Reg]bool
	frozenMoves      map[[2]ir.Reg]bool

	color map[ir.Reg]x86.Reg
}

// Result is the outcome of coloring one function: every successfully
// colored node's physical register, and the set that must actually be
// spilled to memory.
type Result struct {
	Color   map[ir.Reg]x86.Reg
	Spilled RegSet
	Alias   map[ir.Reg]ir.Reg
}

func newColoring(g *InterferenceGraph) *coloring {
	c := &coloring{
		g:                g,
		degree:           make(map[ir.Reg]int),
		alias:            make(map[ir.Reg]ir.Reg),
		coalesced:        NewRegSet(),
		colored:          NewRegSet(),
		spilled:          NewRegSet(),
		activeMoves:      make(map[[2]ir.Reg]bool),
		coalescedMoves:   make(map[[2]ir.Reg]bool),
		constrainedMoves: make(map[[2]ir.Reg]bool),
		frozenMoves:      make(map[[2]ir.Reg]bool),
		color:            make(map[ir.Reg]x86.Reg),
	}
	for r := range g.Nodes {
		c.degree[r] = g.Degree(r)
	}
	c.worklistMoves = append(c.worklistMoves, g.MoveList...)
	for r := range g.Nodes {
		if c.degree[r] >= K {
			c.spillWL = append(c.spillWL, r)
		} else if g.MoveRelated(r) {
			c.freezeWL = append(c.freezeWL, r)
		} else {
			c.simplifyWL = append(c.simplifyWL, r)
		}
	}
	return c
}

func moveKey(a, b ir.Reg) [2]ir.Reg { return [2]ir.Reg{a, b} }

func (c *coloring) nodeMoves(r ir.Reg) [][2]ir.Reg {
	var out [][2]ir.Reg
	for n := range c.g.Moves[r] {
		m := moveKey(r, n)
		rm := moveKey(n, r)
		if c.activeMovesOrPending(m) || c.activeMovesOrPending(rm) {
			out = append(out, m)
		}
	}
	return out
}

func (c *coloring) activeMovesOrPending(m [2]ir.Reg) bool {
	return !c.coalescedMoves[m] && !c.constrainedMoves[m] && !c.frozenMoves[m]
}

func (c *coloring) isMoveRelated(r ir.Reg) bool { return len(c.nodeMoves(r)) > 0 }

func (c *coloring) run() *Result {
	for len(c.simplifyWL) > 0 || len(c.worklistMoves) > 0 || len(c.freezeWL) > 0 || len(c.spillWL) > 0 {
		switch {
		case len(c.simplifyWL) > 0:
			c.simplify()
		case len(c.worklistMoves) > 0:
			c.coalesce()
		case len(c.freezeWL) > 0:
			c.freeze()
		case len(c.spillWL) > 0:
			c.selectSpill()
		}
	}
	c.assignColors()
	return &Result{Color: c.color, Spilled: c.spilled, Alias: c.alias}
}

func (c *coloring) adjacent(r ir.Reg) RegSet {
	out := NewRegSet()
	for n := range c.g.Edges[r] {
		if !c.coalesced[n] && !inStack(c.selectStk, n) {
			out.Add(n)
		}
	}
	return out
}

func inStack(stk []ir.Reg, r ir.Reg) bool {
	for _, s := range stk {
		if s == r {
			return true
		}
	}
	return false
}

func (c *coloring) simplify() {
	n := len(c.simplifyWL) - 1
	r := c.simplifyWL[n]
	c.simplifyWL = c.simplifyWL[:n]
	c.selectStk = append(c.selectStk, r)
	for m := range c.adjacent(r) {
		c.decrementDegree(m)
	}
}

func (c *coloring) decrementDegree(r ir.Reg) {
	d := c.degree[r]
	c.degree[r] = d - 1
	if d == K {
		adj := c.adjacent(r)
		adj.Add(r)
		for n := range adj {
			c.enableMoves(n)
		}
		c.removeFromSpillWL(r)
		if c.isMoveRelated(r) {
			c.freezeWL = append(c.freezeWL, r)
		} else {
			c.simplifyWL = append(c.simplifyWL, r)
		}
	}
}

func (c *coloring) enableMoves(r ir.Reg) {
	for _, m := range c.nodeMoves(r) {
		if !c.activeMoves[m] {
			c.activeMoves[m] = true
		}
	}
}

func (c *coloring) removeFromSpillWL(r ir.Reg) {
	out := c.spillWL[:0]
	for _, s := range c.spillWL {
		if s != r {
			out = append(out, s)
		}
	}
	c.spillWL = out
}

// coalesce applies Briggs' conservative criterion: merging a and b is
// safe if the combined node has fewer than K neighbors of significant
// (>=K) degree.
func (c *coloring) coalesce() {
	m := c.worklistMoves[len(c.worklistMoves)-1]
	c.worklistMoves = c.worklistMoves[:len(c.worklistMoves)-1]
	x, y := c.find(m[0]), c.find(m[1])
	if x == y {
		c.coalescedMoves[m] = true
		return
	}
	if c.g.Edges[x][y] {
		c.constrainedMoves[m] = true
		c.addToWL(x)
		c.addToWL(y)
		return
	}
	if c.briggsOK(x, y) {
		c.coalescedMoves[m] = true
		c.combine(x, y)
		c.addToWL(x)
	} else {
		c.activeMoves[m] = true
	}
}

func (c *coloring) addToWL(r ir.Reg) {
	if c.degree[r] < K && !c.isMoveRelated(r) {
		c.removeFromFreezeWL(r)
		c.simplifyWL = append(c.simplifyWL, r)
	}
}

func (c *coloring) removeFromFreezeWL(r ir.Reg) {
	out := c.freezeWL[:0]
	for _, s := range c.freezeWL {
		if s != r {
			out = append(out, s)
		}
	}
	c.freezeWL = out
}

func (c *coloring) briggsOK(a, b ir.Reg) bool {
	neighbors := c.adjacent(a).Union(c.adjacent(b))
	significant := 0
	for n := range neighbors {
		if c.degree[n] >= K {
			significant++
		}
	}
	return significant < K
}

func (c *coloring) find(r ir.Reg) ir.Reg {
	for {
		a, ok := c.alias[r]
		if !ok {
			return r
		}
		r = a
	}
}

func (c *coloring) combine(a, b ir.Reg) {
	c.removeFromFreezeWL(b)
	c.removeFromSpillWL(b)
	c.coalesced.Add(b)
	c.alias[b] = a
	for n := range c.g.Edges[b] {
		rn := c.find(n)
		if rn == a {
			continue
		}
		c.g.AddEdge(a, rn)
		c.decrementDegree(rn)
	}
	// propagate any fixed-register forbiddance from the coalesced node
	for preg := range c.g.Forbidden[b] {
		if c.g.Forbidden[a] == nil {
			c.g.Forbidden[a] = make(map[x86.Reg]bool)
		}
		c.g.Forbidden[a][preg] = true
	}
	if c.degree[a] >= K {
		c.removeFromFreezeWL(a)
		found := false
		for _, s := range c.spillWL {
			if s == a {
				found = true
			}
		}
		if !found {
			c.spillWL = append(c.spillWL, a)
		}
	}
}

// freeze turns a low-degree move-related node's moves into non-move
// candidates when neither simplify nor coalesce can proceed.
func (c *coloring) freeze() {
	n := len(c.freezeWL) - 1
	r := c.freezeWL[n]
	c.freezeWL = c.freezeWL[:n]
	c.simplifyWL = append(c.simplifyWL, r)
	c.freezeMoves(r)
}

func (c *coloring) freezeMoves(r ir.Reg) {
	for _, m := range c.nodeMoves(r) {
		c.frozenMoves[m] = true
		other := m[0]
		if other == r {
			other = m[1]
		}
		if !c.isMoveRelated(other) && c.degree[other] < K {
			c.removeFromFreezeWL(other)
			c.simplifyWL = append(c.simplifyWL, other)
		}
	}
}

// selectSpill picks the spill-worklist node with the lowest
// use_count/degree. The score has no loop-depth term: the instruction
// stream carries no loop-nesting information, so a node used inside a
// loop is not favored to stay in a register.
func (c *coloring) selectSpill() {
	var best ir.Reg
	bestScore := -1.0
	first := true
	for _, r := range c.spillWL {
		d := c.degree[r]
		if d == 0 {
			d = 1
		}
		score := float64(c.g.UseCount[r]) / float64(d)
		if first || score < bestScore {
			best, bestScore, first = r, score, false
		}
	}
	c.removeFromSpillWL(best)
	c.simplifyWL = append(c.simplifyWL, best)
	c.freezeMoves(best)
}

// assignColors pops the select stack, giving each node a color distinct
// from its already-colored (or precolored/forbidden) neighbors.
func (c *coloring) assignColors() {
	for i := len(c.selectStk) - 1; i >= 0; i-- {
		r := c.selectStk[i]
		used := map[x86.Reg]bool{}
		for preg := range c.g.Forbidden[r] {
			used[preg] = true
		}
		for n := range c.g.Edges[r] {
			rn := c.find(n)
			if col, ok := c.color[rn]; ok {
				used[col] = true
			}
		}
		assigned := false
		for _, preg := range x86.Allocatable {
			if !used[preg] {
				c.color[r] = preg
				c.colored.Add(r)
				assigned = true
				break
			}
		}
		if !assigned {
			c.spilled.Add(r)
		}
	}
	for b := range c.alias {
		if col, ok := c.color[c.find(b)]; ok {
			c.color[b] = col
		} else {
			c.spilled.Add(b)
		}
	}
}
