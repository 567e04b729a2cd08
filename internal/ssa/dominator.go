/*
 * Copyright 2022 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/** This is an implementation of the Lengauer-Tarjan algorithm described in
 *  https://doi.org/10.1145%2F357062.357071
 *
 *  Both the depth-first search and the path compression use explicit stacks,
 *  so huge flat CFGs do not blow up the goroutine stack.
 */

package ssa

import (
    `sort`

    `github.com/oleiade/lane`
    `github.com/cloudwego/jsir/internal/ir`
)

const (
    _InvalidIndex = -1
)

type _DfsTodo struct {
    node   int
    parent int
}

// DominatorTree keeps the immediate dominator of every block, indexed by the
// block index, plus the dominance frontiers once ComputeDF has been called.
type DominatorTree struct {
    fn       *ir.Function
    idom     []int
    df       [][]int
    dfnum    []int
    vertex   []int
    parent   []int
    ancestor []int
    semi     []int
    best     []int
    samedom  []int
    nv       int
}

func fillInvalid(n int) []int {
    ret := make([]int, n)
    for i := range ret {
        ret[i] = _InvalidIndex
    }
    return ret
}

// BuildDominatorTree computes the immediate dominators of every block
// reachable from block 0.
func BuildDominatorTree(fn *ir.Function) *DominatorTree {
    ret := &DominatorTree{fn: fn}
    ret.calculateIDoms()
    return ret
}

func (self *DominatorTree) dfs(root int) {
    st := lane.NewStack()
    todo := _DfsTodo{node: root, parent: _InvalidIndex}

    /* iterative pre-order DFS, the first successor is followed directly */
    for {
        if n := todo.node; self.dfnum[n] == _InvalidIndex {
            self.dfnum[n] = self.nv
            self.vertex[self.nv] = n
            self.parent[n] = todo.parent
            self.nv++

            /* postpone all the other successors */
            out := self.fn.Blocks[n].Out
            for i := len(out) - 1; i > 0; i-- {
                st.Push(_DfsTodo{node: out[i].Index(), parent: n})
            }

            /* continue with the first successor */
            if len(out) > 0 {
                todo = _DfsTodo{node: out[0].Index(), parent: n}
                continue
            }
        }

        /* nothing left to visit */
        if st.Empty() {
            break
        }

        /* pick the next one */
        todo = st.Pop().(_DfsTodo)
    }
}

func (self *DominatorTree) ancestorWithLowestSemi(v int, path []int) ([]int, int) {
    path = path[:0]
    for it := v; it != _InvalidIndex; it = self.ancestor[it] {
        path = append(path, it)
    }

    /* nothing to compress */
    if len(path) < 2 {
        return path, self.best[v]
    }

    /* compress the path, keeping track of the lowest semi-dominator */
    b := _InvalidIndex
    top := path[len(path) - 1]
    for i := len(path) - 2; i >= 0; i-- {
        it := path[i]
        self.ancestor[it] = top
        if b != _InvalidIndex && self.dfnum[self.semi[b]] < self.dfnum[self.semi[self.best[it]]] {
            self.best[it] = b
        } else {
            b = self.best[it]
        }
    }

    /* the best node of v */
    return path, b
}

func (self *DominatorTree) link(p int, n int) {
    self.ancestor[n] = p
    self.best[n] = n
}

func (self *DominatorTree) calculateIDoms() {
    nb := len(self.fn.Blocks)
    self.nv = 0
    self.idom = fillInvalid(nb)
    self.dfnum = fillInvalid(nb)
    self.vertex = fillInvalid(nb)
    self.parent = fillInvalid(nb)
    self.ancestor = fillInvalid(nb)
    self.semi = fillInvalid(nb)
    self.best = fillInvalid(nb)
    self.samedom = fillInvalid(nb)

    /* the entry block must not have any predecessors */
    if nb == 0 {
        return
    } else if len(self.fn.Blocks[0].In) != 0 {
        panic("dominator: entry block has predecessors")
    }

    /* Step 1: number the vertices in DFS order */
    self.dfs(0)

    /* Step 2 & 3: semi-dominators and implicit immediate dominators */
    var path []int
    bucket := make(map[int][]int)

    /* in decreasing DFS number order */
    for i := self.nv - 1; i > 0; i-- {
        n := self.vertex[i]
        p := self.parent[n]
        s := p

        /* find the semi-dominator candidate from every predecessor */
        for _, in := range self.fn.Blocks[n].In {
            var ss int
            v := in.Index()

            /* unreachable predecessors do not count */
            if self.dfnum[v] == _InvalidIndex {
                continue
            }

            /* forward edges use the predecessor itself */
            if self.dfnum[v] <= self.dfnum[n] {
                ss = v
            } else {
                path, ss = self.ancestorWithLowestSemi(v, path)
                ss = self.semi[ss]
            }

            /* keep the one with the lowest DFS number */
            if self.dfnum[ss] < self.dfnum[s] {
                s = ss
            }
        }

        /* defer the immediate dominator calculation */
        self.semi[n] = s
        bucket[s] = append(bucket[s], n)
        self.link(p, n)

        /* resolve everything depending on the parent */
        for _, v := range bucket[p] {
            var y int
            path, y = self.ancestorWithLowestSemi(v, path)
            if sv := self.semi[v]; self.semi[y] == sv {
                self.idom[v] = sv
            } else {
                self.samedom[v] = y
            }
        }

        /* clear the bucket */
        delete(bucket, p)
    }

    /* Step 4: explicitly define the deferred immediate dominators */
    for i := 1; i < self.nv; i++ {
        n := self.vertex[i]
        if sd := self.samedom[n]; sd != _InvalidIndex {
            self.idom[n] = self.idom[sd]
        }
    }
}

func (self *DominatorTree) children() [][]int {
    ret := make([][]int, len(self.fn.Blocks))
    for _, bb := range self.fn.Blocks {
        if !bb.IsRemoved() {
            if d := self.idomOf(bb.Index()); d != _InvalidIndex {
                ret[d] = append(ret[d], bb.Index())
            }
        }
    }
    return ret
}

// ComputeDF computes the dominance frontier of every live block, bottom-up
// over the dominator tree with an explicit worklist.
func (self *DominatorTree) ComputeDF() {
    nb := len(self.fn.Blocks)
    todo := self.children()
    kids := self.children()
    done := make([]bool, nb)
    mark := make([]bool, nb)
    self.df = make([][]int, nb)

    /* all the live blocks are roots of the work */
    st := lane.NewStack()
    for i := nb - 1; i >= 0; i-- {
        if !self.fn.Blocks[i].IsRemoved() {
            st.Push(i)
        }
    }

    /* post-order over the dominator tree */
    for !st.Empty() {
        node := st.Head().(int)

        /* already computed */
        if done[node] {
            st.Pop()
            continue
        }

        /* descend into the first child not done yet */
        for len(todo[node]) != 0 && done[todo[node][0]] {
            todo[node] = todo[node][1:]
        }
        if len(todo[node]) != 0 {
            st.Push(todo[node][0])
            continue
        }

        /* DF_local: successors not immediately dominated by the node */
        var s []int
        for _, y := range self.fn.Blocks[node].Out {
            if yi := y.Index(); self.idomOf(yi) != node && !mark[yi] {
                mark[yi] = true
                s = append(s, yi)
            }
        }

        /* DF_up: the frontier of the children not strictly dominated by the node */
        for _, c := range kids[node] {
            for _, w := range self.df[c] {
                if (node == w || !self.dominates(node, w)) && !mark[w] {
                    mark[w] = true
                    s = append(s, w)
                }
            }
        }

        /* reset the marks and keep the set ordered */
        for _, w := range s {
            mark[w] = false
        }

        /* the node is done */
        sort.Ints(s)
        self.df[node] = s
        done[node] = true
        st.Pop()
    }
}

// DominanceFrontier returns the dominance frontier of bb, ordered by block index.
func (self *DominatorTree) DominanceFrontier(bb *ir.BasicBlock) []*ir.BasicBlock {
    if self.df == nil {
        panic("dominator: dominance frontiers are not computed")
    }
    if bb.Index() >= len(self.df) {
        return nil
    }
    ret := make([]*ir.BasicBlock, len(self.df[bb.Index()]))
    for i, v := range self.df[bb.Index()] {
        ret[i] = self.fn.Blocks[v]
    }
    return ret
}

func (self *DominatorTree) idomOf(i int) int {
    if i >= 0 && i < len(self.idom) {
        return self.idom[i]
    } else {
        return _InvalidIndex
    }
}

// ImmediateDominator returns the immediate dominator of bb, or nil for the
// entry block and unreachable blocks.
func (self *DominatorTree) ImmediateDominator(bb *ir.BasicBlock) *ir.BasicBlock {
    if d := self.idomOf(bb.Index()); d == _InvalidIndex {
        return nil
    } else {
        return self.fn.Blocks[d]
    }
}

// SetImmediateDominator records a known dominance relation, growing the
// tree for blocks created after it was built.
func (self *DominatorTree) SetImmediateDominator(bb *ir.BasicBlock, dom *ir.BasicBlock) {
    if dom == nil {
        self.setIDomIndex(bb.Index(), _InvalidIndex)
    } else {
        self.setIDomIndex(bb.Index(), dom.Index())
    }
}

func (self *DominatorTree) setIDomIndex(i int, d int) {
    for len(self.idom) <= i {
        self.idom = append(self.idom, _InvalidIndex)
    }
    self.idom[i] = d
}

func (self *DominatorTree) dominates(dominator int, dominated int) bool {
    if dominator == dominated {
        return false
    }
    for it := self.idomOf(dominated); it != _InvalidIndex; it = self.idomOf(it) {
        if it == dominator {
            return true
        }
    }
    return false
}

// Dominates reports whether dominator strictly dominates dominated.
func (self *DominatorTree) Dominates(dominator *ir.BasicBlock, dominated *ir.BasicBlock) bool {
    return self.dominates(dominator.Index(), dominated.Index())
}

// CollectSiblings adds node and every live block sharing its immediate
// dominator to the set.
func (self *DominatorTree) CollectSiblings(node *ir.BasicBlock, set map[*ir.BasicBlock]struct{}) {
    set[node] = struct{}{}
    dom := self.idomOf(node.Index())

    /* the entry block has no siblings */
    if dom == _InvalidIndex {
        return
    }

    /* scan for blocks with the same dominator */
    for i, d := range self.idom {
        if d == dom && i < len(self.fn.Blocks) {
            if bb := self.fn.Blocks[i]; !bb.IsRemoved() {
                set[bb] = struct{}{}
            }
        }
    }
}

func (self *DominatorTree) intersect(a int, b int) int {
    seen := make(map[int]struct{})
    for it := a; it != _InvalidIndex; it = self.idomOf(it) {
        seen[it] = struct{}{}
    }
    for it := b; it != _InvalidIndex; it = self.idomOf(it) {
        if _, ok := seen[it]; ok {
            return it
        }
    }
    return _InvalidIndex
}

func (self *DominatorTree) lcaOfPredecessors(bb *ir.BasicBlock) int {
    lca := _InvalidIndex
    node := bb.Index()

    /* a single predecessor is the immediate dominator */
    if len(bb.In) == 1 && bb.In[0] != bb {
        return bb.In[0].Index()
    }

    /* LCA over all the forward edges */
    for _, in := range bb.In {
        if in == bb || self.dominates(node, in.Index()) {
            continue
        } else if lca == _InvalidIndex {
            lca = in.Index()
        } else {
            lca = self.intersect(lca, in.Index())
        }
    }

    /* no forward edge, keep the current one */
    if lca == _InvalidIndex {
        return self.idomOf(node)
    } else {
        return lca
    }
}

// RecalculateIDoms recomputes the immediate dominators of the given blocks
// after a non-looping edge change. Each block gets the least common ancestor
// of its forward predecessors; the blocks are revisited until nothing
// changes, since they may depend on each other.
func (self *DominatorTree) RecalculateIDoms(set map[*ir.BasicBlock]struct{}) {
    nodes := make([]*ir.BasicBlock, 0, len(set))
    for bb := range set {
        if !bb.IsRemoved() {
            nodes = append(nodes, bb)
        }
    }

    /* process in index order for determinism */
    sort.Slice(nodes, func(i int, j int) bool {
        return nodes[i].Index() < nodes[j].Index()
    })

    /* iterate to a fixpoint, bounded by the set size */
    for round := 0; round <= len(nodes); round++ {
        changed := false
        for _, bb := range nodes {
            if d := self.lcaOfPredecessors(bb); d != self.idomOf(bb.Index()) {
                changed = true
                self.setIDomIndex(bb.Index(), d)
            }
        }
        if !changed {
            break
        }
    }
}

func (self *DominatorTree) nodeDepths() []int {
    depth := fillInvalid(len(self.fn.Blocks))
    var chain []int

    /* walk up to a known depth, then assign on the way back */
    for _, bb := range self.fn.Blocks {
        if bb.IsRemoved() || depth[bb.Index()] != _InvalidIndex {
            continue
        }
        chain = chain[:0]
        it := bb.Index()
        for it != _InvalidIndex && depth[it] == _InvalidIndex {
            chain = append(chain, it)
            it = self.idomOf(it)
        }
        base := 0
        if it != _InvalidIndex {
            base = depth[it] + 1
        }
        for i := len(chain) - 1; i >= 0; i-- {
            depth[chain[i]] = base
            base++
        }
    }
    return depth
}

// CalculateDFNodeIterOrder returns the live blocks sorted by descending
// depth in the dominator tree. Every block comes before the blocks that
// dominate it.
func (self *DominatorTree) CalculateDFNodeIterOrder() []*ir.BasicBlock {
    depths := self.nodeDepths()
    order := self.fn.LiveBlocks()
    sort.SliceStable(order, func(i int, j int) bool {
        return depths[order[i].Index()] > depths[order[j].Index()]
    })
    return order
}

// MergeIntoPredecessor rewires every block dominated by successor to the
// immediate dominator of successor, which is about to be merged away.
func (self *DominatorTree) MergeIntoPredecessor(successor *ir.BasicBlock) {
    si := successor.Index()
    if si >= len(self.idom) {
        return
    }
    sd := self.idom[si]
    for i, d := range self.idom {
        if d == si {
            self.idom[i] = sd
        }
    }
}

// Children returns the blocks immediately dominated by every block, indexed
// by block index, each list ordered by block index.
func (self *DominatorTree) Children() [][]*ir.BasicBlock {
    kids := self.children()
    ret := make([][]*ir.BasicBlock, len(kids))
    for i, v := range kids {
        for _, k := range v {
            ret[i] = append(ret[i], self.fn.Blocks[k])
        }
    }
    return ret
}
