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

package ssa

import (
    `sort`

    `github.com/oleiade/lane`
    `github.com/cloudwego/jsir/internal/ir`
)

// VariableCollector finds, for every virtual register, the blocks defining
// it, and whether it is live across a block boundary.
type VariableCollector struct {
    defsites  map[int][]*ir.BasicBlock
    killed    map[*ir.BasicBlock]map[int]bool
    nonLocals map[int]bool
}

func NewVariableCollector(fn *ir.Function) *VariableCollector {
    ret := &VariableCollector {
        defsites  : make(map[int][]*ir.BasicBlock),
        killed    : make(map[*ir.BasicBlock]map[int]bool),
        nonLocals : make(map[int]bool),
    }

    /* scan every block */
    for _, bb := range fn.LiveBlocks() {
        ret.collect(bb)
    }
    return ret
}

func (self *VariableCollector) collect(bb *ir.BasicBlock) {
    kills := make(map[int]bool)
    self.killed[bb] = kills

    /* uses come before the definition in the same statement */
    for _, s := range bb.Stmts {
        for _, t := range ir.UsedTemps(s) {
            if t.Kind == ir.VirtualRegister && !kills[t.Index] {
                self.nonLocals[t.Index] = true
            }
        }

        /* record the definition */
        if t := ir.Definition(s); t != nil && t.Kind == ir.VirtualRegister && !kills[t.Index] {
            kills[t.Index] = true
            self.defsites[t.Index] = append(self.defsites[t.Index], bb)
        }
    }
}

// NonLocals returns every temp used in a block it is not defined in first,
// in ascending order.
func (self *VariableCollector) NonLocals() []int {
    ret := make([]int, 0, len(self.nonLocals))
    for t := range self.nonLocals {
        ret = append(ret, t)
    }
    sort.Ints(ret)
    return ret
}

func (self *VariableCollector) DefSites(t int) []*ir.BasicBlock {
    return self.defsites[t]
}

func (self *VariableCollector) DefinedIn(t int, bb *ir.BasicBlock) bool {
    return self.killed[bb][t]
}

func insertPhiNode(fn *ir.Function, index int, bb *ir.BasicBlock) {
    p := bb.Phi(fn.NewTemp(index))
    for i := range p.Incoming {
        p.Incoming[i] = fn.NewTemp(index)
    }
}

// ConvertToSSA places the Phi nodes for semi-pruned SSA and renames every
// virtual register so it has exactly one definition. The dominance
// frontiers of dt must be computed.
func ConvertToSSA(fn *ir.Function, dt *DominatorTree, du *DefUses) {
    vars := NewVariableCollector(fn)
    phis := make(map[*ir.BasicBlock]map[int]bool)

    /* iterated dominance frontier of every non-local temp */
    for _, a := range vars.NonLocals() {
        w := lane.NewQueue()
        for _, bb := range vars.DefSites(a) {
            w.Enqueue(bb)
        }

        /* place the Phi nodes */
        for !w.Empty() {
            n := w.Dequeue().(*ir.BasicBlock)
            for _, y := range dt.DominanceFrontier(n) {
                if phis[y] == nil {
                    phis[y] = make(map[int]bool)
                }

                /* already has one */
                if phis[y][a] {
                    continue
                }

                /* the Phi is a new definition of a */
                insertPhiNode(fn, a, y)
                phis[y][a] = true

                /* propagate further */
                if !vars.DefinedIn(a, y) {
                    w.Enqueue(y)
                }
            }
        }
    }

    /* rename everything */
    newVariableRenamer(fn, dt, du).run()
}

const (
    _RenameBlock = iota
    _RestoreTemp
)

type _RenameAction struct {
    kind  int
    bb    *ir.BasicBlock
    temp  int
    prev  int
}

type _VariableRenamer struct {
    fn      *ir.Function
    du      *DefUses
    kids    [][]*ir.BasicBlock
    todo    *lane.Stack
    mapping []int
    count   int
    undo    []_RenameAction
}

func newVariableRenamer(fn *ir.Function, dt *DominatorTree, du *DefUses) *_VariableRenamer {
    return &_VariableRenamer {
        fn      : fn,
        du      : du,
        kids    : dt.Children(),
        todo    : lane.NewStack(),
        mapping : fillInvalid(fn.TempCount),
    }
}

func (self *_VariableRenamer) run() {
    self.todo.Push(_RenameAction{kind: _RenameBlock, bb: self.fn.Blocks[0]})

    /* walk the dominator tree */
    for !self.todo.Empty() {
        switch act := self.todo.Pop().(_RenameAction); act.kind {
            case _RenameBlock : self.rename(act.bb)
            case _RestoreTemp : self.mapping[act.temp] = act.prev
        }
    }

    /* every temp index is fresh now */
    self.fn.TempCount = self.count
}

func (self *_VariableRenamer) rename(bb *ir.BasicBlock) {
    self.undo = self.undo[:0]

    /* rename the statements */
    for _, s := range bb.Stmts {
        self.renameStmt(bb, s)
    }

    /* fill in the Phi operands of the successors */
    for i, succ := range bb.Out {
        if bb.IndexOfOut(succ) != i {
            continue
        }

        /* both edges of a CJump may lead to the same block */
        for j, in := range succ.In {
            if in == bb {
                for _, p := range succ.Phis() {
                    self.renameUse(&p.Incoming[j], p)
                }
            }
        }
    }

    /* restore the mapping after the dominated blocks are done */
    for _, v := range self.undo {
        self.todo.Push(v)
    }

    /* the dominated blocks, the first one on the top */
    if i := bb.Index(); i < len(self.kids) {
        for k := len(self.kids[i]) - 1; k >= 0; k-- {
            self.todo.Push(_RenameAction{kind: _RenameBlock, bb: self.kids[i][k]})
        }
    }
}

func (self *_VariableRenamer) renameStmt(bb *ir.BasicBlock, s ir.Stmt) {
    var def *ir.Temp
    switch v := s.(type) {
        case *ir.Phi  : def = v.Target
        case *ir.Move : def = ir.AsTemp(v.Target)
    }

    /* the operands of a Phi are renamed from the predecessors */
    if _, ok := s.(*ir.Phi); !ok {
        ir.WalkUses(s, func(p *ir.Expr) bool {
            if ir.IsVirtualTemp(*p) {
                self.renameUse(p, s)
                return false
            }
            return true
        })
    }

    /* the definition gets a fresh index */
    if def != nil && def.Kind == ir.VirtualRegister {
        self.undo = append(self.undo, _RenameAction {
            kind : _RestoreTemp,
            temp : def.Index,
            prev : self.mapping[def.Index],
        })
        self.mapping[def.Index] = self.count
        def.Index = self.count
        self.count++
        self.du.AddDef(def, s, bb)
    }
}

// renameUse rewrites the temp in slot p to its current version. A temp read
// before any definition reaching it is undefined.
func (self *_VariableRenamer) renameUse(p *ir.Expr, s ir.Stmt) {
    t := (*p).(*ir.Temp)
    if t.Index >= len(self.mapping) || self.mapping[t.Index] == _InvalidIndex {
        *p = self.fn.NewUndefined()
        return
    }
    t.Index = self.mapping[t.Index]
    self.du.AddUse(t, s)
}

// CleanupPhis removes every group of Phi nodes that are only used by each
// other.
func CleanupPhis(du *DefUses) {
    var all []*ir.Phi
    dead := make(map[*ir.Phi]bool)

    /* find the dead groups */
    for _, i := range du.Defs() {
        if p, ok := du.DefStmt(i).(*ir.Phi); ok {
            all = append(all, p)
            if !dead[p] {
                if group := phiOnlyGroup(du, p); group != nil {
                    for _, v := range group {
                        dead[v] = true
                    }
                }
            }
        }
    }

    /* remove them */
    for _, p := range all {
        if dead[p] {
            du.DefBlock(p.Target.Index).RemoveStmt(p)
            for _, i := range du.UsedVars(p) {
                du.RemoveUse(p, i)
            }
            du.RemoveDef(p.Target.Index)
        }
    }
}

// phiOnlyGroup returns the Phi nodes transitively using p, p included, if
// none of them is used by anything else than a Phi. Otherwise it returns nil.
func phiOnlyGroup(du *DefUses, p *ir.Phi) []*ir.Phi {
    st := lane.NewStack()
    seen := map[*ir.Phi]bool { p: true }
    ret := []*ir.Phi { p }

    /* follow the uses */
    for st.Push(p); !st.Empty(); {
        for _, use := range du.Uses(st.Pop().(*ir.Phi).Target.Index) {
            if q, ok := use.(*ir.Phi); !ok {
                return nil
            } else if !seen[q] {
                seen[q] = true
                ret = append(ret, q)
                st.Push(q)
            }
        }
    }

    /* all the users are Phis */
    return ret
}
