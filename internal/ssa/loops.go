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
    `github.com/oleiade/lane`
    `github.com/cloudwego/jsir/internal/ir`
)

// LoopInfo describes one natural loop. Body holds every block whose
// innermost containing loop is this one, nested loop headers included.
type LoopInfo struct {
    Header *ir.BasicBlock
    Body   []*ir.BasicBlock
    Nested []*LoopInfo
    Parent *LoopInfo
}

// Contains reports whether bb belongs to the loop or one of its nested loops.
func (self *LoopInfo) Contains(bb *ir.BasicBlock) bool {
    for it := bb; it != nil; it = it.ContainingGroup() {
        if it == self.Header {
            return true
        }
    }
    return false
}

// LoopDetection marks loop headers as group starts and assigns every block
// to its innermost containing loop.
type LoopDetection struct {
    dt    *DominatorTree
    loops []*LoopInfo
}

func NewLoopDetection(dt *DominatorTree) *LoopDetection {
    return &LoopDetection{dt: dt}
}

// Run visits the blocks deepest dominator-tree node first. Every block with
// an incoming back-edge is a loop header.
func (self *LoopDetection) Run(fn *ir.Function) {
    var backedges []*ir.BasicBlock

    /* find the loop headers */
    for _, bb := range self.dt.CalculateDFNodeIterOrder() {
        backedges = backedges[:0]

        /* a back-edge comes from a block dominated by the header */
        for _, in := range bb.In {
            if in == bb || self.dt.Dominates(bb, in) {
                backedges = append(backedges, in)
            }
        }

        /* this is a loop header */
        if len(backedges) != 0 {
            self.subLoop(bb, backedges)
        }
    }

    /* build the loop tree */
    self.createLoopInfos(fn)
}

func (self *LoopDetection) subLoop(head *ir.BasicBlock, backedges []*ir.BasicBlock) {
    head.MarkAsGroupStart(true)
    self.loops = append(self.loops, &LoopInfo{Header: head})

    /* walk backwards from the back-edges */
    st := lane.NewStack()
    for _, bb := range backedges {
        st.Push(bb)
    }

    /* claim every block on the way */
    for !st.Empty() {
        pred := st.Pop().(*ir.BasicBlock)
        sub := pred.ContainingGroup()

        /* a new block, it belongs to this loop */
        if sub == nil {
            if pred != head {
                pred.SetContainingGroup(head)
                for _, in := range pred.In {
                    st.Push(in)
                }
            }
            continue
        }

        /* an already claimed block, find its outermost loop */
        for sub.ContainingGroup() != nil {
            sub = sub.ContainingGroup()
        }

        /* already a part of this loop */
        if sub == head {
            continue
        }

        /* the outermost loop is nested in this one, continue with its entries */
        sub.SetContainingGroup(head)
        for _, in := range sub.In {
            if in.ContainingGroup() != sub {
                st.Push(in)
            }
        }
    }
}

func (self *LoopDetection) findLoop(header *ir.BasicBlock) *LoopInfo {
    for _, v := range self.loops {
        if v.Header == header {
            return v
        }
    }
    return nil
}

func (self *LoopDetection) createLoopInfos(fn *ir.Function) {
    for _, bb := range fn.Blocks {
        if !bb.IsRemoved() {
            if h := bb.ContainingGroup(); h != nil {
                info := self.findLoop(h)
                info.Body = append(info.Body, bb)
            }
        }
    }

    /* nesting relationship */
    for _, info := range self.loops {
        if h := info.Header.ContainingGroup(); h != nil {
            parent := self.findLoop(h)
            info.Parent = parent
            parent.Nested = append(parent.Nested, info)
        }
    }
}

// Loops returns every detected loop, innermost first.
func (self *LoopDetection) Loops() []*LoopInfo {
    return self.loops
}

// InnermostLoops returns the loops without nested loops.
func (self *LoopDetection) InnermostLoops() (ret []*LoopInfo) {
    for _, v := range self.loops {
        if len(v.Nested) == 0 {
            ret = append(ret, v)
        }
    }
    return
}
