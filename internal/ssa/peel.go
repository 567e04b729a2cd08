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
    `github.com/cloudwego/jsir/internal/ir`
)

// LoopPeeling unfolds loops once. The original blocks stay in place and run
// the first iteration; the copy placed after them becomes the actual loop.
// It must run before the SSA construction, the blocks contain no Phi yet.
type LoopPeeling struct {
    dt *DominatorTree
}

func NewLoopPeeling(dt *DominatorTree) *LoopPeeling {
    return &LoopPeeling{dt: dt}
}

func (self *LoopPeeling) Run(loops []*LoopInfo) {
    for _, loop := range loops {
        self.peelLoop(loop)
    }
}

func indexOfBlock(v []*ir.BasicBlock, bb *ir.BasicBlock) int {
    for i, p := range v {
        if p == bb {
            return i
        }
    }
    return -1
}

func removeBlock(v []*ir.BasicBlock, bb *ir.BasicBlock) []*ir.BasicBlock {
    if i := indexOfBlock(v, bb); i < 0 {
        return v
    } else {
        return append(v[:i], v[i + 1:]...)
    }
}

// cloneBlock deep-copies the statements of bb into a detached block. The
// copied terminator branches to the same targets as the original one.
func cloneBlock(fn *ir.Function, bb *ir.BasicBlock) *ir.BasicBlock {
    ret := fn.NewDetachedBlock()
    for _, s := range bb.Stmts {
        ret.Append(fn.CloneStmt(s))
    }

    /* link the out edges of the terminator */
    switch t := ret.Terminator().(type) {
        case *ir.Jump  : ir.Link(ret, t.Target)
        case *ir.CJump : t.Parent = ret; ir.Link(ret, t.IfTrue); ir.Link(ret, t.IfFalse)
    }
    return ret
}

// rewire points every out edge of a copied block that targets an original
// loop block to the matching copy. Edges leaving the loop are collected.
func (self *LoopPeeling) rewire(bb *ir.BasicBlock, from []*ir.BasicBlock, to []*ir.BasicBlock, exits *[]*ir.BasicBlock) {
    for i, out := range bb.Out {
        idx := indexOfBlock(from, out)

        /* an edge out of the loop */
        if idx == -1 {
            if indexOfBlock(*exits, out) == -1 {
                *exits = append(*exits, out)
            }
            continue
        }

        /* move the edge to the copy */
        nt := to[idx]
        out.In = removeBlock(out.In, bb)
        nt.In = append(nt.In, bb)
        bb.Out[i] = nt

        /* patch the terminator */
        switch t := bb.Terminator().(type) {
            case *ir.Jump: {
                t.Target = nt
            }
            case *ir.CJump: {
                if i == 0 {
                    t.IfTrue = nt
                } else {
                    t.IfFalse = nt
                }
            }
        }
    }
}

func (self *LoopPeeling) peelLoop(loop *LoopInfo) {
    hdr := loop.Header
    fn := hdr.Function()

    /* copy the loop header and the body */
    nh := cloneBlock(fn, hdr)
    nh.SetContainingGroup(hdr.ContainingGroup())
    nh.MarkAsGroupStart(true)
    body := make([]*ir.BasicBlock, len(loop.Body))
    for i, bb := range loop.Body {
        body[i] = cloneBlock(fn, bb)
        body[i].SetContainingGroup(nh)
    }

    /* move the back-edges to the copied header */
    for _, in := range append([]*ir.BasicBlock(nil), hdr.In...) {
        if in != nh && indexOfBlock(body, in) == -1 && !self.dt.Dominates(hdr, in) && in != hdr {
            continue
        }

        /* move the edge */
        nh.In = append(nh.In, in)
        hdr.In = removeBlock(hdr.In, in)

        /* retarget the terminator and the out edge */
        if i := indexOfBlock(in.Out, hdr); i >= 0 {
            in.Out[i] = nh
        }
        ir.RetargetTerminator(in, hdr, nh)
    }

    /* rewire the copies, and add them to the function */
    exits := []*ir.BasicBlock { nh }
    self.rewire(nh, loop.Body, body, &exits)
    fn.AddBlock(nh)
    for _, bb := range body {
        self.rewire(bb, loop.Body, body, &exits)
        fn.AddBlock(bb)
    }

    /* the original blocks are not a loop anymore */
    hdr.MarkAsGroupStart(false)
    for _, bb := range loop.Body {
        bb.SetContainingGroup(hdr.ContainingGroup())
    }

    /* the copies are dominated like the originals */
    for i, bb := range body {
        dom := self.dt.ImmediateDominator(loop.Body[i])
        if dom == hdr {
            dom = nh
        } else if idx := indexOfBlock(loop.Body, dom); idx != -1 {
            dom = body[idx]
        }
        self.dt.SetImmediateDominator(bb, dom)
    }

    /* every block getting a new edge needs a new immediate dominator */
    siblings := make(map[*ir.BasicBlock]struct{})
    for _, bb := range exits {
        self.dt.CollectSiblings(bb, siblings)
    }
    self.dt.RecalculateIDoms(siblings)
}
