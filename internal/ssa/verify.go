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
    `fmt`

    `github.com/davecgh/go-spew/spew`
    `github.com/cloudwego/jsir/internal/ir`
    `gonum.org/v1/gonum/graph/flow`
    `gonum.org/v1/gonum/graph/simple`
)

func countBlock(list []*ir.BasicBlock, bb *ir.BasicBlock) (n int) {
    for _, v := range list {
        if v == bb {
            n++
        }
    }
    return
}

func sameBlocks(a []*ir.BasicBlock, b ...*ir.BasicBlock) bool {
    if len(a) != len(b) {
        return false
    }
    for i := range a {
        if a[i] != b[i] {
            return false
        }
    }
    return true
}

func cfgError(fn *ir.Function, bb *ir.BasicBlock, msg string, args ...interface{}) {
    panic(fmt.Sprintf("verify: block %d: %s\n%s", bb.Index(), fmt.Sprintf(msg, args...), ir.Dump(fn)))
}

// VerifyCFG checks that the edges of every live block agree with each other
// and with the terminators. A single block may go without a terminator when
// it falls into rethrow.
func VerifyCFG(fn *ir.Function) {
    var rethrow *ir.BasicBlock
    for _, bb := range fn.LiveBlocks() {
        for _, out := range bb.Out {
            if out.IsRemoved() {
                cfgError(fn, bb, "edge to the removed block %d", out.Index())
            }
            if countBlock(out.In, bb) != countBlock(bb.Out, out) {
                cfgError(fn, bb, "no matching incoming edge in block %d", out.Index())
            }
        }

        /* the incoming edges */
        for _, in := range bb.In {
            if in.IsRemoved() {
                cfgError(fn, bb, "edge from the removed block %d", in.Index())
            }
            if countBlock(in.Out, bb) != countBlock(bb.In, in) {
                cfgError(fn, bb, "no matching outgoing edge in block %d", in.Index())
            }
        }

        /* the terminator */
        switch t := bb.Terminator().(type) {
            case nil: {
                if !bb.FallsIntoRethrow() {
                    cfgError(fn, bb, "no terminator")
                } else if rethrow != nil {
                    cfgError(fn, bb, "block %d falls into rethrow too", rethrow.Index())
                }
                rethrow = bb
            }
            case *ir.Ret  : if len(bb.Out) != 0 { cfgError(fn, bb, "return with successors") }
            case *ir.Jump : if !sameBlocks(bb.Out, t.Target) { cfgError(fn, bb, "jump does not match the edges") }
            case *ir.CJump: {
                if !sameBlocks(bb.Out, t.IfTrue, t.IfFalse) {
                    cfgError(fn, bb, "conditional jump does not match the edges")
                }
            }
        }

        /* the statements */
        for i, s := range bb.Stmts {
            if p, ok := s.(*ir.Phi); ok && len(p.Incoming) != len(bb.In) {
                cfgError(fn, bb, "phi has %d operands for %d predecessors", len(p.Incoming), len(bb.In))
            } else if ir.IsTerminator(s) && i != len(bb.Stmts) - 1 {
                cfgError(fn, bb, "terminator in the middle of the block: %s", spew.Sdump(s))
            }
        }
    }
}

// VerifyImmediateDominators checks the dominator tree against an independent
// computation over the live blocks.
func VerifyImmediateDominators(fn *ir.Function, dt *DominatorTree) {
    g := simple.NewDirectedGraph()
    live := fn.LiveBlocks()

    /* build the graph */
    for _, bb := range live {
        if g.Node(int64(bb.Index())) == nil {
            g.AddNode(simple.Node(bb.Index()))
        }
    }
    for _, bb := range live {
        for _, out := range bb.Out {
            if out != bb {
                g.SetEdge(g.NewEdge(simple.Node(bb.Index()), simple.Node(out.Index())))
            }
        }
    }

    /* compare every immediate dominator */
    tree := flow.Dominators(simple.Node(fn.Blocks[0].Index()), g)
    for _, bb := range live {
        exp := _InvalidIndex
        if d := tree.DominatorOf(int64(bb.Index())); d != nil {
            exp = int(d.ID())
        }
        if got := dt.idomOf(bb.Index()); got != exp {
            panic(fmt.Sprintf("verify: immediate dominator of block %d is %d, should be %d\n%s", bb.Index(), got, exp, ir.Dump(fn)))
        }
    }
}

// VerifyNoPointerSharing checks that no expression node is referenced twice.
func VerifyNoPointerSharing(fn *ir.Function) {
    if e := ir.SharedExpression(fn); e != nil {
        panic("verify: expression is shared between statements: " + spew.Sdump(e))
    }
}

// VerifySSA checks that every virtual register is defined exactly once, and
// that every read temp has a definition.
func VerifySSA(fn *ir.Function) {
    defs := make(map[int]ir.Stmt)
    uses := make(map[int]ir.Stmt)

    /* collect the definitions and uses */
    for _, bb := range fn.LiveBlocks() {
        for _, s := range bb.Stmts {
            inputs, output := ir.InputsOutput(s)
            if output != nil {
                if d, ok := defs[output.Index]; ok {
                    panic(fmt.Sprintf("verify: temp %%%d is defined by both %s and %s", output.Index, ir.StmtString(d), ir.StmtString(s)))
                }
                defs[output.Index] = s
            }
            for _, t := range inputs {
                uses[t.Index] = s
            }
        }
    }

    /* every use must be defined */
    for t, s := range uses {
        if _, ok := defs[t]; !ok {
            panic(fmt.Sprintf("verify: temp %%%d is used by %s but never defined", t, ir.StmtString(s)))
        }
    }
}
