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

// CleanupBasicBlocks removes every block not reachable from the entry block
// or an exception handler, and returns how many were removed.
func CleanupBasicBlocks(fn *ir.Function) int {
    st := lane.NewStack()
    reachable := make([]bool, len(fn.Blocks))

    /* the roots */
    for _, bb := range fn.LiveBlocks() {
        if bb.Index() == 0 || bb.IsExceptionHandler {
            reachable[bb.Index()] = true
            st.Push(bb)
        }
    }

    /* mark everything reachable */
    for !st.Empty() {
        bb := st.Pop().(*ir.BasicBlock)
        for _, out := range bb.Out {
            if !reachable[out.Index()] {
                reachable[out.Index()] = true
                st.Push(out)
            }
        }
        if c := bb.CatchBlock; c != nil && !c.IsRemoved() && !reachable[c.Index()] {
            reachable[c.Index()] = true
            st.Push(c)
        }
    }

    /* remove the rest */
    n := 0
    for _, bb := range fn.LiveBlocks() {
        if reachable[bb.Index()] {
            continue
        }

        /* the reachable successors lose an incoming edge */
        for _, out := range bb.Out {
            if reachable[out.Index()] {
                removeIncomingPhiOperand(out, bb)
            }
        }

        /* remove the block */
        n++
        fn.RemoveBlock(bb)
    }
    return n
}

// removeIncomingPhiOperand drops the Phi operands of the first edge from -> to.
// The edge itself is left for the caller to remove.
func removeIncomingPhiOperand(to *ir.BasicBlock, from *ir.BasicBlock) {
    if idx := to.IndexOfIn(from); idx >= 0 {
        for _, p := range to.Phis() {
            p.Incoming = append(p.Incoming[:idx], p.Incoming[idx + 1:]...)
        }
    }
}

// MergeBasicBlocks merges every block into its only predecessor when that
// predecessor has no other successor. du and dt are kept up to date when
// they are not nil. Functions with exception handlers are left alone.
func MergeBasicBlocks(fn *ir.Function, du *DefUses, dt *DominatorTree) int {
    if fn.HasTry {
        return 0
    }

    /* scan every block */
    n := 0
    for i := 0; i < len(fn.Blocks); i++ {
        bb := fn.Blocks[i]
        if bb.IsRemoved() {
            continue
        }

        /* absorb the successors one after another */
        for len(bb.Out) == 1 {
            succ := bb.Out[0]
            if !canMerge(fn, bb, succ) {
                break
            }

            /* drop the jump, and take over the statements */
            n++
            bb.RemoveStmtAt(len(bb.Stmts) - 1)
            for _, s := range succ.Stmts {
                if cj, ok := s.(*ir.CJump); ok {
                    cj.Parent = bb
                }
                bb.Append(s)
            }

            /* take over the outgoing edges */
            bb.Out = append([]*ir.BasicBlock(nil), succ.Out...)
            for _, out := range succ.Out {
                for j, in := range out.In {
                    if in == succ {
                        out.In[j] = bb
                    }
                }
            }

            /* update the analysis */
            if du != nil {
                du.ReplaceBlock(succ, bb)
            }
            if dt != nil {
                dt.MergeIntoPredecessor(succ)
            }

            /* the successor is empty now */
            succ.In = nil
            succ.Out = nil
            succ.Stmts = nil
            fn.RemoveBlock(succ)
        }
    }
    return n
}

func canMerge(fn *ir.Function, bb *ir.BasicBlock, succ *ir.BasicBlock) bool {
    if _, ok := bb.Terminator().(*ir.Jump); !ok {
        return false
    }
    switch {
        case succ == bb                        : return false
        case len(succ.In) != 1                 : return false
        case succ.IsGroupStart()               : return false
        case succ.IsExceptionHandler           : return false
        case succ == fn.Blocks[0]              : return false
        case succ.PhiCount() != 0              : return false
        case succ.CatchBlock != bb.CatchBlock  : return false
        default                                : return true
    }
}

func inGroup(bb *ir.BasicBlock, head *ir.BasicBlock) bool {
    for it := bb.ContainingGroup(); it != nil; it = it.ContainingGroup() {
        if it == head {
            return true
        }
    }
    return false
}

// SplitCriticalEdges inserts an empty block on every edge going from a block
// with several successors to a block with several predecessors, so the moves
// leaving SSA form have a place to go.
func SplitCriticalEdges(fn *ir.Function, dt *DominatorTree, w *StatementWorklist, du *DefUses) int {
    n := 0
    for _, to := range fn.LiveBlocks() {
        if len(to.In) < 2 {
            continue
        }

        /* check every incoming edge */
        for idx, from := range to.In {
            if len(from.Out) < 2 {
                continue
            }

            /* both edges of a CJump may go to the same block */
            k := 0
            for _, in := range to.In[:idx] {
                if in == from {
                    k++
                }
            }

            /* find the matching outgoing edge */
            out := -1
            for j, v := range from.Out {
                if v == to {
                    if k == 0 {
                        out = j
                        break
                    }
                    k--
                }
            }

            /* should not happen */
            if out < 0 {
                panic("cfg: inconsistent edges")
            }

            /* the new block just jumps to the destination */
            n++
            nb := fn.NewBlock()
            nb.CatchBlock = to.CatchBlock
            jmp := fn.NewJump(to)
            nb.Append(jmp)
            w.RegisterNewStatement(jmp)
            du.RegisterNewStatement(jmp)

            /* rewire the edges */
            from.Out[out] = nb
            to.In[idx] = nb
            nb.In = []*ir.BasicBlock { from }
            nb.Out = []*ir.BasicBlock { to }

            /* the new block belongs to the loop the edge is in */
            if to.IsGroupStart() && (from == to || inGroup(from, to)) {
                nb.SetContainingGroup(to)
            } else {
                nb.SetContainingGroup(to.ContainingGroup())
            }

            /* patch the terminator */
            switch t := from.Terminator().(type) {
                case *ir.Jump: {
                    t.Target = nb
                }
                case *ir.CJump: {
                    if out == 0 {
                        t.IfTrue = nb
                    } else {
                        t.IfFalse = nb
                    }
                }
            }

            /* update the dominator tree */
            dt.SetImmediateDominator(nb, from)
            if dominatesOtherInputs(dt, to, idx) {
                dt.SetImmediateDominator(to, nb)
            }
        }
    }
    return n
}

func dominatesOtherInputs(dt *DominatorTree, bb *ir.BasicBlock, skip int) bool {
    for i, in := range bb.In {
        if i != skip && in != bb && !dt.Dominates(bb, in) {
            return false
        }
    }
    return true
}

// RemoveLineNumbers clears the source location of every statement.
func RemoveLineNumbers(fn *ir.Function) {
    for _, bb := range fn.LiveBlocks() {
        for _, s := range bb.Stmts {
            s.SetLoc(ir.Location{})
        }
    }
}

// CalculateOptionalJumps finds every Jump that can be omitted because its
// target is laid out right after it, possibly through blocks that are
// themselves made of an omitted jump only. The blocks must be scheduled.
func CalculateOptionalJumps(fn *ir.Function) map[*ir.Jump]bool {
    ret := make(map[*ir.Jump]bool)
    fallthru := make(map[*ir.BasicBlock]bool)

    /* from the last block backwards */
    for i := len(fn.Blocks) - 1; i >= 0; i-- {
        bb := fn.Blocks[i]
        if bb.IsRemoved() {
            continue
        }

        /* the jump is optional if the target follows */
        if j, ok := bb.Terminator().(*ir.Jump); ok && fallthru[j.Target] {
            if ret[j] = true; len(bb.Stmts) > 1 {
                fallthru = make(map[*ir.BasicBlock]bool)
            }
            fallthru[bb] = true
            continue
        }

        /* only this block is next */
        fallthru = map[*ir.BasicBlock]bool { bb: true }
    }
    return ret
}
