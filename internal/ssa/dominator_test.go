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
    `testing`

    `github.com/brianvoe/gofakeit/v6`
    `github.com/cloudwego/jsir/internal/ir`
    `github.com/stretchr/testify/require`
)

// randomCFG builds a function of n blocks with random edges. Block i ends
// with a return, a jump or a conditional jump, picked at random. Nothing
// branches back to the entry block.
func randomCFG(fk *gofakeit.Faker, n int) *ir.Function {
    fn := ir.NewFunction("random")
    cond := fn.NewFreshTemp()

    /* create all the blocks first */
    for i := 0; i < n; i++ {
        fn.NewBlock()
    }

    /* a single block can only return */
    if n == 1 {
        fn.Blocks[0].Ret(fn.NewUndefined())
        return fn
    }

    /* then the terminators */
    target := func() *ir.BasicBlock { return fn.Blocks[fk.Number(1, n - 1)] }
    for _, bb := range fn.Blocks {
        switch fk.Number(0, 4) {
            case 0  : bb.Ret(fn.NewUndefined())
            case 1  : bb.Jump(target())
            default : bb.CJump(ir.CloneTemp(cond), target(), target())
        }
    }
    return fn
}

// reachableWithout marks every block reachable from the entry when skip is
// taken out of the graph.
func reachableWithout(fn *ir.Function, skip *ir.BasicBlock) map[*ir.BasicBlock]bool {
    ret := make(map[*ir.BasicBlock]bool)
    if fn.Blocks[0] == skip {
        return ret
    }

    /* plain depth-first search */
    todo := []*ir.BasicBlock { fn.Blocks[0] }
    ret[fn.Blocks[0]] = true
    for len(todo) != 0 {
        bb := todo[len(todo) - 1]
        todo = todo[:len(todo) - 1]
        for _, out := range bb.Out {
            if out != skip && !ret[out] {
                ret[out] = true
                todo = append(todo, out)
            }
        }
    }
    return ret
}

// strictDominators computes the strict dominators of every reachable block
// by removing each block in turn.
func strictDominators(fn *ir.Function) map[*ir.BasicBlock]map[*ir.BasicBlock]bool {
    all := reachableWithout(fn, nil)
    ret := make(map[*ir.BasicBlock]map[*ir.BasicBlock]bool)
    for bb := range all {
        ret[bb] = make(map[*ir.BasicBlock]bool)
    }
    for d := range all {
        seen := reachableWithout(fn, d)
        for bb := range all {
            if bb != d && !seen[bb] {
                ret[bb][d] = true
            }
        }
    }
    return ret
}

// bruteIDom picks the strict dominator with the most strict dominators of
// its own, the dominators of a block form a chain.
func bruteIDom(sd map[*ir.BasicBlock]map[*ir.BasicBlock]bool, bb *ir.BasicBlock) *ir.BasicBlock {
    var ret *ir.BasicBlock
    for d := range sd[bb] {
        if ret == nil || len(sd[d]) > len(sd[ret]) {
            ret = d
        }
    }
    return ret
}

func TestDominator_RandomGraphs(t *testing.T) {
    fk := gofakeit.New(20221108)
    for round := 0; round < 200; round++ {
        fn := randomCFG(fk, fk.Number(1, 12))
        CleanupBasicBlocks(fn)
        dt := BuildDominatorTree(fn)
        sd := strictDominators(fn)

        /* every immediate dominator matches */
        for _, bb := range fn.LiveBlocks() {
            require.Equal(t, bruteIDom(sd, bb), dt.ImmediateDominator(bb), "round %d, block %d\n%s", round, bb.Index(), ir.Dump(fn))
        }

        /* and agrees with the independent computation */
        require.NotPanics(t, func() { VerifyImmediateDominators(fn, dt) }, ir.Dump(fn))
    }
}

func TestDominator_Frontiers(t *testing.T) {
    fk := gofakeit.New(7)
    for round := 0; round < 100; round++ {
        fn := randomCFG(fk, fk.Number(2, 12))
        CleanupBasicBlocks(fn)
        dt := BuildDominatorTree(fn)
        dt.ComputeDF()
        sd := strictDominators(fn)

        /* y is in DF(x) if x dominates a predecessor of y but not y itself */
        for _, x := range fn.LiveBlocks() {
            exp := make(map[*ir.BasicBlock]bool)
            for _, y := range fn.LiveBlocks() {
                for _, p := range y.In {
                    if (p == x || sd[p][x]) && !sd[y][x] {
                        exp[y] = true
                    }
                }
            }

            /* compare as sets */
            got := make(map[*ir.BasicBlock]bool)
            for _, y := range dt.DominanceFrontier(x) {
                got[y] = true
            }
            require.Equal(t, exp, got, "round %d, block %d\n%s", round, x.Index(), ir.Dump(fn))
        }
    }
}

func TestDominator_Diamond(t *testing.T) {
    fn := ir.NewFunction("diamond")
    b0, b1, b2, b3 := fn.NewBlock(), fn.NewBlock(), fn.NewBlock(), fn.NewBlock()
    b0.CJump(fn.NewFreshTemp(), b1, b2)
    b1.Jump(b3)
    b2.Jump(b3)
    b3.Ret(nil)

    /* the join point is dominated by the entry only */
    dt := BuildDominatorTree(fn)
    dt.ComputeDF()
    require.Nil(t, dt.ImmediateDominator(b0))
    require.Equal(t, b0, dt.ImmediateDominator(b1))
    require.Equal(t, b0, dt.ImmediateDominator(b2))
    require.Equal(t, b0, dt.ImmediateDominator(b3))
    require.True(t, dt.Dominates(b0, b3))
    require.False(t, dt.Dominates(b1, b3))
    require.False(t, dt.Dominates(b3, b3))
    require.Equal(t, []*ir.BasicBlock { b3 }, dt.DominanceFrontier(b1))
    require.Equal(t, []*ir.BasicBlock { b3 }, dt.DominanceFrontier(b2))
    require.Empty(t, dt.DominanceFrontier(b0))
}

func TestDominator_RecalculateAfterSplit(t *testing.T) {
    fn := ir.NewFunction("split")
    b0, b1, b2 := fn.NewBlock(), fn.NewBlock(), fn.NewBlock()
    b0.CJump(fn.NewFreshTemp(), b1, b2)
    b1.Jump(b2)
    b2.Ret(nil)

    /* b0 -> b2 is critical */
    dt := BuildDominatorTree(fn)
    du := NewDefUses(fn)
    w := NewStatementWorklist(fn)
    require.Equal(t, 1, SplitCriticalEdges(fn, dt, w, du))
    require.NotPanics(t, func() { VerifyCFG(fn) })
    require.NotPanics(t, func() { VerifyImmediateDominators(fn, dt) })
}
