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

    `github.com/cloudwego/jsir/internal/ir`
    `github.com/stretchr/testify/require`
)

func formalTemp(t *testing.T, fn *ir.Function) int {
    for _, s := range fn.Blocks[0].Stmts {
        if m, ok := s.(*ir.Move); ok {
            if a, ok := m.Source.(*ir.ArgLocal); ok && a.Kind == ir.Formal {
                return ir.AsTemp(m.Target).Index
            }
        }
    }
    require.FailNow(t, "no formal copy in the entry block", ir.Dump(fn))
    return -1
}

func overlaps(a *LifeTimeInterval, b *LifeTimeInterval) bool {
    for _, x := range a.Ranges {
        for _, y := range b.Ranges {
            if x.Start <= y.End && y.Start <= x.End {
                return true
            }
        }
    }
    return false
}

func TestLiveness_LoopExtension(t *testing.T) {
    fn := sumLoop()
    p := NewPipeline(fn, testOptions())
    runPasses(p, "Block Scheduling")

    /* find the loop */
    var header *ir.BasicBlock
    for _, bb := range fn.LiveBlocks() {
        if bb.IsGroupStart() {
            header = bb
        }
    }
    require.NotNil(t, header, ir.Dump(fn))
    last := p.groups[header]
    require.NotNil(t, last)

    /* n is read in the header only, but it must survive the whole loop */
    lr := NewLifeRanges(fn, p.groups)
    iv := lr.Intervals()
    n := formalTemp(t, fn)
    for _, v := range iv.Intervals() {
        if v.Temp.Index == n {
            require.True(t, v.Covers(iv.StartPosition(header)), v.String())
            require.True(t, v.Covers(iv.PositionForStatement(last.Terminator())), v.String())
            require.Contains(t, lr.LiveIn(header), n)
            return
        }
    }
    require.FailNow(t, "no interval for n", iv.String())
}

func TestLiveness_SortedIntervals(t *testing.T) {
    fn := sumLoop()
    p := NewPipeline(fn, testOptions())
    runPasses(p, "Block Scheduling")

    /* sorted by start position */
    list := NewLifeRanges(fn, p.groups).Intervals().Intervals()
    require.NotEmpty(t, list)
    for i := 1; i < len(list); i++ {
        require.LessOrEqual(t, list[i - 1].Start(), list[i].Start())
    }
}

func TestStackSlots_NoOverlap(t *testing.T) {
    for _, build := range []func() *ir.Function { sumLoop, func() *ir.Function { return diamond(true) } } {
        fn := build()
        o := testOptions()
        o.EnableOptimizer = false
        p := NewPipeline(fn, o)
        runPasses(p, "Block Scheduling")

        /* temps sharing a slot never live at the same time */
        lr := NewLifeRanges(fn, p.groups)
        list := lr.Intervals().Intervals()
        sa := NewStackSlotAllocator(lr.Intervals())
        for i, a := range list {
            for _, b := range list[i + 1:] {
                if a.IsValid() && b.IsValid() && sa.Slot(a.Temp.Index) == sa.Slot(b.Temp.Index) {
                    require.False(t, overlaps(a, b), "%s\n%s", a.String(), b.String())
                }
            }
        }
        require.LessOrEqual(t, sa.SlotCount(), fn.TempCount)
    }
}

func TestLiveness_IntervalRanges(t *testing.T) {
    iv := newLifeTimeInterval(&ir.Temp{Index: 0})
    iv.addRange(10, 12)
    iv.addRange(2, 4)
    iv.addRange(5, 6)
    require.Equal(t, []Range {{ 2, 6 }, { 10, 12 }}, iv.Ranges)
    require.Equal(t, 2, iv.Start())
    require.Equal(t, 12, iv.End())
    require.True(t, iv.Covers(11))
    require.False(t, iv.Covers(8))

    /* the definition cuts the first range */
    iv.setFrom(3)
    require.Equal(t, 3, iv.Start())
}
