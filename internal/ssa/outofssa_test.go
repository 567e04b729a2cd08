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

func slot(i int) *ir.Temp {
    return &ir.Temp{Kind: ir.StackSlot, Index: i}
}

// simulate runs the ordered moves over the slots, which initially hold 100
// plus their index.
func simulate(mm *MoveMapping, n int) []float64 {
    ret := make([]float64, n)
    for i := range ret {
        ret[i] = float64(100 + i)
    }

    /* one move after another */
    for _, m := range mm.Moves() {
        switch v := m.From.(type) {
            case *ir.Const: {
                ret[m.To.Index] = v.Value
            }
            case *ir.Temp: {
                if m.NeedsSwap {
                    ret[m.To.Index], ret[v.Index] = ret[v.Index], ret[m.To.Index]
                } else {
                    ret[m.To.Index] = ret[v.Index]
                }
            }
        }
    }
    return ret
}

func TestMoveMapping_Swap(t *testing.T) {
    mm := new(MoveMapping)
    mm.Add(slot(1), slot(0))
    mm.Add(slot(0), slot(1))
    mm.Order()
    require.Len(t, mm.Moves(), 1, mm.String())
    require.True(t, mm.Moves()[0].NeedsSwap)
    require.Equal(t, []float64 { 101, 100 }, simulate(mm, 2))
}

func TestMoveMapping_Cycle(t *testing.T) {
    mm := new(MoveMapping)
    mm.Add(slot(1), slot(0))
    mm.Add(slot(2), slot(1))
    mm.Add(slot(0), slot(2))
    mm.Add(slot(1), slot(3))
    mm.Order()

    /* the plain move goes first, then two swaps */
    moves := mm.Moves()
    require.Len(t, moves, 3, mm.String())
    require.False(t, moves[0].NeedsSwap)
    require.True(t, moves[1].NeedsSwap)
    require.True(t, moves[2].NeedsSwap)
    require.Equal(t, []float64 { 101, 102, 100, 101 }, simulate(mm, 4))
}

func TestMoveMapping_Chain(t *testing.T) {
    fn := ir.NewFunction("chain")
    mm := new(MoveMapping)
    mm.Add(slot(1), slot(2))
    mm.Add(slot(0), slot(1))
    mm.Add(fn.NewNumber(7), slot(0))
    mm.Add(slot(3), slot(3))
    mm.Add(slot(0), slot(1))
    mm.Order()

    /* self moves and duplicates are dropped, and nothing needs a swap */
    require.Len(t, mm.Moves(), 3, mm.String())
    for _, m := range mm.Moves() {
        require.False(t, m.NeedsSwap)
    }
    require.Equal(t, []float64 { 7, 100, 101, 103 }, simulate(mm, 4))
}

func TestMoveMapping_LongCycle(t *testing.T) {
    n := 200
    mm := new(MoveMapping)
    exp := make([]float64, n)
    for i := 0; i < n; i++ {
        mm.Add(slot((i + 1) % n), slot(i))
        exp[i] = float64(100 + (i + 1) % n)
    }

    /* one of the moves is done by the others */
    mm.Order()
    require.Len(t, mm.Moves(), n - 1)
    for _, m := range mm.Moves() {
        require.True(t, m.NeedsSwap, mm.String())
    }
    require.Equal(t, exp, simulate(mm, n))
}

func TestMoveMapping_Random(t *testing.T) {
    fk := gofakeit.New(1024)
    fn := ir.NewFunction("random")
    for round := 0; round < 500; round++ {
        n := fk.Number(1, 8)
        mm := new(MoveMapping)
        exp := simulate(mm, n)

        /* every slot is written at most once */
        dsts := seq(n)
        fk.ShuffleInts(dsts)
        for _, dst := range dsts[:fk.Number(1, n)] {
            if fk.Number(0, 5) == 0 {
                v := float64(fk.Number(0, 99))
                mm.Add(fn.NewNumber(v), slot(dst))
                exp[dst] = v
            } else {
                src := fk.Number(0, n - 1)
                mm.Add(slot(src), slot(dst))
                exp[dst] = float64(100 + src)
            }
        }

        /* the sequence has the same effect as the parallel moves */
        mm.Order()
        require.Equal(t, exp, simulate(mm, n), "round %d\n%s", round, mm.String())
    }
}

func seq(n int) []int {
    ret := make([]int, n)
    for i := range ret {
        ret[i] = i
    }
    return ret
}
