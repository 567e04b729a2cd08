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
    `strings`

    `github.com/oleiade/lane`
    `github.com/cloudwego/jsir/internal/ir`
)

// ParallelMove is one of the moves that must appear to happen at the same
// time. A swap exchanges the contents of both locations.
type ParallelMove struct {
    From       ir.Expr
    To         *ir.Temp
    NeedsSwap  bool
}

func (self ParallelMove) String() string {
    if self.NeedsSwap {
        return fmt.Sprintf("%s <-> %s", ir.ExprString(self.To), ir.ExprString(self.From))
    } else {
        return fmt.Sprintf("%s <- %s", ir.ExprString(self.To), ir.ExprString(self.From))
    }
}

// MoveMapping sequentializes a set of parallel moves. Cycles are broken with
// swaps, so no scratch location is needed.
type MoveMapping struct {
    moves   []ParallelMove
    output  []ParallelMove
    swaps   []ParallelMove
    delayed []ParallelMove
    todo    []ParallelMove
}

func overlappingStorage(a ir.Expr, b *ir.Temp) bool {
    t := ir.AsTemp(a)
    if t == nil || t.Kind != b.Kind || t.Index != b.Index {
        return false
    } else if t.Kind == ir.PhysicalRegister {
        return (t.Type() == ir.DoubleType) == (b.Type() == ir.DoubleType)
    } else {
        return true
    }
}

func sameMove(a ParallelMove, b ParallelMove) bool {
    return ir.SameTemp(a.To, b.To) && ir.ExprString(a.From) == ir.ExprString(b.From)
}

// Add records the move from -> to. Moves to the same location and duplicates
// are ignored.
func (self *MoveMapping) Add(from ir.Expr, to *ir.Temp) {
    if overlappingStorage(from, to) {
        return
    }

    /* check for duplicates */
    m := ParallelMove{From: from, To: to}
    for _, v := range self.moves {
        if sameMove(v, m) {
            return
        }
    }

    /* add to the list */
    self.moves = append(self.moves, m)
}

func indexOfMove(list []ParallelMove, m ParallelMove) int {
    for i, v := range list {
        if sameMove(v, m) {
            return i
        }
    }
    return -1
}

func removeMove(list []ParallelMove, m ParallelMove) []ParallelMove {
    if i := indexOfMove(list, m); i < 0 {
        return list
    } else {
        return append(list[:i], list[i + 1:]...)
    }
}

// Order computes the sequence of moves and swaps.
func (self *MoveMapping) Order() {
    self.todo = append(self.todo[:0], self.moves...)
    self.output = self.output[:0]
    self.swaps = self.swaps[:0]
    self.delayed = self.delayed[:0]

    /* schedule every move */
    for len(self.todo) != 0 {
        self.schedule(self.todo[0])
    }

    /* the swaps go last */
    self.output = append(self.output, self.swaps...)
}

// dependencies returns the pending moves reading the location m overwrites.
func (self *MoveMapping) dependencies(m ParallelMove) (ret []ParallelMove) {
    for _, list := range [][]ParallelMove { self.todo, self.delayed } {
        for _, v := range list {
            if !sameMove(v, m) && overlappingStorage(v.From, m.To) && indexOfMove(self.output, v) < 0 {
                ret = append(ret, v)
            }
        }
    }
    return
}

// _MoveFrame is a move being scheduled, waiting for the moves reading its
// destination.
type _MoveFrame struct {
    move    ParallelMove
    deps    []ParallelMove
    next    int
    swap    bool
    waiting bool
}

func (self *MoveMapping) enter(m ParallelMove) *_MoveFrame {
    self.todo = removeMove(self.todo, m)
    return &_MoveFrame{move: m, deps: self.dependencies(m)}
}

// schedule emits every move reading the destination of m before m itself.
// A move that finds itself waiting on a move already waiting for it closes a
// cycle: it is not emitted, the moves on the cycle become swaps instead.
func (self *MoveMapping) schedule(m ParallelMove) {
    swap := false
    st := lane.NewStack()

    /* depth-first over the dependencies */
    for st.Push(self.enter(m)); !st.Empty(); {
        f := st.Head().(*_MoveFrame)

        /* back from a dependency */
        if f.waiting {
            f.waiting = false
            f.swap = f.swap || swap
            self.delayed = removeMove(self.delayed, f.move)
        }

        /* the moves reading our destination go first */
        if f.next < len(f.deps) {
            dep := f.deps[f.next]
            f.next++

            /* a dependency still pending is scheduled right now */
            if indexOfMove(self.delayed, dep) >= 0 {
                f.swap = true
            } else if indexOfMove(self.todo, dep) >= 0 {
                f.waiting = true
                self.delayed = append(self.delayed, f.move)
                st.Push(self.enter(dep))
            }
            continue
        }

        /* all the dependencies are done */
        st.Pop()
        swap = self.finish(f)
    }
}

// finish emits the move of f, or turns it into a swap when it is part of a
// cycle. It reports whether it was part of a cycle.
func (self *MoveMapping) finish(f *_MoveFrame) bool {
    m := f.move

    /* not part of a cycle */
    if !f.swap {
        self.output = append(self.output, m)
        return false
    }

    /* the move closing the cycle is done by the swaps */
    if len(self.delayed) != 0 && self.closesCycle(m) {
        return true
    }

    /* exchange both locations */
    m.NeedsSwap = true
    self.swaps = append(self.swaps, m)
    return true
}

// closesCycle reports whether one of the moves reading the destination of m
// is still waiting for m to be scheduled.
func (self *MoveMapping) closesCycle(m ParallelMove) bool {
    for _, v := range self.delayed {
        if overlappingStorage(v.From, m.To) {
            return true
        }
    }
    return false
}

// Moves returns the ordered moves, valid after Order.
func (self *MoveMapping) Moves() []ParallelMove {
    return self.output
}

// InsertMoves inserts the ordered moves right before the terminator of bb.
func (self *MoveMapping) InsertMoves(bb *ir.BasicBlock, fn *ir.Function) {
    for _, m := range self.output {
        mov := fn.NewMove(m.To, m.From)
        mov.Swap = m.NeedsSwap
        bb.InsertBeforeTerminator(mov)
    }
}

func (self *MoveMapping) String() string {
    sb := strings.Builder{}
    for _, m := range self.output {
        sb.WriteString(m.String())
        sb.WriteByte('\n')
    }
    return sb.String()
}

// ConvertOutOfSSA replaces the Phi nodes by copies at the end of the
// predecessors. The critical edges must have been split.
func ConvertOutOfSSA(fn *ir.Function) {
    for _, bb := range fn.LiveBlocks() {
        for i, succ := range bb.Out {
            if bb.IndexOfOut(succ) != i {
                continue
            }

            /* collect the copies of every Phi in the successor */
            mm := new(MoveMapping)
            for idx, in := range succ.In {
                if in == bb {
                    for _, p := range succ.Phis() {
                        mm.Add(ir.CloneExpr(p.Incoming[idx]), ir.CloneTemp(p.Target))
                    }
                }
            }

            /* sequentialize them */
            mm.Order()
            mm.InsertMoves(bb, fn)
        }
    }

    /* the Phi nodes are gone */
    for _, bb := range fn.LiveBlocks() {
        for len(bb.Stmts) != 0 {
            if _, ok := bb.Stmts[0].(*ir.Phi); !ok {
                break
            }
            bb.RemoveStmtAt(0)
        }
    }
}
